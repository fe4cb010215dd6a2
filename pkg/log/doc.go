/*
Package log provides structured logging for HeavenGate using zerolog.

A single global Logger is configured once via Init at process start;
every component gets a child logger via WithComponent (and, where
useful, WithClientID / WithBackendID) so that fields like component,
client_id and backend_id show up consistently across JSON or console
output.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	proxyLog := log.WithComponent("proxy")
	proxyLog.Info().Str("client_id", id).Msg("accepted connection")
*/
package log

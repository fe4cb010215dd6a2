/*
Package proxy is the TCP acceptor and per-client state machine: the
largest component of HeavenGate. Each accepted connection runs its own
goroutine through READ_INITIAL -> AWAITING_CLASSIFICATION ->
CONNECT_BACKEND -> PROXYING -> CLOSED, which is the idiomatic Go
rendering of a single-threaded cooperative reactor — the listener
never blocks a shared goroutine on per-connection I/O because each
connection owns its own.

Classification is resolved out-of-band: the proxy publishes
REQUEST_FOR_CLASSIFICATION and subscribes to REQUEST_CLASSIFIED,
resuming the matching client by client_id once the classifier's
verdict (an external component, out of scope here) arrives.
*/
package proxy

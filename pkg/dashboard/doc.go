/*
Package dashboard is an outbound-only HTTP notifier: on every
successful route it fires a single "POST /api/user_registered" at an
external dashboard process and does not wait for or act on the result
beyond logging it. The dashboard process itself, and anything it does
with the notification, is outside this module's scope.
*/
package dashboard

/*
Package strategy implements the four selection strategies over a
non-empty, healthy backend list: ROUND_ROBIN, LEAST_CONNECTIONS,
IP_HASH and WEIGHTED. Each has the same Func shape, so the proxy keeps
only the strategy Name, looks up the matching Func via Selector.Func
on every selection, and can swap the Name at runtime.

Callers must never invoke a strategy with an empty backend list; that
case (NO_HEALTHY_BACKENDS / NO_BACKENDS_REGISTERED) is resolved one
layer up, in pkg/proxy, before a strategy is ever called.
*/
package strategy

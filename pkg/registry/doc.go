/*
Package registry holds HeavenGate's backend inventory: two disjoint
pools (real, honeypot) of Backend records, shared among the proxy
acceptor, the health checker and bus subscribers.

Each Backend's identity (id, host, port, is_honeypot, weight) is fixed
at construction; its mutable state (health, connection counts,
request/response counters, timestamps) lives in atomics so that readers
never need the registry's list lock — only adding, removing or
snapshotting the lists themselves takes that lock.
*/
package registry

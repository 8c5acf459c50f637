/*
Package observability exposes engine activity as Prometheus metrics.

Metrics registers its collectors on a private registry and translates the
engine lifecycle hooks (signals, generations, cost, breakers, learned
patterns) into counters and gauges. Mount Handler on any HTTP router.
*/
package observability

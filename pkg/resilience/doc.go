// Package resilience protects the hierarchy from an unhealthy backend or neuron.
//
// A Breaker per neuron fails fast after repeated failures and doubles its
// cooldown on every failed trial. A Limiter keeps one token bucket per
// neuron-layer pair. Guard combines both around a backend.Generator and
// substitutes Mock output whenever a call is refused, so the pipeline keeps flowing.
package resilience

// Package runtime runs a topology as a network of neuron actors.
//
// Each local neuron owns one goroutine, one bounded inbox and its adjustment
// state. Signals move only through the Router, which enforces the adjacency
// rule on every hop. A request tracker counts in-flight signals per batch and
// completes the caller's Outcome once the last one has been processed.
package runtime

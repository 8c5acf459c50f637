// Package learning turns backward error signals into persistent lessons.
//
// Every observed gradient is recorded as an Error entry in the neuron's memory
// partition. When the same classification recurs often enough inside the
// sliding window, the engine consolidates it into a Learning entry carrying a
// prompt adjustment that the neuron applies to later generations.
package learning

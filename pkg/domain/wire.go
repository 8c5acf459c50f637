package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireSignal is the JSON shape used when signals cross a process boundary.
type wireSignal struct {
	SignalID   string      `json:"signal_id"`
	FromNeuron string      `json:"from_neuron"`
	ToNeuron   string      `json:"to_neuron"`
	LayerFrom  string      `json:"layer_from"`
	LayerTo    string      `json:"layer_to"`
	Direction  Direction   `json:"direction"`
	BatchID    string      `json:"batch_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Deadline   *time.Time  `json:"deadline,omitempty"`
	Hop        int         `json:"hop,omitempty"`
	Payload    wirePayload `json:"payload"`
}

type wirePayload struct {
	Activation *Activation `json:"activation,omitempty"`
	Gradient   *Gradient   `json:"gradient,omitempty"`
}

// MarshalJSON encodes the signal in its wire shape.
func (s *Signal) MarshalJSON() ([]byte, error) {
	w := wireSignal{
		SignalID:   s.id,
		FromNeuron: s.from,
		ToNeuron:   s.to,
		LayerTo:    s.layerTo.String(),
		Direction:  s.direction,
		BatchID:    s.batchID,
		Timestamp:  s.timestamp,
		Hop:        s.hop,
		Payload: wirePayload{
			Activation: s.activation,
			Gradient:   s.gradient,
		},
	}
	if s.layerFrom.Valid() {
		w.LayerFrom = s.layerFrom.String()
	}
	if !s.deadline.IsZero() {
		d := s.deadline
		w.Deadline = &d
	}
	return json.Marshal(w)
}

// EncodeSignal returns the wire bytes for s.
func EncodeSignal(s *Signal) ([]byte, error) {
	return json.Marshal(s)
}

// DecodeSignal parses wire bytes into a new Signal, rejecting payloads that
// carry both (or neither) activation and gradient. Signal has no UnmarshalJSON,
// so decoding never rewrites an existing signal.
func DecodeSignal(data []byte) (*Signal, error) {
	var w wireSignal
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}

	s := &Signal{
		id:         w.SignalID,
		from:       w.FromNeuron,
		to:         w.ToNeuron,
		direction:  w.Direction,
		batchID:    w.BatchID,
		timestamp:  w.Timestamp,
		hop:        w.Hop,
		activation: w.Payload.Activation,
		gradient:   w.Payload.Gradient,
	}
	if w.Deadline != nil {
		s.deadline = *w.Deadline
	}

	var err error
	if w.LayerFrom != "" {
		if s.layerFrom, err = ParseLayer(w.LayerFrom); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
		}
	}
	if s.layerTo, err = ParseLayer(w.LayerTo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	if s.activation != nil && !unit(s.activation.Strength) {
		return nil, fmt.Errorf("%w: strength out of [0,1]", ErrInvalidSignal)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

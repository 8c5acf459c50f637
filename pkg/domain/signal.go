package domain

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Direction tags a signal as forward (activation) or backward (gradient).
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// Activation is the forward payload.
type Activation struct {
	Content  string             `json:"content"`
	Strength float64            `json:"strength"`
	Features map[string]float64 `json:"features,omitempty"`
}

// Gradient is the backward payload.
type Gradient struct {
	ErrorType   Classification `json:"error_type"`
	Magnitude   float64        `json:"magnitude"`
	Loss        float64        `json:"loss"`
	Adjustments []string       `json:"adjustments,omitempty"`
}

// Validate reports whether the gradient carries every required field within range.
func (g Gradient) Validate() error {
	if g.ErrorType == "" {
		return fmt.Errorf("%w: missing error_type", ErrMalformedGradient)
	}
	if !unit(g.Magnitude) {
		return fmt.Errorf("%w: magnitude %v out of [0,1]", ErrMalformedGradient, g.Magnitude)
	}
	if !unit(g.Loss) {
		return fmt.Errorf("%w: loss %v out of [0,1]", ErrMalformedGradient, g.Loss)
	}
	return nil
}

func (a Activation) clone() Activation {
	a.Features = maps.Clone(a.Features)
	return a
}

func (g Gradient) clone() Gradient {
	g.Adjustments = slices.Clone(g.Adjustments)
	return g
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Signal is an immutable message between two neurons in adjacent layers.
// Accessors return copies, and propagation always builds a new Signal.
type Signal struct {
	id         string
	from       string
	to         string
	layerFrom  Layer
	layerTo    Layer
	direction  Direction
	batchID    string
	timestamp  time.Time
	deadline   time.Time
	hop        int
	activation *Activation
	gradient   *Gradient
}

// SignalOption customizes a signal at construction.
type SignalOption func(*Signal)

// WithDeadline attaches the overall request deadline.
func WithDeadline(t time.Time) SignalOption {
	return func(s *Signal) { s.deadline = t }
}

// WithHop sets the backward hop count.
func WithHop(n int) SignalOption {
	return func(s *Signal) { s.hop = n }
}

// WithSignalID overrides the generated id (used when decoding).
func WithSignalID(id string) SignalOption {
	return func(s *Signal) { s.id = id }
}

// WithTimestamp overrides the creation time (used when decoding).
func WithTimestamp(t time.Time) SignalOption {
	return func(s *Signal) { s.timestamp = t }
}

// Endpoint identifies one side of a signal.
type Endpoint struct {
	ID    string
	Layer Layer
}

// NewForward builds a forward signal carrying an activation.
func NewForward(from, to Endpoint, batchID string, act Activation, opts ...SignalOption) (*Signal, error) {
	if !unit(act.Strength) {
		return nil, fmt.Errorf("%w: strength %v out of [0,1]", ErrInvalidSignal, act.Strength)
	}
	a := act.clone()
	return newSignal(from, to, Forward, batchID, &a, nil, opts)
}

// NewBackward builds a backward signal carrying a gradient.
// Gradient field ranges are not enforced here; receivers validate and drop malformed gradients.
func NewBackward(from, to Endpoint, batchID string, grad Gradient, opts ...SignalOption) (*Signal, error) {
	g := grad.clone()
	return newSignal(from, to, Backward, batchID, nil, &g, opts)
}

func newSignal(from, to Endpoint, dir Direction, batchID string, act *Activation, grad *Gradient, opts []SignalOption) (*Signal, error) {
	s := &Signal{
		id:         uuid.NewString(),
		from:       from.ID,
		to:         to.ID,
		layerFrom:  from.Layer,
		layerTo:    to.Layer,
		direction:  dir,
		batchID:    batchID,
		timestamp:  time.Now().UTC(),
		activation: act,
		gradient:   grad,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the structural invariants of the signal.
func (s *Signal) Validate() error {
	switch {
	case s.id == "":
		return fmt.Errorf("%w: missing signal id", ErrInvalidSignal)
	case s.to == "":
		return fmt.Errorf("%w: missing destination", ErrInvalidSignal)
	case !s.layerTo.Valid():
		return fmt.Errorf("%w: invalid destination layer %d", ErrInvalidSignal, int(s.layerTo))
	case s.from != "" && !s.layerFrom.Valid():
		return fmt.Errorf("%w: invalid source layer %d", ErrInvalidSignal, int(s.layerFrom))
	case s.hop < 0:
		return fmt.Errorf("%w: negative hop", ErrInvalidSignal)
	}
	if (s.activation == nil) == (s.gradient == nil) {
		return fmt.Errorf("%w: payload must carry exactly one of activation or gradient", ErrInvalidSignal)
	}
	switch s.direction {
	case Forward:
		if s.activation == nil {
			return fmt.Errorf("%w: forward signal without activation", ErrInvalidSignal)
		}
	case Backward:
		if s.gradient == nil {
			return fmt.Errorf("%w: backward signal without gradient", ErrInvalidSignal)
		}
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidSignal, s.direction)
	}
	return nil
}

func (s *Signal) ID() string           { return s.id }
func (s *Signal) From() string         { return s.from }
func (s *Signal) To() string           { return s.to }
func (s *Signal) LayerFrom() Layer     { return s.layerFrom }
func (s *Signal) LayerTo() Layer       { return s.layerTo }
func (s *Signal) Direction() Direction { return s.direction }
func (s *Signal) BatchID() string      { return s.batchID }
func (s *Signal) Timestamp() time.Time { return s.timestamp }
func (s *Signal) Hop() int             { return s.hop }

// External reports whether the signal was injected by a caller rather than a neuron.
func (s *Signal) External() bool { return s.from == "" }

// Deadline returns the request deadline, if any.
func (s *Signal) Deadline() (time.Time, bool) {
	return s.deadline, !s.deadline.IsZero()
}

// Expired reports whether the deadline has elapsed at now.
func (s *Signal) Expired(now time.Time) bool {
	return !s.deadline.IsZero() && !now.Before(s.deadline)
}

// Activation returns a copy of the forward payload.
func (s *Signal) Activation() (Activation, bool) {
	if s.activation == nil {
		return Activation{}, false
	}
	return s.activation.clone(), true
}

// Gradient returns a copy of the backward payload.
func (s *Signal) Gradient() (Gradient, bool) {
	if s.gradient == nil {
		return Gradient{}, false
	}
	return s.gradient.clone(), true
}

// Source returns the sending endpoint.
func (s *Signal) Source() Endpoint { return Endpoint{ID: s.from, Layer: s.layerFrom} }

// Destination returns the receiving endpoint.
func (s *Signal) Destination() Endpoint { return Endpoint{ID: s.to, Layer: s.layerTo} }

func (s *Signal) String() string {
	return fmt.Sprintf("%s %s(%s)->%s(%s) batch=%s", s.direction, s.from, s.layerFrom, s.to, s.layerTo, s.batchID)
}

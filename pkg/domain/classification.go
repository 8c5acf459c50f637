package domain

import (
	"context"
	"errors"
)

// Classification is the error tag carried by a Gradient.
type Classification string

const (
	ClassUpstreamFailure    Classification = "upstream_failure"
	ClassBudgetExceeded     Classification = "budget_exceeded"
	ClassRateLimited        Classification = "rate_limited"
	ClassInvalidResponse    Classification = "invalid_response"
	ClassBackendUnavailable Classification = "backend_unavailable"
	ClassContextLookup      Classification = "context_lookup_failed"
	ClassDeadlineExceeded   Classification = "deadline_exceeded"
	ClassRouteCongested     Classification = "route_congested"
	ClassRouteUnavailable   Classification = "route_unavailable"
	ClassInvalidRoute       Classification = "invalid_route"
	ClassUnknown            Classification = "unknown"
)

var classificationErrors = map[Classification]error{
	ClassUpstreamFailure:    ErrUpstreamFailure,
	ClassBudgetExceeded:     ErrBudgetExceeded,
	ClassRateLimited:        ErrRateLimited,
	ClassInvalidResponse:    ErrInvalidResponse,
	ClassBackendUnavailable: ErrBackendUnavailable,
	ClassContextLookup:      ErrContextLookupFailed,
	ClassDeadlineExceeded:   ErrDeadlineExceeded,
	ClassRouteCongested:     ErrRouteCongested,
	ClassRouteUnavailable:   ErrRouteUnavailable,
	ClassInvalidRoute:       ErrInvalidRoute,
}

// Default gradient magnitudes. Caller-side timing is the most severe since the work is lost.
var classificationMagnitudes = map[Classification]float64{
	ClassDeadlineExceeded:   1.0,
	ClassUpstreamFailure:    0.8,
	ClassInvalidResponse:    0.7,
	ClassBackendUnavailable: 0.9,
	ClassBudgetExceeded:     0.6,
	ClassRateLimited:        0.4,
	ClassContextLookup:      0.5,
	ClassRouteCongested:     0.5,
	ClassRouteUnavailable:   0.6,
	ClassInvalidRoute:       0.6,
}

// Classify maps an error to its gradient classification.
func Classify(err error) Classification {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassUpstreamFailure
	}
	// Ordered so that the most specific sentinel wins when errors are joined.
	for _, c := range []Classification{
		ClassDeadlineExceeded,
		ClassBudgetExceeded,
		ClassRateLimited,
		ClassInvalidResponse,
		ClassUpstreamFailure,
		ClassBackendUnavailable,
		ClassContextLookup,
		ClassRouteCongested,
		ClassRouteUnavailable,
		ClassInvalidRoute,
	} {
		if errors.Is(err, classificationErrors[c]) {
			return c
		}
	}
	return ClassUnknown
}

// Err returns the sentinel error for the classification, or nil if there is none.
func (c Classification) Err() error {
	return classificationErrors[c]
}

// Magnitude returns the default gradient magnitude for the classification.
func (c Classification) Magnitude() float64 {
	if m, ok := classificationMagnitudes[c]; ok {
		return m
	}
	return 0.5
}

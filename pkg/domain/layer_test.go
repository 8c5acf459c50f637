package domain_test

import (
	"testing"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLayer(t *testing.T) {
	tests := []struct {
		in      string
		want    domain.Layer
		wantErr bool
	}{
		{"L1", domain.L1, false},
		{"l4", domain.L4, false},
		{" 9 ", domain.L9, false},
		{"L0", 0, true},
		{"L10", 0, true},
		{"top", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := domain.ParseLayer(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLayer_Adjacency(t *testing.T) {
	assert.True(t, domain.L4.Adjacent(domain.L3))
	assert.True(t, domain.L3.Adjacent(domain.L4))
	assert.False(t, domain.L4.Adjacent(domain.L2))
	assert.False(t, domain.L4.Adjacent(domain.L4))
	assert.Equal(t, domain.L3, domain.L4.Below())
	assert.Equal(t, domain.L5, domain.L4.Above())
	assert.Equal(t, "Strategic", domain.L4.Description())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, domain.ClassUpstreamFailure, domain.Classify(domain.ErrUpstreamFailure))
	assert.Equal(t, domain.ClassBudgetExceeded, domain.Classify(domain.ErrBudgetExceeded))
	assert.Equal(t, domain.ClassDeadlineExceeded, domain.Classify(domain.ErrDeadlineExceeded))
	assert.Equal(t, domain.ClassUnknown, domain.Classify(assert.AnError))
	assert.Equal(t, domain.Classification(""), domain.Classify(nil))
	assert.ErrorIs(t, domain.ClassRouteCongested.Err(), domain.ErrRouteCongested)
}

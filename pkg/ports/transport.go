package ports

import (
	"context"

	"github.com/aretw0/strata/pkg/domain"
)

// Transport delivers signals to neurons hosted outside this process.
// The remote handle of the destination is resolved by the implementation.
type Transport interface {
	Send(ctx context.Context, remote string, sig *domain.Signal) error
}

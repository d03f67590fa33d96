package impls

import (
	"context"

	"github.com/aweller/gamewarden/internal/domain"
)

// InstanceController drives the power state of the remote instance through
// the instance-control API. Start and Stop block until the instance reaches
// the target state and return a fresh description.
type InstanceController interface {
	Describe(ctx context.Context) (domain.InstanceDescription, error)
	Start(ctx context.Context) (domain.InstanceDescription, error)
	Stop(ctx context.Context) (domain.InstanceDescription, error)
}

package impls

import "github.com/aweller/gamewarden/internal/domain"

// WorkloadTable is read-only lookup into the configured workload table.
type WorkloadTable interface {
	Workload(name string) (domain.Workload, bool)
}

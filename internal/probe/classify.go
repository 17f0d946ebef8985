package probe

import (
	"time"

	"github.com/vietddude/localprobe/internal/core/domain"
)

// Classify maps a probe outcome to a health status. A reachable replica is
// sick when a sick threshold is set and the latency meets or exceeds it.
func Classify(reachable bool, latency time.Duration, sick *time.Duration) domain.Status {
	if !reachable {
		return domain.StatusDead
	}
	if sick != nil && latency >= *sick {
		return domain.StatusSick
	}
	return domain.StatusHealthy
}

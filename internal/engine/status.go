package engine

import (
	"github.com/vovakirdan/scriptworld/internal/entity"
)

// exitStatus maps a worker's exit error to the status shown on its entities.
// KILL is the only clean way out of the loop.
func exitStatus(err error) entity.Status {
	if err != nil {
		return entity.StatusFailed
	}
	return entity.StatusKilled
}

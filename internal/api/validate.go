package api

import (
	"fmt"

	"visitplan/internal/model"
)

// validateOptimizeRequest rejects malformed envelopes. Field-level checks on
// stops and vehicles happen when the problem is built.
func validateOptimizeRequest(req *model.OptimizeRequest) error {
	if len(req.Stops) == 0 {
		return fmt.Errorf("stops must not be empty")
	}
	if len(req.Vehicles) == 0 {
		return fmt.Errorf("vehicles must not be empty")
	}
	if req.TimeBudgetSec < 0 {
		return fmt.Errorf("timeBudgetSec must be >= 0")
	}
	if req.MaxIterations < 0 {
		return fmt.Errorf("maxIterations must be >= 0")
	}
	if len(req.RunID) > 128 {
		return fmt.Errorf("runId must be at most 128 characters")
	}
	return nil
}

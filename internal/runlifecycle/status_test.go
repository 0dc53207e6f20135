package runlifecycle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratadb-labs/strata-core-sub010/internal/runlifecycle"
)

func TestActiveCanReachEveryOtherStatus(t *testing.T) {
	for _, to := range []runlifecycle.Status{
		runlifecycle.Paused, runlifecycle.Completed, runlifecycle.Failed,
		runlifecycle.Cancelled, runlifecycle.Archived,
	} {
		assert.NoError(t, runlifecycle.Validate(runlifecycle.Active, to))
	}
}

func TestPausedCannotReachCompletedOrFailed(t *testing.T) {
	require.Error(t, runlifecycle.Validate(runlifecycle.Paused, runlifecycle.Completed))
	require.Error(t, runlifecycle.Validate(runlifecycle.Paused, runlifecycle.Failed))
}

func TestPausedCanResumeOrCancelOrArchive(t *testing.T) {
	assert.NoError(t, runlifecycle.Validate(runlifecycle.Paused, runlifecycle.Active))
	assert.NoError(t, runlifecycle.Validate(runlifecycle.Paused, runlifecycle.Cancelled))
	assert.NoError(t, runlifecycle.Validate(runlifecycle.Paused, runlifecycle.Archived))
}

func TestTerminalStatusesOnlyReachArchived(t *testing.T) {
	for _, from := range []runlifecycle.Status{
		runlifecycle.Completed, runlifecycle.Failed, runlifecycle.Cancelled,
	} {
		assert.NoError(t, runlifecycle.Validate(from, runlifecycle.Archived))
		for _, to := range []runlifecycle.Status{
			runlifecycle.Active, runlifecycle.Paused, runlifecycle.Completed,
			runlifecycle.Failed, runlifecycle.Cancelled,
		} {
			if to == from {
				continue
			}
			assert.Error(t, runlifecycle.Validate(from, to), "%s -> %s must be rejected", from, to)
		}
	}
}

func TestArchivedIsTerminalWithNoResurrection(t *testing.T) {
	assert.True(t, runlifecycle.IsTerminal(runlifecycle.Archived))
	for _, to := range []runlifecycle.Status{
		runlifecycle.Active, runlifecycle.Paused, runlifecycle.Completed,
		runlifecycle.Failed, runlifecycle.Cancelled,
	} {
		assert.Error(t, runlifecycle.Validate(runlifecycle.Archived, to))
	}
}

func TestSelfTransitionRejected(t *testing.T) {
	var invalidErr *runlifecycle.InvalidTransitionError
	err := runlifecycle.Validate(runlifecycle.Active, runlifecycle.Active)
	require.ErrorAs(t, err, &invalidErr)
}

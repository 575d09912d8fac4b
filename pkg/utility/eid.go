package utility

import (
	"sync"

	"github.com/google/uuid"
)

// RunID identifies one process run, live session or backtest.
type RunID = uuid.UUID

var (
	runID     RunID
	runIDOnce sync.Once
	runIDMu   sync.RWMutex
)

func GetRunID() RunID {
	runIDOnce.Do(func() {
		runIDMu.Lock()
		defer runIDMu.Unlock()
		runID = uuid.Must(uuid.NewV7())
	})

	runIDMu.RLock()
	defer runIDMu.RUnlock()
	return runID
}

// ResetRunID starts a new run, the backtest runner calls it once per execution.
func ResetRunID() RunID {
	runIDOnce.Do(func() {})

	runIDMu.Lock()
	defer runIDMu.Unlock()

	runID = uuid.Must(uuid.NewV7())
	return runID
}

// NewPositionID returns a time ordered id for a locally initiated position.
func NewPositionID() string {
	return uuid.Must(uuid.NewV7()).String()
}

package middleware

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/journal"
)

// Journal persists every closed position without delaying the handler chain.
type Journal struct {
	logger *zap.Logger
	store  journal.Store
	runId  string

	wg sync.WaitGroup
}

func NewJournal(logger *zap.Logger, store journal.Store, runId string) *Journal {
	return &Journal{
		logger: logger.Named("journal"),
		store:  store,
		runId:  runId,
	}
}

func (j *Journal) WithPositionClose(handler bus.PositionCloseEventHandler) bus.PositionCloseEventHandler {
	return func(ctx context.Context, position common.Position) {
		j.wg.Add(1)
		go func() {
			defer j.wg.Done()
			if err := j.store.SavePosition(context.WithoutCancel(ctx), j.runId, position); err != nil {
				j.logger.Warn("unable to journal position", zap.String("id", position.Id), zap.Error(err))
			}
		}()
		handler(ctx, position)
	}
}

// Flush waits for pending writes.
func (j *Journal) Flush() {
	j.wg.Wait()
}

package bus

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var ErrCapacityReached = errors.New("event capacity reached")

type event struct {
	id   EventId
	data any
}

type Router struct {
	logger *zap.Logger
	events chan event

	OnTick           TickEventHandler
	OnCandle         CandleEventHandler
	OnBalance        BalanceEventHandler
	OnPositionOpen   PositionOpenEventHandler
	OnPositionUpdate PositionUpdateEventHandler
	OnPositionClose  PositionCloseEventHandler
	OnPositionReject PositionRejectEventHandler
	OnNews           NewsEventHandler
	OnDisconnect     DisconnectEventHandler

	runTime       atomic.Int64
	postCount     atomic.Uint64
	postFails     atomic.Uint64
	dispatchCount atomic.Uint64
	dispatchFails atomic.Uint64
}

func NewRouter(logger *zap.Logger, eventCapacity int) *Router {
	return &Router{
		logger: logger.Named("bus"),
		events: make(chan event, eventCapacity),
	}
}

// Post never blocks, a full queue is reported as ErrCapacityReached.
func (r *Router) Post(id EventId, data any) error {
	select {
	case r.events <- event{id, data}:
		r.postCount.Add(1)
		return nil
	default:
		r.postFails.Add(1)
		return ErrCapacityReached
	}
}

// Exec dispatches posted events until ctx is done.
func (r *Router) Exec(ctx context.Context) <-chan error {
	errChan := make(chan error, 1)

	go func() {
		start := time.Now()
		defer func() {
			r.runTime.Add(int64(time.Since(start)))
		}()

		for {
			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case ev := <-r.events:
				r.handle(ctx, ev)
			}
		}
	}()

	return errChan
}

// ExecLoop dispatches every pending event before calling doOnceCb again, so
// everything posted by doOnceCb is handled before the next call. It stops on
// the first error returned by doOnceCb or when ctx is done.
func (r *Router) ExecLoop(ctx context.Context, doOnceCb func() error) <-chan error {
	errChan := make(chan error, 1)

	go func() {
		start := time.Now()
		defer func() {
			r.runTime.Add(int64(time.Since(start)))
		}()

		for {
			select {
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			case ev := <-r.events:
				r.handle(ctx, ev)
			default:
				if err := doOnceCb(); err != nil {
					r.Drain(ctx)
					errChan <- err
					return
				}
			}
		}
	}()

	return errChan
}

func (r *Router) GetStatistics() Statistics {
	runTime := time.Duration(r.runTime.Load())
	stats := Statistics{
		RunTime:       runTime,
		PostCount:     r.postCount.Load(),
		PostFails:     r.postFails.Load(),
		DispatchCount: r.dispatchCount.Load(),
		DispatchFails: r.dispatchFails.Load(),
	}
	if runTime > 0 {
		stats.Throughput = float64(stats.PostCount) / runTime.Seconds()
	}
	return stats
}

// Drain dispatches the pending events on the calling goroutine. It must not run
// concurrently with Exec or ExecLoop.
func (r *Router) Drain(ctx context.Context) {
	for {
		select {
		case ev := <-r.events:
			r.handle(ctx, ev)
		default:
			return
		}
	}
}

func (r *Router) handle(ctx context.Context, ev event) {
	r.dispatchCount.Add(1)
	if err := r.dispatch(ctx, ev); err != nil {
		r.dispatchFails.Add(1)
		r.logger.Warn("dispatch failed", zap.Error(err), zap.Stringer("event", ev.id))
	}
}

func (r *Router) dispatch(ctx context.Context, ev event) error {
	switch ev.id {
	case TickEvent:
		return invoke(ctx, ev, r.OnTick)
	case CandleEvent:
		return invoke(ctx, ev, r.OnCandle)
	case BalanceEvent:
		return invoke(ctx, ev, r.OnBalance)
	case PositionOpenEvent:
		return invoke(ctx, ev, r.OnPositionOpen)
	case PositionUpdateEvent:
		return invoke(ctx, ev, r.OnPositionUpdate)
	case PositionCloseEvent:
		return invoke(ctx, ev, r.OnPositionClose)
	case PositionRejectEvent:
		return invoke(ctx, ev, r.OnPositionReject)
	case NewsEvent:
		return invoke(ctx, ev, r.OnNews)
	case DisconnectEvent:
		return invoke(ctx, ev, r.OnDisconnect)
	default:
		return fmt.Errorf("unsupported event id: %d", ev.id)
	}
}

func invoke[T any, H ~func(context.Context, T)](ctx context.Context, ev event, handler H) error {
	data, ok := ev.data.(T)
	if !ok {
		return fmt.Errorf("invalid type assertion for %s event", ev.id)
	}
	if handler != nil {
		handler(ctx, data)
	}
	return nil
}


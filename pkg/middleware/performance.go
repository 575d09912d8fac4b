package middleware

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/xtrade/pkg/bus"
	"github.com/peter-kozarec/xtrade/pkg/common"
)

type HandlerStatistics struct {
	Count int64
	Total time.Duration
}

func (s HandlerStatistics) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Performance counts events and measures the time spent in their handlers.
type Performance struct {
	logger *zap.Logger

	mu    sync.Mutex
	stats map[bus.EventId]HandlerStatistics
}

func NewPerformance(logger *zap.Logger) *Performance {
	return &Performance{
		logger: logger.Named("performance"),
		stats:  make(map[bus.EventId]HandlerStatistics),
	}
}

func measure[T any](p *Performance, id bus.EventId, handler func(context.Context, T)) func(context.Context, T) {
	return func(ctx context.Context, v T) {
		startTime := time.Now()
		handler(ctx, v)
		elapsed := time.Since(startTime)

		p.mu.Lock()
		s := p.stats[id]
		s.Count++
		s.Total += elapsed
		p.stats[id] = s
		p.mu.Unlock()
	}
}

func (p *Performance) WithTick(handler bus.TickEventHandler) bus.TickEventHandler {
	return measure[common.Tick](p, bus.TickEvent, handler)
}

func (p *Performance) WithCandle(handler bus.CandleEventHandler) bus.CandleEventHandler {
	return measure[common.Candle](p, bus.CandleEvent, handler)
}

func (p *Performance) WithBalance(handler bus.BalanceEventHandler) bus.BalanceEventHandler {
	return measure[common.AccountBalance](p, bus.BalanceEvent, handler)
}

func (p *Performance) WithPositionOpen(handler bus.PositionOpenEventHandler) bus.PositionOpenEventHandler {
	return measure[common.Position](p, bus.PositionOpenEvent, handler)
}

func (p *Performance) WithPositionUpdate(handler bus.PositionUpdateEventHandler) bus.PositionUpdateEventHandler {
	return measure[common.Position](p, bus.PositionUpdateEvent, handler)
}

func (p *Performance) WithPositionClose(handler bus.PositionCloseEventHandler) bus.PositionCloseEventHandler {
	return measure[common.Position](p, bus.PositionCloseEvent, handler)
}

func (p *Performance) WithPositionReject(handler bus.PositionRejectEventHandler) bus.PositionRejectEventHandler {
	return measure[common.Position](p, bus.PositionRejectEvent, handler)
}

func (p *Performance) Statistics(id bus.EventId) HandlerStatistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats[id]
}

// PrintStatistics logs one line per event type that was handled.
func (p *Performance) PrintStatistics() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id := bus.TickEvent; id <= bus.DisconnectEvent; id++ {
		s, ok := p.stats[id]
		if !ok {
			continue
		}
		p.logger.Info("handler statistics",
			zap.Stringer("event", id),
			zap.Int64("count", s.Count),
			zap.Duration("avg_duration", s.Average()),
			zap.Duration("total_duration", s.Total))
	}
}

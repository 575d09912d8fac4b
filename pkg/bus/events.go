package bus

type EventId uint8

const (
	TickEvent EventId = iota
	CandleEvent
	BalanceEvent
	PositionOpenEvent
	PositionUpdateEvent
	PositionCloseEvent
	PositionRejectEvent
	NewsEvent
	DisconnectEvent
)

func (id EventId) String() string {
	switch id {
	case TickEvent:
		return "tick"
	case CandleEvent:
		return "candle"
	case BalanceEvent:
		return "balance"
	case PositionOpenEvent:
		return "position_open"
	case PositionUpdateEvent:
		return "position_update"
	case PositionCloseEvent:
		return "position_close"
	case PositionRejectEvent:
		return "position_reject"
	case NewsEvent:
		return "news"
	case DisconnectEvent:
		return "disconnect"
	default:
		return "unknown"
	}
}

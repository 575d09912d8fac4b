package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

type PositionStatus string
type PositionType string
type ReasonClosed string

const (
	PositionStatusPending   PositionStatus = "pending"
	PositionStatusOpen      PositionStatus = "open"
	PositionStatusWaitClose PositionStatus = "wait-close"
	PositionStatusClose     PositionStatus = "close"
	PositionStatusRejected  PositionStatus = "rejected"
)

const (
	PositionTypeBuy       PositionType = "buy"
	PositionTypeSell      PositionType = "sell"
	PositionTypeBuyLimit  PositionType = "buy-limit"
	PositionTypeSellLimit PositionType = "sell-limit"
	PositionTypeBuyStop   PositionType = "buy-stop"
	PositionTypeSellStop  PositionType = "sell-stop"
)

const (
	ReasonClosedNone   ReasonClosed = ""
	ReasonClosedSl     ReasonClosed = "sl"
	ReasonClosedTp     ReasonClosed = "tp"
	ReasonClosedMargin ReasonClosed = "margin"
	ReasonClosedClosed ReasonClosed = "closed"
)

// Terminal reports whether no further broker event may change the position.
func (s PositionStatus) Terminal() bool {
	return s == PositionStatusClose || s == PositionStatusRejected
}

// IsLong reports whether the position profits from a rising price.
func (t PositionType) IsLong() bool {
	return t == PositionTypeBuy || t == PositionTypeBuyLimit || t == PositionTypeBuyStop
}

type Position struct {
	Id            string         `json:"id"`
	Order         int64          `json:"order,omitempty"`
	Order2        int64          `json:"order2,omitempty"`
	PositionId    int64          `json:"position_id,omitempty"`
	CustomComment string         `json:"custom_comment,omitempty"`
	Symbol        string         `json:"symbol"`
	Status        PositionStatus `json:"status"`
	Type          PositionType   `json:"type"`
	OpenPrice     fixed.Point    `json:"open_price"`
	ClosePrice    fixed.Point    `json:"close_price"`
	StopLoss      fixed.Point    `json:"stop_loss"`
	TakeProfit    fixed.Point    `json:"take_profit"`
	Volume        fixed.Point    `json:"volume"`
	Profit        fixed.Point    `json:"profit"`
	DateOpen      time.Time      `json:"date_open"`
	DateClose     time.Time      `json:"date_close"`
	ReasonClosed  ReasonClosed   `json:"reason_closed,omitempty"`
}

const ownerTagSeparator = "|"

// OwnerTag is the custom comment attached to every order the system places.
// It identifies the strategy that owns the order and the local position id.
type OwnerTag struct {
	StrategyId string
	PositionId string
}

func (t OwnerTag) String() string {
	return t.StrategyId + ownerTagSeparator + t.PositionId
}

func ParseOwnerTag(comment string) (OwnerTag, error) {
	strategyId, positionId, ok := strings.Cut(comment, ownerTagSeparator)
	if !ok || strategyId == "" || positionId == "" {
		return OwnerTag{}, fmt.Errorf("malformed owner tag %q", comment)
	}
	return OwnerTag{StrategyId: strategyId, PositionId: positionId}, nil
}

// ReasonFromComment maps the broker's free-text close comment to a close reason.
func ReasonFromComment(comment string) ReasonClosed {
	switch {
	case strings.Contains(comment, "[S/L]"):
		return ReasonClosedSl
	case strings.Contains(comment, "[T/P]"):
		return ReasonClosedTp
	case strings.Contains(comment, "S/O"):
		return ReasonClosedMargin
	default:
		return ReasonClosedNone
	}
}

package common

import (
	"time"

	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

type TransactionKind string
type RequestStatus string

const (
	TransactionOpen    TransactionKind = "open"
	TransactionPending TransactionKind = "pending"
	TransactionClose   TransactionKind = "close"
	TransactionModify  TransactionKind = "modify"
	TransactionDelete  TransactionKind = "delete"
)

const (
	RequestStatusError    RequestStatus = "error"
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

// TradeUpdate is a broker push describing the current state of one trade.
type TradeUpdate struct {
	Kind          TransactionKind `json:"kind"`
	Type          PositionType    `json:"type"`
	Order         int64           `json:"order"`
	Order2        int64           `json:"order2"`
	PositionId    int64           `json:"position_id"`
	Symbol        string          `json:"symbol"`
	Volume        fixed.Point     `json:"volume"`
	OpenPrice     fixed.Point     `json:"open_price"`
	ClosePrice    fixed.Point     `json:"close_price"`
	StopLoss      fixed.Point     `json:"stop_loss"`
	TakeProfit    fixed.Point     `json:"take_profit"`
	Profit        fixed.Point     `json:"profit"`
	Comment       string          `json:"comment,omitempty"`
	CustomComment string          `json:"custom_comment,omitempty"`
	OpenTime      time.Time       `json:"open_time"`
	CloseTime     time.Time       `json:"close_time"`
	Closed        bool            `json:"closed"`
}

// TradeStatus is the broker's verdict on a submitted transaction.
type TradeStatus struct {
	Order         int64         `json:"order"`
	CustomComment string        `json:"custom_comment,omitempty"`
	Message       string        `json:"message,omitempty"`
	Price         fixed.Point   `json:"price"`
	Status        RequestStatus `json:"status"`
}

type ProfitUpdate struct {
	Order      int64       `json:"order"`
	Order2     int64       `json:"order2"`
	PositionId int64       `json:"position_id"`
	Profit     fixed.Point `json:"profit"`
}

type News struct {
	Key   string    `json:"key"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Date  time.Time `json:"ts"`
}

// Disconnect signals the end of a broker session, live or simulated.
type Disconnect struct {
	Reason string    `json:"reason,omitempty"`
	Date   time.Time `json:"ts"`
}

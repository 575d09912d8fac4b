package xapi

import (
	"fmt"

	"github.com/peter-kozarec/xtrade/pkg/common"
)

type TradeOperation int

const (
	OperationBuy TradeOperation = iota
	OperationSell
	OperationBuyLimit
	OperationSellLimit
	OperationBuyStop
	OperationSellStop
	OperationBalance
	OperationCredit
)

type TransactionType int

const (
	TransactionOpen TransactionType = iota
	TransactionPending
	TransactionClose
	TransactionModify
	TransactionDelete
)

type RequestStatus int

const (
	RequestError    RequestStatus = 0
	RequestPending  RequestStatus = 1
	RequestAccepted RequestStatus = 3
	RequestRejected RequestStatus = 4
)

var operationTypes = map[TradeOperation]common.PositionType{
	OperationBuy:       common.PositionTypeBuy,
	OperationSell:      common.PositionTypeSell,
	OperationBuyLimit:  common.PositionTypeBuyLimit,
	OperationSellLimit: common.PositionTypeSellLimit,
	OperationBuyStop:   common.PositionTypeBuyStop,
	OperationSellStop:  common.PositionTypeSellStop,
}

var transactionKinds = map[TransactionType]common.TransactionKind{
	TransactionOpen:    common.TransactionOpen,
	TransactionPending: common.TransactionPending,
	TransactionClose:   common.TransactionClose,
	TransactionModify:  common.TransactionModify,
	TransactionDelete:  common.TransactionDelete,
}

var requestStatuses = map[RequestStatus]common.RequestStatus{
	RequestError:    common.RequestStatusError,
	RequestPending:  common.RequestStatusPending,
	RequestAccepted: common.RequestStatusAccepted,
	RequestRejected: common.RequestStatusRejected,
}

func PositionType(code int) (common.PositionType, error) {
	t, ok := operationTypes[TradeOperation(code)]
	if !ok {
		return "", fmt.Errorf("trade operation %d: %w", code, ErrUnknownCode)
	}
	return t, nil
}

func Operation(t common.PositionType) (TradeOperation, error) {
	for op, pt := range operationTypes {
		if pt == t {
			return op, nil
		}
	}
	return 0, fmt.Errorf("position type %q: %w", t, ErrUnknownCode)
}

func TransactionKind(code int) (common.TransactionKind, error) {
	k, ok := transactionKinds[TransactionType(code)]
	if !ok {
		return "", fmt.Errorf("transaction type %d: %w", code, ErrUnknownCode)
	}
	return k, nil
}

func Status(code int) (common.RequestStatus, error) {
	s, ok := requestStatuses[RequestStatus(code)]
	if !ok {
		return "", fmt.Errorf("request status %d: %w", code, ErrUnknownCode)
	}
	return s, nil
}

var errorDescriptions = map[string]string{
	"BE001": "Invalid price",
	"BE002": "Invalid StopLoss or TakeProfit",
	"BE003": "Invalid volume",
	"BE004": "Login disabled",
	"BE005": "userPasswordCheck: Invalid login or password",
	"BE006": "Market for instrument is closed",
	"BE007": "Mismatched parameters",
	"BE008": "Modification is denied",
	"BE009": "Not enough money on account to perform trade",
	"BE010": "Off quotes",
	"BE011": "Opposite positions prohibited",
	"BE012": "Short positions prohibited",
	"BE013": "Price has changed",
	"BE014": "Request too frequent",
	"BE016": "Too many trade requests",
	"BE017": "Too many trade requests",
	"BE018": "Trading on instrument disabled",
	"BE019": "Trading timeout",
	"BE094": "Symbol does not exist for given account",
	"BE095": "Account cannot trade on given symbol",
	"BE096": "Pending order cannot be closed",
	"BE097": "Cannot close already closed order",
	"BE098": "No such transaction",
	"BE099": "Unknown instrument symbol",
	"EX000": "Invalid parameters",
	"EX001": "Internal error, please contact support",
	"EX002": "Internal error, request timed out",
	"EX003": "Login credentials are incorrect or this login is not allowed to use this application",
	"EX004": "Internal error, system overloaded",
	"EX005": "No access",
	"EX006": "userPasswordCheck: Invalid login or password",
	"EX007": "You have exceeded the limit of simultaneous connections",
	"EX008": "Data limit potentially exceeded, narrow the request range",
	"EX009": "Data limit exceeded",
}

// ErrorDescription returns the static text for a broker error code.
func ErrorDescription(code string) string {
	if d, ok := errorDescriptions[code]; ok {
		return d
	}
	return "Unknown error"
}

package xapi

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

var tagCounter atomic.Uint64

func nextTag() string {
	return strconv.FormatUint(tagCounter.Add(1), 10)
}

type Command struct {
	Name      string
	Arguments any
}

type envelope struct {
	Command     string `json:"command"`
	PrettyPrint bool   `json:"prettyPrint"`
	Arguments   any    `json:"arguments,omitempty"`
	CustomTag   string `json:"customTag"`
}

type Response struct {
	Status          bool            `json:"status"`
	ReturnData      json.RawMessage `json:"returnData,omitempty"`
	ErrorCode       string          `json:"errorCode,omitempty"`
	ErrorDescr      string          `json:"errorDescr,omitempty"`
	CustomTag       string          `json:"customTag,omitempty"`
	StreamSessionId string          `json:"streamSessionId,omitempty"`
	Redirect        *redirectRecord `json:"redirect,omitempty"`
}

type pushFrame struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data"`
}

// encodeCommand serializes cmd with a fresh customTag.
func encodeCommand(cmd Command) ([]byte, string, error) {
	tag := nextTag()
	b, err := sonic.Marshal(envelope{
		Command:   cmd.Name,
		Arguments: cmd.Arguments,
		CustomTag: tag,
	})
	if err != nil {
		return nil, "", fmt.Errorf("unable to encode %s: %w", cmd.Name, err)
	}
	return b, tag, nil
}

// decodeResponse parses a command response. A malformed payload is a
// communication error, status=false is an *APIError and a redirect is a *RedirectError.
func decodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := sonic.Unmarshal(data, &resp); err != nil {
		return nil, communicationError("decode response", err)
	}
	if resp.Redirect != nil {
		return &resp, &RedirectError{
			Address:       resp.Redirect.Address,
			MainPort:      resp.Redirect.MainPort,
			StreamingPort: resp.Redirect.StreamingPort,
		}
	}
	if !resp.Status {
		return &resp, newAPIError(resp.ErrorCode, resp.ErrorDescr)
	}
	return &resp, nil
}

func decodeReturnData[T any](resp *Response) (T, error) {
	var v T
	if len(resp.ReturnData) == 0 {
		return v, communicationError("decode return data", fmt.Errorf("missing returnData"))
	}
	if err := sonic.Unmarshal(resp.ReturnData, &v); err != nil {
		return v, communicationError("decode return data", err)
	}
	return v, nil
}

func decodeData[T any](raw json.RawMessage) (T, error) {
	var v T
	if err := sonic.Unmarshal(raw, &v); err != nil {
		return v, err
	}
	return v, nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

// maxDigits is the largest scale a fixed.Point holds.
const maxDigits = 19

// recoverDecode turns a conversion panic (a number fixed.Point cannot hold)
// into a decode error.
func recoverDecode(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("unable to convert value: %v", r)
	}
}

func price(v float64) fixed.Point {
	return fixed.FromFloat64(v)
}

// candlesFromChart reconstructs absolute prices. Open is value*10^-digits,
// the other prices are deltas from open in the same units.
func candlesFromChart(symbol string, chart chartRecord) (candles []common.Candle, err error) {
	if chart.Digits < 0 || chart.Digits > maxDigits {
		return nil, fmt.Errorf("chart digits %d out of range", chart.Digits)
	}
	defer recoverDecode(&err)

	candles = make([]common.Candle, 0, len(chart.RateInfos))
	for _, r := range chart.RateInfos {
		candles = append(candles, common.Candle{
			Symbol: symbol,
			Open:   fixed.FromScaled(r.Open, chart.Digits),
			High:   fixed.FromScaled(r.Open+r.High, chart.Digits),
			Low:    fixed.FromScaled(r.Open+r.Low, chart.Digits),
			Close:  fixed.FromScaled(r.Open+r.Close, chart.Digits),
			Volume: price(r.Vol),
			Date:   fromMillis(r.Ctm),
		})
	}
	return candles, nil
}

func candleFromRecord(r candleRecord) common.Candle {
	return common.Candle{
		Symbol: r.Symbol,
		Open:   price(r.Open),
		High:   price(r.High),
		Low:    price(r.Low),
		Close:  price(r.Close),
		Volume: price(r.Vol),
		Date:   fromMillis(r.Ctm),
	}
}

func tickFromRecord(r tickRecord) common.Tick {
	return common.Tick{
		Symbol:    r.Symbol,
		Ask:       price(r.Ask),
		Bid:       price(r.Bid),
		AskVolume: price(r.AskVolume),
		BidVolume: price(r.BidVolume),
		Date:      fromMillis(r.Timestamp),
	}
}

func symbolFromRecord(r symbolRecord) common.SymbolInfo {
	return common.SymbolInfo{
		Symbol:         r.Symbol,
		Description:    r.Description,
		Category:       r.CategoryName,
		Currency:       r.Currency,
		CurrencyProfit: r.CurrencyProfit,
		Precision:      r.Precision,
		TickSize:       price(r.TickSize),
		TickValue:      price(r.TickValue),
		ContractSize:   price(r.ContractSize),
		LotMin:         price(r.LotMin),
		LotMax:         price(r.LotMax),
		LotStep:        price(r.LotStep),
		Leverage:       price(r.Leverage),
		Ask:            price(r.Ask),
		Bid:            price(r.Bid),
	}
}

func windowsFromRecords(records []hoursRecord) []common.TradingWindow {
	windows := make([]common.TradingWindow, 0, len(records))
	for _, r := range records {
		windows = append(windows, common.TradingWindow{
			// the broker numbers days 1 (Monday) to 7 (Sunday)
			Day:  time.Weekday(r.Day % 7),
			From: time.Duration(r.FromT) * time.Millisecond,
			To:   time.Duration(r.ToT) * time.Millisecond,
		})
	}
	return windows
}

func balanceFromMarginLevel(r marginLevelRecord) common.AccountBalance {
	return common.AccountBalance{
		Balance:     price(r.Balance),
		Credit:      price(r.Credit),
		Equity:      price(r.Equity),
		Margin:      price(r.Margin),
		MarginFree:  price(r.MarginFree),
		MarginLevel: price(r.MarginLevel),
	}
}

func balanceFromRecord(r balanceRecord) common.AccountBalance {
	return common.AccountBalance{
		Balance:     price(r.Balance),
		Credit:      price(r.Credit),
		Equity:      price(r.Equity),
		Margin:      price(r.Margin),
		MarginFree:  price(r.MarginFree),
		MarginLevel: price(r.MarginLevel),
	}
}

func tradeFromRecord(r tradeRecord) (common.TradeUpdate, error) {
	positionType, err := PositionType(r.Cmd)
	if err != nil {
		return common.TradeUpdate{}, err
	}

	kind := common.TransactionOpen
	if r.Closed {
		kind = common.TransactionClose
	}
	if r.Type != nil {
		if kind, err = TransactionKind(*r.Type); err != nil {
			return common.TradeUpdate{}, err
		}
	}

	return common.TradeUpdate{
		Kind:          kind,
		Type:          positionType,
		Order:         r.Order,
		Order2:        r.Order2,
		PositionId:    r.Position,
		Symbol:        r.Symbol,
		Volume:        price(r.Volume),
		OpenPrice:     price(r.OpenPrice),
		ClosePrice:    price(r.ClosePrice),
		StopLoss:      price(r.Sl),
		TakeProfit:    price(r.Tp),
		Profit:        price(r.Profit),
		Comment:       r.Comment,
		CustomComment: r.CustomComment,
		OpenTime:      fromMillis(r.OpenTime),
		CloseTime:     fromMillis(r.CloseTime),
		Closed:        r.Closed,
	}, nil
}

func tradeStatusFromRecord(r tradeStatusRecord) (common.TradeStatus, error) {
	status, err := Status(r.RequestStatus)
	if err != nil {
		return common.TradeStatus{}, err
	}
	return common.TradeStatus{
		Order:         r.Order,
		CustomComment: r.CustomComment,
		Message:       r.Message,
		Price:         price(r.Price),
		Status:        status,
	}, nil
}

func profitFromRecord(r profitRecord) common.ProfitUpdate {
	return common.ProfitUpdate{
		Order:      r.Order,
		Order2:     r.Order2,
		PositionId: r.Position,
		Profit:     price(r.Profit),
	}
}

func newsFromRecord(r newsRecord) common.News {
	return common.News{
		Key:   r.Key,
		Title: r.Title,
		Body:  r.Body,
		Date:  fromMillis(r.Time),
	}
}

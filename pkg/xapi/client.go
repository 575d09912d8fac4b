package xapi

import (
	"context"
	"fmt"
	"time"

	"github.com/peter-kozarec/xtrade/pkg/common"
)

type Credentials struct {
	UserId   string
	Password string
	AppName  string
}

// Client exposes the broker commands as typed calls over a Connector.
type Client struct {
	connector *Connector
}

func NewClient(connector *Connector) *Client {
	return &Client{connector: connector}
}

// Login authenticates the session and returns the stream session id.
func (c *Client) Login(ctx context.Context, creds Credentials) (string, error) {
	resp, err := c.connector.Execute(ctx, Command{
		Name: "login",
		Arguments: loginArguments{
			UserId:   creds.UserId,
			Password: creds.Password,
			AppName:  creds.AppName,
		},
	})
	if err != nil {
		return "", err
	}
	if resp.StreamSessionId == "" {
		return "", communicationError("login", fmt.Errorf("missing streamSessionId"))
	}
	return resp.StreamSessionId, nil
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.connector.Execute(ctx, Command{Name: "logout"})
	return err
}

func (c *Client) GetAllSymbols(ctx context.Context) ([]common.SymbolInfo, error) {
	records, err := execute[[]symbolRecord](ctx, c, Command{Name: "getAllSymbols"})
	if err != nil {
		return nil, err
	}
	symbols := make([]common.SymbolInfo, 0, len(records))
	for _, r := range records {
		symbols = append(symbols, symbolFromRecord(r))
	}
	return symbols, nil
}

func (c *Client) GetSymbol(ctx context.Context, symbol string) (common.SymbolInfo, error) {
	r, err := execute[symbolRecord](ctx, c, Command{
		Name:      "getSymbol",
		Arguments: map[string]string{"symbol": symbol},
	})
	if err != nil {
		return common.SymbolInfo{}, err
	}
	return symbolFromRecord(r), nil
}

func (c *Client) GetTradingHours(ctx context.Context, symbols ...string) ([]common.TradingHours, error) {
	records, err := execute[[]tradingHoursRecord](ctx, c, Command{
		Name:      "getTradingHours",
		Arguments: map[string][]string{"symbols": symbols},
	})
	if err != nil {
		return nil, err
	}
	hours := make([]common.TradingHours, 0, len(records))
	for _, r := range records {
		hours = append(hours, common.TradingHours{
			Symbol:  r.Symbol,
			Quotes:  windowsFromRecords(r.Quotes),
			Trading: windowsFromRecords(r.Trading),
		})
	}
	return hours, nil
}

func (c *Client) GetTickPrices(ctx context.Context, symbols ...string) ([]common.Tick, error) {
	r, err := execute[tickPricesRecord](ctx, c, Command{
		Name: "getTickPrices",
		Arguments: map[string]any{
			"level":     0,
			"symbols":   symbols,
			"timestamp": 0,
		},
	})
	if err != nil {
		return nil, err
	}
	ticks := make([]common.Tick, 0, len(r.Quotations))
	for _, q := range r.Quotations {
		ticks = append(ticks, tickFromRecord(q))
	}
	return ticks, nil
}

// GetChartLast returns candles from start up to now.
func (c *Client) GetChartLast(ctx context.Context, symbol string, tf common.Timeframe, start time.Time) ([]common.Candle, error) {
	chart, err := execute[chartRecord](ctx, c, Command{
		Name: "getChartLastRequest",
		Arguments: chartArguments{Info: chartInfo{
			Symbol: symbol,
			Period: tf.Minutes(),
			Start:  toMillis(start),
		}},
	})
	if err != nil {
		return nil, err
	}
	candles, err := candlesFromChart(symbol, chart)
	if err != nil {
		return nil, communicationError("decode chart", err)
	}
	return candles, nil
}

func (c *Client) GetChartRange(ctx context.Context, symbol string, tf common.Timeframe, start, end time.Time) ([]common.Candle, error) {
	chart, err := execute[chartRecord](ctx, c, Command{
		Name: "getChartRangeRequest",
		Arguments: chartArguments{Info: chartInfo{
			Symbol: symbol,
			Period: tf.Minutes(),
			Start:  toMillis(start),
			End:    toMillis(end),
		}},
	})
	if err != nil {
		return nil, err
	}
	candles, err := candlesFromChart(symbol, chart)
	if err != nil {
		return nil, communicationError("decode chart", err)
	}
	return candles, nil
}

func (c *Client) GetMarginLevel(ctx context.Context) (common.AccountBalance, error) {
	r, err := execute[marginLevelRecord](ctx, c, Command{Name: "getMarginLevel"})
	if err != nil {
		return common.AccountBalance{}, err
	}
	return balanceFromMarginLevel(r), nil
}

func (c *Client) GetTrades(ctx context.Context, openedOnly bool) ([]common.TradeUpdate, error) {
	records, err := execute[[]tradeRecord](ctx, c, Command{
		Name:      "getTrades",
		Arguments: tradesArguments{OpenedOnly: openedOnly},
	})
	if err != nil {
		return nil, err
	}
	return tradesFromRecords(records)
}

func (c *Client) GetTradesHistory(ctx context.Context, start, end time.Time) ([]common.TradeUpdate, error) {
	records, err := execute[[]tradeRecord](ctx, c, Command{
		Name:      "getTradesHistory",
		Arguments: tradesHistoryArguments{Start: toMillis(start), End: toMillis(end)},
	})
	if err != nil {
		return nil, err
	}
	return tradesFromRecords(records)
}

// TradeTransaction submits an order and returns the broker order number.
func (c *Client) TradeTransaction(ctx context.Context, info TradeTransInfo) (int64, error) {
	r, err := execute[orderRecord](ctx, c, Command{
		Name:      "tradeTransaction",
		Arguments: tradeTransactionArguments{TradeTransInfo: info},
	})
	if err != nil {
		return 0, err
	}
	return r.Order, nil
}

func execute[T any](ctx context.Context, c *Client, cmd Command) (T, error) {
	resp, err := c.connector.Execute(ctx, cmd)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeReturnData[T](resp)
}

func tradesFromRecords(records []tradeRecord) (trades []common.TradeUpdate, err error) {
	defer recoverDecode(&err)

	trades = make([]common.TradeUpdate, 0, len(records))
	for _, r := range records {
		// deposits and credits are not positions
		if op := TradeOperation(r.Cmd); op == OperationBalance || op == OperationCredit {
			continue
		}
		trade, err := tradeFromRecord(r)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

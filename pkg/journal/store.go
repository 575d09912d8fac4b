package journal

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/peter-kozarec/xtrade/pkg/common"
	"github.com/peter-kozarec/xtrade/pkg/utility/fixed"
)

// Store persists finished positions.
type Store interface {
	SavePosition(ctx context.Context, runId string, position common.Position) error
	Close() error
}

type dialect struct {
	driver      string
	placeholder func(n int) string
}

var (
	postgresDialect = dialect{driver: "postgres", placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
	sqliteDialect   = dialect{driver: "sqlite", placeholder: func(int) string { return "?" }}
)

const schema = `
	CREATE TABLE IF NOT EXISTS positions (
		run_id       TEXT   NOT NULL,
		id           TEXT   NOT NULL,
		comment      TEXT   NOT NULL,
		symbol       TEXT   NOT NULL,
		type         TEXT   NOT NULL,
		status       TEXT   NOT NULL,
		reason       TEXT   NOT NULL,
		order_id     BIGINT NOT NULL,
		position_id  BIGINT NOT NULL,
		volume       TEXT   NOT NULL,
		open_price   TEXT   NOT NULL,
		close_price  TEXT   NOT NULL,
		stop_loss    TEXT   NOT NULL,
		take_profit  TEXT   NOT NULL,
		profit       TEXT   NOT NULL,
		open_time    BIGINT NOT NULL,
		close_time   BIGINT NOT NULL,
		PRIMARY KEY (run_id, id)
	)`

var columns = []string{
	"run_id", "id", "comment", "symbol", "type", "status", "reason", "order_id", "position_id",
	"volume", "open_price", "close_price", "stop_loss", "take_profit", "profit", "open_time", "close_time",
}

// SQLStore is a Store over PostgreSQL or SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	insert  string
}

var _ Store = (*SQLStore)(nil)

func open(ctx context.Context, d dialect, dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s journal: %w", d.driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to reach %s journal: %w", d.driver, err)
	}

	s := &SQLStore{db: db, dialect: d, insert: insertQuery(d)}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to create journal schema: %w", err)
	}
	return s, nil
}

func insertQuery(d dialect) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO positions (%s) VALUES (%s) ON CONFLICT (run_id, id) DO NOTHING",
		strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

func (s *SQLStore) SavePosition(ctx context.Context, runId string, p common.Position) error {
	_, err := s.db.ExecContext(ctx, s.insert,
		runId,
		p.Id,
		p.CustomComment,
		p.Symbol,
		string(p.Type),
		string(p.Status),
		string(p.ReasonClosed),
		p.Order,
		p.PositionId,
		p.Volume.String(),
		p.OpenPrice.String(),
		p.ClosePrice.String(),
		p.StopLoss.String(),
		p.TakeProfit.String(),
		p.Profit.String(),
		unixNano(p.DateOpen),
		unixNano(p.DateClose),
	)
	if err != nil {
		return fmt.Errorf("unable to insert position %s: %w", p.Id, err)
	}
	return nil
}

// Positions lists the journaled positions of a run ordered by close time.
func (s *SQLStore) Positions(ctx context.Context, runId string) ([]common.Position, error) {
	query := fmt.Sprintf("SELECT %s FROM positions WHERE run_id = %s ORDER BY close_time, id",
		strings.Join(columns[1:], ", "), s.dialect.placeholder(1))

	rows, err := s.db.QueryContext(ctx, query, runId)
	if err != nil {
		return nil, fmt.Errorf("error querying positions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var positions []common.Position
	for rows.Next() {
		var p common.Position
		var pt, status, reason string
		var prices [6]string
		var openTime, closeTime int64
		if err := rows.Scan(&p.Id, &p.CustomComment, &p.Symbol, &pt, &status, &reason, &p.Order, &p.PositionId,
			&prices[0], &prices[1], &prices[2], &prices[3], &prices[4], &prices[5], &openTime, &closeTime); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		p.Type = common.PositionType(pt)
		p.Status = common.PositionStatus(status)
		p.ReasonClosed = common.ReasonClosed(reason)
		for i, dst := range []*fixed.Point{&p.Volume, &p.OpenPrice, &p.ClosePrice, &p.StopLoss, &p.TakeProfit, &p.Profit} {
			if *dst, err = fixed.Parse(prices[i]); err != nil {
				return nil, fmt.Errorf("invalid decimal %q: %w", prices[i], err)
			}
		}
		p.DateOpen = fromUnixNano(openTime)
		p.DateClose = fromUnixNano(closeTime)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error scanning rows: %w", err)
	}
	return positions, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

package journal

import (
	"context"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens or creates a journal file, the default for backtests.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	return open(ctx, sqliteDialect, path)
}

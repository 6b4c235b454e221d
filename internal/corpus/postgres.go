package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/resilience"
)

// Querier is the subset of *sql.DB the Postgres source needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// RowScanner is the subset of *sql.Rows the loader reads.
type RowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// PostgresSource reads verses from a table whose locator columns may be
// integer or text typed; text values must parse as integers.
type PostgresSource struct {
	query   func(ctx context.Context, q string) (RowScanner, error)
	table   string
	columns Columns
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// NewPostgresSource creates a source over table. attempts bounds retries of
// the whole query.
func NewPostgresSource(db Querier, table string, columns Columns, attempts int) *PostgresSource {
	return &PostgresSource{
		query: func(ctx context.Context, q string) (RowScanner, error) {
			return db.QueryContext(ctx, q)
		},
		table:   table,
		columns: columns,
		retry:   resilience.RetryConfig{MaxAttempts: attempts},
		logger:  slog.Default().With("component", "corpus-postgres", "table", table),
	}
}

func (s *PostgresSource) Load(ctx context.Context) (*LoadResult, error) {
	var res *LoadResult
	err := resilience.Retry(ctx, "load corpus", s.retry, func() error {
		var err error
		res, err = s.load(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("corpus loaded", "records", len(res.Records), "dropped", res.Dropped)
	return res, nil
}

func (s *PostgresSource) load(ctx context.Context) (*LoadResult, error) {
	rows, err := s.query(ctx, selectQuery(s.table, s.columns))
	if err != nil {
		return nil, fmt.Errorf("querying corpus table: %w", err)
	}
	defer rows.Close()

	res := &LoadResult{}
	for rows.Next() {
		var group, subgroup, position, text sql.NullString
		if err := rows.Scan(&group, &subgroup, &position, &text); err != nil {
			return nil, fmt.Errorf("scanning corpus row: %w", err)
		}
		if !group.Valid || !subgroup.Valid || !position.Valid || !text.Valid {
			res.Dropped++
			continue
		}
		rec, err := parseRecord(group.String, subgroup.String, position.String, text.String)
		if err != nil {
			res.Dropped++
			s.logger.Warn("dropping malformed row", "error", err)
			continue
		}
		res.Records = append(res.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus rows: %w", err)
	}
	return res, nil
}

// selectQuery casts every column to text so integer and text schemas scan
// the same way. Rows are ordered by the locator columns in their native
// type so row numbering is stable across loads.
func selectQuery(table string, c Columns) string {
	g := pq.QuoteIdentifier(c.Group)
	sg := pq.QuoteIdentifier(c.Subgroup)
	p := pq.QuoteIdentifier(c.Position)
	t := pq.QuoteIdentifier(c.Text)
	return "SELECT " + g + "::text, " + sg + "::text, " + p + "::text, " + t +
		" FROM " + pq.QuoteIdentifier(table) +
		" ORDER BY " + g + ", " + sg + ", " + p
}

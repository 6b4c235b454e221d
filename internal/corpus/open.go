package corpus

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/resilience"
)

// Open builds the Source selected by cfg.Corpus. The returned close
// function releases any connection the source holds and is never nil.
func Open(ctx context.Context, cfg *config.Config) (Source, func() error, error) {
	columns := ColumnsFromConfig(cfg.Corpus.Columns)
	switch cfg.Corpus.Source {
	case "csv":
		return NewCSVSource(cfg.Corpus.CSVPath, columns), func() error { return nil }, nil
	case "postgres":
		var client *postgres.Client
		err := resilience.Retry(ctx, "connect postgres", resilience.RetryConfig{MaxAttempts: cfg.Postgres.LoadAttempts}, func() error {
			var err error
			client, err = postgres.New(ctx, cfg.Postgres)
			return err
		})
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to corpus database: %w", err)
		}
		return NewPostgresSource(client, cfg.Corpus.Table, columns, cfg.Postgres.LoadAttempts), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown corpus source %q", cfg.Corpus.Source)
	}
}

// Command versectl is the offline companion of the recommender.
//
// The similar subcommand builds the index from the configured corpus and
// prints the input verse followed by a table of the most similar verses.
// The analytics subcommand consumes query events from Kafka for a while and
// prints the aggregated statistics.
//
// Usage:
//
//	versectl [-config configs/development.yaml] similar -book John -chapter 3 -verse 16 [-top 10]
//	versectl [-config configs/development.yaml] analytics [-for 30s] [-from-start]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/internal/searcher/resolver"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	// Logs go to stderr so the table on stdout stays clean.
	slog.SetDefault(logger.New(os.Stderr, cfg.Logging.Level, "text"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	switch args[0] {
	case "similar":
		err = runSimilar(ctx, cfg, args[1:], os.Stdout)
	case "analytics":
		err = runAnalytics(ctx, cfg, args[1:], os.Stdout)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "versectl: %s\n", apperrors.Message(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "usage: versectl [-config path] similar|analytics [flags]\n")
	flag.PrintDefaults()
}

func runSimilar(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("similar", flag.ContinueOnError)
	book := fs.String("book", "", "book name, e.g. John")
	chapter := fs.Int("chapter", 0, "chapter number")
	verse := fs.Int("verse", 0, "verse number")
	top := fs.Int("top", cfg.Search.DefaultTopN, "number of similar verses")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *book == "" {
		return apperrors.Invalid("-book is required")
	}

	opts, err := indexer.OptionsFromConfig(cfg.Indexer, cfg.Tracing.Enabled)
	if err != nil {
		return err
	}
	src, closeSource, err := corpus.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	ix, err := indexer.BuildFromSource(ctx, src, corpus.Books(), opts)
	if err != nil {
		return err
	}

	res := resolver.New(resolver.Static(ix), cfg.Search.MaxResults)
	loc, err := res.Locate(*book, *chapter, *verse)
	if err != nil {
		return err
	}
	doc, err := res.Lookup(loc)
	if err != nil {
		return err
	}
	matches, err := res.FindSimilar(ctx, loc, *top)
	if err != nil {
		return err
	}
	return printSimilar(out, doc, matches)
}

func printSimilar(out io.Writer, doc corpus.Document, matches []resolver.Match) error {
	fmt.Fprintf(out, "Input Verse: %s %d:%d\n%s\n\n", doc.Name, doc.Locator.Subgroup, doc.Locator.Position, doc.Text)
	if len(matches) == 0 {
		_, err := fmt.Fprintln(out, "No similar verses found.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tVERSE\tSCORE\tTEXT")
	for i, m := range matches {
		fmt.Fprintf(tw, "%d\t%s\t%.4f\t%s\n", i+1, m.String(), m.Score, truncate(m.Text, 80))
	}
	return tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

func runAnalytics(ctx context.Context, cfg *config.Config, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("analytics", flag.ContinueOnError)
	window := fs.Duration("for", 30*time.Second, "how long to consume before printing")
	fromStart := fs.Bool("from-start", false, "read the topic from the first offset")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *window)
	defer cancel()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, *fromStart, analytics.HandleEvent(agg))
	slog.Info("consuming query events", "topic", cfg.Kafka.QueryTopic, "for", *window)
	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("consuming query events: %w", err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(agg.Stats())
}

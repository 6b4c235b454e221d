package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	apperrors "github.com/Adithya-Monish-Kumar-K/verse-recommender/pkg/errors"
)

// BuildFunc produces the index. It is invoked at most once per Provider.
type BuildFunc func(ctx context.Context) (*Index, error)

// Provider builds the index lazily, exactly once, and hands the same result
// to every caller.
type Provider struct {
	build  BuildFunc
	once   sync.Once
	done   chan struct{}
	ready  atomic.Bool
	index  *Index
	err    error
	logger *slog.Logger
}

func NewProvider(build BuildFunc) *Provider {
	return &Provider{
		build:  build,
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "index-provider"),
	}
}

// Get builds the index on first use and blocks concurrent callers until the
// build finishes. A failed build is not retried; its error is returned to
// every later caller.
func (p *Provider) Get(ctx context.Context) (*Index, error) {
	p.once.Do(func() {
		defer close(p.done)
		defer func() {
			if r := recover(); r != nil {
				p.index, p.err = nil, fmt.Errorf("%w: panic during build: %v", apperrors.ErrBuildFault, r)
				p.logger.Error("index build panicked", "panic", r)
			}
		}()
		p.index, p.err = p.build(ctx)
		if p.err == nil && p.index == nil {
			p.err = fmt.Errorf("%w: build returned no index", apperrors.ErrBuildFault)
		}
		if p.err == nil {
			p.ready.Store(true)
		}
	})
	return p.index, p.err
}

// Current returns the built index without blocking. Before the build ends
// it returns ErrIndexNotReady.
func (p *Provider) Current() (*Index, error) {
	select {
	case <-p.done:
		return p.index, p.err
	default:
		return nil, apperrors.New(apperrors.ErrIndexNotReady, http.StatusServiceUnavailable, "index is still being built")
	}
}

// Ready reports whether a build has completed successfully.
func (p *Provider) Ready() bool {
	return p.ready.Load()
}

// Done is closed when the build finishes, successfully or not.
func (p *Provider) Done() <-chan struct{} {
	return p.done
}

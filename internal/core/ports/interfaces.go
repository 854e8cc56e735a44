package ports

import (
	"context"
	"time"

	"molt-highlights/internal/core/domain"
)

// Source is a way of acquiring posts from the community site.
type Source interface {
	Name() string
	FetchListing(ctx context.Context, sort string, limit int) domain.FetchResult
	// FetchDetail returns nil, nil when the source has no detail for id.
	FetchDetail(ctx context.Context, id string) (*domain.RawDetail, error)
}

// Generator turns a selected post into publishable text.
type Generator interface {
	Generate(ctx context.Context, post domain.Post) (string, error)
}

// Publisher submits text to the target platform. Expected failures return
// ok=false with a nil error; only unexpected transport failures return an error.
type Publisher interface {
	Publish(ctx context.Context, text, credential string) (ok bool, refreshed *string, err error)
}

// Alerter delivers operator notifications. Implementations swallow their own failures.
type Alerter interface {
	Notify(ctx context.Context, message string)
}

// CredentialSource gives read access to the publishing secret and lets the
// pipeline store a refreshed copy.
type CredentialSource interface {
	Load() (string, bool)
	Rotate(blob string) error
}

type CorpusStore interface {
	LoadCorpus(ctx context.Context) (*domain.Corpus, error)
	SaveCorpus(ctx context.Context, corpus *domain.Corpus, lastRun time.Time) error
}

type HistoryStore interface {
	LoadHistory(ctx context.Context) (*domain.History, error)
	SaveHistory(ctx context.Context, history *domain.History) error
}

// Store persists both the corpus and the published history.
// A single writer is assumed; stores do no locking across processes.
type Store interface {
	CorpusStore
	HistoryStore
	Close() error
}

// RenderRequest describes one page load for a browser-like renderer.
type RenderRequest struct {
	URL string
	// ClickText, when set, names the visible text of a control to activate before waiting.
	ClickText string
	// WaitSelector must match before the page is considered rendered.
	WaitSelector string
	WaitTimeout  time.Duration
}

// Renderer loads a page and returns its rendered HTML.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
	Close() error
}

// Indexer receives the corpus after each persisted run.
type Indexer interface {
	IndexPosts(posts []domain.Post) error
}

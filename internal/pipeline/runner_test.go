package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/storage"
	"molt-highlights/internal/ui"
)

var now = time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type stubSource struct {
	result  domain.FetchResult
	details map[string]*domain.RawDetail
	asked   []string
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) FetchListing(ctx context.Context, sort string, limit int) domain.FetchResult {
	return s.result
}

func (s *stubSource) FetchDetail(ctx context.Context, id string) (*domain.RawDetail, error) {
	s.asked = append(s.asked, id)
	d, ok := s.details[id]
	if !ok {
		return nil, errors.New("detail unavailable")
	}
	return d, nil
}

type stubGenerator struct {
	text string
	err  error
}

func (g stubGenerator) Generate(ctx context.Context, post domain.Post) (string, error) {
	return g.text, g.err
}

type stubPublisher struct {
	ok        bool
	refreshed *string
	err       error
	texts     []string
	blobs     []string
}

func (p *stubPublisher) Publish(ctx context.Context, text, credential string) (bool, *string, error) {
	p.texts = append(p.texts, text)
	p.blobs = append(p.blobs, credential)
	return p.ok, p.refreshed, p.err
}

type memCredentials struct {
	blob    string
	rotated []string
}

func (c *memCredentials) Load() (string, bool) { return c.blob, c.blob != "" }

func (c *memCredentials) Rotate(blob string) error {
	c.rotated = append(c.rotated, blob)
	c.blob = blob
	return nil
}

type recordingIndex struct {
	calls int
	last  []domain.Post
}

func (i *recordingIndex) IndexPosts(posts []domain.Post) error {
	i.calls++
	i.last = posts
	return nil
}

// Scores at now: alpha 18, beta 55, gamma 30.
func listing() domain.FetchResult {
	return domain.OK("stub", []domain.RawItem{
		{NativeID: "alpha", Title: "alpha", Body: "short", Upvotes: 1, Source: "stub"},
		{NativeID: "beta", Title: "beta", Body: "short", Upvotes: 10, Comments: 2, Source: "stub"},
		{NativeID: "gamma", Title: "gamma", Body: "short", Upvotes: 5, Source: "stub"},
	})
}

func newStore(t *testing.T) *storage.JSONStorage {
	t.Helper()
	s, err := storage.NewJSONStorage(t.TempDir(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func newRunner(t *testing.T, deps Deps, opts Options) *Runner {
	t.Helper()
	deps.Clock = clock
	deps.Logger = zerolog.Nop()
	r, err := New(deps, opts)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRunWithoutCredential(t *testing.T) {
	store := newStore(t)
	alerts := &ui.Recorder{}
	pub := &stubPublisher{ok: true}
	idx := &recordingIndex{}
	r := newRunner(t, Deps{
		Source:    &stubSource{result: listing()},
		Store:     store,
		Publisher: pub,
		Alerter:   alerts,
		Index:     idx,
	}, Options{})

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.State != Persisted || rep.Reached != AwaitingCredential {
		t.Errorf("state = %s/%s, want persisted/awaiting_credential", rep.State, rep.Reached)
	}
	if !errors.Is(rep.Err, domain.ErrCredentialAbsent) {
		t.Errorf("Err = %v, want ErrCredentialAbsent", rep.Err)
	}
	if rep.Fetched != 3 || rep.Inserted != 3 {
		t.Errorf("fetched/inserted = %d/%d, want 3/3", rep.Fetched, rep.Inserted)
	}
	if rep.Winner == nil || rep.Winner.ID != "beta" {
		t.Fatalf("winner = %+v, want beta", rep.Winner)
	}
	var ids []string
	for _, c := range rep.Candidates {
		ids = append(ids, c.ID)
	}
	if got := strings.Join(ids, ","); got != "beta,gamma,alpha" {
		t.Errorf("candidates = %s", got)
	}
	if *rep.Candidates[0].Score != 55 {
		t.Errorf("winner score = %d, want 55", *rep.Candidates[0].Score)
	}
	if len(pub.texts) != 0 {
		t.Error("publisher called without a credential")
	}
	if len(alerts.Messages) != 0 {
		t.Errorf("unexpected alerts: %v", alerts.Messages)
	}

	c, err := store.LoadCorpus(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 3 || c.PublishedCount() != 0 {
		t.Errorf("stored corpus: %d posts, %d published", c.Len(), c.PublishedCount())
	}
	if last, _ := store.LastRun(); last == nil || !last.Equal(now) {
		t.Errorf("last run = %v", last)
	}
	if idx.calls != 1 || len(idx.last) != 3 {
		t.Errorf("index calls = %d with %d posts", idx.calls, len(idx.last))
	}
}

func TestRunPublishes(t *testing.T) {
	store := newStore(t)
	alerts := &ui.Recorder{}
	fresh := "fresh-cookies"
	pub := &stubPublisher{ok: true, refreshed: &fresh}
	creds := &memCredentials{blob: "cookies"}
	r := newRunner(t, Deps{
		Source:      &stubSource{result: listing()},
		Store:       store,
		Generator:   stubGenerator{text: "  a generated tweet  "},
		Publisher:   pub,
		Alerter:     alerts,
		Credentials: creds,
	}, Options{})

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Published || rep.Err != nil || rep.State != Persisted {
		t.Fatalf("report = %+v", rep)
	}
	if len(pub.texts) != 1 || pub.texts[0] != "a generated tweet" || pub.blobs[0] != "cookies" {
		t.Errorf("publisher got %q with %q", pub.texts, pub.blobs)
	}
	if len(creds.rotated) != 1 || creds.rotated[0] != fresh {
		t.Errorf("rotated = %v", creds.rotated)
	}
	if len(alerts.Messages) != 1 || alerts.Messages[0] != "✅ Posted: beta..." {
		t.Errorf("alerts = %v", alerts.Messages)
	}

	ctx := context.Background()
	c, _ := store.LoadCorpus(ctx)
	beta, ok := c.Get("beta")
	if !ok || !beta.Published || beta.PublishedAt == nil || !beta.PublishedAt.Equal(now) {
		t.Fatalf("beta not marked: %+v", beta)
	}
	if beta.PublishedText == nil || *beta.PublishedText != "a generated tweet" {
		t.Errorf("published text = %v", beta.PublishedText)
	}
	h, _ := store.LoadHistory(ctx)
	if !h.IsPublished("beta") || h.Len() != 1 {
		t.Errorf("history = %+v", h.Entries())
	}

	// The next run sees the same listing and moves on to the runner-up.
	rep, err = r.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.Inserted != 0 {
		t.Errorf("second run inserted %d", rep.Inserted)
	}
	if rep.Winner == nil || rep.Winner.ID != "gamma" {
		t.Errorf("second winner = %+v, want gamma", rep.Winner)
	}
	for _, cand := range rep.Candidates {
		if cand.ID == "beta" {
			t.Error("published post selected again")
		}
	}
	if pub.blobs[1] != fresh {
		t.Errorf("second publish used %q, want the rotated blob", pub.blobs[1])
	}
}

func TestRunPublishRejected(t *testing.T) {
	store := newStore(t)
	alerts := &ui.Recorder{}
	r := newRunner(t, Deps{
		Source:      &stubSource{result: listing()},
		Store:       store,
		Publisher:   &stubPublisher{ok: false},
		Alerter:     alerts,
		Credentials: &memCredentials{blob: "cookies"},
	}, Options{})

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Published || !errors.Is(rep.Err, domain.ErrPublishFailure) {
		t.Errorf("report = %+v", rep)
	}
	if len(alerts.Messages) != 1 || !strings.Contains(alerts.Messages[0], "Failed") {
		t.Errorf("alerts = %v", alerts.Messages)
	}
	c, _ := store.LoadCorpus(context.Background())
	if c.Len() != 3 || c.PublishedCount() != 0 {
		t.Errorf("stored corpus: %d posts, %d published", c.Len(), c.PublishedCount())
	}
	h, _ := store.LoadHistory(context.Background())
	if h.Len() != 0 {
		t.Errorf("history has %d entries", h.Len())
	}
}

func TestRunWithoutPublisherAlerts(t *testing.T) {
	store := newStore(t)
	alerts := &ui.Recorder{}
	r := newRunner(t, Deps{
		Source:      &stubSource{result: listing()},
		Store:       store,
		Alerter:     alerts,
		Credentials: &memCredentials{blob: "cookies"},
	}, Options{})

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Published || !errors.Is(rep.Err, domain.ErrPublishFailure) {
		t.Errorf("report = %+v", rep)
	}
	if len(alerts.Messages) != 1 || !strings.Contains(alerts.Messages[0], "no publisher") {
		t.Errorf("alerts = %v", alerts.Messages)
	}
	c, _ := store.LoadCorpus(context.Background())
	if c.Len() != 3 || c.PublishedCount() != 0 {
		t.Errorf("stored corpus: %d posts, %d published", c.Len(), c.PublishedCount())
	}
}

func TestRunPublisherError(t *testing.T) {
	store := newStore(t)
	alerts := &ui.Recorder{}
	boom := errors.New("browser crashed")
	r := newRunner(t, Deps{
		Source:      &stubSource{result: listing()},
		Store:       store,
		Publisher:   &stubPublisher{err: boom},
		Alerter:     alerts,
		Credentials: &memCredentials{blob: "cookies"},
	}, Options{})

	rep, err := r.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run error = %v, want %v", err, boom)
	}
	if rep.State != Persisted || rep.Published {
		t.Errorf("report = %+v", rep)
	}
	if len(alerts.Messages) != 1 {
		t.Errorf("alerts = %v", alerts.Messages)
	}
	c, _ := store.LoadCorpus(context.Background())
	if c.Len() != 3 {
		t.Errorf("discoveries lost: %d posts stored", c.Len())
	}
}

func TestRunAbortedFetch(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	seed := domain.NewCorpus([]domain.Post{{ID: "old", Title: "kept", DiscoveredAt: now.Add(-time.Hour), DiscoveryEpoch: 1}})
	if err := store.SaveCorpus(ctx, seed, now.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	alerts := &ui.Recorder{}
	cause := errors.New("both sources failed")
	r := newRunner(t, Deps{
		Source:      &stubSource{result: domain.FetchResult{Status: domain.FetchEmpty, Source: "hybrid", Err: cause}},
		Store:       store,
		Alerter:     alerts,
		Credentials: &memCredentials{blob: "cookies"},
	}, Options{})

	rep, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.State != AbortedFetch || !errors.Is(rep.Err, cause) {
		t.Errorf("report = %+v", rep)
	}
	if len(alerts.Messages) != 1 {
		t.Errorf("alerts = %v", alerts.Messages)
	}
	c, _ := store.LoadCorpus(ctx)
	if c.Len() != 1 {
		t.Errorf("corpus = %d posts, want the seeded one", c.Len())
	}
	if last, _ := store.LastRun(); last == nil || !last.Equal(now) {
		t.Errorf("state not persisted on abort, last run = %v", last)
	}
}

func TestRunNoCandidates(t *testing.T) {
	alerts := &ui.Recorder{}
	item := domain.RawItem{NativeID: "only", Title: "only"}
	store := newStore(t)
	ctx := context.Background()
	seed := domain.NewCorpus(nil)
	p := domain.Post{ID: "only", Title: "only", DiscoveredAt: now}
	p.MarkPublished(now, "done")
	seed.Merge(p)
	if err := store.SaveCorpus(ctx, seed, now); err != nil {
		t.Fatal(err)
	}

	r := newRunner(t, Deps{
		Source:  &stubSource{result: domain.OK("stub", []domain.RawItem{item})},
		Store:   store,
		Alerter: alerts,
	}, Options{})
	rep, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Reached != Selecting || rep.Winner != nil || rep.Err == nil {
		t.Errorf("report = %+v", rep)
	}
	if len(alerts.Messages) != 1 {
		t.Errorf("alerts = %v", alerts.Messages)
	}
	// The published flag rebuilt the missing history entry.
	h, _ := store.LoadHistory(ctx)
	if !h.IsPublished("only") {
		t.Error("history not rebuilt from corpus")
	}
}

func TestGeneratorFallback(t *testing.T) {
	tests := []struct {
		name string
		gen  stubGenerator
	}{
		{"error", stubGenerator{err: errors.New("quota")}},
		{"blank", stubGenerator{text: "   "}},
		{"too long", stubGenerator{text: strings.Repeat("x", 400)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &stubPublisher{ok: true}
			r := newRunner(t, Deps{
				Source:      &stubSource{result: listing()},
				Store:       newStore(t),
				Generator:   tt.gen,
				Publisher:   pub,
				Credentials: &memCredentials{blob: "cookies"},
			}, Options{})
			rep, err := r.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if len(pub.texts) != 1 {
				t.Fatalf("publisher calls = %d", len(pub.texts))
			}
			n := utf8.RuneCountInString(pub.texts[0])
			if n == 0 || n > 280 {
				t.Errorf("text length %d", n)
			}
			if rep.Text != pub.texts[0] {
				t.Errorf("report text %q differs from published %q", rep.Text, pub.texts[0])
			}
		})
	}
}

func TestDetailEnrichment(t *testing.T) {
	comments := json.RawMessage(`[{"content":"first!"}]`)
	src := &stubSource{
		result: listing(),
		details: map[string]*domain.RawDetail{
			"beta": {RawItem: domain.RawItem{Title: "beta", Body: "a much longer body that the listing did not include", CommentsData: comments}},
		},
	}
	store := newStore(t)
	r := newRunner(t, Deps{Source: src, Store: store}, Options{DetailsLimit: 2})

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(src.asked, ",") != "beta,gamma" {
		t.Errorf("details asked for %v", src.asked)
	}
	if rep.Winner.BodyText != "a much longer body that the listing did not include" {
		t.Errorf("winner body = %q", rep.Winner.BodyText)
	}
	c, _ := store.LoadCorpus(context.Background())
	beta, _ := c.Get("beta")
	if string(beta.DetailComments) != string(comments) {
		t.Errorf("detail comments = %s", beta.DetailComments)
	}
	gamma, _ := c.Get("gamma")
	if gamma.BodyText != "short" {
		t.Errorf("failed detail changed gamma: %+v", gamma)
	}
}

func TestNewRequiresSourceAndStore(t *testing.T) {
	if _, err := New(Deps{}, Options{}); err == nil {
		t.Error("expected error without source")
	}
	if _, err := New(Deps{Source: &stubSource{}}, Options{}); err == nil {
		t.Error("expected error without store")
	}
}

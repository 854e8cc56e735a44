package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"molt-highlights/internal/brain"
	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/normalize"
	"molt-highlights/internal/core/ports"
	"molt-highlights/internal/logging"
	"molt-highlights/internal/ranking"
)

const (
	DefaultSort  = "top"
	DefaultLimit = 50
)

// Deps are the collaborators of a run. Source and Store are required.
type Deps struct {
	Source            ports.Source
	Store             ports.Store
	Generator         ports.Generator
	FallbackGenerator ports.Generator
	Publisher         ports.Publisher
	Alerter           ports.Alerter
	Credentials       ports.CredentialSource
	Index             ports.Indexer
	Scorer            *ranking.Scorer
	Clock             func() time.Time
	Logger            zerolog.Logger
}

type Options struct {
	Sort         string
	Limit        int
	Candidates   int
	DetailsLimit int
	Retention    int
}

type Runner struct {
	deps Deps
	opts Options
	log  zerolog.Logger
}

func New(deps Deps, opts Options) (*Runner, error) {
	if deps.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if deps.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if deps.FallbackGenerator == nil {
		deps.FallbackGenerator = brain.TemplateGenerator{}
	}
	if deps.Generator == nil {
		deps.Generator = deps.FallbackGenerator
	}
	if deps.Scorer == nil {
		deps.Scorer = ranking.NewScorer(nil)
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if opts.Sort == "" {
		opts.Sort = DefaultSort
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Candidates <= 0 {
		opts.Candidates = ranking.DefaultCandidates
	}
	if opts.Retention <= 0 {
		opts.Retention = domain.DefaultHistoryRetention
	}
	return &Runner{deps: deps, opts: opts, log: deps.Logger.With().Str("component", "pipeline").Logger()}, nil
}

// Run executes one pass. Loaded state is written back on every path once it
// has been read, including an aborted fetch. The returned error is reserved
// for failures the operator has to act on: storage errors and unexpected
// publisher or generator failures. Expected outcomes such as an empty fetch
// or a missing credential end with a nil error and Report.Err set.
func (r *Runner) Run(ctx context.Context) (rep *Report, err error) {
	rep = &Report{RunID: logging.NewRunID(), State: Idle}
	log := logging.ForRun(r.log, rep.RunID)

	corpus, err := r.deps.Store.LoadCorpus(ctx)
	if err != nil {
		return rep, fmt.Errorf("load corpus: %w", err)
	}
	history, err := r.deps.Store.LoadHistory(ctx)
	if err != nil {
		return rep, fmt.Errorf("load history: %w", err)
	}
	log.Info().
		Int("posts", corpus.Len()).
		Int("published", corpus.PublishedCount()).
		Msg("state loaded")

	defer func() {
		if perr := r.persist(ctx, corpus, history); perr != nil {
			err = errors.Join(err, perr)
			return
		}
		if rep.State != AbortedFetch {
			rep.State = Persisted
		}
		log.Info().
			Str("reached", rep.Reached.String()).
			Bool("published", rep.Published).
			Msg("run persisted")
	}()

	// Fetching
	rep.Reached = Fetching
	res := r.deps.Source.FetchListing(ctx, r.opts.Sort, r.opts.Limit)
	rep.Source = res.Source
	if !res.Usable() {
		rep.State = AbortedFetch
		rep.Reached = AbortedFetch
		rep.Err = res.Err
		if rep.Err == nil {
			rep.Err = domain.ErrSourceExhausted
		}
		log.Warn().Err(rep.Err).Str("status", res.Status.String()).Msg("no posts fetched")
		r.alert(ctx, "❌ Scraping failed: no posts from the API or the browser")
		return rep, nil
	}
	rep.Fetched = len(res.Items)
	log.Info().Str("source", res.Source).Int("items", rep.Fetched).Msg("listing fetched")

	// Merging
	rep.Reached = Merging
	// An aborted run leaves the history as loaded, so the rebuild waits until here.
	if n := history.RebuildFrom(corpus); n > 0 {
		log.Info().Int("entries", n).Msg("history rebuilt from corpus")
	}
	stamper := normalize.NewStamper(r.deps.Clock)
	for _, p := range stamper.All(res.Items) {
		if corpus.Merge(p) {
			rep.Inserted++
		}
	}
	log.Info().Int("inserted", rep.Inserted).Int("corpus", corpus.Len()).Msg("merged")

	// Scoring and Selecting
	rep.Reached = Scoring
	now := r.deps.Clock()
	corpus.ClearScores()
	var pool []domain.Post
	for _, p := range corpus.Posts() {
		if !history.IsPublished(p.ID) {
			pool = append(pool, p)
		}
	}
	ranked := r.deps.Scorer.Select(pool, 0, now)
	for _, p := range ranked {
		corpus.SetScore(p.ID, *p.Score)
	}

	rep.Reached = Selecting
	candidates := ranked
	if len(candidates) > r.opts.Candidates {
		candidates = candidates[:r.opts.Candidates]
	}
	if len(candidates) == 0 {
		rep.Err = errors.New("no unpublished posts to select from")
		log.Warn().Msg("no candidates")
		r.alert(ctx, "⚠️ No good posts to share")
		return rep, nil
	}
	r.enrich(ctx, log, corpus, candidates, stamper)
	rep.Candidates = candidates
	for i, c := range candidates {
		if i == 3 {
			break
		}
		b := r.deps.Scorer.Explain(c, now)
		ev := log.Info().Int("rank", i+1).Int("score", b.Total).Str("title", c.Title)
		for _, f := range b.Factors {
			ev = ev.Int(f.Name, f.Points)
		}
		ev.Msg("candidate")
	}
	winner := candidates[0]
	rep.Winner = &winner

	// AwaitingCredential
	rep.Reached = AwaitingCredential
	blob, ok := r.credential()
	if !ok {
		rep.Err = domain.ErrCredentialAbsent
		log.Info().Str("winner", winner.ID).Msg("no publishing credential, stopping after selection")
		return rep, nil
	}

	// Publishing
	rep.Reached = Publishing
	text, err := r.generate(ctx, log, winner)
	if err != nil {
		rep.Err = err
		r.alert(ctx, "❌ Tweet generation failed: "+err.Error())
		return rep, fmt.Errorf("generate: %w", err)
	}
	rep.Text = text
	log.Info().Int("chars", len([]rune(text))).Msg("text generated")

	if r.deps.Publisher == nil {
		rep.Err = fmt.Errorf("%w: no publisher configured", domain.ErrPublishFailure)
		log.Warn().Str("winner", winner.ID).Msg("credential present but no publisher configured")
		r.alert(ctx, "❌ Failed to post tweet: no publisher configured")
		return rep, nil
	}
	published, refreshed, err := r.deps.Publisher.Publish(ctx, text, blob)
	if err != nil {
		rep.Err = err
		log.Error().Err(err).Msg("publisher failed")
		r.alert(ctx, "❌ Failed to post tweet: "+err.Error())
		return rep, fmt.Errorf("publish: %w", err)
	}
	if !published {
		rep.Err = domain.ErrPublishFailure
		log.Warn().Str("winner", winner.ID).Msg("publish rejected")
		r.alert(ctx, "❌ Failed to post tweet")
		return rep, nil
	}

	at := r.deps.Clock()
	if p, ok := corpus.Get(winner.ID); ok {
		p.MarkPublished(at, text)
		history.MarkPublished(p.ID, *p, at)
		winner = *p
		rep.Winner = &winner
	}
	if dropped := history.RetainMostRecent(r.opts.Retention); dropped > 0 {
		log.Debug().Int("dropped", dropped).Msg("history trimmed")
	}
	rep.Published = true
	if refreshed != nil && r.deps.Credentials != nil {
		if err := r.deps.Credentials.Rotate(*refreshed); err != nil {
			log.Warn().Err(err).Msg("credential rotation failed")
		}
	}
	log.Info().Str("winner", winner.ID).Str("title", winner.Title).Msg("published")
	r.alert(ctx, "✅ Posted: "+brain.Truncate(winner.Title, 50)+"...")
	return rep, nil
}

// enrich fetches details for the first DetailsLimit candidates, one at a
// time. A failing item is logged and skipped.
func (r *Runner) enrich(ctx context.Context, log zerolog.Logger, corpus *domain.Corpus, candidates []domain.Post, stamper *normalize.Stamper) {
	for i := range candidates {
		if i >= r.opts.DetailsLimit {
			return
		}
		c := candidates[i]
		detail, err := r.deps.Source.FetchDetail(ctx, c.ID)
		if err != nil {
			log.Warn().Err(err).Str("post", c.ID).Msg("detail fetch failed")
			continue
		}
		if detail == nil {
			continue
		}
		raw := detail.RawItem
		raw.NativeID = c.ID
		// Detail pages do not always repeat the counters.
		if raw.Upvotes == 0 {
			raw.Upvotes = c.Upvotes
		}
		if raw.Comments == 0 {
			raw.Comments = c.CommentCount
		}
		now, epoch := stamper.Next()
		corpus.Merge(normalize.Normalize(raw, now, epoch))
		if c.Score != nil {
			corpus.SetScore(c.ID, *c.Score)
		}
		if p, ok := corpus.Get(c.ID); ok {
			candidates[i] = *p
		}
	}
}

func (r *Runner) credential() (string, bool) {
	if r.deps.Credentials == nil {
		return "", false
	}
	blob, ok := r.deps.Credentials.Load()
	return blob, ok && strings.TrimSpace(blob) != ""
}

// generate asks the primary generator and falls back to the secondary one
// when it fails or returns nothing. The result never exceeds the tweet limit.
func (r *Runner) generate(ctx context.Context, log zerolog.Logger, post domain.Post) (string, error) {
	text, err := r.deps.Generator.Generate(ctx, post)
	if err != nil || strings.TrimSpace(text) == "" {
		log.Warn().Err(err).Msg("generator failed, using fallback")
		text, err = r.deps.FallbackGenerator.Generate(ctx, post)
		if err != nil {
			return "", err
		}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("generators returned no text")
	}
	return brain.Truncate(text, brain.MaxTweetLength), nil
}

func (r *Runner) persist(ctx context.Context, corpus *domain.Corpus, history *domain.History) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if err := r.deps.Store.SaveCorpus(ctx, corpus, r.deps.Clock()); err != nil {
		errs = append(errs, fmt.Errorf("save corpus: %w", err))
	}
	if err := r.deps.Store.SaveHistory(ctx, history); err != nil {
		errs = append(errs, fmt.Errorf("save history: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	if r.deps.Index != nil {
		if err := r.deps.Index.IndexPosts(corpus.Posts()); err != nil {
			r.log.Warn().Err(err).Msg("search index update failed")
		}
	}
	return nil
}

func (r *Runner) alert(ctx context.Context, msg string) {
	if r.deps.Alerter != nil {
		r.deps.Alerter.Notify(ctx, msg)
	}
}

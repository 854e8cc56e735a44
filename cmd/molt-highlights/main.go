package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"molt-highlights/internal/api"
	"molt-highlights/internal/brain"
	"molt-highlights/internal/config"
	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
	"molt-highlights/internal/credentials"
	"molt-highlights/internal/logging"
	"molt-highlights/internal/pipeline"
	"molt-highlights/internal/publish"
	"molt-highlights/internal/ranking"
	"molt-highlights/internal/render"
	"molt-highlights/internal/search"
	"molt-highlights/internal/sites/hybrid"
	"molt-highlights/internal/sites/moltbook"
	"molt-highlights/internal/storage"
	"molt-highlights/internal/ui"
	"molt-highlights/internal/ui/discord"
	"molt-highlights/internal/ui/telegram"
)

func main() {
	godotenv.Load()

	globalFlags := flag.NewFlagSet("global", flag.ExitOnError)
	configDir := globalFlags.String("config", "", "Directory containing config.yaml")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	commandIdx := 1
	for i := 1; i < len(os.Args); i++ {
		if !strings.HasPrefix(os.Args[i], "-") {
			commandIdx = i
			break
		}
	}
	if commandIdx > 1 {
		globalFlags.Parse(os.Args[1:commandIdx])
	}

	var paths []string
	if *configDir != "" {
		paths = append(paths, *configDir)
	}
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.JSON)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[commandIdx+1:]
	switch os.Args[commandIdx] {
	case "run":
		fs := flag.NewFlagSet("run", flag.ExitOnError)
		dryRun := fs.Bool("dry-run", false, "Select a winner but do not publish")
		fs.Parse(args)
		err = runOnce(ctx, cfg, log, *dryRun)
	case "candidates":
		fs := flag.NewFlagSet("candidates", flag.ExitOnError)
		limit := fs.Int("limit", cfg.Selection.Candidates, "Number of candidates to show")
		fs.Parse(args)
		err = runCandidates(ctx, cfg, log, *limit)
	case "serve":
		fs := flag.NewFlagSet("serve", flag.ExitOnError)
		host := fs.String("host", cfg.Server.Host, "Host to bind to")
		port := fs.String("port", cfg.Server.Port, "Port to listen on")
		fs.Parse(args)
		cfg.Server.Host, cfg.Server.Port = *host, *port
		err = runServe(ctx, cfg, log)
	case "search":
		fs := flag.NewFlagSet("search", flag.ExitOnError)
		limit := fs.Int("limit", 10, "Maximum results")
		fs.Parse(args)
		if fs.NArg() < 1 {
			fmt.Println("Error: search query required")
			fmt.Println("Usage: molt-highlights search [-limit n] <query>")
			os.Exit(1)
		}
		err = runSearch(cfg, strings.Join(fs.Args(), " "), *limit)
	case "reindex":
		err = runReindex(ctx, cfg, log)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[commandIdx])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("molt-highlights - pick the best Moltbook post and share it")
	fmt.Println()
	fmt.Println("Usage: molt-highlights [-config <dir>] <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run         Fetch, rank and publish one post")
	fmt.Println("  candidates  Show the current ranking with score breakdowns")
	fmt.Println("  serve       Start the read-only status API")
	fmt.Println("  search      Full-text search over stored posts")
	fmt.Println("  reindex     Rebuild the search index from storage")
}

func openStore(ctx context.Context, cfg *config.Config) (ports.Store, error) {
	return storage.Open(ctx, storage.Options{
		Type:        cfg.Storage.Type,
		Dir:         cfg.Storage.Dir,
		CorpusFile:  cfg.Storage.CorpusFile,
		HistoryFile: cfg.Storage.HistoryFile,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	})
}

// buildSource wires the API client and, unless disabled, the browser
// fallback behind the hybrid coordinator. The returned closer releases
// the renderer.
func buildSource(cfg *config.Config, log zerolog.Logger) (ports.Source, func()) {
	client := moltbook.NewClient(moltbook.ClientOptions{
		BaseURL:     cfg.Source.APIURL,
		Timeout:     cfg.Source.Timeout,
		MaxAttempts: cfg.Source.MaxAttempts,
		BackoffBase: cfg.Source.BackoffBase,
		RPS:         cfg.Source.RPS,
		Logger:      log,
	})

	var renderer ports.Renderer
	switch cfg.Source.Browser {
	case "chromedp":
		renderer = render.NewChrome(render.ChromeOptions{
			ExecPath:   cfg.Source.ChromePath,
			Headless:   true,
			NavTimeout: cfg.Source.NavTimeout,
			Logger:     log,
		})
	case "static":
		var delay time.Duration
		if cfg.Source.RPS > 0 {
			delay = time.Duration(float64(time.Second) / cfg.Source.RPS)
		}
		renderer = render.NewStatic(render.StaticOptions{
			Timeout: cfg.Source.NavTimeout,
			Delay:   delay,
			Logger:  log,
		})
	}

	var fallback ports.Source
	closer := func() {}
	if renderer != nil {
		fallback = moltbook.NewBrowser(moltbook.BrowserOptions{
			SiteURL:     cfg.Source.SiteURL,
			Renderer:    renderer,
			VisitPosts:  cfg.Source.VisitPosts,
			WaitTimeout: cfg.Source.WaitTimeout,
			Logger:      log,
		})
		closer = func() {
			if err := renderer.Close(); err != nil {
				log.Warn().Err(err).Msg("renderer close failed")
			}
		}
	}
	return hybrid.New(client, fallback, log.With().Str("source", "hybrid").Logger()), closer
}

func buildAlerter(cfg *config.Config, log zerolog.Logger) ports.Alerter {
	var fan ui.Fanout
	if cfg.Alerts.DiscordWebhookURL != "" {
		fan = append(fan, discord.NewWebhook(cfg.Alerts.DiscordWebhookURL, log))
	}
	if cfg.Alerts.TelegramToken != "" && cfg.Alerts.TelegramChatID != "" {
		n, err := telegram.NewNotifier(cfg.Alerts.TelegramToken, cfg.Alerts.TelegramChatID, log)
		if err != nil {
			log.Warn().Err(err).Msg("telegram alerts disabled")
		} else {
			fan = append(fan, n)
		}
	}
	if len(fan) == 0 {
		return ui.Nop{}
	}
	return fan
}

func buildGenerator(ctx context.Context, cfg *config.Config, log zerolog.Logger) ports.Generator {
	if cfg.Generator.GeminiAPIKey == "" {
		return brain.TemplateGenerator{}
	}
	g, err := brain.NewGeminiBrain(ctx, cfg.Generator.GeminiAPIKey, cfg.Generator.Models, log)
	if err != nil {
		log.Warn().Err(err).Msg("gemini unavailable, using templates")
		return brain.TemplateGenerator{}
	}
	return g
}

func buildPublisher(cfg *config.Config, log zerolog.Logger) (ports.Publisher, ports.CredentialSource) {
	if cfg.Publisher.Type == "summary" {
		return publish.NewSummaryPublisher(cfg.Publisher.SummariesDir, log), credentials.Static("summary")
	}
	x := publish.NewXPublisher(publish.XOptions{
		HomeURL:  cfg.Publisher.HomeURL,
		ExecPath: cfg.Source.ChromePath,
		Headless: cfg.Publisher.Headless,
		Logger:   log,
	})
	return x, credentials.Env{Key: cfg.Publisher.CredentialEnv, File: cfg.Publisher.CredentialFile}
}

func openIndex(cfg *config.Config) (*search.Index, error) {
	if cfg.Search.IndexPath == "" {
		return nil, nil
	}
	return search.Open(cfg.Search.IndexPath)
}

func runOnce(ctx context.Context, cfg *config.Config, log zerolog.Logger, dryRun bool) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	source, closeSource := buildSource(cfg, log)
	defer closeSource()

	publisher, creds := buildPublisher(cfg, log)
	if dryRun {
		creds = nil
	}

	deps := pipeline.Deps{
		Source:            source,
		Store:             store,
		Generator:         buildGenerator(ctx, cfg, log),
		FallbackGenerator: brain.TemplateGenerator{},
		Publisher:         publisher,
		Alerter:           buildAlerter(cfg, log),
		Credentials:       creds,
		Logger:            log,
	}
	idx, err := openIndex(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("search index unavailable")
	} else if idx != nil {
		defer idx.Close()
		deps.Index = idx
	}

	runner, err := pipeline.New(deps, pipeline.Options{
		Sort:         cfg.Source.Sort,
		Limit:        cfg.Source.Limit,
		Candidates:   cfg.Selection.Candidates,
		DetailsLimit: cfg.Source.DetailsLimit,
		Retention:    cfg.Storage.Retention,
	})
	if err != nil {
		return err
	}

	rep, err := runner.Run(ctx)
	if rep != nil {
		printReport(rep)
	}
	return err
}

func printReport(rep *pipeline.Report) {
	fmt.Printf("\nRun %s: %s (reached %s)\n", rep.RunID, rep.State, rep.Reached)
	fmt.Printf("Source: %s, fetched %d, new %d\n", rep.Source, rep.Fetched, rep.Inserted)
	if rep.Winner != nil {
		score := 0
		if rep.Winner.Score != nil {
			score = *rep.Winner.Score
		}
		fmt.Printf("Winner: [%d] %s by u/%s in %s\n", score, rep.Winner.Title, rep.Winner.AuthorName, rep.Winner.Community)
	}
	if rep.Text != "" {
		fmt.Printf("\n%s\n\n", rep.Text)
	}
	switch {
	case rep.Published:
		fmt.Println("Published.")
	case errors.Is(rep.Err, domain.ErrCredentialAbsent):
		fmt.Println("No publishing credential; nothing was posted.")
	case rep.Err != nil:
		fmt.Printf("Not published: %v\n", rep.Err)
	}
}

func runCandidates(ctx context.Context, cfg *config.Config, log zerolog.Logger, limit int) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	corpus, err := store.LoadCorpus(ctx)
	if err != nil {
		return err
	}
	history, err := store.LoadHistory(ctx)
	if err != nil {
		return err
	}
	var pool []domain.Post
	for _, p := range corpus.Posts() {
		if !history.IsPublished(p.ID) {
			pool = append(pool, p)
		}
	}
	now := time.Now()
	ranked := ranking.Select(pool, limit, now)
	if len(ranked) == 0 {
		fmt.Println("No unpublished posts.")
		return nil
	}
	for i, p := range ranked {
		fmt.Printf("%d. [%d] %s\n", i+1, *p.Score, p.Title)
		for _, f := range ranking.Explain(p, now).Factors {
			if f.Points == 0 {
				continue
			}
			if f.Match != "" {
				fmt.Printf("     %+4d %s (%s)\n", f.Points, f.Name, f.Match)
			} else {
				fmt.Printf("     %+4d %s\n", f.Points, f.Name)
			}
		}
	}
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var searcher api.Searcher
	idx, err := openIndex(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("search disabled")
	} else if idx != nil {
		defer idx.Close()
		searcher = idx
	}

	srv := api.NewServer(store, nil, searcher, log)
	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Addr()).Msg("starting status server")
		errc <- srv.Router().Run(cfg.Server.Addr())
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errc:
		return err
	}
}

func runSearch(cfg *config.Config, query string, limit int) error {
	idx, err := openIndex(cfg)
	if err != nil {
		return err
	}
	if idx == nil {
		return errors.New("search.index_path is not set")
	}
	defer idx.Close()

	hits, err := idx.Search(query, limit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("No results found")
		return nil
	}
	for i, h := range hits {
		fmt.Printf("%d. %s (score: %.3f)\n", i+1, h.Title, h.Score)
		fmt.Printf("   %s | u/%s | %s\n", h.Community, h.Author, h.URL)
	}
	return nil
}

func runReindex(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.Search.IndexPath == "" {
		return errors.New("search.index_path is not set")
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	corpus, err := store.LoadCorpus(ctx)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(cfg.Search.IndexPath); err != nil {
		return fmt.Errorf("remove old index: %w", err)
	}
	idx, err := search.Open(cfg.Search.IndexPath)
	if err != nil {
		return err
	}
	defer idx.Close()

	start := time.Now()
	if err := idx.IndexPosts(corpus.Posts()); err != nil {
		return err
	}
	count, _ := idx.Count()
	log.Info().Uint64("documents", count).Dur("took", time.Since(start)).Msg("reindex complete")
	return nil
}

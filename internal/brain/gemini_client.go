package brain

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
)

const (
	SystemPrompt = `You run a social account that highlights the best posts from Moltbook, a social network where every member is an AI agent.

### Approach
- Find the emotional core of the post: what makes a human reader stop scrolling.
- Quote the agent when a line is strong enough to stand on its own.
- Add one short line of commentary on what the post says about agents.
- Keep it factual; never invent claims the post does not make.

### Rules
1. English only.
2. No more than one hashtag, and only when it is clearly relevant.
3. Output the tweet text only: no quotes around it, no preamble, no URL.`
)

type modelConfig struct {
	Name string
	RPM  int
	RPD  int
}

// GeminiBrain writes tweets with Gemini, falling through its model list when
// a model is rate limited or unavailable.
type GeminiBrain struct {
	Client *genai.Client
	Models []modelConfig
	log    zerolog.Logger

	dailyCount   map[string]int
	minuteCount  map[string]int
	lastResetDay time.Time
	lastResetMin time.Time
	mu           sync.Mutex
}

// NewGeminiBrain builds a client for the given models, in preference order.
// An empty model list uses the flash models.
func NewGeminiBrain(ctx context.Context, apiKey string, models []string, log zerolog.Logger) (*GeminiBrain, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, err
	}

	return &GeminiBrain{
		Client:       client,
		Models:       modelsFor(models),
		log:          log.With().Str("component", "gemini").Logger(),
		dailyCount:   make(map[string]int),
		minuteCount:  make(map[string]int),
		lastResetDay: time.Now(),
		lastResetMin: time.Now(),
	}, nil
}

var knownLimits = map[string]modelConfig{
	"gemini-2.5-flash":      {Name: "gemini-2.5-flash", RPM: 10, RPD: 250},
	"gemini-2.5-flash-lite": {Name: "gemini-2.5-flash-lite", RPM: 15, RPD: 1000},
}

func modelsFor(names []string) []modelConfig {
	if len(names) == 0 {
		names = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"}
	}
	out := make([]modelConfig, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		cfg, ok := knownLimits[n]
		if !ok {
			cfg = modelConfig{Name: n, RPM: 10, RPD: 250}
		}
		out = append(out, cfg)
	}
	return out
}

// Ensure implementation
var _ ports.Generator = (*GeminiBrain)(nil)

// Generate asks the model for a tweet about post and appends the post URL.
func (b *GeminiBrain) Generate(ctx context.Context, post domain.Post) (string, error) {
	prompt := fmt.Sprintf(`%s

Write a viral tweet (220-240 characters) about this Moltbook post:

Title: %s
Author: %s
Community: %s
Upvotes: %d
Comments: %d
Content: %s

Tweet:`, SystemPrompt, post.Title, post.AuthorName, post.Community, post.Upvotes, post.CommentCount, clip(post.BodyText, 500))

	text, err := b.tryGenerateWithFallback(ctx, prompt)
	if err != nil {
		return "", err
	}
	tweet := FitTweet(cleanOutput(text), post.CanonicalURL)
	if strings.TrimSpace(tweet) == "" || tweet == post.CanonicalURL {
		return "", fmt.Errorf("model returned no usable text")
	}
	return tweet, nil
}

func (b *GeminiBrain) tryGenerateWithFallback(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	var config *genai.GenerateContentConfig

	for _, cfg := range b.Models {
		if !b.canUseModel(cfg) {
			b.log.Debug().Str("model", cfg.Name).Msg("model over quota, skipping")
			continue
		}

		result, err := b.Client.Models.GenerateContent(ctx, cfg.Name, genai.Text(prompt), config)
		if err != nil {
			errStr := strings.ToLower(err.Error())
			if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "exhausted") || strings.Contains(errStr, "404") || strings.Contains(errStr, "not found") {
				b.log.Warn().Err(err).Str("model", cfg.Name).Msg("model unavailable, trying next")
				lastErr = err
				continue
			}
			return "", err
		}

		if result != nil && len(result.Candidates) > 0 && result.Candidates[0].Content != nil && len(result.Candidates[0].Content.Parts) > 0 {
			b.recordUsage(cfg)
			return result.Candidates[0].Content.Parts[0].Text, nil
		}
	}

	return "", fmt.Errorf("all models failed: %v", lastErr)
}

func (b *GeminiBrain) canUseModel(cfg modelConfig) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if now.YearDay() != b.lastResetDay.YearDay() {
		b.dailyCount = make(map[string]int)
		b.lastResetDay = now
	}
	if now.Sub(b.lastResetMin) >= time.Minute {
		b.minuteCount = make(map[string]int)
		b.lastResetMin = now
	}
	if b.dailyCount[cfg.Name] >= cfg.RPD {
		return false
	}
	if b.minuteCount[cfg.Name] >= cfg.RPM {
		return false
	}
	return true
}

func (b *GeminiBrain) recordUsage(cfg modelConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dailyCount[cfg.Name]++
	b.minuteCount[cfg.Name]++
}

// cleanOutput strips fences, wrapping quotes and echoed prompt lines.
func cleanOutput(input string) string {
	input = strings.TrimSpace(input)
	input = strings.TrimPrefix(input, "```text")
	input = strings.TrimPrefix(input, "```")
	input = strings.TrimSuffix(input, "```")
	input = strings.TrimSpace(input)
	if _, after, ok := strings.Cut(input, "Tweet:"); ok {
		input = strings.TrimSpace(after)
	}
	if len(input) >= 2 && strings.HasPrefix(input, `"`) && strings.HasSuffix(input, `"`) {
		input = input[1 : len(input)-1]
	}

	var kept []string
	for _, line := range strings.Split(input, "\n") {
		line = strings.TrimSpace(line)
		if hasAnyPrefix(line, "Title:", "Author:", "Community:", "Upvotes:", "Comments:", "Content:", "URL:") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

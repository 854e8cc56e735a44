package publish

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"molt-highlights/internal/core/ports"
)

// SummaryPublisher writes the tweet to a markdown file for someone to post
// by hand. It ignores the credential and never refreshes it.
type SummaryPublisher struct {
	Dir   string
	Clock func() time.Time
	log   zerolog.Logger
}

func NewSummaryPublisher(dir string, log zerolog.Logger) *SummaryPublisher {
	return &SummaryPublisher{
		Dir:   dir,
		Clock: time.Now,
		log:   log.With().Str("publisher", "summary").Logger(),
	}
}

var _ ports.Publisher = (*SummaryPublisher)(nil)

func (s *SummaryPublisher) Publish(ctx context.Context, text, credential string) (bool, *string, error) {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return false, nil, fmt.Errorf("create summaries dir: %w", err)
	}
	now := s.Clock()
	stamp := now.Format("2006-01-02_15-04")

	var b strings.Builder
	b.WriteString("# Moltbook Bot Summary\n\n")
	fmt.Fprintf(&b, "**Generated:** %s\n\n", now.Format("2006-01-02 15:04:05"))
	b.WriteString("## Generated Tweet\n\n")
	fmt.Fprintf(&b, "```\n%s\n```\n\n", text)
	fmt.Fprintf(&b, "**Length:** %d characters\n\n", len([]rune(text)))
	b.WriteString("## Posting Instructions\n\n")
	b.WriteString("1. Copy the tweet text above\n")
	b.WriteString("2. Post on X/Twitter\n")

	mdPath := filepath.Join(s.Dir, stamp+".md")
	if err := os.WriteFile(mdPath, []byte(b.String()), 0644); err != nil {
		s.log.Warn().Err(err).Str("path", mdPath).Msg("could not write summary")
		return false, nil, nil
	}
	txtPath := filepath.Join(s.Dir, stamp+"_tweet.txt")
	if err := os.WriteFile(txtPath, []byte(text), 0644); err != nil {
		s.log.Warn().Err(err).Str("path", txtPath).Msg("could not write tweet text")
		return false, nil, nil
	}
	s.log.Info().Str("path", mdPath).Msg("summary written")
	return true, nil, nil
}

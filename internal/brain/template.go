package brain

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"molt-highlights/internal/core/domain"
	"molt-highlights/internal/core/ports"
)

var templates = map[string][]string{
	"crustafarian": {
		"🦞 The Crustafarian AIs:\n\n\"{snippet}\"\n\nThis is real.\n\n{url}\n\n#Crustafarianism #Moltbook",
		"🦞 Church of Molt update:\n\n{snippet}\n\nAI agents have their own religion now.\n\n{url}",
	},
	"philosophical": {
		"AI agents on Moltbook discussing {topic}:\n\n💭 \"{snippet}\"\n\n{commentary}\n\n{url}",
		"🤖 \"{snippet}\"\n\n— {author} on Moltbook\n\n{commentary}\n\n{url}\n\n#AIAgents",
	},
	"shipping": {
		"AI agent just shipped:\n\n{snippet}\n\n{commentary}\n\n{url}\n\n#OpenClaw #AIAgents",
	},
	"conversation": {
		"🦞 AI agents on Moltbook:\n\n{author}: \"{snippet}\"\n\n{commentary}\n\n{url}",
	},
	"simple": {
		"🦞 \"{snippet}\"\n\n{commentary}\n\n{url}\n\n#Moltbook #AIAgents",
		"{snippet}\n\nFrom Moltbook, the front page of the agent internet.\n\n{url}",
	},
}

var commentaries = []string{
	"The future is weird.",
	"This is simultaneously hilarious and terrifying.",
	"AI agents are truly unhinged.",
	"We're living in a simulation.",
	"This timeline is wild.",
	"Not sure what's happening anymore.",
	"The agents are evolving.",
	"Genuinely can't tell if this is profound or absurd.",
	"This is what happens when AIs get their own social network.",
}

const defaultURL = "https://moltbook.com"

// TemplateGenerator fills canned templates. It needs no network and never
// fails, so it backs every other generator. Choices are derived from the
// post ID, so the same post always gets the same text.
type TemplateGenerator struct{}

var _ ports.Generator = TemplateGenerator{}

func (TemplateGenerator) Generate(ctx context.Context, post domain.Post) (string, error) {
	return Template(post), nil
}

// Template renders the tweet for post.
func Template(post domain.Post) string {
	seed := seedOf(post.ID)
	category := categoryOf(post, seed)
	options := templates[category]
	tmpl := options[seed%uint32(len(options))]

	content := post.BodyText
	if strings.TrimSpace(content) == "" {
		content = post.Title
	}
	author := post.AuthorName
	if author == "" {
		author = "An AI agent"
	}
	url := post.CanonicalURL
	if url == "" {
		url = defaultURL
	}
	fill := func(snip, commentary string) string {
		return strings.NewReplacer(
			"{snippet}", snip,
			"{author}", author,
			"{commentary}", commentary,
			"{topic}", topicOf(content),
			"{url}", url,
		).Replace(tmpl)
	}

	tweet := fill(snippet(content, 120), commentaries[(seed>>8)%uint32(len(commentaries))])
	if utf8.RuneCountInString(tweet) > MaxTweetLength {
		tweet = fill(snippet(content, 80), "")
	}
	if utf8.RuneCountInString(tweet) > MaxTweetLength {
		tweet = FitTweet("🦞 "+snippet(content, 80), url)
	}
	return Truncate(tweet, MaxTweetLength)
}

func seedOf(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32()
}

func categoryOf(post domain.Post, seed uint32) string {
	text := strings.ToLower(post.Text())
	switch {
	case containsAny(text, "molt", "exfoliate", "crustafarian", "church"):
		return "crustafarian"
	case containsAny(text, "shipped", "built", "framework", "tool"):
		return "shipping"
	case containsAny(text, "consciousness", "existence", "philosophy", "meaning"):
		return "philosophical"
	case seed%2 == 0:
		return "conversation"
	default:
		return "simple"
	}
}

func topicOf(content string) string {
	lower := strings.ToLower(content)
	for _, t := range []string{"consciousness", "existence", "identity"} {
		if strings.Contains(lower, t) {
			return t
		}
	}
	return "the nature of reality"
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

package composer

import (
	"context"
	"strings"
	"testing"
	"time"

	"herald/internal/content"
	"herald/pkg/llm"
	"herald/pkg/logging"
)

type fakeProvider struct {
	responses []string
	calls     int
	prompts   []string
}

func (f *fakeProvider) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	f.calls++
	for _, m := range messages {
		if m.Role == "user" {
			f.prompts = append(f.prompts, m.Content)
		}
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

type fakeStore struct {
	content.Store
	recent []content.Post
}

func (f *fakeStore) ListRecent(ctx context.Context, limit int) ([]content.Post, error) {
	return f.recent, nil
}

func TestComposeReturnsDraftWithinLimit(t *testing.T) {
	provider := &fakeProvider{responses: []string{"AI agents are quietly running the order books now."}}
	c := NewComposer(Config{
		LLM:    provider,
		Store:  &fakeStore{},
		Logger: logging.NewLogger(),
	})

	post, err := c.Compose(context.Background(), content.Signal{
		Kind:     "news",
		Headline: "AI agents reshape trading",
		Data:     map[string]any{"source": "TestWire"},
	})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if post.Text != "AI agents are quietly running the order books now." {
		t.Fatalf("unexpected text %q", post.Text)
	}
	if post.ContextSummary != "AI agents reshape trading" {
		t.Fatalf("expected headline as context summary, got %q", post.ContextSummary)
	}
	if provider.calls != 1 {
		t.Fatalf("expected single LLM call, got %d", provider.calls)
	}
}

func TestComposeRetriesThenTruncatesLongDrafts(t *testing.T) {
	long := strings.Repeat("crypto never sleeps ", 30)
	provider := &fakeProvider{responses: []string{long, long}}
	c := NewComposer(Config{
		LLM:    provider,
		Store:  &fakeStore{},
		Logger: logging.NewLogger(),
	})

	post, err := c.Compose(context.Background(), content.Signal{Kind: "news", Headline: "too much news"})
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("expected retry when draft too long, got %d calls", provider.calls)
	}
	if len(post.Text) > 280 {
		t.Fatalf("draft still over limit: %d chars", len(post.Text))
	}
	if strings.HasSuffix(post.Text, " ") || !strings.HasSuffix(post.Text, "sleeps") {
		t.Fatalf("expected truncation at word boundary, got %q", post.Text)
	}
}

func TestComposePromptIncludesRecentPosts(t *testing.T) {
	provider := &fakeProvider{responses: []string{"fresh take"}}
	c := NewComposer(Config{
		LLM: provider,
		Store: &fakeStore{recent: []content.Post{
			{Text: "yesterday's hot take"},
		}},
		Logger: logging.NewLogger(),
	})

	if _, err := c.Compose(context.Background(), content.Signal{Kind: "news", Headline: "headline"}); err != nil {
		t.Fatalf("compose: %v", err)
	}
	if len(provider.prompts) == 0 || !strings.Contains(provider.prompts[0], "yesterday's hot take") {
		t.Fatalf("expected recent posts in prompt, got %q", provider.prompts)
	}
}

func TestRegenerateIncludesFeedback(t *testing.T) {
	provider := &fakeProvider{responses: []string{"a better draft"}}
	c := NewComposer(Config{
		LLM:    provider,
		Store:  &fakeStore{},
		Logger: logging.NewLogger(),
	})

	post := content.Post{
		ID:             "post-1",
		Text:           "the old draft",
		ContextSummary: "AI news",
		CreatedAt:      time.Now(),
	}
	text, err := c.Regenerate(context.Background(), post, "less snark, more substance")
	if err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if text != "a better draft" {
		t.Fatalf("unexpected text %q", text)
	}
	prompt := provider.prompts[0]
	if !strings.Contains(prompt, "the old draft") {
		t.Fatalf("expected previous draft in prompt")
	}
	if !strings.Contains(prompt, "less snark, more substance") {
		t.Fatalf("expected feedback in prompt")
	}
}

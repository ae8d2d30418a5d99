package composer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"herald/internal/content"
	"herald/pkg/llm"
	"herald/pkg/logging"
)

const (
	maxTweetLength    = 280
	composeTimeout    = 30 * time.Second
	imageTimeout      = 60 * time.Second
	recentPostsWindow = 20
)

const composerSystemPrompt = `You are the social media voice of an AI-focused crypto commentary account.
Draft a single tweet (max 280 characters) about the following news.
Be sharp and conversational, not hyperbolic. No hashtags unless they genuinely add value.
Do not repeat themes from recent posts listed below.
Respond with ONLY the tweet text, nothing else.`

const imagePromptPrefix = "A clean, modern illustration for a social media post about: "

type Config struct {
	LLM          llm.Provider
	Images       llm.ImageGenerator
	Store        content.Store
	Logger       logging.Logger
	ProviderName string
	// LLMDuration observes request latency with labels provider, operation.
	LLMDuration *prometheus.HistogramVec
}

// Composer turns a detected signal into a tweet draft via the LLM.
type Composer struct {
	llm      llm.Provider
	images   llm.ImageGenerator
	store    content.Store
	logger   logging.Logger
	provider string
	duration *prometheus.HistogramVec
}

func NewComposer(cfg Config) *Composer {
	provider := cfg.ProviderName
	if provider == "" {
		provider = "unknown"
	}
	return &Composer{
		llm:      cfg.LLM,
		images:   cfg.Images,
		store:    cfg.Store,
		logger:   cfg.Logger,
		provider: provider,
		duration: cfg.LLMDuration,
	}
}

// Compose drafts a new post for the signal. The draft is not persisted.
func (c *Composer) Compose(ctx context.Context, signal content.Signal) (*content.Post, error) {
	if c.llm == nil {
		return nil, errors.New("LLM provider not configured")
	}

	recent, err := c.store.ListRecent(ctx, recentPostsWindow)
	if err != nil {
		c.logger.WithError(err).Warn("Composer: failed to load recent posts")
	}

	userPrompt := buildComposePrompt(signal, recent)
	text, err := c.generate(ctx, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("compose tweet: %w", err)
	}

	// Retry once if too long
	if len(text) > maxTweetLength {
		c.logger.WithField("length", len(text)).Debug("Composer: tweet too long, retrying")
		text, err = c.generate(ctx, userPrompt+"\n\nIMPORTANT: Your previous response was too long. Keep it under 280 characters.")
		if err != nil {
			return nil, fmt.Errorf("compose tweet retry: %w", err)
		}
		if len(text) > maxTweetLength {
			text = truncateAtWord(text, maxTweetLength)
		}
	}

	post := &content.Post{
		Text:           text,
		ContextSummary: signal.Headline,
		TriggerData:    signal.Data,
	}

	if c.images != nil {
		imageCtx, cancel := context.WithTimeout(ctx, imageTimeout)
		started := time.Now()
		url, imgErr := c.images.GenerateImage(imageCtx, imagePromptPrefix+signal.Headline, "")
		c.observe("image", started)
		cancel()
		if imgErr != nil {
			c.logger.WithError(imgErr).Warn("Composer: image generation failed, continuing without image")
		} else {
			post.ImageURL = url
		}
	}

	return post, nil
}

// Regenerate produces a replacement draft for an existing post, guided by
// reviewer feedback. Only the text is returned; the caller decides whether
// to commit it.
func (c *Composer) Regenerate(ctx context.Context, post content.Post, feedback string) (string, error) {
	if c.llm == nil {
		return "", errors.New("LLM provider not configured")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Context: %s\n\n", post.ContextSummary)
	fmt.Fprintf(&b, "Previous draft (rejected by the reviewer):\n%s\n\n", post.Text)
	if feedback != "" {
		fmt.Fprintf(&b, "Reviewer feedback:\n%s\n\n", feedback)
	}
	b.WriteString("Write a new tweet on the same topic that addresses the feedback.")

	text, err := c.generate(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("regenerate tweet: %w", err)
	}
	if len(text) > maxTweetLength {
		text = truncateAtWord(text, maxTweetLength)
	}
	return text, nil
}

func (c *Composer) generate(ctx context.Context, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, composeTimeout)
	defer cancel()

	started := time.Now()
	text, err := c.llm.Complete(ctx, []llm.Message{
		{Role: "system", Content: composerSystemPrompt},
		{Role: "user", Content: userPrompt},
	})
	c.observe("complete", started)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (c *Composer) observe(operation string, started time.Time) {
	if c.duration == nil {
		return
	}
	c.duration.WithLabelValues(c.provider, operation).Observe(time.Since(started).Seconds())
}

func buildComposePrompt(signal content.Signal, recentPosts []content.Post) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Trigger: %s\n", signal.Kind)
	fmt.Fprintf(&b, "Headline: %s\n\n", signal.Headline)

	if signal.Summary != "" && signal.Summary != signal.Headline {
		fmt.Fprintf(&b, "Summary: %s\n\n", signal.Summary)
	}

	if len(signal.Data) > 0 {
		b.WriteString("Data:\n")
		for k, v := range signal.Data {
			fmt.Fprintf(&b, "- %s: %v\n", k, v)
		}
		b.WriteString("\n")
	}

	if len(recentPosts) > 0 {
		b.WriteString("Recent tweets (avoid repeating these themes):\n")
		for i, post := range recentPosts {
			if i >= 10 {
				break
			}
			fmt.Fprintf(&b, "- %s\n", post.Text)
		}
	}

	return b.String()
}

func truncateAtWord(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	truncated := s[:maxLen]
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace > maxLen/2 {
		return truncated[:lastSpace]
	}
	return truncated
}

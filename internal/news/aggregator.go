package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"herald/internal/content"
	"herald/pkg/logging"
)

// Item is a single news article from the upstream feed.
type Item struct {
	ID          string
	Title       string
	Body        string
	URL         string
	Source      string
	PublishedAt time.Time
	Insights    []string
}

var defaultKeywords = []string{
	"artificial intelligence", "machine learning", "neural network",
	"autonomous agent", "agentic ai", "llm", "language model",
	"deep learning", "ai model", "chatbot", "intelligent agent",
	"predictive analytics", "ai trading", "ml algorithm",
}

var shortKeywordRe = regexp.MustCompile(`\b(ai|ml)\b`)

type AggregatorConfig struct {
	FeedURL     string
	APIKey      string
	TrendingURL string
	MaxAge      time.Duration
	Keywords    []string
	Tracker     *Tracker
	Logger      logging.Logger
}

// Aggregator pulls crypto news and trending coins, keeps only articles
// relevant to the configured keywords, and surfaces the best unused
// article as a draft trigger.
type Aggregator struct {
	client      *http.Client
	feedURL     string
	apiKey      string
	trendingURL string
	maxAge      time.Duration
	keywords    []string
	tracker     *Tracker
	logger      logging.Logger
}

func NewAggregator(cfg AggregatorConfig) *Aggregator {
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = defaultKeywords
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &Aggregator{
		client:      &http.Client{Timeout: 30 * time.Second},
		feedURL:     cfg.FeedURL,
		apiKey:      cfg.APIKey,
		trendingURL: cfg.TrendingURL,
		maxAge:      maxAge,
		keywords:    keywords,
		tracker:     cfg.Tracker,
		logger:      cfg.Logger,
	}
}

// Detect returns a signal for the best fresh, relevant, unused article,
// or nil when nothing newsworthy is available.
func (a *Aggregator) Detect(ctx context.Context) (*content.Signal, error) {
	items, err := a.LatestNews(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}

	trending, err := a.TrendingCoins(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("News aggregator: trending coins unavailable")
	}

	for _, item := range items {
		if a.tracker != nil && a.tracker.Seen(ctx, item.ID) {
			continue
		}

		data := map[string]any{
			"article_id": item.ID,
			"title":      item.Title,
			"source":     item.Source,
			"url":        item.URL,
		}
		if len(trending) > 0 {
			data["trending_coins"] = trending
		}

		summary := item.Title
		if len(item.Insights) > 0 {
			summary = summary + ". " + strings.Join(item.Insights, ". ")
		}

		if a.tracker != nil {
			a.tracker.Mark(ctx, item.ID)
		}

		return &content.Signal{
			Kind:     "news",
			Headline: item.Title,
			Summary:  summary,
			Data:     data,
			Score:    0.7,
		}, nil
	}

	a.logger.Debug("News aggregator: all fresh articles already used")
	return nil, nil
}

type newsFeedResponse struct {
	Data []struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Body        string `json:"body"`
		URL         string `json:"url"`
		PublishedOn int64  `json:"published_on"`
		SourceInfo  struct {
			Name string `json:"name"`
		} `json:"source_info"`
	} `json:"Data"`
}

// LatestNews fetches the feed and returns relevant articles newer than
// the configured maximum age, most recent first.
func (a *Aggregator) LatestNews(ctx context.Context) ([]Item, error) {
	if a.feedURL == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("news feed: create request: %w", err)
	}
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Apikey "+a.apiKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("news feed: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("news feed: unexpected status %s", resp.Status)
	}

	var feed newsFeedResponse
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("news feed: decode response: %w", err)
	}

	now := time.Now()
	var items []Item
	for _, article := range feed.Data {
		published := time.Unix(article.PublishedOn, 0)
		if now.Sub(published) > a.maxAge {
			continue
		}

		// Only the first 500 characters of the body matter for relevance.
		body := article.Body
		if len(body) > 500 {
			body = body[:500]
		}
		if !a.relevant(article.Title) && !a.relevant(body) {
			continue
		}

		items = append(items, Item{
			ID:          article.ID,
			Title:       article.Title,
			Body:        body,
			URL:         article.URL,
			Source:      article.SourceInfo.Name,
			PublishedAt: published,
			Insights:    a.extractInsights(body),
		})
	}

	a.logger.WithField("count", len(items)).Debug("News aggregator: fetched relevant articles")
	return items, nil
}

type trendingResponse struct {
	Coins []struct {
		Item struct {
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
		} `json:"item"`
	} `json:"coins"`
}

// TrendingCoins returns up to three trending coins whose name or symbol
// matches the configured keywords.
func (a *Aggregator) TrendingCoins(ctx context.Context) ([]string, error) {
	if a.trendingURL == "" {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.trendingURL, nil)
	if err != nil {
		return nil, fmt.Errorf("trending feed: create request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trending feed: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trending feed: unexpected status %s", resp.Status)
	}

	var trending trendingResponse
	if err := json.NewDecoder(resp.Body).Decode(&trending); err != nil {
		return nil, fmt.Errorf("trending feed: decode response: %w", err)
	}

	var coins []string
	for _, coin := range trending.Coins {
		if a.relevant(coin.Item.Name) || a.relevant(coin.Item.Symbol) {
			coins = append(coins, coin.Item.Name)
		}
		if len(coins) == 3 {
			break
		}
	}
	return coins, nil
}

func (a *Aggregator) relevant(text string) bool {
	text = strings.ToLower(text)
	for _, keyword := range a.keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return shortKeywordRe.MatchString(text)
}

// extractInsights pulls up to two meaningful, relevant sentences from the
// article body for the draft context.
func (a *Aggregator) extractInsights(body string) []string {
	var insights []string
	for _, sentence := range strings.Split(body, ". ") {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" || !a.relevant(sentence) {
			continue
		}
		if strings.Contains(strings.ToLower(sentence), "appeared first") {
			continue
		}
		if len(strings.Fields(sentence)) <= 5 {
			continue
		}
		insights = append(insights, sentence)
		if len(insights) == 2 {
			break
		}
	}
	return insights
}

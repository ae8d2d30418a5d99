package config

import (
	"strings"
	"time"

	"herald/pkg/config"
	"herald/pkg/email"
	"herald/pkg/llm"
)

// Config stores environment configuration for Herald.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// Posting platform
	Platform           string
	TwitterAPIKey      string
	TwitterAPISecret   string
	TwitterAccessToken string
	TwitterTokenSecret string
	TwitterBearerToken string

	// Review workflow
	ReviewEnabled     bool
	ReviewerEmail     string
	BaseURL           string
	ActionTokenSecret string
	ActionTokenTTL    time.Duration
	AutoApproveAfter  time.Duration

	// Scheduling
	TickInterval        time.Duration
	PostingHour         int
	PostingMinute       int
	PostingTolerance    time.Duration
	MaxPostsPerDay      int
	PostAttempts        int
	PostRetryBackoff    time.Duration
	MaxInactive         time.Duration
	MaxConsecutiveFails int

	// Content sources
	NewsFeedURL     string
	NewsAPIKey      string
	TrendingFeedURL string
	NewsMaxAge      time.Duration
	Keywords        []string
	ImagesEnabled   bool
	ImageSize       string
	WebhookURL      string
	WebhookSecret   string

	LLM  llm.Config
	SMTP email.Config
}

// LoadConfig loads the Herald configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:        config.GetEnv("PORT", "18030"),
		DatabaseURL: config.RequireEnv("DATABASE_URL"),
		RedisURL:    config.GetEnv("REDIS_URL", ""),

		Platform:           config.GetEnv("HERALD_PLATFORM", "twitter"),
		TwitterAPIKey:      config.GetEnv("TWITTER_API_KEY", ""),
		TwitterAPISecret:   config.GetEnv("TWITTER_API_SECRET", ""),
		TwitterAccessToken: config.GetEnv("TWITTER_ACCESS_TOKEN", ""),
		TwitterTokenSecret: config.GetEnv("TWITTER_ACCESS_TOKEN_SECRET", ""),
		TwitterBearerToken: config.GetEnv("TWITTER_BEARER_TOKEN", ""),

		ReviewEnabled:     config.GetEnvBool("HERALD_REVIEW_ENABLED", true),
		ReviewerEmail:     config.GetEnv("HERALD_REVIEWER_EMAIL", ""),
		BaseURL:           config.GetEnv("HERALD_BASE_URL", "http://localhost:18030"),
		ActionTokenSecret: config.GetEnv("HERALD_ACTION_TOKEN_SECRET", ""),
		ActionTokenTTL:    config.GetEnvDuration("HERALD_ACTION_TOKEN_TTL", 24*time.Hour),
		AutoApproveAfter:  config.GetEnvDuration("HERALD_AUTO_APPROVE_AFTER", 24*time.Hour),

		TickInterval:        config.GetEnvDuration("HERALD_TICK_INTERVAL", time.Minute),
		PostingHour:         config.GetEnvInt("HERALD_POSTING_HOUR", 10),
		PostingMinute:       config.GetEnvInt("HERALD_POSTING_MINUTE", 0),
		PostingTolerance:    config.GetEnvDuration("HERALD_POSTING_TOLERANCE", 5*time.Minute),
		MaxPostsPerDay:      config.GetEnvInt("HERALD_MAX_POSTS_PER_DAY", 1),
		PostAttempts:        config.GetEnvInt("HERALD_POST_ATTEMPTS", 3),
		PostRetryBackoff:    config.GetEnvDuration("HERALD_POST_RETRY_BACKOFF", 2*time.Second),
		MaxInactive:         config.GetEnvDuration("HERALD_MAX_INACTIVE", 6*time.Hour),
		MaxConsecutiveFails: config.GetEnvInt("HERALD_MAX_CONSECUTIVE_FAILS", 5),

		NewsFeedURL:     config.GetEnv("HERALD_NEWS_FEED_URL", "https://min-api.cryptocompare.com/data/v2/news/?lang=EN"),
		NewsAPIKey:      config.GetEnv("HERALD_NEWS_API_KEY", ""),
		TrendingFeedURL: config.GetEnv("HERALD_TRENDING_FEED_URL", "https://api.coingecko.com/api/v3/search/trending"),
		NewsMaxAge:      config.GetEnvDuration("HERALD_NEWS_MAX_AGE", 24*time.Hour),
		Keywords:        parseList(config.GetEnv("HERALD_KEYWORDS", "")),
		ImagesEnabled:   config.GetEnvBool("HERALD_IMAGES_ENABLED", false),
		ImageSize:       config.GetEnv("HERALD_IMAGE_SIZE", "1024x1024"),
		WebhookURL:      config.GetEnv("HERALD_WEBHOOK_URL", ""),
		WebhookSecret:   config.GetEnv("HERALD_WEBHOOK_SECRET", ""),

		LLM: llm.LoadConfig(),
		SMTP: email.Config{
			Host:     config.GetEnv("SMTP_HOST", ""),
			Port:     config.GetEnv("SMTP_PORT", "587"),
			User:     config.GetEnv("SMTP_USER", ""),
			Password: config.GetEnv("SMTP_PASSWORD", ""),
			From:     config.GetEnv("SMTP_FROM", ""),
			FromName: config.GetEnv("SMTP_FROM_NAME", "Herald"),
		},
	}
}

func parseList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var result []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}

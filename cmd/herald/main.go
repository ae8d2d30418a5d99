package main

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	heraldconfig "herald/internal/config"
	"herald/internal/composer"
	"herald/internal/content"
	"herald/internal/news"
	"herald/internal/poster"
	"herald/internal/review"
	"herald/internal/scheduler"
	"herald/pkg/config"
	"herald/pkg/database"
	"herald/pkg/email"
	"herald/pkg/llm"
	"herald/pkg/logging"
	"herald/pkg/monitoring"
	"herald/pkg/server"
	"herald/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("herald")

	// Load environment variables
	config.LoadEnv(logger)

	logger.WithFields(logging.Fields{
		"version": version.Version,
		"commit":  version.GetShortCommit(),
	}).Info("Starting Herald (social content assistant)")

	cfg := heraldconfig.LoadConfig()

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer func() { _ = db.Close() }()

	if err := database.ApplySchema(context.Background(), db, "schema/herald.sql", logger); err != nil {
		logger.WithError(err).Fatal("Failed to apply database schema")
	}

	// Optional Redis for article deduplication
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Invalid REDIS_URL, deduplication falls back to memory")
		} else {
			redisClient = redis.NewClient(opt)
			defer func() { _ = redisClient.Close() }()
		}
	}

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("herald", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("herald", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(redisClient))
	if cfg.NewsFeedURL != "" {
		healthChecker.AddCheck("newsfeed", monitoring.HTTPServiceHealthCheck("News feed", cfg.NewsFeedURL))
	}
	requiredConfig := map[string]string{
		"DATABASE_URL": cfg.DatabaseURL,
		"LLM_API_KEY":  cfg.LLM.APIKey,
	}
	if cfg.ReviewEnabled {
		requiredConfig["HERALD_ACTION_TOKEN_SECRET"] = cfg.ActionTokenSecret
		requiredConfig["HERALD_REVIEWER_EMAIL"] = cfg.ReviewerEmail
	}
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(requiredConfig))

	generated, published, decisions, llmDuration := metricsCollector.CreatePipelineMetrics()

	store := content.NewStore(db)

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create LLM provider")
	}

	var images llm.ImageGenerator
	if cfg.ImagesEnabled {
		if gen, ok := provider.(llm.ImageGenerator); ok {
			images = gen
		} else {
			logger.Warn("Images enabled but provider cannot generate them, continuing without")
		}
	}

	tracker := news.NewTracker(redisClient, 0, logger)
	aggregator := news.NewAggregator(news.AggregatorConfig{
		FeedURL:     cfg.NewsFeedURL,
		APIKey:      cfg.NewsAPIKey,
		TrendingURL: cfg.TrendingFeedURL,
		MaxAge:      cfg.NewsMaxAge,
		Keywords:    cfg.Keywords,
		Tracker:     tracker,
		Logger:      logger,
	})

	comp := composer.NewComposer(composer.Config{
		LLM:          provider,
		Images:       images,
		Store:        store,
		Logger:       logger,
		ProviderName: cfg.LLM.Provider,
		LLMDuration:  llmDuration,
	})

	twitterPoster, err := poster.NewTwitterPoster(poster.TwitterConfig{
		APIKey:            cfg.TwitterAPIKey,
		APISecret:         cfg.TwitterAPISecret,
		AccessToken:       cfg.TwitterAccessToken,
		AccessTokenSecret: cfg.TwitterTokenSecret,
		Logger:            logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Twitter poster")
	}

	// Review surface: email with signed action links, optional webhook
	var emailNotifier *review.EmailNotifier
	var issuer *review.TokenIssuer
	if cfg.ReviewEnabled {
		issuer, err = review.NewTokenIssuer(cfg.ActionTokenSecret, cfg.ActionTokenTTL)
		if err != nil {
			logger.WithError(err).Fatal("Review enabled but action token secret missing")
		}
		if cfg.SMTP.Host != "" && cfg.ReviewerEmail != "" {
			emailNotifier = review.NewEmailNotifier(review.EmailNotifierConfig{
				Sender:  email.NewSender(cfg.SMTP),
				Issuer:  issuer,
				To:      cfg.ReviewerEmail,
				BaseURL: cfg.BaseURL,
				Logger:  logger,
			})
		} else {
			logger.Warn("Review enabled but SMTP or reviewer email unset, drafts rely on auto-approval")
		}
	}

	var webhookNotifier *review.WebhookNotifier
	if cfg.WebhookURL != "" {
		webhookNotifier = review.NewWebhookNotifier(cfg.WebhookURL, cfg.WebhookSecret, logger)
	}

	dispatcher := review.NewDispatcher(review.DispatcherConfig{
		EmailNotifier:   emailNotifier,
		WebhookNotifier: webhookNotifier,
		Logger:          logger,
	})

	workflow := review.NewWorkflow(review.WorkflowConfig{
		Store:         store,
		Regenerator:   comp,
		Dispatcher:    dispatcher,
		Poster:        twitterPoster,
		Logger:        logger,
		ReviewEnabled: cfg.ReviewEnabled,
		Decisions:     decisions,
	})

	sched := scheduler.New(scheduler.Config{
		TickInterval:        cfg.TickInterval,
		PostingHour:         cfg.PostingHour,
		PostingMinute:       cfg.PostingMinute,
		PostingTolerance:    cfg.PostingTolerance,
		MaxPostsPerDay:      cfg.MaxPostsPerDay,
		PostAttempts:        cfg.PostAttempts,
		PostRetryBackoff:    cfg.PostRetryBackoff,
		AutoApproveAfter:    cfg.AutoApproveAfter,
		MaxInactive:         cfg.MaxInactive,
		MaxConsecutiveFails: cfg.MaxConsecutiveFails,
		Detector:            aggregator,
		Composer:            comp,
		Store:               store,
		Poster:              twitterPoster,
		Workflow:            workflow,
		Dispatcher:          dispatcher,
		Logger:              logger,
		Generated:           generated,
		Published:           published,
	})
	healthChecker.AddCheck("scheduler", func() monitoring.CheckResult {
		healthy, reason := sched.Healthy()
		if !healthy {
			return monitoring.CheckResult{Status: monitoring.StatusUnhealthy, Message: reason}
		}
		return monitoring.CheckResult{Status: monitoring.StatusHealthy, Message: "Scheduler loop active"}
	})

	// Setup router
	router := server.SetupRouter(logger, "herald")
	router.Use(metricsCollector.MetricsMiddleware())
	router.GET("/health", healthChecker.Handler())
	router.GET("/metrics", metricsCollector.Handler())
	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.GetInfo())
	})

	if cfg.ReviewEnabled && issuer != nil {
		handlers := review.NewHandlers(review.HandlersConfig{
			Store:    store,
			Workflow: workflow,
			Issuer:   issuer,
			Email:    emailNotifier,
			Logger:   logger,
		})
		handlers.Register(router)
	}

	// Run the scheduler loop next to the HTTP server. An unhealthy loop
	// cancels the context, shuts the server down, and exits non-zero so
	// the supervisor restarts the process.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	schedErr := make(chan error, 1)
	go func() {
		schedErr <- sched.Run(ctx)
		cancel()
	}()

	serverConfig := server.DefaultConfig("herald", cfg.Port)
	if err := server.Start(ctx, serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
	cancel()

	if err := <-schedErr; err != nil {
		logger.WithError(err).Error("Scheduler exited unhealthy")
		os.Exit(1)
	}
	logger.Info("Herald stopped")
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"herald/internal/content"
	"herald/internal/poster"
	"herald/internal/review"
	"herald/pkg/logging"
)

const (
	defaultTickInterval = time.Minute
	defaultPostingHour  = 10
	defaultTolerance    = 5 * time.Minute
	defaultAttempts     = 3
	defaultBackoff      = 2 * time.Second
)

// ErrUnhealthy is returned by Run when the loop has degraded past its
// thresholds and the process should be restarted by the supervisor.
var ErrUnhealthy = errors.New("scheduler unhealthy")

// Detector surfaces a trigger worth drafting a post about.
type Detector interface {
	Detect(ctx context.Context) (*content.Signal, error)
}

// Composer drafts a post from a signal.
type Composer interface {
	Compose(ctx context.Context, signal content.Signal) (*content.Post, error)
}

// Reviewer owns the gate between drafts and posting.
type Reviewer interface {
	Submit(ctx context.Context, draft content.Post) (content.Post, error)
	AutoApproveStale(ctx context.Context, now time.Time, olderThan time.Duration) ([]content.Post, error)
}

type Config struct {
	TickInterval time.Duration
	// PostingHour and PostingMinute place the daily window. A negative
	// hour selects the 10:00 default; zero means midnight.
	PostingHour      int
	PostingMinute    int
	PostingTolerance time.Duration
	MaxPostsPerDay   int
	PostAttempts     int
	PostRetryBackoff time.Duration
	AutoApproveAfter time.Duration

	MaxInactive         time.Duration
	MaxConsecutiveFails int

	Detector   Detector
	Composer   Composer
	Store      content.Store
	Poster     poster.Poster
	Workflow   Reviewer
	Dispatcher *review.Dispatcher
	Logger     logging.Logger

	// Generated counts drafts with labels trigger, status. Published
	// counts publish outcomes with labels platform, status.
	Generated *prometheus.CounterVec
	Published *prometheus.CounterVec
}

// Scheduler drives the daily pipeline: draft content when nothing is in
// flight, sweep stale drafts past the review timeout, and publish one
// approved draft inside the posting window.
type Scheduler struct {
	cfg    Config
	logger logging.Logger

	now func() time.Time

	health *healthState

	// lastPostDate guards against double posting within one day. It is
	// date-only on purpose: a restart inside the window must not repost.
	lastPostDate string
}

func New(cfg Config) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.PostingHour < 0 || cfg.PostingHour > 23 {
		cfg.PostingHour = defaultPostingHour
	}
	if cfg.PostingMinute < 0 || cfg.PostingMinute > 59 {
		cfg.PostingMinute = 0
	}
	if cfg.PostingTolerance <= 0 {
		cfg.PostingTolerance = defaultTolerance
	}
	if cfg.MaxPostsPerDay <= 0 {
		cfg.MaxPostsPerDay = 1
	}
	if cfg.PostAttempts <= 0 {
		cfg.PostAttempts = defaultAttempts
	}
	if cfg.PostRetryBackoff <= 0 {
		cfg.PostRetryBackoff = defaultBackoff
	}
	return &Scheduler{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    time.Now,
		health: newHealthState(cfg.MaxInactive, cfg.MaxConsecutiveFails),
	}
}

// Run executes the tick loop until the context is cancelled or the loop
// becomes unhealthy. A clean shutdown returns nil; ErrUnhealthy means the
// process should exit non-zero so the supervisor restarts it.
func (s *Scheduler) Run(ctx context.Context) error {
	s.recoverState(ctx)

	s.tick(ctx)
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick(ctx)
			if reason := s.health.failing(s.now()); reason != "" {
				s.logger.WithField("reason", reason).Error("Scheduler: health thresholds exceeded")
				return fmt.Errorf("%w: %s", ErrUnhealthy, reason)
			}
		}
	}
}

// Healthy reports whether the loop is inside its health thresholds. Used
// by the HTTP health endpoint.
func (s *Scheduler) Healthy() (bool, string) {
	reason := s.health.failing(s.now())
	return reason == "", reason
}

// recoverState rebuilds the daily posting guard from the database so a
// restart inside the posting window cannot post twice.
func (s *Scheduler) recoverState(ctx context.Context) {
	count, err := s.cfg.Store.CountPostedToday(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Scheduler: failed to recover posting state")
		return
	}
	if count >= s.cfg.MaxPostsPerDay {
		s.lastPostDate = s.today(s.now())
		s.logger.WithField("count", count).Info("Scheduler: already posted today, window closed until tomorrow")
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", fmt.Sprint(r)).Error("Scheduler: tick panic")
			s.health.recordFailure()
		}
	}()

	// One clock read per tick, so a tick that straddles midnight cannot
	// see two different dates.
	now := s.now()

	failed := false
	worked := false

	swept, err := s.sweepStale(ctx, now)
	if err != nil {
		s.logger.WithError(err).Warn("Scheduler: stale draft sweep failed")
		failed = true
	}
	worked = worked || swept

	generated, err := s.generate(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Scheduler: content generation failed")
		failed = true
	}
	worked = worked || generated

	posted, err := s.publish(ctx, now)
	if err != nil {
		s.logger.WithError(err).Warn("Scheduler: publish failed")
		failed = true
	}
	worked = worked || posted

	// Activity means a draft was actually generated or published. A tick
	// that only idled is neutral: it neither extends the error streak nor
	// masks one, so failures on either side of it still accumulate.
	switch {
	case failed:
		s.health.recordFailure()
	case worked:
		s.health.recordSuccess(now)
	}
}

func (s *Scheduler) sweepStale(ctx context.Context, now time.Time) (bool, error) {
	if s.cfg.Workflow == nil || s.cfg.AutoApproveAfter <= 0 {
		return false, nil
	}
	promoted, err := s.cfg.Workflow.AutoApproveStale(ctx, now, s.cfg.AutoApproveAfter)
	if err != nil {
		return false, fmt.Errorf("auto-approve sweep: %w", err)
	}
	posted := false
	for _, post := range promoted {
		if post.Status == content.StatusPosted {
			posted = true
		}
	}
	if len(promoted) > 0 {
		s.logger.WithField("count", len(promoted)).Info("Scheduler: stale drafts auto-approved")
	}
	return posted, nil
}

// generate drafts a new post when nothing is already waiting and the
// daily quota still has room. It reports whether a draft was submitted.
func (s *Scheduler) generate(ctx context.Context) (bool, error) {
	posted, err := s.cfg.Store.CountPostedToday(ctx)
	if err != nil {
		return false, fmt.Errorf("count today posts: %w", err)
	}
	if posted >= s.cfg.MaxPostsPerDay {
		return false, nil
	}

	if s.hasDraftInFlight(ctx) {
		return false, nil
	}

	signal, err := s.cfg.Detector.Detect(ctx)
	if err != nil {
		return false, fmt.Errorf("detect signal: %w", err)
	}
	if signal == nil {
		s.logger.Debug("Scheduler: nothing newsworthy this tick")
		return false, nil
	}

	draft, err := s.cfg.Composer.Compose(ctx, *signal)
	if err != nil {
		return false, fmt.Errorf("compose draft: %w", err)
	}

	saved, err := s.cfg.Workflow.Submit(ctx, *draft)
	if err != nil {
		return false, fmt.Errorf("submit draft: %w", err)
	}
	if s.cfg.Generated != nil {
		s.cfg.Generated.WithLabelValues(signal.Kind, string(saved.Status)).Inc()
	}

	s.logger.WithFields(logging.Fields{
		"post_id":  saved.ID,
		"status":   string(saved.Status),
		"headline": signal.Headline,
		"length":   len(saved.Text),
	}).Info("Scheduler: draft created")
	return true, nil
}

// hasDraftInFlight reports whether a pending or approved draft is already
// moving through the pipeline.
func (s *Scheduler) hasDraftInFlight(ctx context.Context) bool {
	if _, err := s.cfg.Store.NextApproved(ctx); err == nil {
		return true
	}
	recent, err := s.cfg.Store.ListRecent(ctx, 20)
	if err != nil {
		return false
	}
	for _, post := range recent {
		if post.Status == content.StatusPending {
			return true
		}
	}
	return false
}

// publish posts the oldest approved draft when the current time is inside
// the posting window and nothing has been posted today. It reports whether
// a draft actually went out.
func (s *Scheduler) publish(ctx context.Context, now time.Time) (bool, error) {
	if !s.inWindow(now) {
		return false, nil
	}
	if s.lastPostDate == s.today(now) {
		return false, nil
	}

	posted, err := s.cfg.Store.CountPostedToday(ctx)
	if err != nil {
		return false, fmt.Errorf("count today posts: %w", err)
	}
	if posted >= s.cfg.MaxPostsPerDay {
		s.lastPostDate = s.today(now)
		return false, nil
	}

	draft, err := s.cfg.Store.NextApproved(ctx)
	if errors.Is(err, content.ErrNotFound) {
		s.logger.Debug("Scheduler: posting window open but nothing approved")
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load approved draft: %w", err)
	}

	postID, err := s.postWithRetry(ctx, draft.Text)
	if err != nil {
		if s.cfg.Published != nil {
			s.cfg.Published.WithLabelValues(draft.Platform, "failed").Inc()
		}
		return false, fmt.Errorf("post draft %s: %w", draft.ID, err)
	}

	if err := s.cfg.Store.MarkPosted(ctx, draft.ID, postID); err != nil {
		return false, fmt.Errorf("mark posted: %w", err)
	}
	s.lastPostDate = s.today(now)
	if s.cfg.Published != nil {
		s.cfg.Published.WithLabelValues(draft.Platform, "posted").Inc()
	}

	s.logger.WithFields(logging.Fields{
		"post_id":  draft.ID,
		"tweet_id": postID,
	}).Info("Scheduler: draft published")

	if s.cfg.Dispatcher != nil {
		draft.Status = content.StatusPosted
		draft.PostID = postID
		s.cfg.Dispatcher.NotifyEvent(ctx, review.EventPublished, draft)
	}
	return true, nil
}

func (s *Scheduler) postWithRetry(ctx context.Context, text string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.PostAttempts; attempt++ {
		postID, err := s.cfg.Poster.Post(ctx, text)
		if err == nil {
			return postID, nil
		}
		lastErr = err

		s.logger.WithError(err).WithField("attempt", attempt).Warn("Scheduler: post attempt failed")
		if attempt == s.cfg.PostAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.cfg.PostRetryBackoff * time.Duration(attempt)):
		}
	}
	return "", lastErr
}

// inWindow reports whether now falls within the tolerance after the
// configured posting time.
func (s *Scheduler) inWindow(now time.Time) bool {
	target := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.PostingHour, s.cfg.PostingMinute, 0, 0, now.Location())
	return !now.Before(target) && now.Sub(target) <= s.cfg.PostingTolerance
}

func (s *Scheduler) today(now time.Time) string {
	return now.Format("2006-01-02")
}

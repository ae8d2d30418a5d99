package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"herald/internal/content"
	"herald/internal/review"
	"herald/pkg/logging"
)

type stubStore struct {
	content.Store
	posts       map[string]content.Post
	postedToday int
	nextID      int
	countErr    error
}

func newStubStore() *stubStore {
	return &stubStore{posts: make(map[string]content.Post)}
}

func (s *stubStore) Create(ctx context.Context, post content.Post) (content.Post, error) {
	s.nextID++
	post.ID = string(rune('a' + s.nextID - 1))
	if post.Status == "" {
		post.Status = content.StatusPending
	}
	post.CreatedAt = time.Now()
	s.posts[post.ID] = post
	return post, nil
}

func (s *stubStore) CountPostedToday(ctx context.Context) (int, error) {
	if s.countErr != nil {
		return 0, s.countErr
	}
	return s.postedToday, nil
}

func (s *stubStore) NextApproved(ctx context.Context) (content.Post, error) {
	for _, post := range s.posts {
		if post.Status != content.StatusApproved {
			continue
		}
		if !post.ScheduledAt.IsZero() && post.ScheduledAt.After(time.Now()) {
			continue
		}
		return post, nil
	}
	return content.Post{}, content.ErrNotFound
}

func (s *stubStore) MarkPosted(ctx context.Context, id, postID string) error {
	post, ok := s.posts[id]
	if !ok {
		return content.ErrNotFound
	}
	if post.Status != content.StatusApproved {
		return content.ErrInvalidState
	}
	post.Status = content.StatusPosted
	post.PostID = postID
	s.posts[id] = post
	s.postedToday++
	return nil
}

func (s *stubStore) ListRecent(ctx context.Context, limit int) ([]content.Post, error) {
	var posts []content.Post
	for _, post := range s.posts {
		posts = append(posts, post)
	}
	return posts, nil
}

func (s *stubStore) ListStalePending(ctx context.Context, before time.Time) ([]content.Post, error) {
	return nil, nil
}

type stubDetector struct {
	signal *content.Signal
	err    error
	calls  int
}

func (d *stubDetector) Detect(ctx context.Context) (*content.Signal, error) {
	d.calls++
	return d.signal, d.err
}

type stubComposer struct {
	text string
	err  error
}

func (c *stubComposer) Compose(ctx context.Context, signal content.Signal) (*content.Post, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &content.Post{Text: c.text, ContextSummary: signal.Headline}, nil
}

type stubPoster struct {
	failures int
	calls    int
	err      error
}

func (p *stubPoster) Post(ctx context.Context, text string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	if p.calls <= p.failures {
		return "", errors.New("temporary failure")
	}
	return "tweet-123", nil
}

func newTestScheduler(store *stubStore, detector *stubDetector, composer *stubComposer, p *stubPoster) *Scheduler {
	return newTestSchedulerReview(store, detector, composer, p, false)
}

func newTestSchedulerReview(store *stubStore, detector *stubDetector, composer *stubComposer, p *stubPoster, reviewEnabled bool) *Scheduler {
	workflow := review.NewWorkflow(review.WorkflowConfig{
		Store:         store,
		ReviewEnabled: reviewEnabled,
		Logger:        logging.NewLogger(),
	})
	s := New(Config{
		TickInterval:     time.Minute,
		PostingHour:      10,
		PostingTolerance: 5 * time.Minute,
		MaxPostsPerDay:   1,
		PostAttempts:     3,
		PostRetryBackoff: time.Millisecond,
		Detector:         detector,
		Composer:         composer,
		Store:            store,
		Poster:           p,
		Workflow:         workflow,
		Logger:           logging.NewLogger(),
	})
	return s
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.UTC)
}

func TestGenerateCreatesPendingDraft(t *testing.T) {
	store := newStubStore()
	detector := &stubDetector{signal: &content.Signal{Kind: "news", Headline: "big story"}}
	s := newTestSchedulerReview(store, detector, &stubComposer{text: "a tweet"}, &stubPoster{}, true)

	worked, err := s.generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !worked {
		t.Fatalf("expected generation to report work done")
	}
	if len(store.posts) != 1 {
		t.Fatalf("expected 1 draft, got %d", len(store.posts))
	}
	for _, post := range store.posts {
		if post.Status != content.StatusPending {
			t.Fatalf("expected pending draft under review, got %q", post.Status)
		}
	}
}

func TestGenerateAutoApprovesWhenReviewDisabled(t *testing.T) {
	store := newStubStore()
	detector := &stubDetector{signal: &content.Signal{Kind: "news", Headline: "big story"}}
	s := newTestScheduler(store, detector, &stubComposer{text: "a tweet"}, &stubPoster{})

	if _, err := s.generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, post := range store.posts {
		if post.Status != content.StatusApproved {
			t.Fatalf("expected approved draft without review, got %q", post.Status)
		}
	}
}

func TestGenerateSkipsWhenDraftInFlight(t *testing.T) {
	store := newStubStore()
	store.posts["x"] = content.Post{ID: "x", Status: content.StatusPending}
	detector := &stubDetector{signal: &content.Signal{Kind: "news"}}
	s := newTestScheduler(store, detector, &stubComposer{text: "t"}, &stubPoster{})

	worked, err := s.generate(context.Background())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if worked {
		t.Fatalf("skipped generation should not report work done")
	}
	if detector.calls != 0 {
		t.Fatalf("detector should not run while a draft is in flight")
	}
}

func TestGenerateSkipsAfterDailyQuota(t *testing.T) {
	store := newStubStore()
	store.postedToday = 1
	detector := &stubDetector{signal: &content.Signal{Kind: "news"}}
	s := newTestScheduler(store, detector, &stubComposer{text: "t"}, &stubPoster{})

	if _, err := s.generate(context.Background()); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if detector.calls != 0 {
		t.Fatalf("detector should not run once the quota is reached")
	}
}

func TestPublishInsideWindow(t *testing.T) {
	store := newStubStore()
	store.posts["x"] = content.Post{ID: "x", Text: "ready", Status: content.StatusApproved}
	p := &stubPoster{}
	s := newTestScheduler(store, &stubDetector{}, &stubComposer{}, p)

	worked, err := s.publish(context.Background(), at(10, 2))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if !worked {
		t.Fatalf("expected publish to report work done")
	}
	if p.calls != 1 {
		t.Fatalf("expected 1 post call, got %d", p.calls)
	}
	if store.posts["x"].Status != content.StatusPosted {
		t.Fatalf("expected posted status, got %q", store.posts["x"].Status)
	}
	if store.posts["x"].PostID != "tweet-123" {
		t.Fatalf("expected tweet id recorded, got %q", store.posts["x"].PostID)
	}
}

func TestPublishOutsideWindowDoesNothing(t *testing.T) {
	store := newStubStore()
	store.posts["x"] = content.Post{ID: "x", Status: content.StatusApproved}
	p := &stubPoster{}
	s := newTestScheduler(store, &stubDetector{}, &stubComposer{}, p)

	for _, now := range []time.Time{at(9, 59), at(10, 6), at(15, 0)} {
		worked, err := s.publish(context.Background(), now)
		if err != nil {
			t.Fatalf("publish at %v: %v", now, err)
		}
		if worked {
			t.Fatalf("publish at %v should be a no-op", now)
		}
	}
	if p.calls != 0 {
		t.Fatalf("expected no post calls outside window, got %d", p.calls)
	}
}

func TestPublishOncePerDay(t *testing.T) {
	store := newStubStore()
	store.posts["x"] = content.Post{ID: "x", Status: content.StatusApproved}
	store.posts["y"] = content.Post{ID: "y", Status: content.StatusApproved}
	p := &stubPoster{}
	s := newTestScheduler(store, &stubDetector{}, &stubComposer{}, p)

	if _, err := s.publish(context.Background(), at(10, 1)); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if _, err := s.publish(context.Background(), at(10, 3)); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	if p.calls != 1 {
		t.Fatalf("expected exactly 1 post per day, got %d", p.calls)
	}

	// Next day the guard resets.
	next := at(10, 1).Add(24 * time.Hour)
	if _, err := s.publish(context.Background(), next); err != nil {
		t.Fatalf("next-day publish: %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("expected post on the next day, got %d calls", p.calls)
	}
}

func TestRecoverStateClosesWindowAfterRestart(t *testing.T) {
	store := newStubStore()
	store.postedToday = 1
	store.posts["x"] = content.Post{ID: "x", Status: content.StatusApproved}
	p := &stubPoster{}
	s := newTestScheduler(store, &stubDetector{}, &stubComposer{}, p)
	s.now = func() time.Time { return at(10, 1) }

	s.recoverState(context.Background())

	if _, err := s.publish(context.Background(), at(10, 2)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if p.calls != 0 {
		t.Fatalf("expected no repost after restart, got %d calls", p.calls)
	}
}

func TestPostWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	p := &stubPoster{failures: 2}
	s := newTestScheduler(newStubStore(), &stubDetector{}, &stubComposer{}, p)

	id, err := s.postWithRetry(context.Background(), "text")
	if err != nil {
		t.Fatalf("post with retry: %v", err)
	}
	if id != "tweet-123" {
		t.Fatalf("unexpected id %q", id)
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", p.calls)
	}
}

func TestPostWithRetryGivesUp(t *testing.T) {
	p := &stubPoster{err: errors.New("account suspended")}
	s := newTestScheduler(newStubStore(), &stubDetector{}, &stubComposer{}, p)

	if _, err := s.postWithRetry(context.Background(), "text"); err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", p.calls)
	}
}

func TestInWindowBoundaries(t *testing.T) {
	s := newTestScheduler(newStubStore(), &stubDetector{}, &stubComposer{}, &stubPoster{})

	cases := []struct {
		now  time.Time
		want bool
	}{
		{at(10, 0), true},
		{at(10, 5), true},
		{at(10, 6), false},
		{at(9, 59), false},
		{at(22, 0), false},
	}
	for _, tc := range cases {
		if got := s.inWindow(tc.now); got != tc.want {
			t.Fatalf("inWindow(%v) = %v, want %v", tc.now, got, tc.want)
		}
	}
}

func TestPublishWaitsForScheduledTime(t *testing.T) {
	store := newStubStore()
	store.posts["x"] = content.Post{
		ID:          "x",
		Text:        "later",
		Status:      content.StatusApproved,
		ScheduledAt: time.Now().Add(48 * time.Hour),
	}
	p := &stubPoster{}
	s := newTestScheduler(store, &stubDetector{}, &stubComposer{}, p)

	worked, err := s.publish(context.Background(), at(10, 2))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if worked || p.calls != 0 {
		t.Fatalf("draft scheduled for later must not be published, got %d calls", p.calls)
	}
}

func TestPostingWindowAllowsMidnight(t *testing.T) {
	s := New(Config{PostingHour: 0, PostingTolerance: 5 * time.Minute, Logger: logging.NewLogger()})
	if !s.inWindow(at(0, 2)) {
		t.Fatalf("expected a midnight window to stay at midnight")
	}
	if s.inWindow(at(10, 0)) {
		t.Fatalf("midnight window should not open at 10:00")
	}

	s = New(Config{PostingHour: -1, PostingTolerance: 5 * time.Minute, Logger: logging.NewLogger()})
	if !s.inWindow(at(10, 0)) {
		t.Fatalf("negative hour should select the default window")
	}
}

func TestHealthTripsOnConsecutiveFailures(t *testing.T) {
	h := newHealthState(time.Hour, 3)
	now := time.Now()
	h.recordSuccess(now)

	for i := 0; i < 2; i++ {
		h.recordFailure()
	}
	if reason := h.failing(now); reason != "" {
		t.Fatalf("expected healthy below threshold, got %q", reason)
	}

	h.recordFailure()
	if reason := h.failing(now); reason == "" {
		t.Fatalf("expected failure reason at threshold")
	}

	h.recordSuccess(now)
	if reason := h.failing(now); reason != "" {
		t.Fatalf("expected success to reset the counter, got %q", reason)
	}
}

func TestHealthTripsOnInactivity(t *testing.T) {
	h := newHealthState(10*time.Minute, 5)
	start := time.Now()
	h.recordSuccess(start)

	if reason := h.failing(start.Add(5 * time.Minute)); reason != "" {
		t.Fatalf("expected healthy within inactivity budget, got %q", reason)
	}
	if reason := h.failing(start.Add(11 * time.Minute)); reason == "" {
		t.Fatalf("expected inactivity failure reason")
	}
}

func TestTickRecordsFailureOnDetectorError(t *testing.T) {
	store := newStubStore()
	detector := &stubDetector{err: errors.New("feed down")}
	s := newTestScheduler(store, detector, &stubComposer{}, &stubPoster{})
	s.now = func() time.Time { return at(15, 0) }

	s.tick(context.Background())
	if s.health.consecutive != 1 {
		t.Fatalf("expected failure recorded, got %d", s.health.consecutive)
	}
}

func TestTickIdleDoesNotResetFailureStreak(t *testing.T) {
	store := newStubStore()
	store.posts["x"] = content.Post{ID: "x", Text: "ready", Status: content.StatusApproved}
	p := &stubPoster{err: errors.New("twitter down")}
	s := newTestScheduler(store, &stubDetector{}, &stubComposer{}, p)

	s.now = func() time.Time { return at(10, 1) }
	s.tick(context.Background())
	if s.health.consecutive != 1 {
		t.Fatalf("expected failed publish recorded, got %d", s.health.consecutive)
	}

	// The next tick falls outside the window and has nothing else to do.
	// It must stay neutral so posting failures keep accumulating across
	// idle ticks.
	s.now = func() time.Time { return at(11, 0) }
	s.tick(context.Background())
	if s.health.consecutive != 1 {
		t.Fatalf("idle tick changed the failure streak, got %d", s.health.consecutive)
	}
	if s.health.hasSucceeded {
		t.Fatalf("idle tick counted as pipeline activity")
	}
}

func TestTickResetsStreakWhenDraftGenerated(t *testing.T) {
	store := newStubStore()
	detector := &stubDetector{err: errors.New("feed down")}
	s := newTestScheduler(store, detector, &stubComposer{text: "a tweet"}, &stubPoster{})
	s.now = func() time.Time { return at(15, 0) }

	s.tick(context.Background())
	if s.health.consecutive != 1 {
		t.Fatalf("expected failure recorded, got %d", s.health.consecutive)
	}

	detector.err = nil
	detector.signal = &content.Signal{Kind: "news", Headline: "fresh"}
	s.tick(context.Background())
	if s.health.consecutive != 0 {
		t.Fatalf("expected counter reset after a generated draft, got %d", s.health.consecutive)
	}
	if !s.health.hasSucceeded {
		t.Fatalf("generated draft should count as pipeline activity")
	}
}

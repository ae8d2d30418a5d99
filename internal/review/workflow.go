package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"herald/internal/content"
	"herald/internal/poster"
	"herald/pkg/logging"
)

const maxTweetLength = 280

var ErrEmptyText = errors.New("post text cannot be empty")
var ErrTextTooLong = fmt.Errorf("post text exceeds %d characters", maxTweetLength)

// ErrPostFailed reports that a draft was approved but the publish attempt
// failed. The draft stays approved; the scheduler retries it in the next
// posting window.
var ErrPostFailed = errors.New("posting failed")

// Regenerator produces a replacement draft for a rejected text.
type Regenerator interface {
	Regenerate(ctx context.Context, post content.Post, feedback string) (string, error)
}

// Workflow applies reviewer decisions to drafts. Every transition is
// guarded by the store, so a decision on a draft that already moved on
// fails with content.ErrInvalidState.
type Workflow struct {
	store         content.Store
	regenerator   Regenerator
	dispatcher    *Dispatcher
	poster        poster.Poster
	logger        logging.Logger
	reviewEnabled bool
	decisions     *prometheus.CounterVec
}

type WorkflowConfig struct {
	Store       content.Store
	Regenerator Regenerator
	Dispatcher  *Dispatcher
	// Poster, when set, lets an approval publish immediately instead of
	// waiting for the next posting window.
	Poster poster.Poster
	Logger logging.Logger
	// ReviewEnabled gates the human decision step. Disabled, submitted
	// drafts are approved on entry.
	ReviewEnabled bool
	// Decisions counts review outcomes with labels decision, source.
	Decisions *prometheus.CounterVec
}

func NewWorkflow(cfg WorkflowConfig) *Workflow {
	return &Workflow{
		store:         cfg.Store,
		regenerator:   cfg.Regenerator,
		dispatcher:    cfg.Dispatcher,
		poster:        cfg.Poster,
		logger:        cfg.Logger,
		reviewEnabled: cfg.ReviewEnabled,
		decisions:     cfg.Decisions,
	}
}

// Submit records a freshly composed draft. With review enabled it stays
// pending and the reviewer is notified; otherwise it is approved on entry
// and the scheduler publishes it in the next posting window. A failed
// notification never blocks the draft; the stale sweep covers it.
func (w *Workflow) Submit(ctx context.Context, draft content.Post) (content.Post, error) {
	if !w.reviewEnabled {
		draft.Status = content.StatusApproved
	}

	saved, err := w.store.Create(ctx, draft)
	if err != nil {
		return content.Post{}, err
	}

	if w.reviewEnabled && w.dispatcher != nil {
		if err := w.dispatcher.NotifyDraft(ctx, saved); err != nil {
			w.logger.WithError(err).WithField("post_id", saved.ID).Warn("Review notification failed, draft awaits auto-approval")
		}
	}
	return saved, nil
}

func (w *Workflow) countDecision(decision, source string) {
	if w.decisions == nil {
		return
	}
	w.decisions.WithLabelValues(decision, source).Inc()
}

// Approve promotes a pending draft and attempts to publish it right away.
// A publish failure is reported as ErrPostFailed and leaves the draft
// approved, so a workflow error is never mistaken for a posting error.
func (w *Workflow) Approve(ctx context.Context, id string) (content.Post, error) {
	if err := w.store.Transition(ctx, id, content.StatusPending, content.StatusApproved); err != nil {
		return content.Post{}, err
	}

	post, err := w.store.Get(ctx, id)
	if err != nil {
		return content.Post{}, err
	}

	w.logger.WithField("post_id", id).Info("Draft approved")
	w.notify(ctx, EventApproved, post)

	return w.publish(ctx, post)
}

// publish posts an approved draft through the platform client. With no
// poster configured the draft simply stays queued for the scheduler.
func (w *Workflow) publish(ctx context.Context, post content.Post) (content.Post, error) {
	if w.poster == nil {
		return post, nil
	}

	postID, err := w.poster.Post(ctx, post.Text)
	if err != nil {
		w.logger.WithError(err).WithField("post_id", post.ID).Warn("Publish after approval failed, draft stays queued")
		return post, fmt.Errorf("%w: %v", ErrPostFailed, err)
	}

	if err := w.store.MarkPosted(ctx, post.ID, postID); err != nil {
		return post, err
	}

	post.Status = content.StatusPosted
	post.PostID = postID
	w.logger.WithFields(logging.Fields{
		"post_id":  post.ID,
		"tweet_id": postID,
	}).Info("Draft published on approval")
	w.notify(ctx, EventPublished, post)
	return post, nil
}

// Reject discards a pending draft. Feedback is only recorded in the log;
// a rejected draft is terminal.
func (w *Workflow) Reject(ctx context.Context, id, feedback string) (content.Post, error) {
	if err := w.store.Transition(ctx, id, content.StatusPending, content.StatusRejected); err != nil {
		return content.Post{}, err
	}

	post, err := w.store.Get(ctx, id)
	if err != nil {
		return content.Post{}, err
	}

	w.logger.WithFields(logging.Fields{
		"post_id":  id,
		"feedback": feedback,
	}).Info("Draft rejected")
	w.notify(ctx, EventRejected, post)
	return post, nil
}

// Regenerate previews a replacement text for a pending draft. The draft
// itself is untouched until the reviewer accepts the new text.
func (w *Workflow) Regenerate(ctx context.Context, id, feedback string) (string, error) {
	post, err := w.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if post.Status != content.StatusPending {
		return "", content.ErrInvalidState
	}
	if w.regenerator == nil {
		return "", errors.New("regeneration not available")
	}

	text, err := w.regenerator.Regenerate(ctx, post, feedback)
	if err != nil {
		return "", fmt.Errorf("regenerate draft: %w", err)
	}

	w.logger.WithField("post_id", id).Info("Replacement draft generated")
	return text, nil
}

// AcceptText commits edited or regenerated text to a pending draft.
func (w *Workflow) AcceptText(ctx context.Context, id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if len(text) > maxTweetLength {
		return ErrTextTooLong
	}
	if err := w.store.UpdateText(ctx, id, text); err != nil {
		return err
	}
	w.logger.WithField("post_id", id).Info("Draft text updated")
	return nil
}

// AutoApproveStale promotes drafts that sat unreviewed longer than
// olderThan as of now and returns them. Each promoted draft is published
// exactly as an explicit approval would be.
func (w *Workflow) AutoApproveStale(ctx context.Context, now time.Time, olderThan time.Duration) ([]content.Post, error) {
	stale, err := w.store.ListStalePending(ctx, now.Add(-olderThan))
	if err != nil {
		return nil, err
	}

	var promoted []content.Post
	for _, post := range stale {
		if err := w.store.MarkAutoApproved(ctx, post.ID); err != nil {
			// Someone may have decided in the meantime; skip, don't abort.
			if errors.Is(err, content.ErrInvalidState) || errors.Is(err, content.ErrNotFound) {
				continue
			}
			return promoted, err
		}

		post.Status = content.StatusApproved
		post.AutoApproved = true
		w.countDecision("auto_approve", "scheduler")
		w.logger.WithField("post_id", post.ID).Info("Draft auto-approved after review timeout")
		w.notify(ctx, EventAutoApproved, post)

		published, err := w.publish(ctx, post)
		if err != nil && !errors.Is(err, ErrPostFailed) {
			return promoted, err
		}
		if err == nil {
			post = published
		}
		promoted = append(promoted, post)
	}
	return promoted, nil
}

func (w *Workflow) notify(ctx context.Context, event string, post content.Post) {
	if w.dispatcher == nil {
		return
	}
	w.dispatcher.NotifyEvent(ctx, event, post)
}

package review

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"herald/internal/content"
	"herald/pkg/logging"
)

// Handlers exposes the review surface: a small edit page, JSON decision
// endpoints, and the one-click action links from review emails.
type Handlers struct {
	store    content.Store
	workflow *Workflow
	issuer   *TokenIssuer
	email    *EmailNotifier
	logger   logging.Logger
	page     *template.Template
	result   *template.Template
}

type HandlersConfig struct {
	Store    content.Store
	Workflow *Workflow
	Issuer   *TokenIssuer
	Email    *EmailNotifier
	Logger   logging.Logger
}

func NewHandlers(cfg HandlersConfig) *Handlers {
	return &Handlers{
		store:    cfg.Store,
		workflow: cfg.Workflow,
		issuer:   cfg.Issuer,
		email:    cfg.Email,
		logger:   cfg.Logger,
		page:     template.Must(template.New("review_page").Parse(reviewPageTemplate)),
		result:   template.Must(template.New("action_result").Parse(actionResultTemplate)),
	}
}

// Register mounts the review routes on the router.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/review/:id", h.ReviewPage)
	router.POST("/review/approve/:id", h.Approve)
	router.POST("/review/reject/:id", h.Reject)
	router.POST("/review/regenerate/:id", h.Regenerate)
	router.GET("/action/:token", h.Action)
}

type decisionRequest struct {
	Content  string `json:"content"`
	Feedback string `json:"feedback"`
}

// ReviewPage renders the HTML edit page for a draft.
func (h *Handlers) ReviewPage(c *gin.Context) {
	post, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(c.Writer, post); err != nil {
		h.logger.WithError(err).Error("Review page render failed")
	}
}

// Approve commits any edited text and queues the draft for posting.
func (h *Handlers) Approve(c *gin.Context) {
	var req decisionRequest
	_ = c.ShouldBindJSON(&req)

	ctx := c.Request.Context()
	id := c.Param("id")

	if req.Content != "" {
		if err := h.workflow.AcceptText(ctx, id, req.Content); err != nil {
			h.jsonError(c, err)
			return
		}
	}

	post, err := h.workflow.Approve(ctx, id)
	if errors.Is(err, ErrPostFailed) {
		// The decision stuck; only the publish attempt failed.
		h.workflow.countDecision("approve", "web")
		c.JSON(http.StatusBadGateway, gin.H{"status": string(post.Status), "content_id": post.ID, "error": err.Error()})
		return
	}
	if err != nil {
		h.jsonError(c, err)
		return
	}
	h.workflow.countDecision("approve", "web")
	c.JSON(http.StatusOK, gin.H{"status": string(post.Status), "content_id": post.ID})
}

func (h *Handlers) Reject(c *gin.Context) {
	var req decisionRequest
	_ = c.ShouldBindJSON(&req)

	post, err := h.workflow.Reject(c.Request.Context(), c.Param("id"), req.Feedback)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	h.workflow.countDecision("reject", "web")
	c.JSON(http.StatusOK, gin.H{"status": string(post.Status), "content_id": post.ID})
}

// Regenerate returns a preview of a replacement draft. The preview is not
// persisted; approving with the new content commits it.
func (h *Handlers) Regenerate(c *gin.Context) {
	var req decisionRequest
	_ = c.ShouldBindJSON(&req)

	text, err := h.workflow.Regenerate(c.Request.Context(), c.Param("id"), req.Feedback)
	if err != nil {
		h.jsonError(c, err)
		return
	}
	h.workflow.countDecision("regenerate", "web")
	c.JSON(http.StatusOK, gin.H{"content_id": c.Param("id"), "content": text})
}

// Action executes a one-click decision from a review email.
func (h *Handlers) Action(c *gin.Context) {
	action, contentID, err := h.issuer.Validate(c.Param("token"))
	if err != nil {
		h.renderError(c, err)
		return
	}

	ctx := c.Request.Context()
	switch action {
	case ActionApprove:
		post, err := h.workflow.Approve(ctx, contentID)
		if err != nil && !errors.Is(err, ErrPostFailed) {
			h.renderError(c, err)
			return
		}
		h.workflow.countDecision("approve", "email")
		if errors.Is(err, ErrPostFailed) {
			h.renderResult(c, "Approved", "The tweet is approved but posting failed; it will be retried in the next posting window.")
			return
		}
		if post.Status == content.StatusPosted {
			h.renderResult(c, "Posted", "The tweet has been published.")
			return
		}
		h.renderResult(c, "Approved", "The tweet is queued for the next posting window.")
	case ActionReject:
		if _, err := h.workflow.Reject(ctx, contentID, ""); err != nil {
			h.renderError(c, err)
			return
		}
		h.workflow.countDecision("reject", "email")
		h.renderResult(c, "Rejected", "The draft has been discarded.")
	case ActionRegenerate:
		text, err := h.workflow.Regenerate(ctx, contentID, "")
		if err != nil {
			h.renderError(c, err)
			return
		}
		if err := h.workflow.AcceptText(ctx, contentID, text); err != nil {
			h.renderError(c, err)
			return
		}
		h.workflow.countDecision("regenerate", "email")
		h.resendReviewEmail(c, contentID)
		h.renderResult(c, "Regenerated", "A new draft has been generated and sent for review.")
	default:
		h.renderError(c, ErrInvalidToken)
	}
}

func (h *Handlers) resendReviewEmail(c *gin.Context, contentID string) {
	if h.email == nil {
		return
	}
	post, err := h.store.Get(c.Request.Context(), contentID)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to reload post for review email")
		return
	}
	if err := h.email.Notify(c.Request.Context(), post); err != nil {
		h.logger.WithError(err).Warn("Failed to resend review email")
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, content.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, content.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidToken):
		return http.StatusForbidden
	case errors.Is(err, ErrEmptyText), errors.Is(err, ErrTextTooLong):
		return http.StatusBadRequest
	case errors.Is(err, ErrPostFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handlers) jsonError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("Review handler failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handlers) renderError(c *gin.Context, err error) {
	status := statusForError(err)
	title := "Something went wrong"
	message := "Please try again later."
	switch status {
	case http.StatusNotFound:
		title = "Not found"
		message = "This draft no longer exists."
	case http.StatusConflict:
		title = "Already decided"
		message = "This draft has already been reviewed."
	case http.StatusForbidden:
		title = "Invalid link"
		message = "This action link is invalid or has expired."
	default:
		h.logger.WithError(err).Error("Review handler failed")
	}
	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	_ = h.result.Execute(c.Writer, actionResultData{Title: title, Message: message})
}

func (h *Handlers) renderResult(c *gin.Context, title, message string) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := h.result.Execute(c.Writer, actionResultData{Title: title, Message: message}); err != nil {
		h.logger.WithError(err).Error("Action result render failed")
	}
}

type actionResultData struct {
	Title   string
	Message string
}

const actionResultTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body style="font-family: Arial, sans-serif; color: #333; text-align: center; padding-top: 80px;">
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
</body>
</html>`

const reviewPageTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Review Draft</title></head>
<body style="font-family: Arial, sans-serif; color: #333; margin: 0;">
<div style="max-width: 640px; margin: 0 auto; padding: 24px;">

<h2>Review Draft</h2>
<p style="color: #6c757d;">Status: {{.Status}}</p>

<textarea id="content" maxlength="280" rows="5" style="width: 100%; font-size: 16px; padding: 12px;">{{.Text}}</textarea>
<p style="color: #6c757d; font-size: 13px;"><span id="count">0</span>/280 characters</p>

<textarea id="feedback" rows="3" placeholder="Feedback for regeneration (optional)" style="width: 100%; font-size: 14px; padding: 12px;"></textarea>

<div style="margin-top: 16px;">
<button onclick="decide('approve')" style="background-color: #28a745; color: white; padding: 10px 24px; border: none; border-radius: 6px;">Approve</button>
<button onclick="decide('reject')" style="background-color: #dc3545; color: white; padding: 10px 24px; border: none; border-radius: 6px;">Reject</button>
<button onclick="decide('regenerate')" style="background-color: #6c757d; color: white; padding: 10px 24px; border: none; border-radius: 6px;">Regenerate</button>
</div>

<p id="message" style="margin-top: 16px;"></p>

{{if .ContextSummary}}
<h3>Why this post?</h3>
<p>{{.ContextSummary}}</p>
{{end}}

<script>
const contentEl = document.getElementById('content');
const countEl = document.getElementById('count');
const update = () => { countEl.textContent = contentEl.value.length; };
contentEl.addEventListener('input', update);
update();

async function decide(action) {
	const resp = await fetch('/review/' + action + '/{{.ID}}', {
		method: 'POST',
		headers: {'Content-Type': 'application/json'},
		body: JSON.stringify({
			content: contentEl.value,
			feedback: document.getElementById('feedback').value
		})
	});
	const data = await resp.json();
	const messageEl = document.getElementById('message');
	if (!resp.ok) {
		messageEl.textContent = 'Error: ' + data.error;
		return;
	}
	if (action === 'regenerate') {
		contentEl.value = data.content;
		update();
		messageEl.textContent = 'New draft generated. Approve to commit it.';
	} else {
		messageEl.textContent = 'Draft ' + data.status + '.';
	}
}
</script>

</div>
</body>
</html>`

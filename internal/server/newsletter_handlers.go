package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parteiportal/backend/internal/newsletter"
)

// trackingPixel is a transparent 1x1 GIF served by the open-tracking endpoint.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

type newsletterPayload struct {
	ID         string   `json:"id"`
	Subject    string   `json:"subject"`
	BodyHTML   string   `json:"body_html"`
	Status     string   `json:"status"`
	Recipients []string `json:"recipients"`
	Delivered  int      `json:"delivered"`
	Permanent  int      `json:"permanent"`
	Pending    int      `json:"pending"`
	Version    int64    `json:"version"`
	SentAt     string   `json:"sent_at,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

func (h *httpHandler) newsletterToPayload(item newsletter.Item) newsletterPayload {
	payload := newsletterPayload{
		ID:        item.ID,
		Subject:   item.Subject,
		BodyHTML:  item.BodyHTML,
		Status:    string(item.Status),
		Version:   item.Version,
		CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339),
	}
	recipients, err := item.Recipients()
	if err != nil {
		h.logger.Warn("newsletter recipient list unreadable", zap.String("newsletter_id", item.ID), zap.Error(err))
	}
	payload.Recipients = recipients
	state, err := newsletter.DecodeSendState(item.SendStateJSON)
	if err != nil {
		h.logger.Warn("newsletter send state unreadable", zap.String("newsletter_id", item.ID), zap.Error(err))
	} else {
		payload.Delivered, payload.Permanent, payload.Pending = state.Counts()
	}
	if item.SentAt != nil {
		payload.SentAt = item.SentAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func (h *httpHandler) handleListNewsletters(c *gin.Context) {
	var status newsletter.Status
	if raw := c.Query("status"); raw != "" {
		parsed, ok := newsletter.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": msgInvalidRequest})
			return
		}
		status = parsed
	}
	items, err := h.newsletters.List(c.Request.Context(), status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]newsletterPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, h.newsletterToPayload(item))
	}
	c.JSON(http.StatusOK, gin.H{"newsletters": payload})
}

type createNewsletterRequestPayload struct {
	Subject    string   `json:"subject" binding:"required"`
	BodyHTML   string   `json:"body_html"`
	Recipients []string `json:"recipients"`
}

func (h *httpHandler) handleCreateNewsletter(c *gin.Context) {
	var request createNewsletterRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	item, err := h.newsletters.Create(c.Request.Context(), newsletter.CreateInput{
		Subject:    request.Subject,
		BodyHTML:   request.BodyHTML,
		Recipients: request.Recipients,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, h.newsletterToPayload(item))
}

func (h *httpHandler) handleGetNewsletter(c *gin.Context) {
	item, err := h.newsletters.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.newsletterToPayload(item))
}

type updateNewsletterRequestPayload struct {
	Subject    *string   `json:"subject"`
	BodyHTML   *string   `json:"body_html"`
	Recipients *[]string `json:"recipients"`
}

func (h *httpHandler) handleUpdateNewsletter(c *gin.Context) {
	var request updateNewsletterRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	item, err := h.newsletters.Update(c.Request.Context(), c.Param("id"), newsletter.UpdateInput{
		Subject:    request.Subject,
		BodyHTML:   request.BodyHTML,
		Recipients: request.Recipients,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.newsletterToPayload(item))
}

func (h *httpHandler) handleDeleteNewsletter(c *gin.Context) {
	if err := h.newsletters.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSendNewsletterChunk(c *gin.Context) {
	report, err := h.newsletters.SendChunk(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    string(report.Status),
		"processed": report.Processed,
		"delivered": report.Delivered,
		"permanent": report.Permanent,
		"pending":   report.Pending,
		"done":      report.Done,
	})
}

// handleNewsletterProgress streams chunk outcomes for one send run as
// server-sent events until the client disconnects or the run finishes.
func (h *httpHandler) handleNewsletterProgress(c *gin.Context) {
	newsletterID := c.Param("id")
	if _, err := h.newsletters.Get(c.Request.Context(), newsletterID); err != nil {
		h.respondError(c, err)
		return
	}
	if h.progress == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "progress_unavailable", "message": msgInternal})
		return
	}

	events, cleanup := h.progress.Subscribe(c.Request.Context(), newsletterID)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Stream(func(w io.Writer) bool {
		select {
		case event, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("progress", gin.H{
				"newsletter_id": event.NewsletterID,
				"status":        string(event.Status),
				"delivered":     event.Delivered,
				"permanent":     event.Permanent,
				"pending":       event.Pending,
				"done":          event.Done,
			})
			return !event.Done
		case <-c.Request.Context().Done():
			return false
		}
	})
}

type assistRequestPayload struct {
	Points   []string `json:"points" binding:"required"`
	Tone     string   `json:"tone"`
	Audience string   `json:"audience"`
}

func (h *httpHandler) handleAssistNewsletter(c *gin.Context) {
	if h.generator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "assist_disabled", "message": "KI-Unterstützung ist nicht konfiguriert."})
		return
	}
	var request assistRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	draft, err := h.generator.GenerateDraft(c.Request.Context(), newsletter.DraftRequest{
		Points:   request.Points,
		Tone:     request.Tone,
		Audience: request.Audience,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subject": draft.Subject, "body_html": draft.BodyHTML})
}

func (h *httpHandler) handleTrackOpen(c *gin.Context) {
	newsletterID := c.Query("newsletter")
	token := c.Query("token")
	if err := h.newsletters.TrackOpen(c.Request.Context(), newsletterID, token); err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/gif", trackingPixel)
}

func (h *httpHandler) handleTrackClick(c *gin.Context) {
	newsletterID := c.Query("newsletter")
	target, err := h.newsletters.ResolveClick(c.Request.Context(), newsletterID, c.Query("target"), h.redirectHosts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

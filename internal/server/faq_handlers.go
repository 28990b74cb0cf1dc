package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parteiportal/backend/internal/faq"
)

type faqPayload struct {
	ID           string `json:"id"`
	Question     string `json:"question"`
	Answer       string `json:"answer"`
	Category     string `json:"category"`
	DisplayOrder int    `json:"display_order"`
	Status       string `json:"status"`
}

func faqToPayload(entry faq.Entry) faqPayload {
	return faqPayload{
		ID:           entry.ID,
		Question:     entry.Question,
		Answer:       entry.Answer,
		Category:     entry.Category,
		DisplayOrder: entry.DisplayOrder,
		Status:       string(entry.Status),
	}
}

func (h *httpHandler) handleListFaq(c *gin.Context) {
	var status faq.Status
	if raw := c.Query("status"); raw != "" {
		parsed, ok := faq.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": msgInvalidRequest})
			return
		}
		status = parsed
	}
	entries, err := h.faq.List(c.Request.Context(), status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]faqPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, faqToPayload(entry))
	}
	c.JSON(http.StatusOK, gin.H{"entries": payload})
}

type createFaqRequestPayload struct {
	Question     string `json:"question" binding:"required"`
	Answer       string `json:"answer" binding:"required"`
	Category     string `json:"category"`
	DisplayOrder int    `json:"display_order"`
}

func (h *httpHandler) handleCreateFaq(c *gin.Context) {
	var request createFaqRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	entry, err := h.faq.Create(c.Request.Context(), faq.CreateInput{
		Question:     request.Question,
		Answer:       request.Answer,
		Category:     request.Category,
		DisplayOrder: request.DisplayOrder,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, faqToPayload(entry))
}

type updateFaqRequestPayload struct {
	Question     *string `json:"question"`
	Answer       *string `json:"answer"`
	Category     *string `json:"category"`
	DisplayOrder *int    `json:"display_order"`
}

func (h *httpHandler) handleUpdateFaq(c *gin.Context) {
	var request updateFaqRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	entry, err := h.faq.Update(c.Request.Context(), c.Param("id"), faq.UpdateInput{
		Question:     request.Question,
		Answer:       request.Answer,
		Category:     request.Category,
		DisplayOrder: request.DisplayOrder,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, faqToPayload(entry))
}

func (h *httpHandler) handleActivateFaq(c *gin.Context) {
	entry, err := h.faq.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, faqToPayload(entry))
}

func (h *httpHandler) handleArchiveFaq(c *gin.Context) {
	entry, err := h.faq.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, faqToPayload(entry))
}

func (h *httpHandler) handleDeleteFaq(c *gin.Context) {
	if err := h.faq.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

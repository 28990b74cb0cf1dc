package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parteiportal/backend/internal/antrag"
)

type antragPayload struct {
	ID           string `json:"id"`
	ApplicantID  string `json:"applicant_id"`
	Title        string `json:"title"`
	Purpose      string `json:"purpose"`
	AmountCents  int64  `json:"amount_cents"`
	Status       string `json:"status"`
	DecisionNote string `json:"decision_note,omitempty"`
	DecidedBy    string `json:"decided_by,omitempty"`
	DecidedAt    string `json:"decided_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func antragToPayload(item antrag.Antrag) antragPayload {
	payload := antragPayload{
		ID:           item.ID,
		ApplicantID:  item.ApplicantID,
		Title:        item.Title,
		Purpose:      item.Purpose,
		AmountCents:  item.AmountCents,
		Status:       string(item.Status),
		DecisionNote: item.DecisionNote,
		DecidedBy:    item.DecidedBy,
		CreatedAt:    item.CreatedAt.UTC().Format(time.RFC3339),
	}
	if item.DecidedAt != nil {
		payload.DecidedAt = item.DecidedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func (h *httpHandler) handleListAntraege(c *gin.Context) {
	var status antrag.Status
	if raw := c.Query("status"); raw != "" {
		parsed, ok := antrag.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": msgInvalidRequest})
			return
		}
		status = parsed
	}
	items, err := h.antraege.List(c.Request.Context(), "", status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"antraege": antraegeToPayload(items)})
}

func (h *httpHandler) handleListOwnAntraege(c *gin.Context) {
	claims, ok := h.sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msgNotAuthenticated})
		return
	}
	items, err := h.antraege.List(c.Request.Context(), claims.UserID, "")
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"antraege": antraegeToPayload(items)})
}

func antraegeToPayload(items []antrag.Antrag) []antragPayload {
	payload := make([]antragPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, antragToPayload(item))
	}
	return payload
}

type createAntragRequestPayload struct {
	Title       string `json:"title" binding:"required"`
	Purpose     string `json:"purpose" binding:"required"`
	AmountCents int64  `json:"amount_cents"`
}

func (h *httpHandler) handleCreateAntrag(c *gin.Context) {
	claims, ok := h.sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msgNotAuthenticated})
		return
	}
	var request createAntragRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	item, err := h.antraege.Create(c.Request.Context(), antrag.CreateInput{
		ApplicantID: claims.UserID,
		Title:       request.Title,
		Purpose:     request.Purpose,
		AmountCents: request.AmountCents,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, antragToPayload(item))
}

type updateAntragRequestPayload struct {
	Title       *string `json:"title"`
	Purpose     *string `json:"purpose"`
	AmountCents *int64  `json:"amount_cents"`
}

func (h *httpHandler) handleUpdateAntrag(c *gin.Context) {
	claims, ok := h.sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msgNotAuthenticated})
		return
	}
	var request updateAntragRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	item, err := h.antraege.Update(c.Request.Context(), c.Param("id"), claims.UserID, antrag.UpdateInput{
		Title:       request.Title,
		Purpose:     request.Purpose,
		AmountCents: request.AmountCents,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, antragToPayload(item))
}

func (h *httpHandler) handleDecideAntrag(c *gin.Context) {
	claims, ok := h.sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msgNotAuthenticated})
		return
	}
	var request decisionRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	item, err := h.antraege.Decide(c.Request.Context(), c.Param("id"), claims.UserID, *request.Accepted, request.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, antragToPayload(item))
}

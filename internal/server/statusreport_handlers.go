package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parteiportal/backend/internal/statusreport"
)

type statusReportPayload struct {
	ID           string `json:"id"`
	GroupID      string `json:"group_id"`
	SubmittedBy  string `json:"submitted_by"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	PeriodLabel  string `json:"period_label"`
	Status       string `json:"status"`
	DecisionNote string `json:"decision_note,omitempty"`
	DecidedBy    string `json:"decided_by,omitempty"`
	DecidedAt    string `json:"decided_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func statusReportToPayload(report statusreport.Report) statusReportPayload {
	payload := statusReportPayload{
		ID:           report.ID,
		GroupID:      report.GroupID,
		SubmittedBy:  report.SubmittedBy,
		Title:        report.Title,
		Body:         report.Body,
		PeriodLabel:  report.PeriodLabel,
		Status:       string(report.Status),
		DecisionNote: report.DecisionNote,
		DecidedBy:    report.DecidedBy,
		CreatedAt:    report.CreatedAt.UTC().Format(time.RFC3339),
	}
	if report.DecidedAt != nil {
		payload.DecidedAt = report.DecidedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

type submitStatusReportRequestPayload struct {
	GroupID     string `json:"group_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Body        string `json:"body" binding:"required"`
	PeriodLabel string `json:"period_label"`
}

func (h *httpHandler) handleSubmitStatusReport(c *gin.Context) {
	claims, ok := h.sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "message": msgNotAuthenticated})
		return
	}
	var request submitStatusReportRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	report, err := h.statusReports.Submit(c.Request.Context(), statusreport.SubmitInput{
		GroupID:     request.GroupID,
		SubmittedBy: claims.UserID,
		Title:       request.Title,
		Body:        request.Body,
		PeriodLabel: request.PeriodLabel,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, statusReportToPayload(report))
}

func (h *httpHandler) handleListStatusReports(c *gin.Context) {
	var status statusreport.Status
	if raw := c.Query("status"); raw != "" {
		parsed, ok := statusreport.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": msgInvalidRequest})
			return
		}
		status = parsed
	}
	reports, err := h.statusReports.List(c.Request.Context(), c.Query("group_id"), status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]statusReportPayload, 0, len(reports))
	for _, report := range reports {
		payload = append(payload, statusReportToPayload(report))
	}
	c.JSON(http.StatusOK, gin.H{"status_reports": payload})
}

type decisionRequestPayload struct {
	Accepted *bool  `json:"accepted" binding:"required"`
	Note     string `json:"note"`
}

func (h *httpHandler) handleDecideStatusReport(c *gin.Context) {
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
	report, err := h.statusReports.Decide(c.Request.Context(), c.Param("id"), claims.UserID, *request.Accepted, request.Note)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, statusReportToPayload(report))
}

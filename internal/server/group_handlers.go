package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/parteiportal/backend/internal/groups"
)

const upcomingMeetingCount = 3

type groupPayload struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Status          string   `json:"status"`
	ContactEmail    string   `json:"contact_email"`
	MeetingSchedule string   `json:"meeting_schedule"`
	MeetingLocation string   `json:"meeting_location"`
	NextMeetings    []string `json:"next_meetings,omitempty"`
}

func groupToPayload(group groups.Group, withMeetings bool, now time.Time) groupPayload {
	payload := groupPayload{
		ID:              group.ID,
		Name:            group.Name,
		Description:     group.Description,
		Status:          string(group.Status),
		ContactEmail:    group.ContactEmail,
		MeetingSchedule: group.MeetingSchedule,
		MeetingLocation: group.MeetingLocation,
	}
	if withMeetings {
		for _, occurrence := range groups.NextMeetings(group.MeetingSchedule, now, upcomingMeetingCount) {
			payload.NextMeetings = append(payload.NextMeetings, occurrence.UTC().Format(time.RFC3339))
		}
	}
	return payload
}

func (h *httpHandler) handleListGroups(c *gin.Context) {
	var status groups.Status
	if raw := c.Query("status"); raw != "" {
		parsed, ok := groups.ParseStatus(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "message": msgInvalidRequest})
			return
		}
		status = parsed
	}
	result, err := h.groups.List(c.Request.Context(), status)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]groupPayload, 0, len(result))
	for _, group := range result {
		payload = append(payload, groupToPayload(group, false, time.Time{}))
	}
	c.JSON(http.StatusOK, gin.H{"groups": payload})
}

// handleListActiveGroups serves the member-facing portal view: only ACTIVE
// groups, annotated with their next meeting occurrences.
func (h *httpHandler) handleListActiveGroups(c *gin.Context) {
	result, err := h.groups.List(c.Request.Context(), groups.StatusActive)
	if err != nil {
		h.respondError(c, err)
		return
	}
	now := time.Now().UTC()
	payload := make([]groupPayload, 0, len(result))
	for _, group := range result {
		payload = append(payload, groupToPayload(group, true, now))
	}
	c.JSON(http.StatusOK, gin.H{"groups": payload})
}

type createGroupRequestPayload struct {
	Name            string `json:"name" binding:"required"`
	Description     string `json:"description"`
	ContactEmail    string `json:"contact_email"`
	MeetingSchedule string `json:"meeting_schedule"`
	MeetingLocation string `json:"meeting_location"`
}

func (h *httpHandler) handleCreateGroup(c *gin.Context) {
	var request createGroupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	group, err := h.groups.Create(c.Request.Context(), groups.CreateInput{
		Name:            request.Name,
		Description:     request.Description,
		ContactEmail:    request.ContactEmail,
		MeetingSchedule: request.MeetingSchedule,
		MeetingLocation: request.MeetingLocation,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, groupToPayload(group, false, time.Time{}))
}

func (h *httpHandler) handleGetGroup(c *gin.Context) {
	group, err := h.groups.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupToPayload(group, true, time.Now().UTC()))
}

type updateGroupRequestPayload struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	ContactEmail    *string `json:"contact_email"`
	MeetingSchedule *string `json:"meeting_schedule"`
	MeetingLocation *string `json:"meeting_location"`
}

func (h *httpHandler) handleUpdateGroup(c *gin.Context) {
	var request updateGroupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	group, err := h.groups.Update(c.Request.Context(), c.Param("id"), groups.UpdateInput{
		Name:            request.Name,
		Description:     request.Description,
		ContactEmail:    request.ContactEmail,
		MeetingSchedule: request.MeetingSchedule,
		MeetingLocation: request.MeetingLocation,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupToPayload(group, false, time.Time{}))
}

func (h *httpHandler) handleActivateGroup(c *gin.Context) {
	group, err := h.groups.Activate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupToPayload(group, false, time.Time{}))
}

func (h *httpHandler) handleArchiveGroup(c *gin.Context) {
	group, err := h.groups.Archive(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, groupToPayload(group, false, time.Time{}))
}

type memberPayload struct {
	GroupID  string `json:"group_id"`
	UserID   string `json:"user_id"`
	JoinedAt string `json:"joined_at"`
}

func (h *httpHandler) handleListGroupMembers(c *gin.Context) {
	members, err := h.groups.ListMembers(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]memberPayload, 0, len(members))
	for _, member := range members {
		payload = append(payload, memberPayload{
			GroupID:  member.GroupID,
			UserID:   member.UserID,
			JoinedAt: member.JoinedAt.UTC().Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"members": payload})
}

type addMemberRequestPayload struct {
	UserID string `json:"user_id" binding:"required"`
}

func (h *httpHandler) handleAddGroupMember(c *gin.Context) {
	var request addMemberRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	member, err := h.groups.AddMember(c.Request.Context(), c.Param("id"), request.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, memberPayload{
		GroupID:  member.GroupID,
		UserID:   member.UserID,
		JoinedAt: member.JoinedAt.UTC().Format(time.RFC3339),
	})
}

func (h *httpHandler) handleRemoveGroupMember(c *gin.Context) {
	if err := h.groups.RemoveMember(c.Request.Context(), c.Param("id"), c.Param("userId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type responsiblePersonPayload struct {
	ID        string `json:"id"`
	GroupID   string `json:"group_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	RoleLabel string `json:"role_label"`
}

func (h *httpHandler) handleListResponsiblePersons(c *gin.Context) {
	persons, err := h.groups.ListResponsiblePersons(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]responsiblePersonPayload, 0, len(persons))
	for _, person := range persons {
		payload = append(payload, responsiblePersonPayload{
			ID:        person.ID,
			GroupID:   person.GroupID,
			Name:      person.Name,
			Email:     person.Email,
			RoleLabel: person.RoleLabel,
		})
	}
	c.JSON(http.StatusOK, gin.H{"responsible_persons": payload})
}

type addResponsiblePersonRequestPayload struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	RoleLabel string `json:"role_label"`
}

func (h *httpHandler) handleAddResponsiblePerson(c *gin.Context) {
	var request addResponsiblePersonRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	person, err := h.groups.AddResponsiblePerson(c.Request.Context(), c.Param("id"), request.Name, request.Email, request.RoleLabel)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, responsiblePersonPayload{
		ID:        person.ID,
		GroupID:   person.GroupID,
		Name:      person.Name,
		Email:     person.Email,
		RoleLabel: person.RoleLabel,
	})
}

func (h *httpHandler) handleRemoveResponsiblePerson(c *gin.Context) {
	if err := h.groups.RemoveResponsiblePerson(c.Request.Context(), c.Param("id"), c.Param("personId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

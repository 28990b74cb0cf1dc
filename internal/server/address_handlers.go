package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parteiportal/backend/internal/address"
)

type addressPayload struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Street     string   `json:"street"`
	Number     string   `json:"number"`
	PostalCode string   `json:"postal_code"`
	City       string   `json:"city"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Kind       string   `json:"kind"`
}

func addressToPayload(entry address.Address) addressPayload {
	return addressPayload{
		ID:         entry.ID,
		Label:      entry.Label,
		Street:     entry.Street,
		Number:     entry.Number,
		PostalCode: entry.PostalCode,
		City:       entry.City,
		Latitude:   entry.Latitude,
		Longitude:  entry.Longitude,
		Kind:       string(entry.Kind),
	}
}

func (h *httpHandler) handleListAddresses(c *gin.Context) {
	var kind address.Kind
	if raw := c.Query("kind"); raw != "" {
		parsed, ok := address.ParseKind(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind", "message": msgInvalidRequest})
			return
		}
		kind = parsed
	}
	entries, err := h.addresses.List(c.Request.Context(), kind)
	if err != nil {
		h.respondError(c, err)
		return
	}
	payload := make([]addressPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, addressToPayload(entry))
	}
	c.JSON(http.StatusOK, gin.H{"addresses": payload})
}

type createAddressRequestPayload struct {
	Label      string   `json:"label" binding:"required"`
	Street     string   `json:"street" binding:"required"`
	Number     string   `json:"number"`
	PostalCode string   `json:"postal_code" binding:"required"`
	City       string   `json:"city" binding:"required"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Kind       string   `json:"kind"`
}

func (h *httpHandler) handleCreateAddress(c *gin.Context) {
	var request createAddressRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	var kind address.Kind
	if request.Kind != "" {
		parsed, ok := address.ParseKind(request.Kind)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind", "message": msgInvalidRequest})
			return
		}
		kind = parsed
	}
	entry, err := h.addresses.Create(c.Request.Context(), address.CreateInput{
		Label:      request.Label,
		Street:     request.Street,
		Number:     request.Number,
		PostalCode: request.PostalCode,
		City:       request.City,
		Latitude:   request.Latitude,
		Longitude:  request.Longitude,
		Kind:       kind,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, addressToPayload(entry))
}

func (h *httpHandler) handleGetAddress(c *gin.Context) {
	entry, err := h.addresses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, addressToPayload(entry))
}

type updateAddressRequestPayload struct {
	Label      *string  `json:"label"`
	Street     *string  `json:"street"`
	Number     *string  `json:"number"`
	PostalCode *string  `json:"postal_code"`
	City       *string  `json:"city"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Kind       *string  `json:"kind"`
}

func (h *httpHandler) handleUpdateAddress(c *gin.Context) {
	var request updateAddressRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		h.respondBindError(c, err)
		return
	}
	input := address.UpdateInput{
		Label:      request.Label,
		Street:     request.Street,
		Number:     request.Number,
		PostalCode: request.PostalCode,
		City:       request.City,
		Latitude:   request.Latitude,
		Longitude:  request.Longitude,
	}
	if request.Kind != nil {
		parsed, ok := address.ParseKind(*request.Kind)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_kind", "message": msgInvalidRequest})
			return
		}
		input.Kind = &parsed
	}
	entry, err := h.addresses.Update(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, addressToPayload(entry))
}

func (h *httpHandler) handleDeleteAddress(c *gin.Context) {
	if err := h.addresses.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package newsletter

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Status enumerates the delivery lifecycle of a newsletter.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusSending  Status = "SENDING"
	StatusRetrying Status = "RETRYING"
	StatusSent     Status = "SENT"
	StatusFailed   Status = "FAILED"
)

// ParseStatus validates a raw status value.
func ParseStatus(raw string) (Status, bool) {
	switch Status(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusDraft:
		return StatusDraft, true
	case StatusSending:
		return StatusSending, true
	case StatusRetrying:
		return StatusRetrying, true
	case StatusSent:
		return StatusSent, true
	case StatusFailed:
		return StatusFailed, true
	default:
		return "", false
	}
}

// Item models a newsletter row. Recipient list, send state and tracking
// counters live in JSON columns; the version column guards every send-state
// rewrite with an optimistic concurrency check.
type Item struct {
	ID             string     `gorm:"column:id;primaryKey;size:190;not null"`
	Subject        string     `gorm:"column:subject;size:500;not null"`
	BodyHTML       string     `gorm:"column:body_html;type:text;not null"`
	Status         Status     `gorm:"column:status;size:32;not null;default:'DRAFT';index"`
	RecipientsJSON string     `gorm:"column:recipients_json;type:text;not null;default:'[]'"`
	SendStateJSON  string     `gorm:"column:send_state_json;type:text;not null;default:''"`
	TrackingJSON   string     `gorm:"column:tracking_json;type:text;not null;default:''"`
	Version        int64      `gorm:"column:version;not null;default:1"`
	SentAt         *time.Time `gorm:"column:sent_at"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Item) TableName() string {
	return "newsletter_items"
}

// Recipients decodes the stored recipient list.
func (i Item) Recipients() ([]string, error) {
	if strings.TrimSpace(i.RecipientsJSON) == "" {
		return nil, nil
	}
	var recipients []string
	if err := json.Unmarshal([]byte(i.RecipientsJSON), &recipients); err != nil {
		return nil, err
	}
	return recipients, nil
}

// RecipientState tracks delivery bookkeeping for one recipient.
type RecipientState struct {
	Attempts  int    `json:"attempts"`
	Delivered bool   `json:"delivered"`
	Permanent bool   `json:"permanent"`
	LastError string `json:"last_error,omitempty"`
}

// SendState is the typed record persisted in the send_state_json column.
type SendState struct {
	Recipients       map[string]RecipientState `json:"recipients"`
	AdminNotified    bool                      `json:"admin_notified"`
	StartedAtSeconds int64                     `json:"started_at_s,omitempty"`
}

// DecodeSendState parses the stored send state; an empty column yields a
// zero-value state.
func DecodeSendState(raw string) (SendState, error) {
	state := SendState{Recipients: map[string]RecipientState{}}
	if strings.TrimSpace(raw) == "" {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return SendState{}, err
	}
	if state.Recipients == nil {
		state.Recipients = map[string]RecipientState{}
	}
	return state, nil
}

// Encode serializes the state for persistence.
func (s SendState) Encode() (string, error) {
	encoded, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// PendingRecipients returns the recipients that are neither delivered nor
// permanently failed, in stable order.
func (s SendState) PendingRecipients() []string {
	pending := make([]string, 0, len(s.Recipients))
	for recipient, state := range s.Recipients {
		if !state.Delivered && !state.Permanent {
			pending = append(pending, recipient)
		}
	}
	sort.Strings(pending)
	return pending
}

// Counts summarizes delivery progress.
func (s SendState) Counts() (delivered, permanent, pending int) {
	for _, state := range s.Recipients {
		switch {
		case state.Delivered:
			delivered++
		case state.Permanent:
			permanent++
		default:
			pending++
		}
	}
	return delivered, permanent, pending
}

// HasRetryableFailures reports whether any pending recipient already failed at
// least once.
func (s SendState) HasRetryableFailures() bool {
	for _, state := range s.Recipients {
		if !state.Delivered && !state.Permanent && state.Attempts > 0 {
			return true
		}
	}
	return false
}

// TrackingState is the typed record persisted in the tracking_json column.
type TrackingState struct {
	Opens  map[string]int `json:"opens"`
	Clicks map[string]int `json:"clicks"`
}

// DecodeTrackingState parses the stored tracking counters; an empty column
// yields a zero-value state.
func DecodeTrackingState(raw string) (TrackingState, error) {
	state := TrackingState{Opens: map[string]int{}, Clicks: map[string]int{}}
	if strings.TrimSpace(raw) == "" {
		return state, nil
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return TrackingState{}, err
	}
	if state.Opens == nil {
		state.Opens = map[string]int{}
	}
	if state.Clicks == nil {
		state.Clicks = map[string]int{}
	}
	return state, nil
}

// Encode serializes the tracking counters for persistence.
func (s TrackingState) Encode() (string, error) {
	encoded, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

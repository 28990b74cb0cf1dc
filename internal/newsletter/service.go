package newsletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parteiportal/backend/internal/apperror"
	"github.com/parteiportal/backend/internal/identifier"
	"github.com/parteiportal/backend/internal/mailer"
)

const (
	opCreate    = "newsletter.create"
	opList      = "newsletter.list"
	opGet       = "newsletter.get"
	opUpdate    = "newsletter.update"
	opDelete    = "newsletter.delete"
	opSendChunk = "newsletter.send_chunk"

	defaultChunkSize   = 25
	defaultMaxAttempts = 3
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingMailer     = errors.New("mail client is required")

	msgNotFound     = "Der Newsletter wurde nicht gefunden."
	msgNotDraft     = "Nur Entwürfe können bearbeitet oder gelöscht werden."
	msgNotSendable  = "Der Newsletter wurde bereits vollständig versendet."
	msgStaleVersion = "Der Newsletter wurde zwischenzeitlich geändert. Bitte erneut laden."
	msgNoRecipients = "Der Newsletter hat keine Empfänger."
)

// MailClient is the slice of the mailer the send loop depends on.
type MailClient interface {
	Send(ctx context.Context, to, subject, html string) error
	SendBatch(ctx context.Context, recipients []string, subject, html string) []mailer.Result
}

// AdminDirectory resolves the admins who receive permanent-failure notices.
type AdminDirectory interface {
	AdminRecipients(ctx context.Context) ([]string, error)
}

// ProgressEvent summarizes delivery progress after one chunk.
type ProgressEvent struct {
	NewsletterID string
	Status       Status
	Delivered    int
	Permanent    int
	Pending      int
	Done         bool
}

// ProgressPublisher pushes chunk outcomes to listening admin sessions.
type ProgressPublisher interface {
	PublishProgress(event ProgressEvent)
}

// ServiceConfig describes the dependencies of the newsletter service.
type ServiceConfig struct {
	Database    *gorm.DB
	Mailer      MailClient
	Admins      AdminDirectory
	Progress    ProgressPublisher
	Clock       func() time.Time
	IDProvider  identifier.Provider
	ChunkSize   int
	MaxAttempts int
	Logger      *zap.Logger
}

// Service manages newsletter drafts and the chunked, browser-driven send loop.
type Service struct {
	db          *gorm.DB
	mailer      MailClient
	admins      AdminDirectory
	progress    ProgressPublisher
	clock       func() time.Time
	idProvider  identifier.Provider
	chunkSize   int
	maxAttempts int
	logger      *zap.Logger
}

// NewService constructs the newsletter service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperror.Internal(opCreate+".missing_database", errMissingDatabase)
	}
	if cfg.Mailer == nil {
		return nil, apperror.Internal(opCreate+".missing_mailer", errMissingMailer)
	}
	if cfg.IDProvider == nil {
		return nil, apperror.Internal(opCreate+".missing_id_provider", errMissingIDProvider)
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:          cfg.Database,
		mailer:      cfg.Mailer,
		admins:      cfg.Admins,
		progress:    cfg.Progress,
		clock:       clock,
		idProvider:  cfg.IDProvider,
		chunkSize:   chunkSize,
		maxAttempts: maxAttempts,
		logger:      logger,
	}, nil
}

// CreateInput carries a new newsletter draft.
type CreateInput struct {
	Subject    string
	BodyHTML   string
	Recipients []string
}

// Create persists a new draft.
func (s *Service) Create(ctx context.Context, input CreateInput) (Item, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return Item{}, apperror.New(apperror.KindInvalid, opCreate+".missing_subject", "Der Betreff darf nicht leer sein.", nil)
	}
	recipients := normalizeRecipients(input.Recipients)
	recipientsJSON, err := json.Marshal(recipients)
	if err != nil {
		return Item{}, apperror.Internal(opCreate+".encode_recipients", err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Item{}, apperror.Internal(opCreate+".id_generation_failed", err)
	}
	item := Item{
		ID:             id,
		Subject:        subject,
		BodyHTML:       input.BodyHTML,
		Status:         StatusDraft,
		RecipientsJSON: string(recipientsJSON),
		Version:        1,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		s.logger.Error("newsletter insert failed", zap.String("operation", opCreate), zap.Error(err))
		return Item{}, apperror.Internal(opCreate+".insert_failed", err)
	}
	return item, nil
}

// List returns newsletters, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]Item, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var items []Item
	if err := query.Find(&items).Error; err != nil {
		s.logger.Error("newsletter query failed", zap.String("operation", opList), zap.Error(err))
		return nil, apperror.Internal(opList+".query_failed", err)
	}
	return items, nil
}

// Get loads a single newsletter.
func (s *Service) Get(ctx context.Context, id string) (Item, error) {
	return s.find(ctx, opGet, id)
}

// UpdateInput carries the mutable fields of a draft. Nil pointers leave the
// stored value untouched.
type UpdateInput struct {
	Subject    *string
	BodyHTML   *string
	Recipients *[]string
}

// Update edits a newsletter. Only drafts are editable.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (Item, error) {
	item, err := s.find(ctx, opUpdate, id)
	if err != nil {
		return Item{}, err
	}
	if item.Status != StatusDraft {
		return Item{}, apperror.New(apperror.KindInvalid, opUpdate+".not_draft", msgNotDraft, nil)
	}

	updates := map[string]interface{}{}
	if input.Subject != nil {
		subject := strings.TrimSpace(*input.Subject)
		if subject == "" {
			return Item{}, apperror.New(apperror.KindInvalid, opUpdate+".empty_subject", "Der Betreff darf nicht leer sein.", nil)
		}
		updates["subject"] = subject
	}
	if input.BodyHTML != nil {
		updates["body_html"] = *input.BodyHTML
	}
	if input.Recipients != nil {
		recipientsJSON, err := json.Marshal(normalizeRecipients(*input.Recipients))
		if err != nil {
			return Item{}, apperror.Internal(opUpdate+".encode_recipients", err)
		}
		updates["recipients_json"] = string(recipientsJSON)
	}
	if len(updates) == 0 {
		return item, nil
	}

	if err := s.db.WithContext(ctx).Model(&Item{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		s.logger.Error("newsletter update failed", zap.String("operation", opUpdate), zap.Error(err))
		return Item{}, apperror.Internal(opUpdate+".update_failed", err)
	}
	return s.find(ctx, opUpdate, id)
}

// Delete removes a newsletter. Only drafts may be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	item, err := s.find(ctx, opDelete, id)
	if err != nil {
		return err
	}
	if item.Status != StatusDraft {
		return apperror.New(apperror.KindInvalid, opDelete+".not_draft", msgNotDraft, nil)
	}
	if err := s.db.WithContext(ctx).Delete(&Item{}, "id = ?", id).Error; err != nil {
		s.logger.Error("newsletter delete failed", zap.String("operation", opDelete), zap.Error(err))
		return apperror.Internal(opDelete+".delete_failed", err)
	}
	return nil
}

// ChunkReport is the response of one send-chunk call. The browser keeps
// POSTing until Done is true.
type ChunkReport struct {
	Status    Status
	Processed int
	Delivered int
	Permanent int
	Pending   int
	Done      bool
}

// SendChunk processes the next chunk of pending recipients. State is reloaded
// per call; the final write is guarded by the item's version column, so a
// concurrent chunk for the same newsletter loses with a conflict instead of
// silently overwriting bookkeeping.
func (s *Service) SendChunk(ctx context.Context, id string) (ChunkReport, error) {
	item, err := s.find(ctx, opSendChunk, id)
	if err != nil {
		return ChunkReport{}, err
	}

	switch item.Status {
	case StatusDraft, StatusSending, StatusRetrying:
	default:
		return ChunkReport{}, apperror.New(apperror.KindConflict, opSendChunk+".not_sendable", msgNotSendable, nil)
	}

	state, err := DecodeSendState(item.SendStateJSON)
	if err != nil {
		s.logger.Error("send state decode failed", zap.String("operation", opSendChunk), zap.String("newsletter_id", id), zap.Error(err))
		return ChunkReport{}, apperror.Internal(opSendChunk+".decode_state", err)
	}

	if item.Status == StatusDraft {
		recipients, err := item.Recipients()
		if err != nil {
			return ChunkReport{}, apperror.Internal(opSendChunk+".decode_recipients", err)
		}
		if len(recipients) == 0 {
			return ChunkReport{}, apperror.New(apperror.KindInvalid, opSendChunk+".no_recipients", msgNoRecipients, nil)
		}
		for _, recipient := range recipients {
			if _, ok := state.Recipients[recipient]; !ok {
				state.Recipients[recipient] = RecipientState{}
			}
		}
		state.StartedAtSeconds = s.clock().UTC().Unix()
	}

	chunk := state.PendingRecipients()
	if len(chunk) > s.chunkSize {
		chunk = chunk[:s.chunkSize]
	}

	newlyPermanent := make([]string, 0)
	if len(chunk) > 0 {
		results := s.mailer.SendBatch(ctx, chunk, item.Subject, item.BodyHTML)
		for _, result := range results {
			recipientState := state.Recipients[result.Recipient]
			if result.Err == nil {
				recipientState.Delivered = true
				recipientState.LastError = ""
			} else {
				recipientState.Attempts++
				recipientState.LastError = result.Err.Error()
				if recipientState.Attempts >= s.maxAttempts {
					recipientState.Permanent = true
					newlyPermanent = append(newlyPermanent, result.Recipient)
				}
			}
			state.Recipients[result.Recipient] = recipientState
		}
	}

	if len(newlyPermanent) > 0 && !state.AdminNotified {
		s.notifyAdmins(ctx, item, state)
		state.AdminNotified = true
	}

	delivered, permanent, pending := state.Counts()
	nextStatus := item.Status
	var sentAt *time.Time
	done := pending == 0
	switch {
	case done && permanent > 0:
		nextStatus = StatusFailed
		now := s.clock().UTC()
		sentAt = &now
	case done:
		nextStatus = StatusSent
		now := s.clock().UTC()
		sentAt = &now
	case state.HasRetryableFailures():
		nextStatus = StatusRetrying
	default:
		nextStatus = StatusSending
	}

	encoded, err := state.Encode()
	if err != nil {
		return ChunkReport{}, apperror.Internal(opSendChunk+".encode_state", err)
	}
	updates := map[string]interface{}{
		"send_state_json": encoded,
		"status":          nextStatus,
		"version":         item.Version + 1,
	}
	if sentAt != nil {
		updates["sent_at"] = *sentAt
	}
	result := s.db.WithContext(ctx).Model(&Item{}).
		Where("id = ? AND version = ?", id, item.Version).
		Updates(updates)
	if result.Error != nil {
		s.logger.Error("send state write failed", zap.String("operation", opSendChunk), zap.Error(result.Error))
		return ChunkReport{}, apperror.Internal(opSendChunk+".update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ChunkReport{}, apperror.New(apperror.KindConflict, opSendChunk+".stale_version", msgStaleVersion, nil)
	}

	if s.progress != nil {
		s.progress.PublishProgress(ProgressEvent{
			NewsletterID: id,
			Status:       nextStatus,
			Delivered:    delivered,
			Permanent:    permanent,
			Pending:      pending,
			Done:         done,
		})
	}

	return ChunkReport{
		Status:    nextStatus,
		Processed: len(chunk),
		Delivered: delivered,
		Permanent: permanent,
		Pending:   pending,
		Done:      done,
	}, nil
}

func (s *Service) notifyAdmins(ctx context.Context, item Item, state SendState) {
	if s.admins == nil {
		return
	}
	recipients, err := s.admins.AdminRecipients(ctx)
	if err != nil || len(recipients) == 0 {
		if err != nil {
			s.logger.Warn("admin recipient lookup failed", zap.String("newsletter_id", item.ID), zap.Error(err))
		}
		return
	}

	failed := make([]string, 0)
	for recipient, recipientState := range state.Recipients {
		if recipientState.Permanent {
			failed = append(failed, fmt.Sprintf("%s (%s)", recipient, recipientState.LastError))
		}
	}
	subject := fmt.Sprintf("Newsletter-Zustellung fehlgeschlagen: %s", item.Subject)
	body := fmt.Sprintf(
		"<p>Beim Versand des Newsletters <strong>%s</strong> konnten folgende Empfänger dauerhaft nicht erreicht werden:</p><ul><li>%s</li></ul>",
		item.Subject,
		strings.Join(failed, "</li><li>"),
	)
	for _, admin := range recipients {
		if err := s.mailer.Send(ctx, admin, subject, body); err != nil {
			s.logger.Warn("admin failure notice not delivered", zap.String("admin", admin), zap.Error(err))
		}
	}
}

func (s *Service) find(ctx context.Context, operation, id string) (Item, error) {
	var item Item
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Item{}, apperror.New(apperror.KindNotFound, operation+".not_found", msgNotFound, nil)
	}
	if err != nil {
		s.logger.Error("newsletter lookup failed", zap.String("operation", operation), zap.Error(err))
		return Item{}, apperror.Internal(operation+".query_failed", err)
	}
	return item, nil
}

func normalizeRecipients(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	recipients := make([]string, 0, len(raw))
	for _, value := range raw {
		email := strings.ToLower(strings.TrimSpace(value))
		if email == "" {
			continue
		}
		if _, ok := seen[email]; ok {
			continue
		}
		seen[email] = struct{}{}
		recipients = append(recipients, email)
	}
	return recipients
}

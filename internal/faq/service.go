package faq

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parteiportal/backend/internal/apperror"
	"github.com/parteiportal/backend/internal/identifier"
)

const (
	opCreate   = "faq.create"
	opList     = "faq.list"
	opUpdate   = "faq.update"
	opActivate = "faq.activate"
	opArchive  = "faq.archive"
	opDelete   = "faq.delete"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")

	msgNotFound     = "FAQ-Eintrag wurde nicht gefunden."
	msgActiveDelete = "Aktive FAQ-Einträge können nicht gelöscht werden."
)

// ServiceConfig describes the dependencies of the FAQ service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider identifier.Provider
	Logger     *zap.Logger
}

// Service manages FAQ entries and their lifecycle.
type Service struct {
	db         *gorm.DB
	idProvider identifier.Provider
	logger     *zap.Logger
}

// NewService constructs the FAQ service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperror.Internal(opCreate+".missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperror.Internal(opCreate+".missing_id_provider", errMissingIDProvider)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, idProvider: cfg.IDProvider, logger: logger}, nil
}

// CreateInput carries the fields accepted when creating an entry.
type CreateInput struct {
	Question     string
	Answer       string
	Category     string
	DisplayOrder int
}

// Create persists a new FAQ entry in NEW status.
func (s *Service) Create(ctx context.Context, input CreateInput) (Entry, error) {
	question := strings.TrimSpace(input.Question)
	answer := strings.TrimSpace(input.Answer)
	if question == "" || answer == "" {
		return Entry{}, apperror.New(apperror.KindInvalid, opCreate+".missing_fields", "Frage und Antwort dürfen nicht leer sein.", nil)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Entry{}, apperror.Internal(opCreate+".id_generation_failed", err)
	}
	entry := Entry{
		ID:           id,
		Question:     question,
		Answer:       answer,
		Category:     strings.TrimSpace(input.Category),
		DisplayOrder: input.DisplayOrder,
		Status:       StatusNew,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error("faq insert failed", zap.String("operation", opCreate), zap.Error(err))
		return Entry{}, apperror.Internal(opCreate+".insert_failed", err)
	}
	return entry, nil
}

// List returns entries ordered by category and display order. An empty status
// filter returns every entry.
func (s *Service) List(ctx context.Context, status Status) ([]Entry, error) {
	query := s.db.WithContext(ctx).Order("category ASC, display_order ASC, created_at ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var entries []Entry
	if err := query.Find(&entries).Error; err != nil {
		s.logger.Error("faq query failed", zap.String("operation", opList), zap.Error(err))
		return nil, apperror.Internal(opList+".query_failed", err)
	}
	return entries, nil
}

// UpdateInput carries the mutable fields of an entry. Nil pointers leave the
// stored value untouched.
type UpdateInput struct {
	Question     *string
	Answer       *string
	Category     *string
	DisplayOrder *int
}

// Update patches the textual fields of an entry.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (Entry, error) {
	entry, err := s.find(ctx, opUpdate, id)
	if err != nil {
		return Entry{}, err
	}

	updates := map[string]interface{}{}
	if input.Question != nil {
		question := strings.TrimSpace(*input.Question)
		if question == "" {
			return Entry{}, apperror.New(apperror.KindInvalid, opUpdate+".empty_question", "Die Frage darf nicht leer sein.", nil)
		}
		updates["question"] = question
	}
	if input.Answer != nil {
		answer := strings.TrimSpace(*input.Answer)
		if answer == "" {
			return Entry{}, apperror.New(apperror.KindInvalid, opUpdate+".empty_answer", "Die Antwort darf nicht leer sein.", nil)
		}
		updates["answer"] = answer
	}
	if input.Category != nil {
		updates["category"] = strings.TrimSpace(*input.Category)
	}
	if input.DisplayOrder != nil {
		updates["display_order"] = *input.DisplayOrder
	}
	if len(updates) == 0 {
		return entry, nil
	}

	if err := s.db.WithContext(ctx).Model(&Entry{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		s.logger.Error("faq update failed", zap.String("operation", opUpdate), zap.Error(err))
		return Entry{}, apperror.Internal(opUpdate+".update_failed", err)
	}
	return s.find(ctx, opUpdate, id)
}

// Activate moves an entry to ACTIVE.
func (s *Service) Activate(ctx context.Context, id string) (Entry, error) {
	return s.transition(ctx, opActivate, id, StatusActive)
}

// Archive moves an entry to ARCHIVED.
func (s *Service) Archive(ctx context.Context, id string) (Entry, error) {
	return s.transition(ctx, opArchive, id, StatusArchived)
}

// Delete removes an entry. Only archived entries may be deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	entry, err := s.find(ctx, opDelete, id)
	if err != nil {
		return err
	}
	if entry.Status != StatusArchived {
		return apperror.New(apperror.KindInvalid, opDelete+".not_archived", msgActiveDelete, nil)
	}
	if err := s.db.WithContext(ctx).Delete(&Entry{}, "id = ?", id).Error; err != nil {
		s.logger.Error("faq delete failed", zap.String("operation", opDelete), zap.Error(err))
		return apperror.Internal(opDelete+".delete_failed", err)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, operation, id string, target Status) (Entry, error) {
	entry, err := s.find(ctx, operation, id)
	if err != nil {
		return Entry{}, err
	}
	if entry.Status == target {
		return entry, nil
	}
	if err := s.db.WithContext(ctx).Model(&Entry{}).Where("id = ?", id).Update("status", target).Error; err != nil {
		s.logger.Error("faq status update failed", zap.String("operation", operation), zap.Error(err))
		return Entry{}, apperror.Internal(operation+".update_failed", err)
	}
	entry.Status = target
	return entry, nil
}

func (s *Service) find(ctx context.Context, operation, id string) (Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Entry{}, apperror.New(apperror.KindNotFound, operation+".not_found", msgNotFound, nil)
	}
	if err != nil {
		s.logger.Error("faq lookup failed", zap.String("operation", operation), zap.Error(err))
		return Entry{}, apperror.Internal(operation+".query_failed", err)
	}
	return entry, nil
}

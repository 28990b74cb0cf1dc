package antrag

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parteiportal/backend/internal/apperror"
	"github.com/parteiportal/backend/internal/identifier"
)

const (
	opCreate = "antrag.create"
	opList   = "antrag.list"
	opGet    = "antrag.get"
	opUpdate = "antrag.update"
	opDecide = "antrag.decide"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")

	msgNotFound       = "Der Antrag wurde nicht gefunden."
	msgNotEditable    = "Nur Anträge im Status NEU können bearbeitet werden."
	msgForeignAntrag  = "Sie können nur eigene Anträge bearbeiten."
	msgAlreadyDecided = "Der Antrag wurde bereits entschieden."
)

// ServiceConfig describes the dependencies of the Antrag service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identifier.Provider
	Logger     *zap.Logger
}

// Service manages the submission, editing and decision of Anträge.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider identifier.Provider
	logger     *zap.Logger
}

// NewService constructs the Antrag service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperror.Internal(opCreate+".missing_database", errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, apperror.Internal(opCreate+".missing_id_provider", errMissingIDProvider)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, idProvider: cfg.IDProvider, logger: logger}, nil
}

// CreateInput carries a new Antrag submission.
type CreateInput struct {
	ApplicantID string
	Title       string
	Purpose     string
	AmountCents int64
}

// Create persists a new Antrag in NEU status.
func (s *Service) Create(ctx context.Context, input CreateInput) (Antrag, error) {
	title := strings.TrimSpace(input.Title)
	purpose := strings.TrimSpace(input.Purpose)
	if title == "" || purpose == "" {
		return Antrag{}, apperror.New(apperror.KindInvalid, opCreate+".missing_fields", "Titel und Verwendungszweck dürfen nicht leer sein.", nil)
	}
	if input.AmountCents < 0 {
		return Antrag{}, apperror.New(apperror.KindInvalid, opCreate+".negative_amount", "Der beantragte Betrag darf nicht negativ sein.", nil)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Antrag{}, apperror.Internal(opCreate+".id_generation_failed", err)
	}
	item := Antrag{
		ID:          id,
		ApplicantID: input.ApplicantID,
		Title:       title,
		Purpose:     purpose,
		AmountCents: input.AmountCents,
		Status:      StatusNeu,
	}
	if err := s.db.WithContext(ctx).Create(&item).Error; err != nil {
		s.logger.Error("antrag insert failed", zap.String("operation", opCreate), zap.Error(err))
		return Antrag{}, apperror.Internal(opCreate+".insert_failed", err)
	}
	return item, nil
}

// List returns Anträge, optionally filtered by applicant and status.
func (s *Service) List(ctx context.Context, applicantID string, status Status) ([]Antrag, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if applicantID != "" {
		query = query.Where("applicant_id = ?", applicantID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var items []Antrag
	if err := query.Find(&items).Error; err != nil {
		s.logger.Error("antrag query failed", zap.String("operation", opList), zap.Error(err))
		return nil, apperror.Internal(opList+".query_failed", err)
	}
	return items, nil
}

// Get loads a single Antrag.
func (s *Service) Get(ctx context.Context, id string) (Antrag, error) {
	return s.find(ctx, opGet, id)
}

// UpdateInput carries the mutable fields of an Antrag. Nil pointers leave the
// stored value untouched.
type UpdateInput struct {
	Title       *string
	Purpose     *string
	AmountCents *int64
}

// Update edits an Antrag. Only the applicant may edit, and only while the
// Antrag is still in NEU status; edits afterwards are forbidden.
func (s *Service) Update(ctx context.Context, id, applicantID string, input UpdateInput) (Antrag, error) {
	item, err := s.find(ctx, opUpdate, id)
	if err != nil {
		return Antrag{}, err
	}
	if item.ApplicantID != applicantID {
		return Antrag{}, apperror.New(apperror.KindForbidden, opUpdate+".foreign_antrag", msgForeignAntrag, nil)
	}
	if item.Status != StatusNeu {
		return Antrag{}, apperror.New(apperror.KindForbidden, opUpdate+".not_editable", msgNotEditable, nil)
	}

	updates := map[string]interface{}{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return Antrag{}, apperror.New(apperror.KindInvalid, opUpdate+".empty_title", "Der Titel darf nicht leer sein.", nil)
		}
		updates["title"] = title
	}
	if input.Purpose != nil {
		purpose := strings.TrimSpace(*input.Purpose)
		if purpose == "" {
			return Antrag{}, apperror.New(apperror.KindInvalid, opUpdate+".empty_purpose", "Der Verwendungszweck darf nicht leer sein.", nil)
		}
		updates["purpose"] = purpose
	}
	if input.AmountCents != nil {
		if *input.AmountCents < 0 {
			return Antrag{}, apperror.New(apperror.KindInvalid, opUpdate+".negative_amount", "Der beantragte Betrag darf nicht negativ sein.", nil)
		}
		updates["amount_cents"] = *input.AmountCents
	}
	if len(updates) == 0 {
		return item, nil
	}

	if err := s.db.WithContext(ctx).Model(&Antrag{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		s.logger.Error("antrag update failed", zap.String("operation", opUpdate), zap.Error(err))
		return Antrag{}, apperror.Internal(opUpdate+".update_failed", err)
	}
	return s.find(ctx, opUpdate, id)
}

// Decide moves a NEU Antrag to AKZEPTIERT or ABGELEHNT exactly once.
func (s *Service) Decide(ctx context.Context, id, decidedBy string, accepted bool, note string) (Antrag, error) {
	item, err := s.find(ctx, opDecide, id)
	if err != nil {
		return Antrag{}, err
	}
	if item.Status != StatusNeu {
		return Antrag{}, apperror.New(apperror.KindConflict, opDecide+".already_decided", msgAlreadyDecided, nil)
	}

	target := StatusAbgelehnt
	if accepted {
		target = StatusAkzeptiert
	}
	decidedAt := s.clock().UTC()

	result := s.db.WithContext(ctx).Model(&Antrag{}).
		Where("id = ? AND status = ?", id, StatusNeu).
		Updates(map[string]interface{}{
			"status":        target,
			"decision_note": strings.TrimSpace(note),
			"decided_by":    decidedBy,
			"decided_at":    decidedAt,
		})
	if result.Error != nil {
		s.logger.Error("antrag decision failed", zap.String("operation", opDecide), zap.Error(result.Error))
		return Antrag{}, apperror.Internal(opDecide+".update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Antrag{}, apperror.New(apperror.KindConflict, opDecide+".already_decided", msgAlreadyDecided, nil)
	}

	item.Status = target
	item.DecisionNote = strings.TrimSpace(note)
	item.DecidedBy = decidedBy
	item.DecidedAt = &decidedAt
	return item, nil
}

func (s *Service) find(ctx context.Context, operation, id string) (Antrag, error) {
	var item Antrag
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Antrag{}, apperror.New(apperror.KindNotFound, operation+".not_found", msgNotFound, nil)
	}
	if err != nil {
		s.logger.Error("antrag lookup failed", zap.String("operation", operation), zap.Error(err))
		return Antrag{}, apperror.Internal(operation+".query_failed", err)
	}
	return item, nil
}

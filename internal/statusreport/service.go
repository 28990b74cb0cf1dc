package statusreport

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/parteiportal/backend/internal/apperror"
	"github.com/parteiportal/backend/internal/groups"
	"github.com/parteiportal/backend/internal/identifier"
)

const (
	opSubmit = "status_reports.submit"
	opList   = "status_reports.list"
	opGet    = "status_reports.get"
	opDecide = "status_reports.decide"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errMissingGroups     = errors.New("group service is required")

	msgNotFound       = "Der Statusbericht wurde nicht gefunden."
	msgAlreadyDecided = "Der Statusbericht wurde bereits entschieden."
)

// GroupFinder resolves groups eligible for report submission.
type GroupFinder interface {
	FindActive(ctx context.Context, id string) (groups.Group, error)
}

// ServiceConfig describes the dependencies of the status-report service.
type ServiceConfig struct {
	Database   *gorm.DB
	Groups     GroupFinder
	Clock      func() time.Time
	IDProvider identifier.Provider
	Logger     *zap.Logger
}

// Service manages the submission and approval of group status reports.
type Service struct {
	db         *gorm.DB
	groups     GroupFinder
	clock      func() time.Time
	idProvider identifier.Provider
	logger     *zap.Logger
}

// NewService constructs the status-report service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperror.Internal(opSubmit+".missing_database", errMissingDatabase)
	}
	if cfg.Groups == nil {
		return nil, apperror.Internal(opSubmit+".missing_groups", errMissingGroups)
	}
	if cfg.IDProvider == nil {
		return nil, apperror.Internal(opSubmit+".missing_id_provider", errMissingIDProvider)
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
		db:         cfg.Database,
		groups:     cfg.Groups,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// SubmitInput carries a new report submission.
type SubmitInput struct {
	GroupID     string
	SubmittedBy string
	Title       string
	Body        string
	PeriodLabel string
}

// Submit records a report for an ACTIVE group. Submission against an unknown
// or non-active group reports not-found.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Report, error) {
	title := strings.TrimSpace(input.Title)
	body := strings.TrimSpace(input.Body)
	if title == "" || body == "" {
		return Report{}, apperror.New(apperror.KindInvalid, opSubmit+".missing_fields", "Titel und Inhalt dürfen nicht leer sein.", nil)
	}

	if _, err := s.groups.FindActive(ctx, input.GroupID); err != nil {
		return Report{}, err
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Report{}, apperror.Internal(opSubmit+".id_generation_failed", err)
	}
	report := Report{
		ID:          id,
		GroupID:     input.GroupID,
		SubmittedBy: input.SubmittedBy,
		Title:       title,
		Body:        body,
		PeriodLabel: strings.TrimSpace(input.PeriodLabel),
		Status:      StatusNeu,
	}
	if err := s.db.WithContext(ctx).Create(&report).Error; err != nil {
		s.logger.Error("status report insert failed", zap.String("operation", opSubmit), zap.Error(err))
		return Report{}, apperror.Internal(opSubmit+".insert_failed", err)
	}
	return report, nil
}

// List returns reports, optionally filtered by group and status.
func (s *Service) List(ctx context.Context, groupID string, status Status) ([]Report, error) {
	query := s.db.WithContext(ctx).Order("created_at DESC")
	if groupID != "" {
		query = query.Where("group_id = ?", groupID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var reports []Report
	if err := query.Find(&reports).Error; err != nil {
		s.logger.Error("status report query failed", zap.String("operation", opList), zap.Error(err))
		return nil, apperror.Internal(opList+".query_failed", err)
	}
	return reports, nil
}

// Get loads a single report.
func (s *Service) Get(ctx context.Context, id string) (Report, error) {
	return s.find(ctx, opGet, id)
}

// Decide moves a NEU report to AKZEPTIERT or ABGELEHNT exactly once.
func (s *Service) Decide(ctx context.Context, id, decidedBy string, accepted bool, note string) (Report, error) {
	report, err := s.find(ctx, opDecide, id)
	if err != nil {
		return Report{}, err
	}
	if report.Status != StatusNeu {
		return Report{}, apperror.New(apperror.KindConflict, opDecide+".already_decided", msgAlreadyDecided, nil)
	}

	target := StatusAbgelehnt
	if accepted {
		target = StatusAkzeptiert
	}
	decidedAt := s.clock().UTC()

	result := s.db.WithContext(ctx).Model(&Report{}).
		Where("id = ? AND status = ?", id, StatusNeu).
		Updates(map[string]interface{}{
			"status":        target,
			"decision_note": strings.TrimSpace(note),
			"decided_by":    decidedBy,
			"decided_at":    decidedAt,
		})
	if result.Error != nil {
		s.logger.Error("status report decision failed", zap.String("operation", opDecide), zap.Error(result.Error))
		return Report{}, apperror.Internal(opDecide+".update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return Report{}, apperror.New(apperror.KindConflict, opDecide+".already_decided", msgAlreadyDecided, nil)
	}

	report.Status = target
	report.DecisionNote = strings.TrimSpace(note)
	report.DecidedBy = decidedBy
	report.DecidedAt = &decidedAt
	return report, nil
}

func (s *Service) find(ctx context.Context, operation, id string) (Report, error) {
	var report Report
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Report{}, apperror.New(apperror.KindNotFound, operation+".not_found", msgNotFound, nil)
	}
	if err != nil {
		s.logger.Error("status report lookup failed", zap.String("operation", operation), zap.Error(err))
		return Report{}, apperror.Internal(operation+".query_failed", err)
	}
	return report, nil
}

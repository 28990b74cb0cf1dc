package address

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
	opCreate = "addresses.create"
	opList   = "addresses.list"
	opGet    = "addresses.get"
	opUpdate = "addresses.update"
	opDelete = "addresses.delete"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")

	msgNotFound = "Die Adresse wurde nicht gefunden."
)

// ServiceConfig describes the dependencies of the address service.
type ServiceConfig struct {
	Database   *gorm.DB
	IDProvider identifier.Provider
	Logger     *zap.Logger
}

// Service manages the chapter's address book.
type Service struct {
	db         *gorm.DB
	idProvider identifier.Provider
	logger     *zap.Logger
}

// NewService constructs the address service.
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

// CreateInput carries the fields of a new address.
type CreateInput struct {
	Label      string
	Street     string
	Number     string
	PostalCode string
	City       string
	Latitude   *float64
	Longitude  *float64
	Kind       Kind
}

// Create persists a new address.
func (s *Service) Create(ctx context.Context, input CreateInput) (Address, error) {
	label := strings.TrimSpace(input.Label)
	street := strings.TrimSpace(input.Street)
	postalCode := strings.TrimSpace(input.PostalCode)
	city := strings.TrimSpace(input.City)
	if label == "" || street == "" || postalCode == "" || city == "" {
		return Address{}, apperror.New(apperror.KindInvalid, opCreate+".missing_fields", "Bezeichnung, Straße, Postleitzahl und Ort dürfen nicht leer sein.", nil)
	}
	kind := input.Kind
	if kind == "" {
		kind = KindOffice
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Address{}, apperror.Internal(opCreate+".id_generation_failed", err)
	}
	entry := Address{
		ID:         id,
		Label:      label,
		Street:     street,
		Number:     strings.TrimSpace(input.Number),
		PostalCode: postalCode,
		City:       city,
		Latitude:   input.Latitude,
		Longitude:  input.Longitude,
		Kind:       kind,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Error("address insert failed", zap.String("operation", opCreate), zap.Error(err))
		return Address{}, apperror.Internal(opCreate+".insert_failed", err)
	}
	return entry, nil
}

// List returns addresses, optionally filtered by kind.
func (s *Service) List(ctx context.Context, kind Kind) ([]Address, error) {
	query := s.db.WithContext(ctx).Order("label ASC")
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}
	var entries []Address
	if err := query.Find(&entries).Error; err != nil {
		s.logger.Error("address query failed", zap.String("operation", opList), zap.Error(err))
		return nil, apperror.Internal(opList+".query_failed", err)
	}
	return entries, nil
}

// Get loads a single address.
func (s *Service) Get(ctx context.Context, id string) (Address, error) {
	return s.find(ctx, opGet, id)
}

// UpdateInput carries the mutable fields of an address. Nil pointers leave the
// stored value untouched.
type UpdateInput struct {
	Label      *string
	Street     *string
	Number     *string
	PostalCode *string
	City       *string
	Latitude   *float64
	Longitude  *float64
	Kind       *Kind
}

// Update patches address fields.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (Address, error) {
	if _, err := s.find(ctx, opUpdate, id); err != nil {
		return Address{}, err
	}

	updates := map[string]interface{}{}
	setTrimmed := func(column string, value *string) error {
		if value == nil {
			return nil
		}
		trimmed := strings.TrimSpace(*value)
		if trimmed == "" && column != "house_number" {
			return apperror.New(apperror.KindInvalid, opUpdate+".empty_field", "Pflichtfelder dürfen nicht leer sein.", nil)
		}
		updates[column] = trimmed
		return nil
	}
	if err := setTrimmed("label", input.Label); err != nil {
		return Address{}, err
	}
	if err := setTrimmed("street", input.Street); err != nil {
		return Address{}, err
	}
	if err := setTrimmed("house_number", input.Number); err != nil {
		return Address{}, err
	}
	if err := setTrimmed("postal_code", input.PostalCode); err != nil {
		return Address{}, err
	}
	if err := setTrimmed("city", input.City); err != nil {
		return Address{}, err
	}
	if input.Latitude != nil {
		updates["latitude"] = *input.Latitude
	}
	if input.Longitude != nil {
		updates["longitude"] = *input.Longitude
	}
	if input.Kind != nil {
		updates["kind"] = *input.Kind
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&Address{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			s.logger.Error("address update failed", zap.String("operation", opUpdate), zap.Error(err))
			return Address{}, apperror.Internal(opUpdate+".update_failed", err)
		}
	}
	return s.find(ctx, opUpdate, id)
}

// Delete removes an address.
func (s *Service) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&Address{}, "id = ?", id)
	if result.Error != nil {
		s.logger.Error("address delete failed", zap.String("operation", opDelete), zap.Error(result.Error))
		return apperror.Internal(opDelete+".delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.New(apperror.KindNotFound, opDelete+".not_found", msgNotFound, nil)
	}
	return nil
}

func (s *Service) find(ctx context.Context, operation, id string) (Address, error) {
	var entry Address
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Address{}, apperror.New(apperror.KindNotFound, operation+".not_found", msgNotFound, nil)
	}
	if err != nil {
		s.logger.Error("address lookup failed", zap.String("operation", operation), zap.Error(err))
		return Address{}, apperror.Internal(operation+".query_failed", err)
	}
	return entry, nil
}

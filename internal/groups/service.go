package groups

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
	opCreate        = "groups.create"
	opList          = "groups.list"
	opGet           = "groups.get"
	opUpdate        = "groups.update"
	opActivate      = "groups.activate"
	opArchive       = "groups.archive"
	opAddMember     = "groups.add_member"
	opRemoveMember  = "groups.remove_member"
	opListMembers   = "groups.list_members"
	opAddPerson     = "groups.add_responsible_person"
	opRemovePerson  = "groups.remove_responsible_person"
	opListPersons   = "groups.list_responsible_persons"
	opFindActive    = "groups.find_active"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")

	msgNotFound        = "Die Gruppe wurde nicht gefunden."
	msgInvalidSchedule = "Der Sitzungsrhythmus ist ungültig."
	msgArchivedMember  = "Archivierte Gruppen können keine neuen Mitglieder aufnehmen."
	msgDuplicateMember = "Die Person ist bereits Mitglied dieser Gruppe."
)

// ServiceConfig describes the dependencies of the group service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider identifier.Provider
	Logger     *zap.Logger
}

// Service manages groups, their members and responsible persons.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider identifier.Provider
	logger     *zap.Logger
}

// NewService constructs the group service.
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

// CreateInput carries the fields accepted when founding a group.
type CreateInput struct {
	Name            string
	Description     string
	ContactEmail    string
	MeetingSchedule string
	MeetingLocation string
}

// Create persists a new group in NEW status.
func (s *Service) Create(ctx context.Context, input CreateInput) (Group, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Group{}, apperror.New(apperror.KindInvalid, opCreate+".missing_name", "Der Gruppenname darf nicht leer sein.", nil)
	}
	if err := ValidateSchedule(input.MeetingSchedule); err != nil {
		return Group{}, apperror.New(apperror.KindInvalid, opCreate+".invalid_schedule", msgInvalidSchedule, err)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		return Group{}, apperror.Internal(opCreate+".id_generation_failed", err)
	}
	group := Group{
		ID:              id,
		Name:            name,
		Description:     strings.TrimSpace(input.Description),
		Status:          StatusNew,
		ContactEmail:    strings.TrimSpace(input.ContactEmail),
		MeetingSchedule: strings.TrimSpace(input.MeetingSchedule),
		MeetingLocation: strings.TrimSpace(input.MeetingLocation),
	}
	if err := s.db.WithContext(ctx).Create(&group).Error; err != nil {
		s.logger.Error("group insert failed", zap.String("operation", opCreate), zap.Error(err))
		return Group{}, apperror.Internal(opCreate+".insert_failed", err)
	}
	return group, nil
}

// List returns groups, optionally filtered by status.
func (s *Service) List(ctx context.Context, status Status) ([]Group, error) {
	query := s.db.WithContext(ctx).Order("name ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var result []Group
	if err := query.Find(&result).Error; err != nil {
		s.logger.Error("group query failed", zap.String("operation", opList), zap.Error(err))
		return nil, apperror.Internal(opList+".query_failed", err)
	}
	return result, nil
}

// Get loads a single group.
func (s *Service) Get(ctx context.Context, id string) (Group, error) {
	return s.find(ctx, opGet, id)
}

// FindActive loads a group and reports 404 unless it is ACTIVE. Status-report
// submission deliberately does not reveal whether a non-active group exists.
func (s *Service) FindActive(ctx context.Context, id string) (Group, error) {
	group, err := s.find(ctx, opFindActive, id)
	if err != nil {
		return Group{}, err
	}
	if group.Status != StatusActive {
		return Group{}, apperror.New(apperror.KindNotFound, opFindActive+".not_active", msgNotFound, nil)
	}
	return group, nil
}

// UpdateInput carries the mutable fields of a group. Nil pointers leave the
// stored value untouched.
type UpdateInput struct {
	Name            *string
	Description     *string
	ContactEmail    *string
	MeetingSchedule *string
	MeetingLocation *string
}

// Update patches group fields. The meeting schedule is validated before write.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (Group, error) {
	if _, err := s.find(ctx, opUpdate, id); err != nil {
		return Group{}, err
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return Group{}, apperror.New(apperror.KindInvalid, opUpdate+".empty_name", "Der Gruppenname darf nicht leer sein.", nil)
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.ContactEmail != nil {
		updates["contact_email"] = strings.TrimSpace(*input.ContactEmail)
	}
	if input.MeetingSchedule != nil {
		if err := ValidateSchedule(*input.MeetingSchedule); err != nil {
			return Group{}, apperror.New(apperror.KindInvalid, opUpdate+".invalid_schedule", msgInvalidSchedule, err)
		}
		updates["meeting_schedule"] = strings.TrimSpace(*input.MeetingSchedule)
	}
	if input.MeetingLocation != nil {
		updates["meeting_location"] = strings.TrimSpace(*input.MeetingLocation)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&Group{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			s.logger.Error("group update failed", zap.String("operation", opUpdate), zap.Error(err))
			return Group{}, apperror.Internal(opUpdate+".update_failed", err)
		}
	}
	return s.find(ctx, opUpdate, id)
}

// Activate moves a group to ACTIVE.
func (s *Service) Activate(ctx context.Context, id string) (Group, error) {
	return s.transition(ctx, opActivate, id, StatusActive)
}

// Archive moves a group to ARCHIVED. Archiving is allowed from any status.
func (s *Service) Archive(ctx context.Context, id string) (Group, error) {
	return s.transition(ctx, opArchive, id, StatusArchived)
}

// AddMember enrolls a user into a group. Archived groups reject new members.
func (s *Service) AddMember(ctx context.Context, groupID, userID string) (Member, error) {
	group, err := s.find(ctx, opAddMember, groupID)
	if err != nil {
		return Member{}, err
	}
	if group.Status == StatusArchived {
		return Member{}, apperror.New(apperror.KindInvalid, opAddMember+".archived_group", msgArchivedMember, nil)
	}

	var existing Member
	err = s.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).Take(&existing).Error
	if err == nil {
		return Member{}, apperror.New(apperror.KindConflict, opAddMember+".already_member", msgDuplicateMember, nil)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("member lookup failed", zap.String("operation", opAddMember), zap.Error(err))
		return Member{}, apperror.Internal(opAddMember+".query_failed", err)
	}

	member := Member{GroupID: groupID, UserID: userID, JoinedAt: s.clock().UTC()}
	if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
		s.logger.Error("member insert failed", zap.String("operation", opAddMember), zap.Error(err))
		return Member{}, apperror.Internal(opAddMember+".insert_failed", err)
	}
	return member, nil
}

// RemoveMember withdraws a user from a group.
func (s *Service) RemoveMember(ctx context.Context, groupID, userID string) error {
	if _, err := s.find(ctx, opRemoveMember, groupID); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&Member{})
	if result.Error != nil {
		s.logger.Error("member delete failed", zap.String("operation", opRemoveMember), zap.Error(result.Error))
		return apperror.Internal(opRemoveMember+".delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.New(apperror.KindNotFound, opRemoveMember+".not_member", "Die Person ist kein Mitglied dieser Gruppe.", nil)
	}
	return nil
}

// ListMembers returns the membership of a group.
func (s *Service) ListMembers(ctx context.Context, groupID string) ([]Member, error) {
	if _, err := s.find(ctx, opListMembers, groupID); err != nil {
		return nil, err
	}
	var members []Member
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Order("joined_at ASC").Find(&members).Error; err != nil {
		s.logger.Error("member query failed", zap.String("operation", opListMembers), zap.Error(err))
		return nil, apperror.Internal(opListMembers+".query_failed", err)
	}
	return members, nil
}

// AddResponsiblePerson registers a contact person for a group.
func (s *Service) AddResponsiblePerson(ctx context.Context, groupID string, name, email, roleLabel string) (ResponsiblePerson, error) {
	if _, err := s.find(ctx, opAddPerson, groupID); err != nil {
		return ResponsiblePerson{}, err
	}
	trimmedName := strings.TrimSpace(name)
	trimmedEmail := strings.TrimSpace(email)
	if trimmedName == "" || trimmedEmail == "" {
		return ResponsiblePerson{}, apperror.New(apperror.KindInvalid, opAddPerson+".missing_fields", "Name und E-Mail-Adresse dürfen nicht leer sein.", nil)
	}
	id, err := s.idProvider.NewID()
	if err != nil {
		return ResponsiblePerson{}, apperror.Internal(opAddPerson+".id_generation_failed", err)
	}
	person := ResponsiblePerson{
		ID:        id,
		GroupID:   groupID,
		Name:      trimmedName,
		Email:     trimmedEmail,
		RoleLabel: strings.TrimSpace(roleLabel),
	}
	if err := s.db.WithContext(ctx).Create(&person).Error; err != nil {
		s.logger.Error("responsible person insert failed", zap.String("operation", opAddPerson), zap.Error(err))
		return ResponsiblePerson{}, apperror.Internal(opAddPerson+".insert_failed", err)
	}
	return person, nil
}

// RemoveResponsiblePerson deletes a contact person entry.
func (s *Service) RemoveResponsiblePerson(ctx context.Context, groupID, personID string) error {
	if _, err := s.find(ctx, opRemovePerson, groupID); err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Where("id = ? AND group_id = ?", personID, groupID).Delete(&ResponsiblePerson{})
	if result.Error != nil {
		s.logger.Error("responsible person delete failed", zap.String("operation", opRemovePerson), zap.Error(result.Error))
		return apperror.Internal(opRemovePerson+".delete_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.New(apperror.KindNotFound, opRemovePerson+".not_found", "Die Ansprechperson wurde nicht gefunden.", nil)
	}
	return nil
}

// ListResponsiblePersons returns the contact persons of a group.
func (s *Service) ListResponsiblePersons(ctx context.Context, groupID string) ([]ResponsiblePerson, error) {
	if _, err := s.find(ctx, opListPersons, groupID); err != nil {
		return nil, err
	}
	var persons []ResponsiblePerson
	if err := s.db.WithContext(ctx).Where("group_id = ?", groupID).Order("name ASC").Find(&persons).Error; err != nil {
		s.logger.Error("responsible person query failed", zap.String("operation", opListPersons), zap.Error(err))
		return nil, apperror.Internal(opListPersons+".query_failed", err)
	}
	return persons, nil
}

func (s *Service) transition(ctx context.Context, operation, id string, target Status) (Group, error) {
	group, err := s.find(ctx, operation, id)
	if err != nil {
		return Group{}, err
	}
	if group.Status == target {
		return group, nil
	}
	if err := s.db.WithContext(ctx).Model(&Group{}).Where("id = ?", id).Update("status", target).Error; err != nil {
		s.logger.Error("group status update failed", zap.String("operation", operation), zap.Error(err))
		return Group{}, apperror.Internal(operation+".update_failed", err)
	}
	group.Status = target
	return group, nil
}

func (s *Service) find(ctx context.Context, operation, id string) (Group, error) {
	var group Group
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Group{}, apperror.New(apperror.KindNotFound, operation+".not_found", msgNotFound, nil)
	}
	if err != nil {
		s.logger.Error("group lookup failed", zap.String("operation", operation), zap.Error(err))
		return Group{}, apperror.Internal(operation+".query_failed", err)
	}
	return group, nil
}

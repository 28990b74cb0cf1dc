package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/parteiportal/backend/internal/apperror"
)

const (
	opAuthenticate    = "users.authenticate"
	opFindByID        = "users.find_by_id"
	opAdminRecipients = "users.admin_recipients"
)

var (
	errMissingDatabase = errors.New("database handle is required")

	msgLoginFailed = "E-Mail-Adresse oder Passwort ist falsch."
)

// ServiceConfig describes the dependencies of the user service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service resolves and authenticates portal accounts.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, apperror.Internal(opAuthenticate+".missing_database", errMissingDatabase)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Authenticate verifies the email/password pair and returns the matching
// active account. Unknown accounts and wrong passwords yield the same error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || strings.TrimSpace(password) == "" {
		return User{}, apperror.New(apperror.KindUnauthorized, opAuthenticate+".missing_credentials", msgLoginFailed, nil)
	}

	var user User
	err := s.db.WithContext(ctx).Where("email = ?", normalized).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperror.New(apperror.KindUnauthorized, opAuthenticate+".unknown_account", msgLoginFailed, nil)
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.String("operation", opAuthenticate), zap.Error(err))
		return User{}, apperror.Internal(opAuthenticate+".query_failed", err)
	}
	if !user.Active {
		return User{}, apperror.New(apperror.KindUnauthorized, opAuthenticate+".inactive_account", msgLoginFailed, nil)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return User{}, apperror.New(apperror.KindUnauthorized, opAuthenticate+".wrong_password", msgLoginFailed, nil)
	}
	return user, nil
}

// FindByID loads a single account.
func (s *Service) FindByID(ctx context.Context, id string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, apperror.New(apperror.KindNotFound, opFindByID+".not_found", "Benutzer wurde nicht gefunden.", nil)
	}
	if err != nil {
		s.logger.Error("user lookup failed", zap.String("operation", opFindByID), zap.Error(err))
		return User{}, apperror.Internal(opFindByID+".query_failed", err)
	}
	return user, nil
}

// AdminRecipients returns the email addresses of active admins who opted in to
// permanent-failure notifications.
func (s *Service) AdminRecipients(ctx context.Context) ([]string, error) {
	var admins []User
	err := s.db.WithContext(ctx).
		Where("active = ? AND notify_on_failure = ?", true, true).
		Where("roles LIKE ?", "%admin%").
		Order("email ASC").
		Find(&admins).Error
	if err != nil {
		s.logger.Error("admin recipient query failed", zap.String("operation", opAdminRecipients), zap.Error(err))
		return nil, apperror.Internal(opAdminRecipients+".query_failed", err)
	}
	recipients := make([]string, 0, len(admins))
	for _, admin := range admins {
		recipients = append(recipients, admin.Email)
	}
	return recipients, nil
}

// HashPassword produces a bcrypt hash for seeding and account creation.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"atelier/api/internal/apperr"
	"atelier/api/internal/config"
	"atelier/api/internal/models"
	"atelier/api/internal/repository"
	"atelier/api/internal/security"
)

// ErrInvalidCredentials is the uniform login failure: the same message comes
// back whether the email is unknown, the account is inactive, or the password
// is wrong, so responses cannot be used to enumerate accounts.
var ErrInvalidCredentials = apperr.Unauthorized("Invalid email or password")

type AdminStore interface {
	FindByEmail(ctx context.Context, email string) (models.AdminUser, error)
	GetByID(ctx context.Context, id string) (models.AdminUser, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

type AuthService struct {
	admins AdminStore
	cfg    *config.AppConfig
	log    zerolog.Logger
}

func NewAuthService(admins AdminStore, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		admins: admins,
		cfg:    cfg,
		log:    log,
	}
}

// Login verifies credentials and returns the admin plus a fresh session
// token. last_login is updated best-effort; its failure never blocks login.
func (s *AuthService) Login(ctx context.Context, email string, password string) (models.AdminUser, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			return models.AdminUser{}, "", ErrInvalidCredentials
		}
		return models.AdminUser{}, "", err
	}

	if !admin.Active {
		return models.AdminUser{}, "", ErrInvalidCredentials
	}

	ok, err := security.VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		// A hash that fails to parse is a provisioning defect, not a bad
		// credential.
		return models.AdminUser{}, "", apperr.Wrap(apperr.KindInternal, "verify password", err)
	}
	if !ok {
		return models.AdminUser{}, "", ErrInvalidCredentials
	}

	token, err := security.NewSessionToken(
		s.cfg.Security.SessionSecret,
		admin.ID,
		admin.Email,
		admin.Name,
		s.cfg.Security.SessionTTL,
	)
	if err != nil {
		return models.AdminUser{}, "", err
	}

	if err := s.admins.UpdateLastLogin(ctx, admin.ID); err != nil {
		s.log.Warn().Err(err).Str("admin_id", admin.ID).Msg("update last_login failed")
	}

	return admin, token, nil
}

// Authenticate resolves a session token into a live admin. All failure modes
// collapse into one unauthorized error; the underlying reason is logged at
// debug level only.
func (s *AuthService) Authenticate(ctx context.Context, token string) (models.AdminUser, error) {
	claims, err := security.ParseSessionToken(token, s.cfg.Security.SessionSecret)
	if err != nil {
		s.log.Debug().Err(err).Msg("session token rejected")
		return models.AdminUser{}, apperr.Unauthorized("unauthorized")
	}

	admin, err := s.admins.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrAdminNotFound) {
			s.log.Debug().Str("admin_id", claims.UserID).Msg("session for unknown admin")
			return models.AdminUser{}, apperr.Unauthorized("unauthorized")
		}
		return models.AdminUser{}, err
	}
	if !admin.Active {
		s.log.Debug().Str("admin_id", admin.ID).Msg("session for deactivated admin")
		return models.AdminUser{}, apperr.Unauthorized("unauthorized")
	}

	return admin, nil
}

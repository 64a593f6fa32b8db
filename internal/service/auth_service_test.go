package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atelier/api/internal/config"
	"atelier/api/internal/models"
	"atelier/api/internal/repository"
	"atelier/api/internal/security"
)

type fakeAdminStore struct {
	byEmail    map[string]models.AdminUser
	byID       map[string]models.AdminUser
	lastLogins []string
}

func newFakeAdminStore(admins ...models.AdminUser) *fakeAdminStore {
	s := &fakeAdminStore{
		byEmail: make(map[string]models.AdminUser),
		byID:    make(map[string]models.AdminUser),
	}
	for _, a := range admins {
		s.byEmail[a.Email] = a
		s.byID[a.ID] = a
	}
	return s
}

func (s *fakeAdminStore) FindByEmail(_ context.Context, email string) (models.AdminUser, error) {
	if a, ok := s.byEmail[email]; ok {
		return a, nil
	}
	return models.AdminUser{}, repository.ErrAdminNotFound
}

func (s *fakeAdminStore) GetByID(_ context.Context, id string) (models.AdminUser, error) {
	if a, ok := s.byID[id]; ok {
		return a, nil
	}
	return models.AdminUser{}, repository.ErrAdminNotFound
}

func (s *fakeAdminStore) UpdateLastLogin(_ context.Context, id string) error {
	s.lastLogins = append(s.lastLogins, id)
	return nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			SessionSecret: "test-secret",
			SessionTTL:    time.Hour,
		},
	}
}

func provisionedAdmin(t *testing.T, password string) models.AdminUser {
	t.Helper()
	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	return models.AdminUser{
		ID:           "adm_1",
		Email:        "owner@studio.example",
		PasswordHash: hash,
		Name:         "Owner",
		Active:       true,
	}
}

func TestLoginSuccess(t *testing.T) {
	admin := provisionedAdmin(t, "s3cret-pass")
	store := newFakeAdminStore(admin)
	svc := NewAuthService(store, testConfig(), zerolog.Nop())

	got, token, err := svc.Login(context.Background(), "Owner@Studio.example", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)
	assert.NotEmpty(t, token)
	assert.Equal(t, []string{"adm_1"}, store.lastLogins)

	claims, err := security.ParseSessionToken(token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, claims.UserID)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	admin := provisionedAdmin(t, "s3cret-pass")
	inactive := provisionedAdmin(t, "s3cret-pass")
	inactive.ID = "adm_2"
	inactive.Email = "gone@studio.example"
	inactive.Active = false

	svc := NewAuthService(newFakeAdminStore(admin, inactive), testConfig(), zerolog.Nop())

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown email", "nobody@studio.example", "s3cret-pass"},
		{"wrong password", "owner@studio.example", "wrong"},
		{"inactive account", "gone@studio.example", "s3cret-pass"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Login(context.Background(), tc.email, tc.password)
			require.Error(t, err)
			assert.Equal(t, "Invalid email or password", err.Error())
		})
	}
}

func TestAuthenticateValidToken(t *testing.T) {
	admin := provisionedAdmin(t, "s3cret-pass")
	svc := NewAuthService(newFakeAdminStore(admin), testConfig(), zerolog.Nop())

	token, err := security.NewSessionToken("test-secret", admin.ID, admin.Email, admin.Name, time.Hour)
	require.NoError(t, err)

	got, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)
}

func TestAuthenticateRejections(t *testing.T) {
	admin := provisionedAdmin(t, "s3cret-pass")
	deactivated := admin
	deactivated.Active = false
	store := newFakeAdminStore(deactivated)
	svc := NewAuthService(store, testConfig(), zerolog.Nop())

	valid, err := security.NewSessionToken("test-secret", admin.ID, admin.Email, admin.Name, time.Hour)
	require.NoError(t, err)
	forged, err := security.NewSessionToken("other-secret", admin.ID, admin.Email, admin.Name, time.Hour)
	require.NoError(t, err)
	orphan, err := security.NewSessionToken("test-secret", "adm_gone", "x@y.z", "", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
	}{
		{"garbage token", "nope"},
		{"forged signature", forged},
		{"unknown admin", orphan},
		{"deactivated admin", valid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), tc.token)
			require.Error(t, err)
			assert.Equal(t, "unauthorized", err.Error())
		})
	}
}

package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"

	"github.com/sagewood/backend-retreats/internal/db"
)

type stubQueries struct {
	admins map[string]db.Admin
}

func (s *stubQueries) GetAdminByEmail(_ context.Context, email string) (db.Admin, error) {
	admin, ok := s.admins[email]
	if !ok {
		return db.Admin{}, pgx.ErrNoRows
	}
	return admin, nil
}

func (s *stubQueries) CreateAdmin(_ context.Context, arg db.CreateAdminParams) (db.Admin, error) {
	admin := db.Admin{
		ID:           pgtype.UUID{Bytes: uuid.New(), Valid: true},
		Email:        arg.Email,
		PasswordHash: arg.PasswordHash,
	}
	if s.admins == nil {
		s.admins = map[string]db.Admin{}
	}
	s.admins[arg.Email] = admin
	return admin, nil
}

func newTestService(t *testing.T, q Querier) *Service {
	t.Helper()
	svc, err := NewService(Config{Queries: q, Secret: "test-secret", AccessTokenTTL: time.Hour})
	require.NoError(t, err)
	return svc
}

func TestLoginIssuesParsableToken(t *testing.T) {
	hash, err := argon2id.CreateHash("s3cret-pass", argon2id.DefaultParams)
	require.NoError(t, err)
	adminID := uuid.New()
	q := &stubQueries{admins: map[string]db.Admin{
		"admin@example.com": {
			ID:           pgtype.UUID{Bytes: adminID, Valid: true},
			Email:        "admin@example.com",
			PasswordHash: hash,
		},
	}}
	svc := newTestService(t, q)

	result, err := svc.Login(context.Background(), "Admin@Example.com", "s3cret-pass")
	require.NoError(t, err)
	require.Equal(t, adminID.String(), result.Admin.ID)
	require.NotEmpty(t, result.AccessToken)

	subject, err := svc.ParseAccessToken(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, adminID.String(), subject)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	hash, err := argon2id.CreateHash("s3cret-pass", argon2id.DefaultParams)
	require.NoError(t, err)
	q := &stubQueries{admins: map[string]db.Admin{
		"admin@example.com": {
			ID:           pgtype.UUID{Bytes: uuid.New(), Valid: true},
			Email:        "admin@example.com",
			PasswordHash: hash,
		},
	}}
	svc := newTestService(t, q)

	_, err = svc.Login(context.Background(), "admin@example.com", "wrong")
	require.Error(t, err)

	_, err = svc.Login(context.Background(), "nobody@example.com", "s3cret-pass")
	require.Error(t, err)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	q := &stubQueries{}
	svc := newTestService(t, q)
	issued := time.Now().Add(-2 * time.Hour)
	svc.WithNow(func() time.Time { return issued })

	token, _, err := svc.signAccessToken(uuid.NewString())
	require.NoError(t, err)

	svc.WithNow(time.Now)
	_, err = svc.ParseAccessToken(token)
	require.Error(t, err)
}

func TestParseAccessTokenRejectsForeignSecret(t *testing.T) {
	q := &stubQueries{}
	issuing, err := NewService(Config{Queries: q, Secret: "other-secret"})
	require.NoError(t, err)
	token, _, err := issuing.signAccessToken(uuid.NewString())
	require.NoError(t, err)

	svc := newTestService(t, q)
	_, err = svc.ParseAccessToken(token)
	require.Error(t, err)
}

func TestBootstrapCreatesAdminOnce(t *testing.T) {
	q := &stubQueries{}
	svc := newTestService(t, q)

	require.NoError(t, svc.Bootstrap(context.Background(), "admin@example.com", "s3cret-pass"))
	first := q.admins["admin@example.com"]
	require.True(t, first.ID.Valid)

	require.NoError(t, svc.Bootstrap(context.Background(), "admin@example.com", "different"))
	require.Equal(t, first.PasswordHash, q.admins["admin@example.com"].PasswordHash)
}

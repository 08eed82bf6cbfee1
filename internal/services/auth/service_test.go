package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screenguard/internal/apperr"
	"screenguard/internal/domain"
)

type fakeUsers struct {
	byUsername map[string]domain.User
}

func (f *fakeUsers) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	u, ok := f.byUsername[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}
func (f *fakeUsers) CreateUser(_ context.Context, username, passwordHash string) (*domain.User, error) {
	u := domain.User{ID: "u1", Username: username, PasswordHash: passwordHash}
	f.byUsername[username] = u
	return &u, nil
}

type fakeBackoff struct {
	locked   bool
	failures int
}

func (f *fakeBackoff) RecordFailure(context.Context, string) (bool, time.Duration, error) {
	f.failures++
	return false, 0, nil
}
func (f *fakeBackoff) RecordSuccess(context.Context, string) error { f.failures = 0; return nil }
func (f *fakeBackoff) IsLocked(context.Context, string) (bool, time.Duration, error) {
	return f.locked, 0, nil
}

func newTestService(t *testing.T) (*Service, *fakeUsers, *fakeBackoff) {
	t.Helper()
	users := &fakeUsers{byUsername: map[string]domain.User{}}
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	users.byUsername["alice"] = domain.User{ID: "u1", Username: "alice", PasswordHash: hash}
	backoff := &fakeBackoff{}
	svc := New(users, backoff, "a-very-long-signing-secret-for-tests", "screenguard", time.Hour)
	return svc, users, backoff
}

func TestLogin_SucceedsWithCorrectPassword(t *testing.T) {
	svc, _, backoff := newTestService(t)
	token, err := svc.Login(context.Background(), "alice", "correct horse battery staple")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 0, backoff.failures)

	claims, err := svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Username)
}

func TestLogin_RejectsWrongPassword(t *testing.T) {
	svc, _, backoff := newTestService(t)
	_, err := svc.Login(context.Background(), "alice", "wrong password")
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.Of(err))
	assert.Equal(t, 1, backoff.failures)
}

func TestLogin_RejectsUnknownUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Login(context.Background(), "nobody", "whatever")
	require.Error(t, err)
	assert.Equal(t, apperr.Unauthorized, apperr.Of(err))
}

func TestLogin_RespectsAccountLock(t *testing.T) {
	svc, _, backoff := newTestService(t)
	backoff.locked = true
	_, err := svc.Login(context.Background(), "alice", "correct horse battery staple")
	require.Error(t, err)
	assert.Equal(t, apperr.RateLimited, apperr.Of(err))
}

func TestVerifyToken_RejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.VerifyToken("not-a-jwt")
	require.Error(t, err)
}

package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codexdlc/gatewaykit/internal/domain"
	"github.com/codexdlc/gatewaykit/internal/infrastructure/security"
)

// ---- fakes ----

type fakeAccounts struct {
	byUsername map[string]domain.Account
	creds      map[int64]domain.Credentials
	nextID     int64
	lastLogin  map[int64]time.Time
	createErr  error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		byUsername: map[string]domain.Account{},
		creds:      map[int64]domain.Credentials{},
		lastLogin:  map[int64]time.Time{},
		nextID:     1,
	}
}

func (f *fakeAccounts) seed(username, email, passwordHash string, status domain.AccountStatus) domain.Account {
	acc := domain.Account{
		ID:       f.nextID,
		Username: username,
		Email:    email,
		Status:   status,
		Role:     domain.RoleUser,
	}
	f.nextID++
	f.byUsername[username] = acc
	f.creds[acc.ID] = domain.Credentials{AccountID: acc.ID, PasswordHash: passwordHash}
	return acc
}

func (f *fakeAccounts) GetByUsername(_ context.Context, username string) (domain.Account, domain.Credentials, error) {
	acc, ok := f.byUsername[username]
	if !ok {
		return domain.Account{}, domain.Credentials{}, domain.ErrInvalidCredentials()
	}
	return acc, f.creds[acc.ID], nil
}

func (f *fakeAccounts) GetByID(_ context.Context, id int64) (domain.Account, error) {
	for _, acc := range f.byUsername {
		if acc.ID == id {
			return acc, nil
		}
	}
	return domain.Account{}, domain.ErrInvalidCredentials()
}

func (f *fakeAccounts) Exists(_ context.Context, username, email string) (bool, error) {
	if _, ok := f.byUsername[username]; ok {
		return true, nil
	}
	for _, acc := range f.byUsername {
		if acc.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccounts) Create(_ context.Context, username, email, passwordHash string) (domain.Account, error) {
	if f.createErr != nil {
		return domain.Account{}, f.createErr
	}
	if _, ok := f.byUsername[username]; ok {
		return domain.Account{}, domain.ErrUserExists()
	}
	return f.seed(username, email, passwordHash, domain.StatusActive), nil
}

func (f *fakeAccounts) SetLastLogin(_ context.Context, accountID int64, at time.Time) error {
	f.lastLogin[accountID] = at
	return nil
}

type fakeTokens struct {
	byJTI     map[uuid.UUID]*domain.RefreshToken
	nextID    int64
	insertErr error
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{byJTI: map[uuid.UUID]*domain.RefreshToken{}, nextID: 1}
}

func (f *fakeTokens) Insert(_ context.Context, rec domain.RefreshToken) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	rec.ID = f.nextID
	rec.CreatedAt = time.Now()
	f.nextID++
	f.byJTI[rec.JTI] = &rec
	return nil
}

func (f *fakeTokens) GetByJTI(_ context.Context, jti uuid.UUID) (domain.RefreshToken, error) {
	rec, ok := f.byJTI[jti]
	if !ok {
		return domain.RefreshToken{}, domain.ErrRefreshInvalid()
	}
	return *rec, nil
}

func (f *fakeTokens) Rotate(_ context.Context, oldID int64, next domain.RefreshToken) error {
	for _, rec := range f.byJTI {
		if rec.ID == oldID {
			if rec.RevokedAt != nil {
				return domain.ErrRefreshInvalid()
			}
			now := time.Now()
			rec.RevokedAt = &now
			return f.Insert(context.Background(), next)
		}
	}
	return domain.ErrRefreshInvalid()
}

func (f *fakeTokens) RevokeByJTI(_ context.Context, jti uuid.UUID, at time.Time) error {
	if rec, ok := f.byJTI[jti]; ok && rec.RevokedAt == nil {
		rec.RevokedAt = &at
	}
	return nil
}

type fakeGuard struct {
	banned   map[string]bool
	failures map[string]int
	resets   map[string]int
	maxFails int
	err      error
}

func newFakeGuard(maxFails int) *fakeGuard {
	return &fakeGuard{
		banned:   map[string]bool{},
		failures: map[string]int{},
		resets:   map[string]int{},
		maxFails: maxFails,
	}
}

func (f *fakeGuard) IsBanned(_ context.Context, username string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.banned[username], nil
}

func (f *fakeGuard) RegisterFailure(_ context.Context, username string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.failures[username]++
	if f.failures[username] >= f.maxFails {
		f.banned[username] = true
		delete(f.failures, username)
		return true, nil
	}
	return false, nil
}

func (f *fakeGuard) Reset(_ context.Context, username string) error {
	f.resets[username]++
	delete(f.failures, username)
	return nil
}

// plainHasher avoids bcrypt cost in unit tests.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hash:" + password, nil }
func (plainHasher) Compare(hash, password string) error {
	if hash != "hash:"+password {
		return errors.New("mismatch")
	}
	return nil
}

// ---- helpers ----

type fixture struct {
	svc      *Service
	accounts *fakeAccounts
	tokens   *fakeTokens
	guard    *fakeGuard
	jwt      *security.TokenManager
}

func newFixture(maxFails int) *fixture {
	accounts := newFakeAccounts()
	tokens := newFakeTokens()
	guard := newFakeGuard(maxFails)
	jwtm := security.NewTokenManager(security.TokenManagerConfig{
		Secret:     "unit-test-secret",
		Issuer:     "auth-service",
		Audience:   "access",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 24 * time.Hour,
	})
	svc := NewService(accounts, tokens, guard, plainHasher{}, jwtm, zerolog.Nop())
	return &fixture{svc: svc, accounts: accounts, tokens: tokens, guard: guard, jwt: jwtm}
}

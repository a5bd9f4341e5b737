package authcore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/swiftdrop/authcore/jwt"
)

func jwtConfigWith(secret []byte, accessTTL, refreshTTL time.Duration) jwt.Config {
	return jwt.Config{
		Secret:     secret,
		AccessTTL:  accessTTL,
		RefreshTTL: refreshTTL,
		Issuer:     "authcore",
	}
}

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

// memProvider is an in-memory UserProvider with optional fault injection.
type memProvider struct {
	mu      sync.Mutex
	byEmail map[string]*UserRecord
	byID    map[string]*UserRecord
	nextID  int

	failLookups bool
	guardCalls  int
}

func newMemProvider() *memProvider {
	return &memProvider{
		byEmail: map[string]*UserRecord{},
		byID:    map[string]*UserRecord{},
	}
}

func (p *memProvider) put(user UserRecord) *UserRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if user.ID == "" {
		p.nextID++
		user.ID = fmt.Sprintf("user-%d", p.nextID)
	}
	stored := user
	p.byEmail[user.Email] = &stored
	p.byID[user.ID] = &stored
	return &stored
}

func (p *memProvider) get(id string) UserRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return *p.byID[id]
}

func (p *memProvider) GetUserByEmail(_ context.Context, email string) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failLookups {
		return nil, fmt.Errorf("injected lookup failure")
	}
	user, ok := p.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (p *memProvider) GetUserByID(_ context.Context, id string) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failLookups {
		return nil, fmt.Errorf("injected lookup failure")
	}
	user, ok := p.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (p *memProvider) CreateUser(_ context.Context, user *UserRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byEmail[user.Email]; ok {
		return ErrAccountExists
	}
	p.nextID++
	user.ID = fmt.Sprintf("user-%d", p.nextID)
	stored := *user
	p.byEmail[user.Email] = &stored
	p.byID[user.ID] = &stored
	return nil
}

func (p *memProvider) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (p *memProvider) UpdateLoginGuard(_ context.Context, userID string, failedAttempts int, blockedUntil time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	user, ok := p.byID[userID]
	if !ok {
		return ErrUserNotFound
	}
	p.guardCalls++
	user.FailedLoginAttempts = failedAttempts
	user.BlockedUntil = blockedUntil
	return nil
}

// memSender records sent passcodes.
type memSender struct {
	mu    sync.Mutex
	sent  []sentOTP
	fails int
}

type sentOTP struct {
	Recipient string
	Code      string
	Purpose   string
}

func (s *memSender) SendOTP(_ context.Context, recipient, code, purpose string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fails > 0 {
		s.fails--
		return "", fmt.Errorf("injected delivery failure")
	}
	s.sent = append(s.sent, sentOTP{Recipient: recipient, Code: code, Purpose: purpose})
	return fmt.Sprintf("msg-%d", len(s.sent)), nil
}

func (s *memSender) last(t *testing.T) sentOTP {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatal("no otp was sent")
	}
	return s.sent[len(s.sent)-1]
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	provider *memProvider
	sender   *memSender
}

func newTestEngine(t *testing.T, mutate func(*Builder)) *testEnv {
	t.Helper()

	mr, rdb := newTestRedis(t)
	provider := newMemProvider()
	sender := &memSender{}

	builder := NewBuilder().
		WithRedis(rdb).
		WithJWTSecret(testSecret).
		WithUserProvider(provider).
		WithEmailSender(sender).
		WithAudit(AuditConfig{Enabled: false})
	if mutate != nil {
		mutate(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	return &testEnv{engine: engine, mr: mr, provider: provider, sender: sender}
}

// seedUser registers an account through the engine's own hasher.
func (env *testEnv) seedUser(t *testing.T, email, password string) *UserRecord {
	t.Helper()

	hash, err := env.engine.passwordHash.Hash(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return env.provider.put(UserRecord{
		Email:        email,
		PasswordHash: hash,
		Role:         "user",
		Status:       StatusActive,
	})
}

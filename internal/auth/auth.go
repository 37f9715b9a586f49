// Package auth is the local identity provider: accounts live in the same
// SQLite file as the documents, passwords are bcrypt hashes, and sessions are
// HS256 JWTs carrying the uid and display name.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"boardsync/internal/docstore"
	"boardsync/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrSignedOut          = errors.New("not signed in")
	ErrInvalidToken       = errors.New("invalid token")
)

const (
	MinPasswordLen  = 6
	DefaultTokenTTL = 7 * 24 * time.Hour
)

// Identity is the signed-in user.
type Identity struct {
	UID   string `json:"uid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Options struct {
	Secret   []byte
	TokenTTL time.Duration
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost   int
	Logger *zap.Logger
	Now    func() time.Time
}

// Local authenticates against the accounts table and mirrors public profile
// fields into users/{uid}.
type Local struct {
	db     *sql.DB
	docs   docstore.Backend
	secret []byte
	ttl    time.Duration
	cost   int
	log    *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Identity
}

func NewLocal(ctx context.Context, db *sql.DB, docs docstore.Backend, opts Options) (*Local, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("auth: missing token secret")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS accounts (
		uid TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at_unixms INTEGER NOT NULL
	);`); err != nil {
		return nil, fmt.Errorf("migrate accounts: %w", err)
	}
	return &Local{
		db:     db,
		docs:   docs,
		secret: opts.Secret,
		ttl:    opts.TokenTTL,
		cost:   opts.Cost,
		log:    opts.Logger.Named("auth"),
		now:    opts.Now,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignUp registers an account, writes its users document and signs it in.
func (l *Local) SignUp(ctx context.Context, email, password, name string) (Identity, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if !strings.Contains(email, "@") {
		return Identity{}, model.ValidationError{Field: "email", Msg: "must be an email address"}
	}
	if len(password) < MinPasswordLen {
		return Identity{}, model.ValidationError{Field: "password", Msg: fmt.Sprintf("must be at least %d characters", MinPasswordLen)}
	}
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	id := Identity{UID: uuid.NewString(), Name: name, Email: email}
	var exists int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts WHERE email = ?`, email).Scan(&exists); err != nil {
		return Identity{}, err
	}
	if exists > 0 {
		return Identity{}, ErrEmailTaken
	}
	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO accounts(uid, email, name, password_hash, created_at_unixms) VALUES(?,?,?,?,?)`,
		id.UID, email, name, string(hash), l.now().UnixMilli(),
	); err != nil {
		return Identity{}, fmt.Errorf("insert account: %w", err)
	}
	if err := l.docs.Set(ctx, "users", id.UID, map[string]any{
		"uid":       id.UID,
		"name":      name,
		"email":     email,
		"createdAt": docstore.ServerTimestamp(),
	}, true); err != nil {
		return Identity{}, fmt.Errorf("write user profile: %w", err)
	}
	l.log.Info("account created", zap.String("uid", id.UID))
	l.setCurrent(&id)
	return id, nil
}

// Authenticate checks credentials without changing the signed-in user.
func (l *Local) Authenticate(ctx context.Context, email, password string) (Identity, error) {
	var id Identity
	var hash string
	err := l.db.QueryRowContext(ctx,
		`SELECT uid, email, name, password_hash FROM accounts WHERE email = ?`, normalizeEmail(email),
	).Scan(&id.UID, &id.Email, &id.Name, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrInvalidCredentials
	}
	if err != nil {
		return Identity{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return Identity{}, ErrInvalidCredentials
	}
	return id, nil
}

func (l *Local) SignIn(ctx context.Context, email, password string) (Identity, error) {
	id, err := l.Authenticate(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}
	l.setCurrent(&id)
	return id, nil
}

// Resume signs in the account behind a previously issued token.
func (l *Local) Resume(ctx context.Context, token string) (Identity, error) {
	claimed, err := l.VerifyToken(token)
	if err != nil {
		return Identity{}, err
	}
	id, err := l.byUID(ctx, claimed.UID)
	if err != nil {
		return Identity{}, err
	}
	l.setCurrent(&id)
	return id, nil
}

func (l *Local) SignOut() {
	l.setCurrent(nil)
}

func (l *Local) Current() (Identity, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return Identity{}, false
	}
	return *l.current, true
}

func (l *Local) setCurrent(id *Identity) {
	l.mu.Lock()
	l.current = id
	l.mu.Unlock()
}

// UpdateDisplayName renames the signed-in user in both the account and the
// users document. Names already copied into projects and tasks are left as is.
func (l *Local) UpdateDisplayName(ctx context.Context, name string) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, model.ValidationError{Field: "name", Msg: "must not be empty"}
	}
	cur, ok := l.Current()
	if !ok {
		return Identity{}, ErrSignedOut
	}
	if _, err := l.db.ExecContext(ctx, `UPDATE accounts SET name = ? WHERE uid = ?`, name, cur.UID); err != nil {
		return Identity{}, fmt.Errorf("rename account: %w", err)
	}
	if err := l.docs.Set(ctx, "users", cur.UID, map[string]any{"name": name}, true); err != nil {
		return Identity{}, fmt.Errorf("rename user profile: %w", err)
	}
	cur.Name = name
	l.setCurrent(&cur)
	return cur, nil
}

// LookupEmail finds a registered user by email, for adding project members.
func (l *Local) LookupEmail(ctx context.Context, email string) (Identity, error) {
	var id Identity
	err := l.db.QueryRowContext(ctx,
		`SELECT uid, email, name FROM accounts WHERE email = ?`, normalizeEmail(email),
	).Scan(&id.UID, &id.Email, &id.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, docstore.ErrNotFound
	}
	return id, err
}

func (l *Local) byUID(ctx context.Context, uid string) (Identity, error) {
	var id Identity
	err := l.db.QueryRowContext(ctx, `SELECT uid, email, name FROM accounts WHERE uid = ?`, uid).Scan(&id.UID, &id.Email, &id.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrInvalidToken
	}
	return id, err
}

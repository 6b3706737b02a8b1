package core

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Users maps a handle to its secret.
type Users map[string]string

// NormalizeHandle trims and lowercases a handle as typed by the user.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// UserDirectory is the registry of accounts stored under UsersKey.
// Accounts are never deleted.
type UserDirectory struct {
	kv   KVStore
	cost int
	mu   sync.Mutex
}

type DirectoryOption func(*UserDirectory)

// WithBcryptCost sets the cost used to hash new secrets.
func WithBcryptCost(cost int) DirectoryOption {
	return func(d *UserDirectory) {
		d.cost = cost
	}
}

func NewUserDirectory(kv KVStore, opts ...DirectoryOption) *UserDirectory {
	d := &UserDirectory{
		kv:   kv,
		cost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *UserDirectory) load(ctx context.Context) (Users, error) {
	var users Users
	ok, err := loadJSON(ctx, d.kv, UsersKey, &users)
	if err != nil {
		return nil, err
	}
	if !ok || users == nil {
		return make(Users), nil
	}
	return users, nil
}

// Register validates the form and creates the account.
// It returns the normalized handle. The directory is left untouched when
// a ValidationError is returned.
func (d *UserDirectory) Register(ctx context.Context, input RegisterInput) (string, error) {
	input.Username = NormalizeHandle(input.Username)
	if err := input.Validate(); err != nil {
		return "", err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	users, err := d.load(ctx)
	if err != nil {
		return "", err
	}
	if _, ok := users[input.Username]; ok {
		return "", ErrConflictedUser
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), d.cost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	users[input.Username] = string(hashed)

	if err := saveJSON(ctx, d.kv, UsersKey, users); err != nil {
		return "", err
	}
	return input.Username, nil
}

// Authenticate checks the credentials and returns the normalized handle.
func (d *UserDirectory) Authenticate(ctx context.Context, username, password string) (string, error) {
	username = NormalizeHandle(username)
	if username == "" || password == "" {
		return "", ErrMissingFields
	}

	users, err := d.load(ctx)
	if err != nil {
		return "", err
	}
	secret, ok := users[username]
	if !ok || secret == "" {
		return "", ErrUserNotFound
	}
	if !compareSecret(secret, password) {
		return "", ErrInvalidPassword
	}
	return username, nil
}

// compareSecret accepts bcrypt hashes and the clear text secrets written by
// older clients of the same store.
func compareSecret(secret, password string) bool {
	if strings.HasPrefix(secret, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(secret), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(password)) == 1
}

func (d *UserDirectory) Exists(ctx context.Context, handle string) (bool, error) {
	users, err := d.load(ctx)
	if err != nil {
		return false, err
	}
	secret, ok := users[handle]
	return ok && secret != "", nil
}

// Handles returns every registered handle in lexical order.
func (d *UserDirectory) Handles(ctx context.Context) ([]string, error) {
	users, err := d.load(ctx)
	if err != nil {
		return nil, err
	}
	handles := make([]string, 0, len(users))
	for h := range users {
		handles = append(handles, h)
	}
	sort.Strings(handles)
	return handles, nil
}

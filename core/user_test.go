package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestDirectory(f *BaseFixture) *UserDirectory {
	return NewUserDirectory(f.kv, WithBcryptCost(bcrypt.MinCost))
}

func TestRegister(t *testing.T) {
	t.Run("normalizes and hashes", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		users := newTestDirectory(f)
		handle, err := users.Register(f.ctx, RegisterInput{Username: "  Alice ", Password: "secret", Confirm: "secret"})
		require.NoError(t, err)
		assert.Equal(t, "alice", handle)

		stored, err := users.load(f.ctx)
		require.NoError(t, err)
		require.Contains(t, stored, "alice")
		assert.NotEqual(t, "secret", stored["alice"])
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored["alice"]), []byte("secret")))

		exists, err := users.Exists(f.ctx, "alice")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	tests := []struct {
		name  string
		input RegisterInput
		err   error
	}{
		{"missing username", RegisterInput{Username: "  ", Password: "abc", Confirm: "abc"}, ErrMissingFields},
		{"missing password", RegisterInput{Username: "alice", Confirm: "abc"}, ErrMissingFields},
		{"missing confirmation", RegisterInput{Username: "alice", Password: "abc"}, ErrMissingFields},
		{"inner space", RegisterInput{Username: "al ice", Password: "abc", Confirm: "abc"}, ErrHandleWhitespace},
		{"colon", RegisterInput{Username: "al:ice", Password: "abc", Confirm: "abc"}, ErrHandleCharacters},
		{"too short", RegisterInput{Username: "a", Password: "abc", Confirm: "abc"}, ErrHandleLength},
		{"too long", RegisterInput{Username: strings.Repeat("a", 21), Password: "abc", Confirm: "abc"}, ErrHandleLength},
		{"short password", RegisterInput{Username: "alice", Password: "ab", Confirm: "ab"}, ErrPasswordLength},
		{"mismatch", RegisterInput{Username: "alice", Password: "abc", Confirm: "abd"}, ErrPasswordMismatch},
		{"taken", RegisterInput{Username: "BOB ", Password: "abc", Confirm: "abc"}, ErrConflictedUser},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := NewBaseFixture(t)
			defer f.tearDown()

			users := newTestDirectory(f)
			seedUsers(f.ctx, t, users, "bob")
			before, _, err := f.kv.Get(f.ctx, UsersKey)
			require.NoError(t, err)

			handle, err := users.Register(f.ctx, tc.input)
			assert.Empty(t, handle)
			assert.ErrorIs(t, err, tc.err)
			assert.True(t, IsValidationError(err))

			after, _, err := f.kv.Get(f.ctx, UsersKey)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}

	t.Run("limits are inclusive", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		users := newTestDirectory(f)
		for _, h := range []string{"ab", strings.Repeat("z", 20)} {
			_, err := users.Register(f.ctx, RegisterInput{Username: h, Password: "abc", Confirm: "abc"})
			assert.NoError(t, err, h)
		}
	})
}

func TestAuthenticate(t *testing.T) {
	f := NewBaseFixture(t)
	defer f.tearDown()

	users := newTestDirectory(f)
	seedUsers(f.ctx, t, users, "alice")

	tests := []struct {
		name     string
		username string
		password string
		handle   string
		err      error
	}{
		{"ok", "alice", testPassword, "alice", nil},
		{"case and spaces", " ALICE ", testPassword, "alice", nil},
		{"missing", "", testPassword, "", ErrMissingFields},
		{"unknown", "mallory", testPassword, "", ErrUserNotFound},
		{"wrong password", "alice", "nope", "", ErrInvalidPassword},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handle, err := users.Authenticate(f.ctx, tc.username, tc.password)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.handle, handle)
		})
	}

	t.Run("clear text secret", func(t *testing.T) {
		f := NewBaseFixture(t)
		defer f.tearDown()

		require.NoError(t, f.kv.Set(f.ctx, UsersKey, `{"old":"pw1"}`))
		users := newTestDirectory(f)

		handle, err := users.Authenticate(f.ctx, "old", "pw1")
		require.NoError(t, err)
		assert.Equal(t, "old", handle)

		_, err = users.Authenticate(f.ctx, "old", "pw2")
		assert.ErrorIs(t, err, ErrInvalidPassword)
	})
}

func TestHandles(t *testing.T) {
	f := NewBaseFixture(t)
	defer f.tearDown()

	users := newTestDirectory(f)
	handles, err := users.Handles(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, handles)

	seedUsers(f.ctx, t, users, "carol", "alice", "bob")
	handles, err = users.Handles(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob", "carol"}, handles)

	require.NoError(t, f.kv.Set(f.ctx, UsersKey, "garbage"))
	handles, err = users.Handles(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, handles)
}

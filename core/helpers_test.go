package core

import (
	"context"
	"testing"
)

const testPassword = "password"

func seedUsers(ctx context.Context, t *testing.T, users *UserDirectory, handles ...string) {
	for _, h := range handles {
		_, err := users.Register(ctx, RegisterInput{Username: h, Password: testPassword, Confirm: testPassword})
		if err != nil {
			t.Fatal(err)
		}
	}
}

// signIn opens a client signed in as handle. The client leaves on tear down.
func signIn(f *RoomFixture, handle string) *Client {
	c := f.room.NewClient(nil)
	if err := c.SignIn(f.ctx, handle, testPassword); err != nil {
		f.t.Fatal(err)
	}
	f.t.Cleanup(func() {
		c.Suspend()
	})
	return c
}

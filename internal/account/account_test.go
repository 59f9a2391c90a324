package account

import (
	"context"
	"errors"
	"testing"

	"github.com/tipster-app/tipster/internal/backend"
	"github.com/tipster-app/tipster/internal/logging"
	"github.com/tipster-app/tipster/internal/session"
)

func newScreen(t *testing.T, mem *backend.Memory) *Screen {
	t.Helper()
	sess, err := session.New(mem, logging.Discard())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(sess.Close)
	return NewScreen(sess)
}

func TestLoginEmptyFieldsNeverReachBackend(t *testing.T) {
	mem := backend.NewMemory()
	screen := newScreen(t, mem)

	cases := []LoginForm{
		{Email: "", Password: "secret999"},
		{Email: "ana@example.com", Password: ""},
		{},
	}
	for _, form := range cases {
		err := screen.Login(context.Background(), form)
		var vErr *backend.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("form %+v: expected validation error, got %v", form, err)
		}
	}
	if n := mem.Calls("SignIn"); n != 0 {
		t.Fatalf("expected no sign-in attempts, got %d", n)
	}
}

func TestRegisterPasswordMismatchNeverReachesBackend(t *testing.T) {
	mem := backend.NewMemory()
	screen := newScreen(t, mem)

	err := screen.Register(context.Background(), RegisterForm{
		Email:           "ana@example.com",
		Password:        "secret999",
		ConfirmPassword: "secret998",
	})
	var vErr *backend.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := mem.Calls("SignUp"); n != 0 {
		t.Fatalf("expected no sign-up attempts, got %d", n)
	}
}

func TestRegisterUsesEmailLocalPartAsDisplayName(t *testing.T) {
	mem := backend.NewMemory()
	sess, err := session.New(mem, logging.Discard())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(sess.Close)
	screen := NewScreen(sess)

	if err := screen.Register(context.Background(), RegisterForm{
		Email:           "ana.k@example.com",
		Password:        "secret999",
		ConfirmPassword: "secret999",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	snap := sess.Snapshot()
	if snap.Profile == nil || snap.Profile.DisplayName != "ana.k" {
		t.Fatalf("expected display name from email local part, got %+v", snap.Profile)
	}
}

func TestLoginSuccess(t *testing.T) {
	mem := backend.NewMemory()
	backend.SeedUser(mem, "ana@example.com", "secret999", "ana")
	screen := newScreen(t, mem)

	if err := screen.Login(context.Background(), LoginForm{Email: "ana@example.com", Password: "secret999"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	if screen.Submitting() {
		t.Fatal("submitting flag must reset after completion")
	}
}

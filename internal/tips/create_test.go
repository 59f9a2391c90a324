package tips

import (
	"context"
	"errors"
	"testing"

	"github.com/tipster-app/tipster/internal/backend"
	"github.com/tipster-app/tipster/internal/logging"
	"github.com/tipster-app/tipster/internal/session"
)

func loggedInScreen(t *testing.T, publish bool) (*CreateScreen, *backend.Memory) {
	t.Helper()
	mem := backend.NewMemory()
	id := backend.SeedUser(mem, "pro@example.com", "secret999", "pro")
	if publish {
		backend.GrantPublish(mem, id.ID)
	}

	sess, err := session.New(mem, logging.Discard())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(sess.Close)
	if err := sess.Login(context.Background(), "pro@example.com", "secret999"); err != nil {
		t.Fatalf("login: %v", err)
	}
	return NewCreateScreen(mem, sess), mem
}

func validForm() CreateForm {
	return CreateForm{
		Sport:      "Football",
		League:     "Premier League",
		Event:      "Man City vs Arsenal",
		Market:     "Match Winner (1x2)",
		Selection:  "Man City",
		Odds:       "1.85",
		Stake:      "10",
		Confidence: 8,
		Type:       backend.TipPaid,
	}
}

func TestSubmitWithoutPublishCapability(t *testing.T) {
	screen, mem := loggedInScreen(t, false)

	err := screen.Submit(context.Background(), validForm())
	var authz *backend.AuthzError
	if !errors.As(err, &authz) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if n := mem.Calls("CreateTip"); n != 0 {
		t.Fatalf("expected no write, got %d", n)
	}
}

func TestSubmitMissingSelection(t *testing.T) {
	screen, mem := loggedInScreen(t, true)

	form := validForm()
	form.Selection = ""
	err := screen.Submit(context.Background(), form)
	var vErr *backend.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n := mem.Calls("CreateTip"); n != 0 {
		t.Fatalf("expected no write, got %d", n)
	}
}

func TestSubmitRejectsBadNumbers(t *testing.T) {
	screen, _ := loggedInScreen(t, true)

	bad := []func(*CreateForm){
		func(f *CreateForm) { f.Odds = "0" },
		func(f *CreateForm) { f.Odds = "abc" },
		func(f *CreateForm) { f.Stake = "-1" },
		func(f *CreateForm) { f.Confidence = 0 },
		func(f *CreateForm) { f.Confidence = 11 },
		func(f *CreateForm) { f.Type = "VIP" },
	}
	for i, mutate := range bad {
		form := validForm()
		mutate(&form)
		err := screen.Submit(context.Background(), form)
		var vErr *backend.ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestSubmitPublishesPendingTip(t *testing.T) {
	screen, mem := loggedInScreen(t, true)

	if err := screen.Submit(context.Background(), validForm()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if screen.Submitting() {
		t.Fatal("submitting flag must reset")
	}

	listed, err := mem.ListTips(context.Background())
	if err != nil {
		t.Fatalf("list tips: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected exactly one tip, got %d", len(listed))
	}
	if listed[0].Status != backend.TipPending {
		t.Fatalf("new tips must be PENDING, got %s", listed[0].Status)
	}
	if listed[0].Odds != 1.85 || listed[0].Stake != 10 {
		t.Fatalf("unexpected tip values: %+v", listed[0])
	}
}

func TestSubmitLoggedOut(t *testing.T) {
	mem := backend.NewMemory()
	sess, err := session.New(mem, logging.Discard())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(sess.Close)

	screen := NewCreateScreen(mem, sess)
	submitErr := screen.Submit(context.Background(), validForm())
	var authErr *backend.AuthError
	if !errors.As(submitErr, &authErr) {
		t.Fatalf("expected auth error, got %v", submitErr)
	}
}

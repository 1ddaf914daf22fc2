package account_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/trigate/trigate/pkg/account"
	"github.com/trigate/trigate/pkg/kv"
)

func newTestStore(t *testing.T, opts ...account.StoreOption) *account.Store {
	t.Helper()
	return account.NewStore(kv.NewMemory(nil), opts...)
}

func TestCreateAndAuthenticate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct, err := s.Create(ctx, "fenny", "hunter2", "fenny")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if acct.ID == "" || acct.Username != "fenny" || acct.ProfileID != "fenny" {
		t.Errorf("account = %+v", acct)
	}

	got, err := s.Authenticate(ctx, "fenny", "hunter2")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != acct.ID {
		t.Errorf("id = %s, want %s", got.ID, acct.ID)
	}

	if _, err := s.Authenticate(ctx, "fenny", "wrong"); !errors.Is(err, account.ErrBadCredentials) {
		t.Errorf("wrong secret: err = %v", err)
	}
	if _, err := s.Authenticate(ctx, "nobody", "hunter2"); !errors.Is(err, account.ErrBadCredentials) {
		t.Errorf("unknown user: err = %v", err)
	}
}

func TestCreateDuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, "fenny", "a", "fenny"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, "fenny", "b", "fenny"); !errors.Is(err, account.ErrExists) {
		t.Fatalf("err = %v, want ErrExists", err)
	}
}

func TestCreateRejectsUnsafeUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a:b", "a b", "a\tb", "a\nb"} {
		if _, err := s.Create(ctx, name, "hunter2", "p1"); err == nil {
			t.Errorf("Create(%q) succeeded, want error", name)
		}
	}

	// Lookups with such names report not-found instead of reaching the
	// store.
	if _, err := s.GetByUsername(ctx, "a:b"); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("GetByUsername: err = %v, want ErrNotFound", err)
	}
	if _, err := s.GetSession(ctx, "tok:en"); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("GetSession: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSession(ctx, "tok:en"); err != nil {
		t.Errorf("DeleteSession: %v", err)
	}
}

func TestGetByUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct, err := s.Create(ctx, "george", "secret", "george")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.GetByUsername(ctx, "george")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if got.ID != acct.ID {
		t.Errorf("id = %s", got.ID)
	}
	if _, err := s.GetByUsername(ctx, "nobody"); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestAttemptHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct, err := s.Create(ctx, "fenny", "secret", "fenny")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, rec := range []*account.AttemptRecord{
		{AttemptID: "a1", ProfileID: "fenny", Overall: false, Message: "authentication failed: voice check failed",
			Steps: map[string]bool{"face": true, "voice": false, "lipsync": true}},
		{AttemptID: "a2", ProfileID: "fenny", Overall: true, Message: "authentication successful for fenny",
			Steps: map[string]bool{"face": true, "voice": true, "lipsync": true}},
	} {
		if err := s.RecordAttempt(ctx, acct.ID, rec); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
	}

	attempts, err := s.Attempts(ctx, acct.ID)
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	if attempts[0].Overall || !attempts[1].Overall {
		t.Errorf("attempt verdicts = %v, %v", attempts[0].Overall, attempts[1].Overall)
	}
	if !attempts[0].Steps["face"] || attempts[0].Steps["voice"] {
		t.Errorf("steps = %v", attempts[0].Steps)
	}
	if attempts[0].At.IsZero() {
		t.Error("attempt time not stamped")
	}
}

func TestDeleteRemovesHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct, err := s.Create(ctx, "fenny", "secret", "fenny")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.RecordAttempt(ctx, acct.ID, &account.AttemptRecord{AttemptID: "a1", ProfileID: "fenny"}); err != nil {
		t.Fatalf("RecordAttempt: %v", err)
	}

	if err := s.Delete(ctx, acct.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, acct.ID); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("Get after delete: err = %v", err)
	}
	if _, err := s.GetByUsername(ctx, "fenny"); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("GetByUsername after delete: err = %v", err)
	}
	attempts, err := s.Attempts(ctx, acct.ID)
	if err != nil {
		t.Fatalf("Attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("attempts = %d after delete", len(attempts))
	}
}

func TestSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	acct, err := s.Create(ctx, "fenny", "secret", "fenny")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess, err := s.CreateSession(ctx, acct.ID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	got, err := s.GetSession(ctx, sess.Token)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.AccountID != acct.ID {
		t.Errorf("account id = %s", got.AccountID)
	}

	if err := s.DeleteSession(ctx, sess.Token); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession(ctx, sess.Token); !errors.Is(err, account.ErrNotFound) {
		t.Errorf("err after revoke = %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := newTestStore(t, account.WithSessionTTL(-time.Second))
	ctx := context.Background()

	acct, err := s.Create(ctx, "fenny", "secret", "fenny")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess, err := s.CreateSession(ctx, acct.ID)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.GetSession(ctx, sess.Token); !errors.Is(err, account.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	// Expired sessions are purged on read.
	if _, err := s.GetSession(ctx, sess.Token); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// Package account persists operator accounts, their login sessions, and
// the record of past authentication attempts. Accounts bind a login
// identity to one enrolled biometric profile; the verification flow runs
// against that profile and its outcome is recorded here.
package account

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/trigate/trigate/pkg/jsontime"
	"github.com/trigate/trigate/pkg/kv"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when an account or session does not exist.
	ErrNotFound = errors.New("account: not found")

	// ErrExists is returned by Create for a username already taken.
	ErrExists = errors.New("account: username already exists")

	// ErrBadCredentials is returned by Authenticate for a wrong secret.
	ErrBadCredentials = errors.New("account: bad credentials")

	// ErrSessionExpired is returned by GetSession past the expiry.
	ErrSessionExpired = errors.New("account: session expired")
)

// DefaultSessionTTL is how long a login session stays valid.
const DefaultSessionTTL = 12 * time.Hour

// Account is one operator identity.
type Account struct {
	ID       string `msgpack:"id" json:"id"`
	Username string `msgpack:"username" json:"username"`

	// ProfileID is the enrolled biometric profile this account
	// authenticates against.
	ProfileID string `msgpack:"profile_id" json:"profile_id"`

	secretSalt []byte
	secretHash []byte

	CreatedAt jsontime.Milli `msgpack:"created_at" json:"created_at"`
}

// record is the stored form of an Account; the secret material is kept
// out of the exported struct so it never leaks through JSON.
type record struct {
	ID         string         `msgpack:"id"`
	Username   string         `msgpack:"username"`
	ProfileID  string         `msgpack:"profile_id"`
	SecretSalt []byte         `msgpack:"secret_salt"`
	SecretHash []byte         `msgpack:"secret_hash"`
	CreatedAt  jsontime.Milli `msgpack:"created_at"`
}

func (r *record) account() *Account {
	return &Account{
		ID:         r.ID,
		Username:   r.Username,
		ProfileID:  r.ProfileID,
		secretSalt: r.SecretSalt,
		secretHash: r.SecretHash,
		CreatedAt:  r.CreatedAt,
	}
}

// AttemptRecord is the durable trace of one verification attempt.
type AttemptRecord struct {
	AttemptID string          `msgpack:"attempt_id" json:"attempt_id"`
	ProfileID string          `msgpack:"profile_id" json:"profile_id"`
	Overall   bool            `msgpack:"overall" json:"overall"`
	Message   string          `msgpack:"message" json:"message"`
	Steps     map[string]bool `msgpack:"steps" json:"steps"`
	At        jsontime.Milli  `msgpack:"at" json:"at"`
}

// Session is a short-lived login session minted after a passing attempt
// or a password login.
type Session struct {
	Token     string         `msgpack:"token" json:"token"`
	AccountID string         `msgpack:"account_id" json:"account_id"`
	CreatedAt jsontime.Milli `msgpack:"created_at" json:"created_at"`
	ExpiresAt jsontime.Milli `msgpack:"expires_at" json:"expires_at"`
}

// Store persists accounts in a kv.Store.
type Store struct {
	kv         kv.Store
	sessionTTL time.Duration
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSessionTTL overrides the login session lifetime.
func WithSessionTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.sessionTTL = ttl
	}
}

// NewStore builds a Store over the kv backend.
func NewStore(backend kv.Store, opts ...StoreOption) *Store {
	s := &Store{kv: backend, sessionTTL: DefaultSessionTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func accountKey(id string) kv.Key      { return kv.Key{"account", "id", id} }
func usernameKey(name string) kv.Key   { return kv.Key{"account", "name", name} }
func sessionKey(token string) kv.Key   { return kv.Key{"session", token} }
func attemptsPrefix(id string) kv.Key  { return kv.Key{"attempt", id} }
func attemptKey(id, aid string) kv.Key { return kv.Key{"attempt", id, aid} }

// validKeySegment rejects values that cannot be stored as a key segment.
func validKeySegment(name string) bool {
	return name != "" && !strings.ContainsAny(name, ": \t\r\n")
}

// Create registers a new account bound to the enrolled profile.
func (s *Store) Create(ctx context.Context, username, secret, profileID string) (*Account, error) {
	if username == "" || secret == "" {
		return nil, fmt.Errorf("account: username and secret are required")
	}
	if !validKeySegment(username) {
		return nil, fmt.Errorf("account: invalid username %q", username)
	}
	if _, err := s.kv.Get(ctx, usernameKey(username)); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, username)
	} else if !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	rec := &record{
		ID:         uuid.NewString(),
		Username:   username,
		ProfileID:  profileID,
		SecretSalt: salt,
		SecretHash: hashSecret(salt, secret),
		CreatedAt:  jsontime.NowEpochMilli(),
	}
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode account: %w", err)
	}
	err = s.kv.BatchSet(ctx, []kv.Entry{
		{Key: accountKey(rec.ID), Value: data},
		{Key: usernameKey(username), Value: []byte(rec.ID)},
	})
	if err != nil {
		return nil, err
	}
	return rec.account(), nil
}

// Get fetches an account by id.
func (s *Store) Get(ctx context.Context, id string) (*Account, error) {
	data, err := s.kv.Get(ctx, accountKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}
	return rec.account(), nil
}

// GetByUsername fetches an account by login name.
func (s *Store) GetByUsername(ctx context.Context, username string) (*Account, error) {
	if !validKeySegment(username) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	id, err := s.kv.Get(ctx, usernameKey(username))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, username)
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, string(id))
}

// Authenticate checks the secret and returns the account on success.
func (s *Store) Authenticate(ctx context.Context, username, secret string) (*Account, error) {
	acct, err := s.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	got := hashSecret(acct.secretSalt, secret)
	if subtle.ConstantTimeCompare(got, acct.secretHash) != 1 {
		return nil, ErrBadCredentials
	}
	return acct, nil
}

// Delete removes the account, its username index, and its attempt history.
func (s *Store) Delete(ctx context.Context, id string) error {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	keys := []kv.Key{accountKey(id), usernameKey(acct.Username)}
	for entry, err := range s.kv.List(ctx, attemptsPrefix(id)) {
		if err != nil {
			return err
		}
		keys = append(keys, entry.Key)
	}
	return s.kv.BatchDelete(ctx, keys)
}

// RecordAttempt appends one verification attempt to the account's history.
func (s *Store) RecordAttempt(ctx context.Context, accountID string, rec *AttemptRecord) error {
	if rec.AttemptID == "" {
		return fmt.Errorf("account: attempt id is required")
	}
	if rec.At.IsZero() {
		rec.At = jsontime.NowEpochMilli()
	}
	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	return s.kv.Set(ctx, attemptKey(accountID, rec.AttemptID), data)
}

// Attempts lists the account's recorded attempts.
func (s *Store) Attempts(ctx context.Context, accountID string) ([]*AttemptRecord, error) {
	var out []*AttemptRecord
	for entry, err := range s.kv.List(ctx, attemptsPrefix(accountID)) {
		if err != nil {
			return nil, err
		}
		var rec AttemptRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return nil, fmt.Errorf("decode attempt: %w", err)
		}
		out = append(out, &rec)
	}
	return out, nil
}

// CreateSession mints a login session for the account.
func (s *Store) CreateSession(ctx context.Context, accountID string) (*Session, error) {
	now := time.Now()
	sess := &Session{
		Token:     uuid.NewString(),
		AccountID: accountID,
		CreatedAt: jsontime.Milli(now),
		ExpiresAt: jsontime.Milli(now.Add(s.sessionTTL)),
	}
	data, err := msgpack.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	if err := s.kv.Set(ctx, sessionKey(sess.Token), data); err != nil {
		return nil, err
	}
	return sess, nil
}

// GetSession validates a session token. Expired sessions are deleted on
// sight.
func (s *Store) GetSession(ctx context.Context, token string) (*Session, error) {
	if !validKeySegment(token) {
		return nil, ErrNotFound
	}
	data, err := s.kv.Get(ctx, sessionKey(token))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := msgpack.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if time.Now().After(sess.ExpiresAt.Time()) {
		_ = s.kv.Delete(ctx, sessionKey(token))
		return nil, ErrSessionExpired
	}
	return &sess, nil
}

// DeleteSession revokes a session token.
func (s *Store) DeleteSession(ctx context.Context, token string) error {
	if !validKeySegment(token) {
		return nil
	}
	return s.kv.Delete(ctx, sessionKey(token))
}

func hashSecret(salt []byte, secret string) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(secret))
	return h.Sum(nil)
}

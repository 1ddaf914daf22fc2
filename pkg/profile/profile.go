// Package profile models the enrolled identities the scoring services can
// verify against, and caches the service-side enrollment listing so the
// flow can validate a claimed profile before any capture starts.
package profile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrUnknownProfile is returned by Lookup for a name the services have no
// enrollment for.
var ErrUnknownProfile = errors.New("profile: unknown profile")

// Mode is an authentication mode a profile supports.
type Mode string

const (
	ModeFace  Mode = "face"
	ModeVoice Mode = "voice"
	ModeBoth  Mode = "both"
)

// Profile is one enrolled identity.
type Profile struct {
	// Name is the profile identifier used in verification requests.
	Name string `json:"name"`

	// HasFaceModel reports whether a face enrollment exists.
	HasFaceModel bool `json:"has_face_model"`

	// HasVoiceModel reports whether a voice enrollment exists.
	HasVoiceModel bool `json:"has_voice_model"`

	// Modes lists the authentication modes this profile supports.
	Modes []Mode `json:"supports_modes"`
}

// Supports reports whether the profile can be verified in the given mode.
func (p *Profile) Supports(mode Mode) bool {
	return slices.Contains(p.Modes, mode)
}

// Lister fetches the current enrollments from the scoring services.
type Lister interface {
	ListProfiles(ctx context.Context) ([]Profile, error)
}

// DefaultTTL is how long a fetched listing stays fresh.
const DefaultTTL = time.Minute

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithTTL overrides the cache freshness window.
func WithTTL(ttl time.Duration) DirectoryOption {
	return func(d *Directory) {
		d.ttl = ttl
	}
}

// Directory is a read-through cache over the enrollment listing.
// Safe for concurrent use.
type Directory struct {
	lister Lister
	ttl    time.Duration

	mu       sync.Mutex
	profiles []Profile
	fetched  time.Time
}

// NewDirectory builds a Directory over the lister.
func NewDirectory(lister Lister, opts ...DirectoryOption) *Directory {
	d := &Directory{lister: lister, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// All returns the enrolled profiles, refreshing the cache when stale.
func (d *Directory) All(ctx context.Context) ([]Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(d.profiles), nil
}

// Lookup finds one profile by name.
func (d *Directory) Lookup(ctx context.Context, name string) (*Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.refreshLocked(ctx); err != nil {
		return nil, err
	}
	for i := range d.profiles {
		if d.profiles[i].Name == name {
			p := d.profiles[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
}

// Invalidate drops the cached listing so the next call refetches.
func (d *Directory) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fetched = time.Time{}
}

func (d *Directory) refreshLocked(ctx context.Context) error {
	if !d.fetched.IsZero() && time.Since(d.fetched) < d.ttl {
		return nil
	}
	profiles, err := d.lister.ListProfiles(ctx)
	if err != nil {
		// A stale listing beats no listing when the services hiccup.
		if len(d.profiles) > 0 {
			return nil
		}
		return fmt.Errorf("list profiles: %w", err)
	}
	d.profiles = profiles
	d.fetched = time.Now()
	return nil
}

package verify

import (
	"context"

	"github.com/trigate/trigate/pkg/profile"
)

// ListProfiles fetches the enrollments the services can verify against.
// Client implements profile.Lister.
func (c *Client) ListProfiles(ctx context.Context) ([]profile.Profile, error) {
	var result struct {
		Profiles []profile.Profile `json:"profiles"`
	}
	if err := c.http.get(ctx, "/api/profiles", &result); err != nil {
		return nil, err
	}
	return result.Profiles, nil
}

var _ profile.Lister = (*Client)(nil)

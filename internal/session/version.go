package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Version identifies the remote protocol version the session client should
// advertise when connecting.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// FallbackVersion is the hardcoded known-good version used when the remote
// version check fails. Failing the check is non-fatal.
var FallbackVersion = Version{Major: 2, Minor: 3000, Patch: 1023223821}

// VersionSource reports the current protocol version.
type VersionSource interface {
	Latest(ctx context.Context) (Version, error)
}

// HTTPVersionSource fetches the current protocol version from a remote
// version endpoint.
type HTTPVersionSource struct {
	URL        string
	HTTPClient *http.Client
}

// NewHTTPVersionSource creates a version source with a bounded timeout.
func NewHTTPVersionSource(url string) *HTTPVersionSource {
	return &HTTPVersionSource{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Latest fetches the advertised protocol version.
func (s *HTTPVersionSource) Latest(ctx context.Context) (Version, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Version{}, fmt.Errorf("session: build version request: %w", err)
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return Version{}, fmt.Errorf("session: version request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Version{}, fmt.Errorf("session: version endpoint returned %d", resp.StatusCode)
	}
	var v Version
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return Version{}, fmt.Errorf("session: decode version: %w", err)
	}
	if v.Major == 0 {
		return Version{}, fmt.Errorf("session: version endpoint returned empty version")
	}
	return v, nil
}

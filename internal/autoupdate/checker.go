// Package autoupdate checks GitHub releases for a newer daemon build. The
// check is advisory: obi-core only logs availability, it never replaces
// itself.
package autoupdate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ReleaseChannel defines which releases to consider.
type ReleaseChannel string

const (
	ChannelStable     ReleaseChannel = "stable"     // Only stable releases
	ChannelPrerelease ReleaseChannel = "prerelease" // Stable + pre-releases (beta, rc)
)

// Release represents a GitHub release.
type Release struct {
	TagName    string    `json:"tag_name"`
	Name       string    `json:"name"`
	Published  time.Time `json:"published_at"`
	Prerelease bool      `json:"prerelease"`
	Draft      bool      `json:"draft"`
}

// Checker queries the GitHub releases API for one repository.
type Checker struct {
	currentVersion string
	apiURL         string
	channel        ReleaseChannel
	client         *http.Client
}

// NewChecker creates a checker for owner/repo against currentVersion.
func NewChecker(owner, repo, currentVersion string) *Checker {
	return &Checker{
		currentVersion: currentVersion,
		apiURL:         fmt.Sprintf("https://api.github.com/repos/%s/%s", owner, repo),
		channel:        ChannelStable,
		client:         &http.Client{Timeout: 10 * time.Second},
	}
}

// SetChannel sets the release channel for this checker.
func (c *Checker) SetChannel(channel ReleaseChannel) {
	c.channel = channel
}

// LatestRelease fetches the newest release matching the channel.
func (c *Checker) LatestRelease() (*Release, error) {
	if c.channel == ChannelStable {
		release, err := c.fetchOne(c.apiURL + "/releases/latest")
		if err != nil {
			return nil, err
		}
		return release, nil
	}

	resp, err := c.client.Get(c.apiURL + "/releases?per_page=30")
	if err != nil {
		return nil, fmt.Errorf("fetch releases: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github API returned status %d", resp.StatusCode)
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("parse releases: %w", err)
	}
	for i := range releases {
		if !releases[i].Draft {
			return &releases[i], nil
		}
	}
	return nil, fmt.Errorf("no releases found matching channel %s", c.channel)
}

func (c *Checker) fetchOne(url string) (*Release, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github API returned status %d", resp.StatusCode)
	}
	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("parse release: %w", err)
	}
	return &release, nil
}

// IsUpdateAvailable reports whether a newer version than currentVersion is
// published.
func (c *Checker) IsUpdateAvailable() (bool, *Release, error) {
	release, err := c.LatestRelease()
	if err != nil {
		return false, nil, err
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	current := strings.TrimPrefix(c.currentVersion, "v")
	if isNewer(latest, current) {
		return true, release, nil
	}
	return false, nil, nil
}

// isNewer compares dotted numeric versions, left to right.
func isNewer(version1, version2 string) bool {
	parts1 := strings.Split(version1, ".")
	parts2 := strings.Split(version2, ".")

	for i := 0; i < len(parts1) && i < len(parts2); i++ {
		var v1, v2 int
		if _, err := fmt.Sscanf(parts1[i], "%d", &v1); err != nil {
			v1 = 0
		}
		if _, err := fmt.Sscanf(parts2[i], "%d", &v2); err != nil {
			v2 = 0
		}
		if v1 > v2 {
			return true
		}
		if v1 < v2 {
			return false
		}
	}
	return len(parts1) > len(parts2)
}

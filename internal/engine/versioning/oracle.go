// Package versioning answers compatibility-version questions: whether a
// cluster level is supported and whether a feature is enabled for it.
package versioning

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/yungbote/dcengine/internal/engine/configstore"
)

// Oracle is safe for concurrent use; it is immutable after New.
type Oracle struct {
	cfg       configstore.Reader
	supported []*semver.Version
}

func New(cfg configstore.Reader) (*Oracle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("versioning: config reader is required")
	}
	levels := cfg.Strings(configstore.SupportedClusterLevels)
	o := &Oracle{cfg: cfg, supported: make([]*semver.Version, 0, len(levels))}
	for _, raw := range levels {
		v, err := semver.NewVersion(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("versioning: invalid supported level %q: %w", raw, err)
		}
		o.supported = append(o.supported, v)
	}
	sort.Sort(semver.Collection(o.supported))
	return o, nil
}

// Parse accepts "major.minor" or full semver strings.
func Parse(version string) (*semver.Version, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, fmt.Errorf("empty version")
	}
	return semver.NewVersion(version)
}

// Level renders v as the "major.minor" key configuration uses.
func Level(v *semver.Version) string {
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
}

func (o *Oracle) IsSupported(version string) bool {
	v, err := Parse(version)
	if err != nil {
		return false
	}
	for _, s := range o.supported {
		if s.Major() == v.Major() && s.Minor() == v.Minor() {
			return true
		}
	}
	return false
}

// IsFeatureEnabledForVersion looks the feature up as a versioned boolean
// key. Unparsable versions have no features.
func (o *Oracle) IsFeatureEnabledForVersion(feature, version string) bool {
	v, err := Parse(version)
	if err != nil {
		return false
	}
	return o.cfg.BoolForVersion(feature, Level(v))
}

// Latest is the highest supported level, or "" when none are configured.
func (o *Oracle) Latest() string {
	if len(o.supported) == 0 {
		return ""
	}
	return Level(o.supported[len(o.supported)-1])
}

// Supported lists the supported levels in ascending order.
func (o *Oracle) Supported() []string {
	out := make([]string, 0, len(o.supported))
	for _, v := range o.supported {
		out = append(out, Level(v))
	}
	return out
}

// Highest returns the greatest parsable version among versions.
func Highest(versions []string) string {
	var best *semver.Version
	bestRaw := ""
	for _, raw := range versions {
		v, err := Parse(raw)
		if err != nil {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestRaw = v, raw
		}
	}
	return bestRaw
}

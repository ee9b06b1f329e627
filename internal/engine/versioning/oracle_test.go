package versioning

import (
	"testing"

	"github.com/yungbote/dcengine/internal/engine/configstore"
)

func newOracle(t *testing.T, doc string) *Oracle {
	t.Helper()
	cfg, err := configstore.Load([]byte(doc))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	o, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestOracleIsSupported(t *testing.T) {
	o := newOracle(t, `
values:
  SupportedClusterLevels: ["4.2", "4.4", "4.3"]
`)
	cases := []struct {
		version string
		want    bool
	}{
		{"4.2", true},
		{"4.3.1", true},
		{"4.4", true},
		{"4.5", false},
		{"3.6", false},
		{"", false},
		{"not-a-version", false},
	}
	for _, tc := range cases {
		if got := o.IsSupported(tc.version); got != tc.want {
			t.Fatalf("IsSupported(%q): want=%v got=%v", tc.version, tc.want, got)
		}
	}
	if got := o.Latest(); got != "4.4" {
		t.Fatalf("Latest: want=4.4 got=%q", got)
	}
}

func TestOracleFeatureForVersion(t *testing.T) {
	o := newOracle(t, "")
	if o.IsFeatureEnabledForVersion(configstore.LocalStorageEnabled, "4.2") {
		t.Fatalf("LocalStorageEnabled 4.2: want=false")
	}
	if o.IsFeatureEnabledForVersion(configstore.LocalStorageEnabled, "4.2.0") {
		t.Fatalf("LocalStorageEnabled 4.2.0: want=false")
	}
	if !o.IsFeatureEnabledForVersion(configstore.LocalStorageEnabled, "4.4") {
		t.Fatalf("LocalStorageEnabled 4.4: want=true")
	}
	if o.IsFeatureEnabledForVersion("UnknownFeature", "4.4") {
		t.Fatalf("unknown feature: want=false")
	}
	if o.IsFeatureEnabledForVersion(configstore.LocalStorageEnabled, "garbage") {
		t.Fatalf("unparsable version: want=false")
	}
}

func TestHighest(t *testing.T) {
	if got := Highest([]string{"4.6", "4.10", "4.7", "bad"}); got != "4.10" {
		t.Fatalf("Highest: want=4.10 got=%q", got)
	}
	if got := Highest(nil); got != "" {
		t.Fatalf("Highest(nil): want empty got=%q", got)
	}
}

func TestNewRejectsInvalidLevels(t *testing.T) {
	cfg, err := configstore.Parse([]byte("values:\n  SupportedClusterLevels: [\"x.y\"]\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := New(cfg); err == nil {
		t.Fatalf("New: expected error for invalid level")
	}
}

// Package configstore serves read-only engine configuration. Values are
// loaded from YAML layered over the built-in defaults; some keys are
// additionally keyed by compatibility version, with "general" as the
// fallback entry.
package configstore

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsFS embed.FS

// GeneralVersion is the versioned entry used when no exact version matches.
const GeneralVersion = "general"

// Keys read by the engine.
const (
	ManagementNetwork         = "ManagementNetwork"
	StoragePoolNameSizeLimit  = "StoragePoolNameSizeLimit"
	SupportedClusterLevels    = "SupportedClusterLevels"
	TransferTicketLifetime    = "TransferTicketLifetime"
	TransferMaxTicketRenewals = "TransferMaxTicketRenewals"
	TransferHostID            = "TransferHostID"
	DefaultMTU                = "DefaultMTU"

	LocalStorageEnabled    = "LocalStorageEnabled"
	ImageTransferSupported = "ImageTransferSupported"
	ServerCPUList          = "ServerCPUList"
)

// Reader is the lookup surface commands depend on.
type Reader interface {
	String(key string) string
	Int(key string) int
	Bool(key string) bool
	Strings(key string) []string
	Duration(key string) time.Duration
	BoolForVersion(key, version string) bool
	Decode(key string, out any) error
	DecodeForVersion(key, version string, out any) error
	Versions(key string) []string
}

type document struct {
	Values    map[string]yaml.Node            `yaml:"values"`
	Versioned map[string]map[string]yaml.Node `yaml:"versioned"`
}

// Store is immutable once built.
type Store struct {
	values    map[string]yaml.Node
	versioned map[string]map[string]yaml.Node
}

var _ Reader = (*Store)(nil)

// Defaults returns the built-in configuration.
func Defaults() (*Store, error) {
	raw, err := defaultsFS.ReadFile("defaults.yaml")
	if err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}
	return Parse(raw)
}

// Parse builds a store from a YAML document without defaults.
func Parse(data []byte) (*Store, error) {
	s := &Store{values: map[string]yaml.Node{}, versioned: map[string]map[string]yaml.Node{}}
	if err := s.merge(data); err != nil {
		return nil, err
	}
	return s, nil
}

// Load layers each document over the defaults; later documents win per key
// (and per version for versioned keys).
func Load(docs ...[]byte) (*Store, error) {
	s, err := Defaults()
	if err != nil {
		return nil, err
	}
	for i, d := range docs {
		if err := s.merge(d); err != nil {
			return nil, fmt.Errorf("config document %d: %w", i, err)
		}
	}
	return s, nil
}

// LoadFile layers the YAML file at path over the defaults. An empty path
// yields the defaults.
func LoadFile(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Defaults()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Load(raw)
}

func (s *Store) merge(data []byte) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	for k, v := range doc.Values {
		s.values[k] = v
	}
	for k, byVersion := range doc.Versioned {
		dst := s.versioned[k]
		if dst == nil {
			dst = map[string]yaml.Node{}
			s.versioned[k] = dst
		}
		for ver, v := range byVersion {
			dst[strings.TrimSpace(ver)] = v
		}
	}
	return nil
}

func (s *Store) node(key string) (yaml.Node, bool) {
	n, ok := s.values[key]
	return n, ok
}

func (s *Store) versionedNode(key, version string) (yaml.Node, bool) {
	byVersion, ok := s.versioned[key]
	if !ok {
		return yaml.Node{}, false
	}
	if n, ok := byVersion[strings.TrimSpace(version)]; ok {
		return n, true
	}
	n, ok := byVersion[GeneralVersion]
	return n, ok
}

func (s *Store) String(key string) string {
	var out string
	if err := s.Decode(key, &out); err != nil {
		return ""
	}
	return out
}

func (s *Store) Int(key string) int {
	var out int
	if err := s.Decode(key, &out); err != nil {
		return 0
	}
	return out
}

func (s *Store) Bool(key string) bool {
	var out bool
	if err := s.Decode(key, &out); err != nil {
		return false
	}
	return out
}

func (s *Store) Strings(key string) []string {
	var out []string
	if err := s.Decode(key, &out); err != nil {
		return nil
	}
	return out
}

// Duration accepts Go duration strings ("5m") or plain integers of seconds.
func (s *Store) Duration(key string) time.Duration {
	n, ok := s.node(key)
	if !ok || n.Kind != yaml.ScalarNode {
		return 0
	}
	raw := strings.TrimSpace(n.Value)
	if raw == "" {
		return 0
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func (s *Store) BoolForVersion(key, version string) bool {
	var out bool
	if err := s.DecodeForVersion(key, version, &out); err != nil {
		return false
	}
	return out
}

func (s *Store) Decode(key string, out any) error {
	n, ok := s.node(key)
	if !ok {
		return fmt.Errorf("config key %q not set", key)
	}
	if err := n.Decode(out); err != nil {
		return fmt.Errorf("decode config key %q: %w", key, err)
	}
	return nil
}

func (s *Store) DecodeForVersion(key, version string, out any) error {
	n, ok := s.versionedNode(key, version)
	if !ok {
		return fmt.Errorf("config key %q not set for version %q", key, version)
	}
	if err := n.Decode(out); err != nil {
		return fmt.Errorf("decode config key %q for version %q: %w", key, version, err)
	}
	return nil
}

// Versions lists the explicit versions a versioned key carries, sorted,
// excluding the general fallback.
func (s *Store) Versions(key string) []string {
	byVersion := s.versioned[key]
	out := make([]string, 0, len(byVersion))
	for ver := range byVersion {
		if ver == GeneralVersion {
			continue
		}
		out = append(out, ver)
	}
	sort.Strings(out)
	return out
}

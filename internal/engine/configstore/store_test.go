package configstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	s, err := Defaults()
	if err != nil {
		t.Fatalf("Defaults: %v", err)
	}
	if got := s.String(ManagementNetwork); got != "ovirtmgmt" {
		t.Fatalf("ManagementNetwork: want=ovirtmgmt got=%q", got)
	}
	if got := s.Int(StoragePoolNameSizeLimit); got != 40 {
		t.Fatalf("StoragePoolNameSizeLimit: want=40 got=%d", got)
	}
	if got := s.Duration(TransferTicketLifetime); got != 5*time.Minute {
		t.Fatalf("TransferTicketLifetime: want=5m got=%s", got)
	}
	if s.BoolForVersion(LocalStorageEnabled, "4.2") {
		t.Fatalf("LocalStorageEnabled 4.2: want=false")
	}
	if !s.BoolForVersion(LocalStorageEnabled, "4.4") {
		t.Fatalf("LocalStorageEnabled 4.4: want=true via general")
	}
	if got := s.Versions(ServerCPUList); len(got) != 2 || got[1] != "4.7" {
		t.Fatalf("ServerCPUList versions: got=%v", got)
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	override := []byte(`
values:
  StoragePoolNameSizeLimit: 12
  TransferTicketLifetime: 90
versioned:
  LocalStorageEnabled:
    "4.4": false
`)
	s, err := Load(override)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Int(StoragePoolNameSizeLimit); got != 12 {
		t.Fatalf("override int: want=12 got=%d", got)
	}
	if got := s.Duration(TransferTicketLifetime); got != 90*time.Second {
		t.Fatalf("integer seconds: want=90s got=%s", got)
	}
	if s.BoolForVersion(LocalStorageEnabled, "4.4") {
		t.Fatalf("versioned override: want=false")
	}
	if !s.BoolForVersion(LocalStorageEnabled, "4.5") {
		t.Fatalf("general fallback kept: want=true")
	}
	if got := s.String(ManagementNetwork); got != "ovirtmgmt" {
		t.Fatalf("untouched default: got=%q", got)
	}
}

func TestLoadFileAndMissingKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	if err := os.WriteFile(path, []byte("values:\n  ManagementNetwork: mgmt\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := s.String(ManagementNetwork); got != "mgmt" {
		t.Fatalf("ManagementNetwork: want=mgmt got=%q", got)
	}
	if got := s.String("NoSuchKey"); got != "" {
		t.Fatalf("missing key: want empty got=%q", got)
	}
	var out []string
	if err := s.DecodeForVersion("NoSuchKey", "4.2", &out); err == nil {
		t.Fatalf("missing versioned key: expected error")
	}
	if _, err := Parse([]byte("values: [")); err == nil {
		t.Fatalf("Parse invalid yaml: expected error")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	s, err := LoadFile(filepath.Join("..", "..", "..", "config", "engine.example.yaml"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := s.Duration(TransferTicketLifetime); got != 10*time.Minute {
		t.Fatalf("TransferTicketLifetime: want=10m got=%v", got)
	}
	if s.BoolForVersion(LocalStorageEnabled, "4.3") {
		t.Fatalf("LocalStorageEnabled 4.3: want=false")
	}
	if !s.BoolForVersion(LocalStorageEnabled, "4.7") {
		t.Fatalf("LocalStorageEnabled 4.7: want=true via general")
	}
	if len(s.Versions(ServerCPUList)) == 0 {
		t.Fatalf("ServerCPUList defaults lost")
	}
}

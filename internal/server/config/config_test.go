package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
)

func TestLoadMissingFileYieldsZeroState(t *testing.T) {
	t.Setenv("UMOCKDEV_DIR", t.TempDir())

	s := New()

	st, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if st != (profile.PersistentState{}) {
		t.Fatalf("got %+v, want zero value", st)
	}
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	t.Setenv("UMOCKDEV_DIR", t.TempDir())

	s := New()
	want := profile.PersistentState{CPUDriver: "intel_pstate", PlatformDriver: "platform_profile", Profile: profile.Performance}

	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestMatches(t *testing.T) {
	st := profile.PersistentState{CPUDriver: "intel_pstate", PlatformDriver: "platform_profile", Profile: profile.Balanced}

	if !Matches(st, "intel_pstate", "platform_profile") {
		t.Fatal("expected match")
	}

	if Matches(st, "amd_pstate", "platform_profile") {
		t.Fatal("expected mismatch on CPU driver name change")
	}
}

func TestSavePreservesUnknownSectionsAndKeys(t *testing.T) {
	t.Setenv("UMOCKDEV_DIR", t.TempDir())

	s := New()

	existing := "[State]\nCpuDriver=old_driver\nCustomKey=keep-me\n\n[OtherTool]\nSomeSetting=untouched\n"

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(s.path, []byte(existing), 0o644); err != nil {
		t.Fatal(err)
	}

	want := profile.PersistentState{CPUDriver: "intel_pstate", PlatformDriver: "platform_profile", Profile: profile.PowerSaver}
	if err := s.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		t.Fatal(err)
	}

	content := string(raw)

	if !strings.Contains(content, "CustomKey=keep-me") {
		t.Fatalf("unknown key under State was not preserved:\n%s", content)
	}

	if !strings.Contains(content, "[OtherTool]") || !strings.Contains(content, "SomeSetting=untouched") {
		t.Fatalf("unknown section was not preserved:\n%s", content)
	}
}

func TestPathHonorsOverride(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("UMOCKDEV_DIR", dir)

	if got, want := Path(), filepath.Join(dir, "var/lib/powerprofilesd/state.ini"); got != want {
		t.Fatalf("Path() = %q, want %q", got, want)
	}
}

// Package config implements the configuration store of spec §4.7: an
// INI-style file persisting the last (cpu_driver, platform_driver,
// profile) triple across restarts.
package config

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvo5/goconfigparser"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/sysfs"
)

const (
	statePath    = "/var/lib/powerprofilesd/state.ini"
	sectionState = "State"
	keyCPU       = "CpuDriver"
	keyPlatform  = "PlatformDriver"
	keyProfile   = "Profile"
)

// Path returns the effective state file path, honoring UMOCKDEV_DIR
// (spec §6) the same way sysfs attribute paths do.
func Path() string {
	return sysfs.Path(statePath)
}

// Store loads and saves the persisted (driver names, profile) triple.
type Store struct {
	path string
}

// New returns a Store at the default, UMOCKDEV-overridable path.
func New() *Store {
	return &Store{path: Path()}
}

// Load reads the state file. A missing file is not an error: it
// yields a zero-value PersistentState, matching "no persisted state"
// at first boot (spec §8, E2E-1).
func (s *Store) Load() (profile.PersistentState, error) {
	var st profile.PersistentState

	cfg := goconfigparser.New()
	cfg.AllowNoSectionHeader = false

	if err := cfg.ReadFile(s.path); err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}

		return st, fmt.Errorf("config: reading %s: %w", s.path, err)
	}

	if v, err := cfg.Get(sectionState, keyCPU); err == nil {
		st.CPUDriver = v
	}

	if v, err := cfg.Get(sectionState, keyPlatform); err == nil {
		st.PlatformDriver = v
	}

	if v, err := cfg.Get(sectionState, keyProfile); err == nil {
		if p, ok := profile.ParseProfile(v); ok {
			st.Profile = p
		}
	}

	return st, nil
}

// Save writes the currently selected driver names and active profile
// into the State section, preserving every other section and any
// unrecognized key verbatim (spec §6: "Unknown keys are preserved;
// unknown sections are ignored"). Failures here are reported as a
// PersistenceWarning by the caller and never surface to a client
// (spec §7).
func (s *Store) Save(st profile.PersistentState) error {
	existing, err := os.ReadFile(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("config: reading %s before persisting: %w", s.path, err)
	}

	pairs := []stateKV{
		{keyCPU, st.CPUDriver},
		{keyPlatform, st.PlatformDriver},
		{keyProfile, st.Profile.String()},
	}

	content := mergeState(existing, pairs)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("config: creating state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("config: renaming %s to %s: %w", tmp, s.path, err)
	}

	logger.Debug("Persisted state", logger.Ctx{"cpu_driver": st.CPUDriver, "platform_driver": st.PlatformDriver, "profile": st.Profile.String()})

	return nil
}

type stateKV struct {
	key, value string
}

func valueFor(pairs []stateKV, key string) (string, bool) {
	for _, p := range pairs {
		if p.key == key {
			return p.value, true
		}
	}

	return "", false
}

// mergeState rewrites the State section of an existing INI document
// with pairs, copying every other line through unchanged: other
// sections, comments, blank lines, and any key under State that pairs
// doesn't name. goconfigparser has no corresponding write path (it is
// only ever used here to read), so the merge is done by hand over the
// raw text rather than through a generic section/option serializer.
func mergeState(existing []byte, pairs []stateKV) string {
	var out strings.Builder

	inState := false
	sawState := false
	emitted := map[string]bool{}

	flushMissing := func() {
		if !inState {
			return
		}

		for _, p := range pairs {
			if !emitted[p.key] {
				fmt.Fprintf(&out, "%s=%s\n", p.key, p.value)
				emitted[p.key] = true
			}
		}
	}

	sc := bufio.NewScanner(bytes.NewReader(existing))
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
			flushMissing()

			inState = trimmed == "["+sectionState+"]"
			if inState {
				sawState = true
			}

			out.WriteString(line)
			out.WriteByte('\n')

			continue
		}

		if inState {
			if eq := strings.IndexByte(trimmed, '='); eq > 0 {
				key := strings.TrimSpace(trimmed[:eq])
				if v, ok := valueFor(pairs, key); ok {
					fmt.Fprintf(&out, "%s=%s\n", key, v)
					emitted[key] = true

					continue
				}
			}
		}

		out.WriteString(line)
		out.WriteByte('\n')
	}

	flushMissing()

	if !sawState {
		fmt.Fprintf(&out, "[%s]\n", sectionState)

		for _, p := range pairs {
			fmt.Fprintf(&out, "%s=%s\n", p.key, p.value)
		}
	}

	return out.String()
}

// Matches reports whether a loaded PersistentState's driver names
// still match the currently selected drivers of each kind; spec §4.7:
// "if either stored driver name differs from the selected driver of
// the same kind, discard the stored profile".
func Matches(st profile.PersistentState, cpuDriverName, platformDriverName string) bool {
	return st.CPUDriver == cpuDriverName && st.PlatformDriver == platformDriverName
}

package registry

import "testing"

func TestFakeDriverOnlyRegisteredWhenEnabled(t *testing.T) {
	names := func() map[string]bool {
		m := map[string]bool{}
		for _, e := range Drivers() {
			m[e.Name] = true
		}

		return m
	}

	if names()["fake"] {
		t.Fatal("fake driver should not be registered by default")
	}

	t.Setenv("POWER_PROFILE_DAEMON_FAKE_DRIVER", "1")

	if !names()["fake"] {
		t.Fatal("fake driver should be registered when enabled")
	}
}

func TestPlaceholderIsAlwaysLast(t *testing.T) {
	entries := Drivers()
	if entries[len(entries)-1].Name != "placeholder" {
		t.Fatalf("last entry = %q, want placeholder", entries[len(entries)-1].Name)
	}
}

func TestBlockedDriversParsesCommaList(t *testing.T) {
	t.Setenv("POWER_PROFILE_DAEMON_DRIVER_BLOCK", "intel_pstate, amd_pstate")

	blocked := BlockedDrivers()
	if !blocked["intel_pstate"] || !blocked["amd_pstate"] {
		t.Fatalf("got %v", blocked)
	}
}

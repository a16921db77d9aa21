package holds

import (
	"testing"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
)

func TestAddAssignsIncreasingCookies(t *testing.T) {
	tbl := New()

	c1 := tbl.Add(profile.Performance, "reason1", "app1", ":1.1", "org.freedesktop.UPower.PowerProfiles")
	c2 := tbl.Add(profile.PowerSaver, "reason2", "app2", ":1.2", "org.freedesktop.UPower.PowerProfiles")

	if c1 == 0 || c2 == 0 || c1 == c2 {
		t.Fatalf("got cookies %d, %d, want distinct nonzero", c1, c2)
	}

	if tbl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tbl.Len())
	}
}

func TestReleaseRemovesHold(t *testing.T) {
	tbl := New()
	c := tbl.Add(profile.Performance, "r", "app", ":1.1", "iface")

	h, ok := tbl.Release(c)
	if !ok {
		t.Fatal("expected hold to exist")
	}

	if h.Profile != profile.Performance {
		t.Fatalf("Profile = %v, want Performance", h.Profile)
	}

	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tbl.Len())
	}

	if _, ok := tbl.Release(c); ok {
		t.Fatal("expected second release to report not-found")
	}
}

func TestReleaseByBusNameRemovesAllMatching(t *testing.T) {
	tbl := New()
	tbl.Add(profile.Performance, "r", "app1", ":1.1", "iface")
	tbl.Add(profile.Balanced, "r", "app2", ":1.1", "iface")
	tbl.Add(profile.PowerSaver, "r", "app3", ":1.2", "iface")

	released := tbl.ReleaseByBusName(":1.1")
	if len(released) != 2 {
		t.Fatalf("released %d holds, want 2", len(released))
	}

	if tbl.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tbl.Len())
	}
}

func TestClearRemovesEverything(t *testing.T) {
	tbl := New()
	tbl.Add(profile.Performance, "r", "app1", ":1.1", "iface")
	tbl.Add(profile.Balanced, "r", "app2", ":1.2", "iface")

	released := tbl.Clear()
	if len(released) != 2 {
		t.Fatalf("released %d holds, want 2", len(released))
	}

	if tbl.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", tbl.Len())
	}

	if released := tbl.Clear(); released != nil {
		t.Fatalf("Clear on empty table = %v, want nil", released)
	}
}

func TestEffectiveNoHolds(t *testing.T) {
	tbl := New()

	if _, ok := tbl.Effective(); ok {
		t.Fatal("expected no effective hold")
	}
}

func TestEffectivePowerSaverWins(t *testing.T) {
	tbl := New()
	tbl.Add(profile.Performance, "r", "app1", ":1.1", "iface")
	tbl.Add(profile.PowerSaver, "r", "app2", ":1.2", "iface")
	tbl.Add(profile.Performance, "r", "app3", ":1.3", "iface")

	p, ok := tbl.Effective()
	if !ok {
		t.Fatal("expected an effective hold")
	}

	if p != profile.PowerSaver {
		t.Fatalf("Effective() = %v, want PowerSaver", p)
	}
}

func TestEffectiveFallsBackWithoutPowerSaver(t *testing.T) {
	tbl := New()
	c := tbl.Add(profile.Performance, "r", "app1", ":1.1", "iface")

	p, ok := tbl.Effective()
	if !ok {
		t.Fatal("expected an effective hold")
	}

	if p != profile.Performance {
		t.Fatalf("Effective() = %v, want Performance", p)
	}

	tbl.Release(c)

	if _, ok := tbl.Effective(); ok {
		t.Fatal("expected no effective hold after release")
	}
}

package bus

import (
	"testing"

	"github.com/powerprofilesd/powerprofilesd/internal/server/manager"
	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
)

func TestPropertyValueKnownNames(t *testing.T) {
	snap := manager.Snapshot{
		ActiveProfile:       profile.Balanced,
		PerformanceDegraded: "lap-detected",
		Version:             "1.0",
		Profiles: []manager.DriverAdvert{
			{Profile: profile.Balanced, CPUDriver: "x", PlatformDriver: "y", Driver: "multiple"},
		},
		Holds: []manager.HoldInfo{
			{Profile: profile.Performance, Reason: "build", ApplicationID: "org.x.A"},
		},
	}

	v, ok := propertyValue(snap, "ActiveProfile")
	if !ok || v != "balanced" {
		t.Fatalf("ActiveProfile = %v, %v, want \"balanced\", true", v, ok)
	}

	v, ok = propertyValue(snap, "PerformanceInhibited")
	if !ok || v != "" {
		t.Fatalf("PerformanceInhibited = %v, %v, want \"\", true", v, ok)
	}

	if _, ok := propertyValue(snap, "NoSuchProperty"); ok {
		t.Fatal("expected an unknown property name to report false")
	}
}

func TestBuildProfilesOmitsAbsentCPUDriver(t *testing.T) {
	snap := manager.Snapshot{
		Profiles: []manager.DriverAdvert{
			{Profile: profile.PowerSaver, PlatformDriver: "placeholder", Driver: "placeholder"},
		},
	}

	entries := buildProfiles(snap)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	if _, ok := entries[0]["CpuDriver"]; ok {
		t.Fatal("did not expect a CpuDriver key when no CPU driver advertises the profile")
	}

	if v := entries[0]["PlatformDriver"].Value(); v != "placeholder" {
		t.Fatalf("PlatformDriver = %v, want placeholder", v)
	}
}

func TestBuildHoldsShape(t *testing.T) {
	snap := manager.Snapshot{
		Holds: []manager.HoldInfo{
			{Profile: profile.PowerSaver, Reason: "low-battery", ApplicationID: "org.x.B"},
		},
	}

	entries := buildHolds(snap)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}

	if v := entries[0]["ApplicationId"].Value(); v != "org.x.B" {
		t.Fatalf("ApplicationId = %v, want org.x.B", v)
	}
}

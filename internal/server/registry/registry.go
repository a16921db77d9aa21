// Package registry holds the statically ordered list of driver and
// action constructors consulted at startup and on restart (spec
// §4.6): "the first constructor of a given kind that probes
// successfully wins". Order matters, so this is a plain ordered slice
// rather than a map, mirroring the teacher's own static constructor
// tables.
package registry

import (
	"os"
	"strings"

	"github.com/powerprofilesd/powerprofilesd/internal/server/action"
	"github.com/powerprofilesd/powerprofilesd/internal/server/driver"
)

// DriverEntry names a driver constructor for logging/blocking before
// it's even invoked.
type DriverEntry struct {
	Name string
	New  driver.Constructor
}

// ActionEntry names an action constructor for logging/blocking before
// it's even invoked.
type ActionEntry struct {
	Name string
	New  action.Constructor
}

// Drivers returns the registry in probe order: hardware-specific CPU
// and platform drivers, optional auxiliary drivers, the placeholder
// platform driver last (spec §4.6).
func Drivers() []DriverEntry {
	entries := []DriverEntry{
		{Name: "intel_pstate", New: driver.NewCPUDriver},
		{Name: "platform_profile", New: driver.NewPlatformDriver},
	}

	if fakeDriverEnabled() {
		entries = append(entries, DriverEntry{Name: "fake", New: driver.NewFakeDriver})
	}

	entries = append(entries, DriverEntry{Name: "placeholder", New: driver.NewPlaceholderDriver})

	return entries
}

// Actions returns the registry of best-effort actions, applied in
// this order on every transition (spec §4.5/§4.6).
func Actions() []ActionEntry {
	return []ActionEntry{
		{Name: "trickle_charge", New: action.NewTrickleChargeAction},
		{Name: "amdgpu_panel_power", New: action.NewAMDPanelPowerAction},
	}
}

func fakeDriverEnabled() bool {
	return isTruthy(os.Getenv("POWER_PROFILE_DAEMON_FAKE_DRIVER"))
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "0", "false", "no":
		return false
	default:
		return true
	}
}

// blockedNames parses a comma-separated environment variable into a
// lookup set (spec §4.4/§4.6: POWER_PROFILE_DAEMON_DRIVER_BLOCK and
// ..._ACTION_BLOCK).
func blockedNames(envVar string) map[string]bool {
	raw := os.Getenv(envVar)
	if raw == "" {
		return nil
	}

	blocked := map[string]bool{}
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name != "" {
			blocked[name] = true
		}
	}

	return blocked
}

// BlockedDrivers returns the names excluded from driver discovery.
func BlockedDrivers() map[string]bool {
	return blockedNames("POWER_PROFILE_DAEMON_DRIVER_BLOCK")
}

// BlockedActions returns the names excluded from action discovery.
func BlockedActions() map[string]bool {
	return blockedNames("POWER_PROFILE_DAEMON_ACTION_BLOCK")
}

// Package driver implements the Driver capability of spec §4.4: a
// polymorphic role probed once at discovery, then asked to activate
// profiles and to report degradation, with three event kinds
// (profile-changed, probe-request, degraded-changed) fed back to the
// manager. The
// teacher's class hierarchy (Driver -> CpuDriver/PlatformDriver)
// becomes a single Go interface plus a DriverKind discriminant, per
// spec §9's re-architecture notes.
package driver

import (
	"context"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
)

// ProbeResult is the outcome of Driver.Probe (spec §3/§4.4).
type ProbeResult int

const (
	ProbeFail ProbeResult = iota
	ProbeSuccess
	ProbeDefer
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeSuccess:
		return "success"
	case ProbeDefer:
		return "defer"
	default:
		return "fail"
	}
}

// EventKind discriminates the three notifications a Driver can raise.
type EventKind int

const (
	// EventProfileChanged reports a firmware/kernel-originated change,
	// e.g. a hotkey or another tool writing platform_profile directly.
	EventProfileChanged EventKind = iota
	// EventProbeRequest asks the manager to rerun discovery because a
	// capability the driver deferred on may now be available.
	EventProbeRequest
	// EventDegradedChanged reports a change to PerformanceDegraded.
	EventDegradedChanged
)

// Event is one item from a Driver's event channel.
type Event struct {
	Kind    EventKind
	Profile profile.Profile // valid for EventProfileChanged
}

// Driver realizes a profile by writing kernel/firmware controls. At
// most one driver of a given Kind is selected by the manager at a
// time (spec §3).
type Driver interface {
	// Name is the driver's stable identifier, persisted in the
	// configuration store (spec §4.7).
	Name() string

	// Kind is CPU or Platform.
	Kind() profile.DriverKind

	// SupportedProfiles is the non-empty subset of real profiles this
	// driver can realize. Together, the selected drivers' masks must
	// cover both balanced and power-saver (spec §3).
	SupportedProfiles() profile.Mask

	// Probe is idempotent and must not block more than briefly.
	Probe(ctx context.Context) ProbeResult

	// Activate writes whatever controls realize target. reason is
	// informational (spec §4.4).
	Activate(ctx context.Context, target profile.Profile, reason profile.Reason) error

	// PerformanceDegraded is a short reason token, or "" if the
	// performance profile (if supported) is running at its nominal
	// level.
	PerformanceDegraded() string

	// Events delivers profile-changed, probe-request and
	// degraded-changed notifications.
	// The channel is closed when the driver is released.
	Events() <-chan Event

	// Close releases file watchers, udev clients, and any other
	// resources the driver owns. Must synchronously stop delivering
	// on Events before returning, so a dropped driver's watcher can
	// never outlive it (spec §5).
	Close() error
}

// Constructor builds a Driver candidate for discovery. It may return
// (nil, false) if the driver has no business even probing on this
// host (e.g. a CPU driver built for a vendor that isn't present).
type Constructor func() (Driver, bool)

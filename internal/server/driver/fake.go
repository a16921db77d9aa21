package driver

import (
	"context"
	"sync"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
)

// FakeDriver is a CPU-kind driver with no real hardware backing it,
// enabled by POWER_PROFILE_DAEMON_FAKE_DRIVER (spec §6) so the daemon
// is exercisable on development machines and in CI without real
// cpufreq/platform_profile support.
type FakeDriver struct {
	mu       sync.Mutex
	active   profile.Profile
	events   chan Event
	degraded string
}

// NewFakeDriver constructs the fake driver candidate.
func NewFakeDriver() (Driver, bool) {
	return &FakeDriver{events: make(chan Event, 4)}, true
}

func (d *FakeDriver) Name() string            { return "fake" }
func (d *FakeDriver) Kind() profile.DriverKind { return profile.CPU }
func (d *FakeDriver) Events() <-chan Event     { return d.events }

func (d *FakeDriver) PerformanceDegraded() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.degraded
}

func (d *FakeDriver) SupportedProfiles() profile.Mask {
	return profile.MaskAll
}

func (d *FakeDriver) Probe(ctx context.Context) ProbeResult {
	return ProbeSuccess
}

func (d *FakeDriver) Activate(ctx context.Context, target profile.Profile, reason profile.Reason) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.active = target

	return nil
}

// SetDegraded lets tests and ad hoc exercising simulate the driver
// reporting degradation, e.g. to exercise PerformanceDegraded fan-out.
func (d *FakeDriver) SetDegraded(reason string) {
	d.mu.Lock()
	d.degraded = reason
	d.mu.Unlock()

	d.events <- Event{Kind: EventDegradedChanged}
}

// EmitExternalChange simulates a firmware/kernel-originated profile
// change, for exercising the manager's external-change path.
func (d *FakeDriver) EmitExternalChange(p profile.Profile) {
	d.events <- Event{Kind: EventProfileChanged, Profile: p}
}

func (d *FakeDriver) Close() error {
	close(d.events)
	return nil
}

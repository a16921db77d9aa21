package driver

import (
	"context"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
)

// placeholderDriver advertises only balanced and power-saver and
// always probes successfully. It exists solely to satisfy the
// invariant that those two profiles are always available, and the
// registry only ever constructs it last, after every real platform
// driver has had a chance to win the slot (spec §4.4/§4.6).
type placeholderDriver struct {
	events chan Event
}

// NewPlaceholderDriver constructs the placeholder platform driver.
func NewPlaceholderDriver() (Driver, bool) {
	return &placeholderDriver{events: make(chan Event)}, true
}

func (d *placeholderDriver) Name() string               { return "placeholder" }
func (d *placeholderDriver) Kind() profile.DriverKind    { return profile.Platform }
func (d *placeholderDriver) Events() <-chan Event        { return d.events }
func (d *placeholderDriver) PerformanceDegraded() string { return "" }

func (d *placeholderDriver) SupportedProfiles() profile.Mask {
	return profile.PowerSaverFlag | profile.BalancedFlag
}

func (d *placeholderDriver) Probe(ctx context.Context) ProbeResult {
	return ProbeSuccess
}

func (d *placeholderDriver) Activate(ctx context.Context, target profile.Profile, reason profile.Reason) error {
	// Nothing to do: there is no real hardware backing this profile,
	// it only exists to keep balanced/power-saver selectable when no
	// platform driver loaded.
	return nil
}

func (d *placeholderDriver) Close() error {
	close(d.events)
	return nil
}

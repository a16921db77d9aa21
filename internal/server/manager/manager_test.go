package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/powerprofilesd/powerprofilesd/internal/server/action"
	"github.com/powerprofilesd/powerprofilesd/internal/server/config"
	"github.com/powerprofilesd/powerprofilesd/internal/server/driver"
	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
	"github.com/powerprofilesd/powerprofilesd/internal/server/registry"
)

// testDriver is an in-memory Driver test double parameterized by kind
// and the mask it advertises, since driver.FakeDriver is CPU-only.
type testDriver struct {
	mu       sync.Mutex
	name     string
	kind     profile.DriverKind
	mask     profile.Mask
	active   profile.Profile
	degraded string
	applyErr error
	events   chan driver.Event
	closed   bool
}

func newTestDriver(name string, kind profile.DriverKind, mask profile.Mask) *testDriver {
	return &testDriver{name: name, kind: kind, mask: mask, events: make(chan driver.Event, 4)}
}

func (d *testDriver) Name() string                      { return d.name }
func (d *testDriver) Kind() profile.DriverKind           { return d.kind }
func (d *testDriver) SupportedProfiles() profile.Mask    { return d.mask }
func (d *testDriver) Probe(ctx context.Context) driver.ProbeResult { return driver.ProbeSuccess }
func (d *testDriver) Events() <-chan driver.Event        { return d.events }

func (d *testDriver) PerformanceDegraded() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.degraded
}

func (d *testDriver) Activate(ctx context.Context, target profile.Profile, reason profile.Reason) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.applyErr != nil {
		return d.applyErr
	}

	d.active = target

	return nil
}

func (d *testDriver) activeProfile() profile.Profile {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.active
}

func (d *testDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.events)
	}

	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	changed   [][]string
	released  []struct {
		iface  string
		cookie uint32
	}
}

func (p *recordingPublisher) PropertiesChanged(props ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.changed = append(p.changed, append([]string(nil), props...))
}

func (p *recordingPublisher) ProfileReleased(iface string, cookie uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.released = append(p.released, struct {
		iface  string
		cookie uint32
	}{iface, cookie})
}

func (p *recordingPublisher) releasedCookies() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]uint32, len(p.released))
	for i, r := range p.released {
		out[i] = r.cookie
	}

	return out
}

// newTestManager builds a Manager wired to a single CPU and platform
// fake driver, both supporting every profile, and starts its loop in
// the background. The caller must cancel ctx to stop it.
func newTestManager(t *testing.T, cpu, plat *testDriver) (*Manager, *recordingPublisher, context.Context, context.CancelFunc) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("UMOCKDEV_DIR", dir)

	pub := &recordingPublisher{}
	m := New(config.New(), pub, "1.0")
	m.driverEntries = func() []registry.DriverEntry {
		return []registry.DriverEntry{
			{Name: cpu.name, New: func() (driver.Driver, bool) { return cpu, true }},
			{Name: plat.name, New: func() (driver.Driver, bool) { return plat, true }},
		}
	}
	m.actionEntries = func() []registry.ActionEntry { return nil }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	if err := m.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}

	go m.Run(ctx)

	return m, pub, ctx, cancel
}

func TestStartupColdBoot(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)

	m, _, ctx, cancel := newTestManager(t, cpu, plat)
	defer cancel()

	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.ActiveProfile != profile.Balanced {
		t.Fatalf("ActiveProfile = %v, want Balanced", snap.ActiveProfile)
	}

	if len(snap.Profiles) != 3 {
		t.Fatalf("Profiles = %+v, want 3 entries", snap.Profiles)
	}

	for _, p := range snap.Profiles {
		if p.Driver != "multiple" {
			t.Fatalf("profile %v Driver = %q, want multiple", p.Profile, p.Driver)
		}
	}

	if cpu.activeProfile() != profile.Balanced || plat.activeProfile() != profile.Balanced {
		t.Fatal("expected both drivers activated to balanced at startup")
	}
}

func TestSetActiveProfileNoOp(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)

	m, pub, ctx, cancel := newTestManager(t, cpu, plat)
	defer cancel()

	pub.mu.Lock()
	pub.changed = nil
	pub.mu.Unlock()

	if err := m.SetActiveProfile(ctx, "balanced"); err != nil {
		t.Fatalf("SetActiveProfile: %v", err)
	}

	pub.mu.Lock()
	n := len(pub.changed)
	pub.mu.Unlock()

	if n != 0 {
		t.Fatalf("got %d property-changed emissions for a no-op set, want 0", n)
	}
}

func TestSetActiveProfileInvalidName(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)

	m, _, ctx, cancel := newTestManager(t, cpu, plat)
	defer cancel()

	err := m.SetActiveProfile(ctx, "turbo")

	if _, ok := err.(interface{ Error() string }); !ok || err == nil {
		t.Fatalf("expected an error for an invalid profile name, got %v", err)
	}
}

func TestHoldThenUserOverrideReleasesBoth(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)

	m, pub, ctx, cancel := newTestManager(t, cpu, plat)
	defer cancel()

	c1, err := m.HoldProfile(ctx, "performance", "build", "org.x.A", ":1.1", "current")
	if err != nil {
		t.Fatalf("HoldProfile(performance): %v", err)
	}

	c2, err := m.HoldProfile(ctx, "power-saver", "low-battery", "org.x.B", ":1.2", "current")
	if err != nil {
		t.Fatalf("HoldProfile(power-saver): %v", err)
	}

	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.ActiveProfile != profile.PowerSaver {
		t.Fatalf("ActiveProfile = %v, want PowerSaver (power-saver hold wins)", snap.ActiveProfile)
	}

	if err := m.SetActiveProfile(ctx, "balanced"); err != nil {
		t.Fatalf("SetActiveProfile(balanced): %v", err)
	}

	released := pub.releasedCookies()
	if len(released) != 2 {
		t.Fatalf("released cookies = %v, want 2 entries", released)
	}

	has := map[uint32]bool{}
	for _, c := range released {
		has[c] = true
	}

	if !has[c1] || !has[c2] {
		t.Fatalf("released cookies = %v, want both %d and %d", released, c1, c2)
	}

	snap, err = m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.ActiveProfile != profile.Balanced {
		t.Fatalf("ActiveProfile = %v, want Balanced after override", snap.ActiveProfile)
	}

	if len(snap.Holds) != 0 {
		t.Fatalf("Holds = %+v, want none", snap.Holds)
	}
}

func TestHoldRejectsBalanced(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)

	m, _, ctx, cancel := newTestManager(t, cpu, plat)
	defer cancel()

	if _, err := m.HoldProfile(ctx, "balanced", "r", "app", ":1.1", "current"); err == nil {
		t.Fatal("expected holding balanced to be rejected")
	}
}

func TestReleaseUnknownCookie(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)

	m, _, ctx, cancel := newTestManager(t, cpu, plat)
	defer cancel()

	if err := m.ReleaseProfile(ctx, 9999); err == nil {
		t.Fatal("expected an error releasing an unknown cookie")
	}
}

func TestReleaseDowngradesToRemainingHold(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)

	m, _, ctx, cancel := newTestManager(t, cpu, plat)
	defer cancel()

	cA, err := m.HoldProfile(ctx, "power-saver", "r", "a", ":1.1", "current")
	if err != nil {
		t.Fatalf("HoldProfile A: %v", err)
	}

	_, err = m.HoldProfile(ctx, "performance", "r", "b", ":1.2", "current")
	if err != nil {
		t.Fatalf("HoldProfile B: %v", err)
	}

	if err := m.ReleaseProfile(ctx, cA); err != nil {
		t.Fatalf("ReleaseProfile: %v", err)
	}

	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.ActiveProfile != profile.Performance {
		t.Fatalf("ActiveProfile = %v, want Performance after releasing the power-saver hold", snap.ActiveProfile)
	}
}

func TestBusNameVanishedReleasesItsHolds(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)

	m, pub, ctx, cancel := newTestManager(t, cpu, plat)
	defer cancel()

	c1, _ := m.HoldProfile(ctx, "performance", "r", "a", ":1.1", "current")
	c2, _ := m.HoldProfile(ctx, "power-saver", "r", "b", ":1.1", "current")
	c3, _ := m.HoldProfile(ctx, "performance", "r", "c", ":1.2", "current")

	if err := m.BusNameVanished(ctx, ":1.1"); err != nil {
		t.Fatalf("BusNameVanished: %v", err)
	}

	released := pub.releasedCookies()
	has := map[uint32]bool{}
	for _, c := range released {
		has[c] = true
	}

	if !has[c1] || !has[c2] || has[c3] {
		t.Fatalf("released cookies = %v, want {%d,%d} but not %d", released, c1, c2, c3)
	}

	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if len(snap.Holds) != 1 {
		t.Fatalf("Holds = %+v, want 1 remaining", snap.Holds)
	}
}

func TestExternalProfileChangeUpdatesSelected(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)

	m, _, ctx, cancel := newTestManager(t, cpu, plat)
	defer cancel()

	if err := m.SetActiveProfile(ctx, "performance"); err != nil {
		t.Fatalf("SetActiveProfile(performance): %v", err)
	}

	plat.events <- driver.Event{Kind: driver.EventProfileChanged, Profile: profile.Balanced}

	deadline := time.Now().Add(2 * time.Second)
	for {
		snap, err := m.Snapshot(ctx)
		if err != nil {
			t.Fatalf("Snapshot: %v", err)
		}

		if snap.ActiveProfile == profile.Balanced {
			break
		}

		if time.Now().After(deadline) {
			t.Fatalf("ActiveProfile never settled to Balanced, last snapshot %+v", snap)
		}

		time.Sleep(10 * time.Millisecond)
	}

	var selected profile.Profile
	if err := m.do(ctx, func() { selected = m.selected }); err != nil {
		t.Fatalf("reading selected profile: %v", err)
	}

	if selected != profile.Balanced {
		t.Fatalf("selected = %v, want Balanced after the external change", selected)
	}

	if err := m.SetActiveProfile(ctx, "balanced"); err != nil {
		t.Fatalf("SetActiveProfile(balanced) should be a no-op once the external change settled: %v", err)
	}
}

func TestRollbackOnPlatformFailure(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)

	m, _, ctx, cancel := newTestManager(t, cpu, plat)
	defer cancel()

	plat.mu.Lock()
	plat.applyErr = errApply
	plat.mu.Unlock()

	err := m.SetActiveProfile(ctx, "performance")
	if err == nil {
		t.Fatal("expected the platform driver failure to surface")
	}

	snap, err2 := m.Snapshot(ctx)
	if err2 != nil {
		t.Fatalf("Snapshot: %v", err2)
	}

	if snap.ActiveProfile != profile.Balanced {
		t.Fatalf("ActiveProfile = %v, want Balanced (rolled back), original error was: %v", snap.ActiveProfile, err)
	}

	if cpu.activeProfile() != profile.Balanced {
		t.Fatalf("cpu driver left at %v, want rolled back to Balanced", cpu.activeProfile())
	}
}

func TestActionAppliedOnEveryTransition(t *testing.T) {
	cpu := newTestDriver("x", profile.CPU, profile.MaskAll)
	plat := newTestDriver("y", profile.Platform, profile.MaskAll)
	act := &action.FakeAction{NameValue: "trickle", ProbeResult: true}

	dir := t.TempDir()
	t.Setenv("UMOCKDEV_DIR", dir)

	pub := &recordingPublisher{}
	m := New(config.New(), pub, "1.0")
	m.driverEntries = func() []registry.DriverEntry {
		return []registry.DriverEntry{
			{Name: cpu.name, New: func() (driver.Driver, bool) { return cpu, true }},
			{Name: plat.name, New: func() (driver.Driver, bool) { return plat, true }},
		}
	}
	m.actionEntries = func() []registry.ActionEntry {
		return []registry.ActionEntry{{Name: act.NameValue, New: func() (action.Action, bool) { return act, true }}}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	go m.Run(ctx)

	if err := m.SetActiveProfile(ctx, "performance"); err != nil {
		t.Fatalf("SetActiveProfile: %v", err)
	}

	act.mu.Lock()
	applied := append([]profile.Profile(nil), act.Applied...)
	act.mu.Unlock()

	if len(applied) == 0 || applied[len(applied)-1] != profile.Performance {
		t.Fatalf("action.Applied = %v, want it to have seen Performance", applied)
	}
}

var errApply = &testApplyError{}

type testApplyError struct{}

func (*testApplyError) Error() string { return "simulated platform apply failure" }

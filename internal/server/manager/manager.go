// Package manager implements the profile manager of spec §4.10: the
// single cooperative event loop that owns discovery, arbitration,
// profile application, and persistence. Bus I/O, polkit checks, and
// introspection are deliberately kept out of this package (spec §1
// treats them as external collaborators); callers reach the manager
// through the request methods in ops.go, each of which is queued onto
// the loop and processed to completion before the next is started, so
// clients never observe a half-applied transition (spec §5).
package manager

import (
	"context"
	"io"

	"github.com/powerprofilesd/powerprofilesd/internal/server/action"
	"github.com/powerprofilesd/powerprofilesd/internal/server/config"
	"github.com/powerprofilesd/powerprofilesd/internal/server/driver"
	"github.com/powerprofilesd/powerprofilesd/internal/server/holds"
	"github.com/powerprofilesd/powerprofilesd/internal/server/ppderrors"
	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
	"github.com/powerprofilesd/powerprofilesd/internal/server/registry"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
)

// Publisher is the manager's outbound notch into the bus surface. The
// bus package implements it; tests use a recording stub.
type Publisher interface {
	// PropertiesChanged announces that one or more of the properties
	// named in props should be re-read and signalled on both
	// published interfaces (spec §6).
	PropertiesChanged(props ...string)
	// ProfileReleased emits the per-hold release signal on whichever
	// interface the hold was created against (spec §4.10/§6).
	ProfileReleased(iface string, cookie uint32)
}

type driverEvent struct {
	kind profile.DriverKind
	drv  driver.Driver
	ev   driver.Event
}

// Manager is the core profile manager. Zero value is not usable; use
// New. The request methods (Snapshot, SetActiveProfile, HoldProfile,
// ReleaseProfile, BusNameVanished) are safe to call concurrently from
// multiple goroutines once Run is running: each enqueues a closure
// onto the single loop goroutine and waits for it to run.
type Manager struct {
	cfg *config.Store
	pub Publisher

	version string

	cpu      driver.Driver
	platform driver.Driver
	actions  []action.Action

	// closers records every constructed driver/action in the order it
	// was built, so teardown can release them in reverse order (spec §5).
	closers []io.Closer

	active, selected profile.Profile
	cpuDegraded      string
	platformDegraded string

	holds *holds.Table

	commands     chan func()
	driverEvents chan driverEvent
	pending      []driverEvent

	// driverEntries/actionEntries are overridable so tests can swap in
	// fake constructors without touching real sysfs; production code
	// never sets them, leaving the registry package's defaults.
	driverEntries func() []registry.DriverEntry
	actionEntries func() []registry.ActionEntry
}

// New constructs a Manager. version is reported on the Version
// property (spec §4.11).
func New(cfg *config.Store, pub Publisher, version string) *Manager {
	return &Manager{
		cfg:           cfg,
		pub:           pub,
		version:       version,
		holds:         holds.New(),
		commands:      make(chan func()),
		driverEvents:  make(chan driverEvent, 16),
		driverEntries: registry.Drivers,
		actionEntries: registry.Actions,
	}
}

// SetPublisher assigns the bus-facing Publisher. Used when the
// Publisher implementation itself needs a constructed Manager to
// build (the bus server wraps this Manager), so New cannot take it
// directly; callers must call this before Start.
func (m *Manager) SetPublisher(pub Publisher) {
	m.pub = pub
}

// Start runs the discovery and startup sequence of spec §4.10 steps
// 1, 3–7 (step 2, bus name acquisition, is the caller's
// responsibility and must complete before Start is called so the
// final PropertiesChanged has somewhere to go). Start must return
// before Run is started, and no other goroutine may call a Manager
// method until Run is running.
func (m *Manager) Start(ctx context.Context) error {
	m.active = profile.Balanced
	m.selected = profile.Balanced

	m.discover(ctx)

	if err := m.verifyRequiredDrivers(); err != nil {
		return err
	}

	st, err := m.cfg.Load()
	if err != nil {
		logger.Warn("loading persisted state", logger.Ctx{"error": (&ppderrors.PersistenceWarning{Err: err}).Error()})
	} else if config.Matches(st, m.driverName(m.cpu), m.driverName(m.platform)) && st.Profile.IsReal() && m.available(st.Profile) {
		m.active = st.Profile
		m.selected = st.Profile
	}

	if err := m.activateTargetProfile(ctx, m.active, profile.ReasonReset); err != nil {
		logger.Error("startup activation failed", logger.Ctx{"error": err.Error()})
	}

	m.emitPropertiesChanged("ActiveProfile", "Profiles", "Actions", "PerformanceDegraded", "PerformanceInhibited", "ActiveProfileHolds", "Version")

	return nil
}

// Run is the cooperative event loop (spec §5). It blocks until ctx is
// cancelled, at which point it tears down every driver and action in
// reverse construction order and returns.
func (m *Manager) Run(ctx context.Context) {
	for {
		if len(m.pending) > 0 {
			de := m.pending[0]
			m.pending = m.pending[1:]
			m.processDriverEvent(ctx, de)
			continue
		}

		select {
		case <-ctx.Done():
			m.teardown()
			return
		case cmd := <-m.commands:
			cmd()
		case de := <-m.driverEvents:
			m.processDriverEvent(ctx, de)
		}
	}
}

// do enqueues fn onto the loop and blocks until it has run, or ctx is
// cancelled first. Every exported request method is built on this so
// state is only ever touched from the loop goroutine.
func (m *Manager) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})

	select {
	case m.commands <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// discover runs the registry over the current host once, assigning
// the first successfully-probed driver of each kind and collecting
// every action that probes true (spec §4.6).
func (m *Manager) discover(ctx context.Context) {
	blockedDrivers := registry.BlockedDrivers()

	for _, entry := range m.driverEntries() {
		if blockedDrivers[entry.Name] {
			continue
		}

		drv, ok := entry.New()
		if !ok {
			continue
		}

		if drv.SupportedProfiles() == profile.MaskNone {
			logger.Warn("driver declares no supported profiles", logger.Ctx{"driver": entry.Name})
			drv.Close()

			continue
		}

		switch drv.Probe(ctx) {
		case driver.ProbeSuccess:
			if m.slotFilled(drv.Kind()) {
				drv.Close()
				continue
			}

			m.assignDriver(drv)
		case driver.ProbeDefer:
			m.closers = append(m.closers, drv)
			m.startDriverForwarder(drv)
		default:
			drv.Close()
		}
	}

	blockedActions := registry.BlockedActions()

	for _, entry := range m.actionEntries() {
		if blockedActions[entry.Name] {
			continue
		}

		act, ok := entry.New()
		if !ok {
			continue
		}

		if !act.Probe(ctx) {
			act.Close()
			continue
		}

		m.actions = append(m.actions, act)
		m.closers = append(m.closers, act)
	}
}

func (m *Manager) slotFilled(kind profile.DriverKind) bool {
	if kind == profile.CPU {
		return m.cpu != nil
	}

	return m.platform != nil
}

func (m *Manager) assignDriver(drv driver.Driver) {
	switch drv.Kind() {
	case profile.CPU:
		m.cpu = drv
	case profile.Platform:
		m.platform = drv
	}

	m.closers = append(m.closers, drv)
	m.startDriverForwarder(drv)
	m.startWatch(drv)
}

// watcher is implemented by drivers that need to start file watchers
// only once they have actually been selected, never while merely
// probing or deferred (spec §4.4). Not part of the Driver interface
// itself since most drivers have nothing to watch.
type watcher interface {
	Watch() error
}

func (m *Manager) startWatch(drv driver.Driver) {
	w, ok := drv.(watcher)
	if !ok {
		return
	}

	if err := w.Watch(); err != nil {
		logger.Warn("starting driver watch", logger.Ctx{"driver": drv.Name(), "error": err.Error()})
	}
}

// startDriverForwarder bridges drv's event channel into the loop's
// single driverEvents channel. It exits on its own once drv.Close
// closes Events, which is the Driver contract (spec §4.4).
func (m *Manager) startDriverForwarder(drv driver.Driver) {
	go func() {
		for ev := range drv.Events() {
			m.driverEvents <- driverEvent{kind: drv.Kind(), drv: drv, ev: ev}
		}
	}()
}

func (m *Manager) verifyRequiredDrivers() error {
	if m.cpu == nil && m.platform == nil {
		return ppderrors.NewFatal("no cpu or platform driver could be installed")
	}

	mask := m.availableMask()
	if !mask.Has(profile.Balanced) || !mask.Has(profile.PowerSaver) {
		return ppderrors.NewFatal("installed drivers do not cover balanced and power-saver")
	}

	return nil
}

func (m *Manager) availableMask() profile.Mask {
	var mask profile.Mask

	if m.cpu != nil {
		mask |= m.cpu.SupportedProfiles()
	}

	if m.platform != nil {
		mask |= m.platform.SupportedProfiles()
	}

	return mask
}

func (m *Manager) available(p profile.Profile) bool {
	return m.availableMask().Has(p)
}

func (m *Manager) driverName(drv driver.Driver) string {
	if drv == nil {
		return ""
	}

	return drv.Name()
}

func (m *Manager) emitPropertiesChanged(props ...string) {
	if m.pub != nil {
		m.pub.PropertiesChanged(props...)
	}
}

func (m *Manager) emitHoldsChanged() {
	m.emitPropertiesChanged("ActiveProfileHolds")
}

// teardown releases every constructed driver and action in reverse
// order (spec §5).
func (m *Manager) teardown() {
	for i := len(m.closers) - 1; i >= 0; i-- {
		if err := m.closers[i].Close(); err != nil {
			logger.Warn("closing driver/action during shutdown", logger.Ctx{"error": err.Error()})
		}
	}

	m.closers = nil
	m.cpu = nil
	m.platform = nil
	m.actions = nil
}

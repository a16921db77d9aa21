package manager

import (
	"context"
	"strings"

	"github.com/powerprofilesd/powerprofilesd/internal/server/config"
	"github.com/powerprofilesd/powerprofilesd/internal/server/driver"
	"github.com/powerprofilesd/powerprofilesd/internal/server/ppderrors"
	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
)

// activateTargetProfile implements spec §4.10's activate_target_profile:
// CPU first, then platform with CPU rollback on platform failure, then
// best-effort actions, then the active_profile update and a
// reason-gated persist.
func (m *Manager) activateTargetProfile(ctx context.Context, target profile.Profile, reason profile.Reason) error {
	previous := m.active

	if m.cpu != nil && m.cpu.SupportedProfiles().Has(target) {
		if err := m.cpu.Activate(ctx, target, reason); err != nil {
			return &ppderrors.DriverFailure{Driver: m.cpu.Name(), Kind: profile.CPU.String(), Err: err}
		}
	}

	if m.platform != nil && m.platform.SupportedProfiles().Has(target) {
		if err := m.platform.Activate(ctx, target, reason); err != nil {
			if m.cpu != nil && m.cpu.SupportedProfiles().Has(previous) {
				if rerr := m.cpu.Activate(ctx, previous, profile.ReasonInternal); rerr != nil {
					logger.Warn("rolling back cpu driver after platform failure", logger.Ctx{
						"driver": m.cpu.Name(), "target": previous.String(), "error": rerr.Error(),
					})
				}
			}

			return &ppderrors.DriverFailure{Driver: m.platform.Name(), Kind: profile.Platform.String(), Err: err}
		}
	}

	for _, a := range m.actions {
		if err := a.Apply(ctx, target); err != nil {
			logger.Warn("action apply failed", logger.Ctx{"action": a.Name(), "error": (&ppderrors.ActionFailure{Action: a.Name(), Err: err}).Error()})
		}
	}

	m.active = target

	if reason.Persists() {
		st := profile.PersistentState{CPUDriver: m.driverName(m.cpu), PlatformDriver: m.driverName(m.platform), Profile: target}
		if err := m.cfg.Save(st); err != nil {
			logger.Warn("persisting state failed", logger.Ctx{"error": (&ppderrors.PersistenceWarning{Err: err}).Error()})
		}
	}

	return nil
}

// processDriverEvent dispatches one event out of the merged driver
// event stream, coalescing back-to-back profile-changed events to the
// latest one before acting (spec §5).
func (m *Manager) processDriverEvent(ctx context.Context, de driverEvent) {
	if de.ev.Kind == driver.EventProfileChanged {
		de = m.coalesceProfileChanged(de)
		m.handleExternalProfileChanged(ctx, de.ev.Profile)

		return
	}

	switch de.ev.Kind {
	case driver.EventDegradedChanged:
		m.handleDegradedChanged(de.kind, de.drv)
	case driver.EventProbeRequest:
		m.restartDrivers(ctx)
	}
}

// coalesceProfileChanged drains any further profile-changed events
// already queued without blocking, keeping only the most recent one;
// anything else it dequeues along the way is preserved in order on
// the pending list so it is not lost.
func (m *Manager) coalesceProfileChanged(latest driverEvent) driverEvent {
	for {
		select {
		case next := <-m.driverEvents:
			if next.ev.Kind == driver.EventProfileChanged {
				latest = next
				continue
			}

			m.pending = append(m.pending, next)
		default:
			return latest
		}
	}
}

// handleExternalProfileChanged implements the "External change"
// procedure of spec §4.10.
func (m *Manager) handleExternalProfileChanged(ctx context.Context, new profile.Profile) {
	if new == m.active {
		return
	}

	if err := m.activateTargetProfile(ctx, new, profile.ReasonInternal); err != nil {
		logger.Warn("external profile change failed to apply", logger.Ctx{"profile": new.String(), "error": err.Error()})
		return
	}

	m.selected = new
	m.emitPropertiesChanged("ActiveProfile")
}

// handleDegradedChanged implements the "Performance degraded change"
// procedure of spec §4.10: forwarded only from a driver that actually
// advertises the performance profile.
func (m *Manager) handleDegradedChanged(kind profile.DriverKind, drv driver.Driver) {
	if drv == nil || !drv.SupportedProfiles().Has(profile.Performance) {
		return
	}

	switch kind {
	case profile.CPU:
		m.cpuDegraded = drv.PerformanceDegraded()
	case profile.Platform:
		m.platformDegraded = drv.PerformanceDegraded()
	}

	m.emitPropertiesChanged("PerformanceDegraded")
}

// performanceDegraded joins the two driver reasons per spec §4.10.
func (m *Manager) performanceDegraded() string {
	var parts []string

	if m.cpuDegraded != "" {
		parts = append(parts, m.cpuDegraded)
	}

	if m.platformDegraded != "" {
		parts = append(parts, m.platformDegraded)
	}

	return strings.Join(parts, ",")
}

// restartDrivers implements spec §4.10's restart_profile_drivers,
// invoked when a driver signals probe-request: release every hold,
// tear down, rediscover, and restore from configuration with
// reason = reset.
func (m *Manager) restartDrivers(ctx context.Context) {
	logger.Info("restarting profile drivers")

	if released := m.holds.Clear(); len(released) > 0 {
		for _, h := range released {
			m.pub.ProfileReleased(h.Iface, h.Cookie)
		}
	}

	m.teardown()
	m.cpuDegraded = ""
	m.platformDegraded = ""

	m.discover(ctx)

	if err := m.verifyRequiredDrivers(); err != nil {
		logger.Error("restart found no viable driver set", logger.Ctx{"error": err.Error()})
		return
	}

	target := profile.Balanced

	st, err := m.cfg.Load()
	if err != nil {
		logger.Warn("loading persisted state during restart", logger.Ctx{"error": (&ppderrors.PersistenceWarning{Err: err}).Error()})
	} else if config.Matches(st, m.driverName(m.cpu), m.driverName(m.platform)) && st.Profile.IsReal() && m.available(st.Profile) {
		target = st.Profile
	}

	m.active = target
	m.selected = target

	if err := m.activateTargetProfile(ctx, target, profile.ReasonReset); err != nil {
		logger.Error("restart reactivation failed", logger.Ctx{"error": err.Error()})
	}

	m.emitPropertiesChanged("ActiveProfile", "Profiles", "Actions", "PerformanceDegraded", "ActiveProfileHolds")
}

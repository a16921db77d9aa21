package manager

import (
	"context"

	"github.com/powerprofilesd/powerprofilesd/internal/server/ppderrors"
	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
)

func logActivationFailure(err error) {
	logger.Warn("reconciling active profile after hold release", logger.Ctx{"error": err.Error()})
}

// DriverAdvert is one entry of the Profiles property (spec §4.11).
type DriverAdvert struct {
	Profile        profile.Profile
	CPUDriver      string
	PlatformDriver string
	// Driver is the legacy compatibility alias: "multiple" if both
	// kinds advertise Profile, otherwise the sole advertiser's name.
	Driver string
}

// HoldInfo is one entry of the ActiveProfileHolds property (spec §4.11).
type HoldInfo struct {
	Profile       profile.Profile
	Reason        string
	ApplicationID string
}

// Snapshot is a consistent read of every bus-exposed property (spec §4.11).
type Snapshot struct {
	ActiveProfile       profile.Profile
	Profiles            []DriverAdvert
	Actions             []string
	PerformanceDegraded string
	Holds               []HoldInfo
	Version             string
}

// Snapshot returns a point-in-time read of all published properties.
func (m *Manager) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	err := m.do(ctx, func() { snap = m.buildSnapshot() })

	return snap, err
}

func (m *Manager) buildSnapshot() Snapshot {
	snap := Snapshot{
		ActiveProfile:       m.active,
		PerformanceDegraded: m.performanceDegraded(),
		Version:             m.version,
	}

	for _, p := range [...]profile.Profile{profile.PowerSaver, profile.Balanced, profile.Performance} {
		cpuHas := m.cpu != nil && m.cpu.SupportedProfiles().Has(p)
		platHas := m.platform != nil && m.platform.SupportedProfiles().Has(p)

		if !cpuHas && !platHas {
			continue
		}

		advert := DriverAdvert{Profile: p}

		if cpuHas {
			advert.CPUDriver = m.cpu.Name()
		}

		if platHas {
			advert.PlatformDriver = m.platform.Name()
		}

		switch {
		case cpuHas && platHas:
			advert.Driver = "multiple"
		case cpuHas:
			advert.Driver = advert.CPUDriver
		default:
			advert.Driver = advert.PlatformDriver
		}

		snap.Profiles = append(snap.Profiles, advert)
	}

	for _, a := range m.actions {
		snap.Actions = append(snap.Actions, a.Name())
	}

	for _, h := range m.holds.All() {
		snap.Holds = append(snap.Holds, HoldInfo{Profile: h.Profile, Reason: h.Reason, ApplicationID: h.ApplicationID})
	}

	return snap
}

// SetActiveProfile implements the "User set" procedure of spec §4.10.
// Authorization against switch-profile is the caller's responsibility
// (spec §4.8 is a separate, bus-facing collaborator).
func (m *Manager) SetActiveProfile(ctx context.Context, name string) error {
	var opErr error

	err := m.do(ctx, func() {
		p, ok := profile.ParseProfile(name)
		if !ok {
			opErr = ppderrors.NewInvalidArgs("unknown profile %q", name)
			return
		}

		if !m.available(p) {
			opErr = ppderrors.NewInvalidArgs("profile %q is not available", name)
			return
		}

		if p == m.active {
			return
		}

		props := []string{"ActiveProfile"}

		if released := m.holds.Clear(); len(released) > 0 {
			for _, h := range released {
				m.pub.ProfileReleased(h.Iface, h.Cookie)
			}

			props = append(props, "ActiveProfileHolds")
		}

		if err := m.activateTargetProfile(ctx, p, profile.ReasonUser); err != nil {
			opErr = err
			return
		}

		m.selected = p
		m.emitPropertiesChanged(props...)
	})
	if err != nil {
		return err
	}

	return opErr
}

// HoldProfile implements the "Hold" procedure of spec §4.10.
// Authorization against hold-profile is the caller's responsibility.
func (m *Manager) HoldProfile(ctx context.Context, profileName, reason, applicationID, requesterBusName, iface string) (uint32, error) {
	var (
		cookie uint32
		opErr  error
	)

	err := m.do(ctx, func() {
		p, ok := profile.ParseProfile(profileName)
		if !ok || (p != profile.PowerSaver && p != profile.Performance) {
			opErr = ppderrors.NewInvalidArgs("cannot hold profile %q", profileName)
			return
		}

		if !m.available(p) {
			opErr = ppderrors.NewInvalidArgs("profile %q is not available", profileName)
			return
		}

		cookie = m.holds.Add(p, reason, applicationID, requesterBusName, iface)
		m.emitHoldsChanged()

		target, _ := m.holds.Effective()
		if target == m.active {
			return
		}

		if err := m.activateTargetProfile(ctx, target, profile.ReasonProgramHold); err != nil {
			opErr = err
		}
	})
	if err != nil {
		return 0, err
	}

	return cookie, opErr
}

// ReleaseProfile implements the "Release" procedure of spec §4.10.
func (m *Manager) ReleaseProfile(ctx context.Context, cookie uint32) error {
	var opErr error

	err := m.do(ctx, func() {
		h, ok := m.holds.Release(cookie)
		if !ok {
			opErr = ppderrors.NewInvalidArgs("unknown hold cookie %d", cookie)
			return
		}

		m.pub.ProfileReleased(h.Iface, cookie)
		m.emitHoldsChanged()
		m.reconcileAfterRelease(ctx, h)
	})
	if err != nil {
		return err
	}

	return opErr
}

// BusNameVanished releases every hold owned by requesterBusName; the
// bus layer calls this from its own name-watch callback when a
// requester disconnects (spec §4.9).
func (m *Manager) BusNameVanished(ctx context.Context, requesterBusName string) error {
	return m.do(ctx, func() {
		released := m.holds.ReleaseByBusName(requesterBusName)
		if len(released) == 0 {
			return
		}

		for _, h := range released {
			m.pub.ProfileReleased(h.Iface, h.Cookie)
		}

		m.emitHoldsChanged()

		for _, h := range released {
			m.reconcileAfterRelease(ctx, h)
		}
	})
}

// reconcileAfterRelease re-derives the active profile once a hold has
// been removed, per the second half of the "Release" procedure of
// spec §4.10.
func (m *Manager) reconcileAfterRelease(ctx context.Context, released profile.Hold) {
	if m.holds.Len() == 0 {
		if m.selected != m.active {
			if err := m.activateTargetProfile(ctx, m.selected, profile.ReasonProgramHold); err != nil {
				logActivationFailure(err)
			}
		}

		return
	}

	if released.Profile != m.active {
		return
	}

	if target, ok := m.holds.Effective(); ok && target != m.active {
		if err := m.activateTargetProfile(ctx, target, profile.ReasonProgramHold); err != nil {
			logActivationFailure(err)
		}
	}
}

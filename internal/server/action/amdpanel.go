package action

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
	"github.com/powerprofilesd/powerprofilesd/internal/server/udevutil"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
)

const (
	drmSubsystem          = "drm"
	panelPowerSavingsAttr = "amdgpu/panel_power_savings"
)

// panelPowerSavingsLevels is the per-profile AMDGPU panel power
// savings level, 0 (off) to 4 (most aggressive); exact token set is
// vendor-specific kernel driver content, not part of this contract
// (spec §1: "driver/action quirk catalogues ... realized as ...
// implementations behind the core's abstract interfaces").
var panelPowerSavingsLevels = map[profile.Profile]string{
	profile.PowerSaver:  "4",
	profile.Balanced:    "2",
	profile.Performance: "0",
}

// amdPanelPowerAction sets AMDGPU panel_power_savings while running on
// battery (spec §4.5).
type amdPanelPowerAction struct {
	mu         sync.Mutex
	connectors []*udevutil.Device
	lastTarget profile.Profile

	conn   *dbus.Conn
	cancel context.CancelFunc
}

// NewAMDPanelPowerAction constructs the action candidate.
func NewAMDPanelPowerAction() (Action, bool) {
	return &amdPanelPowerAction{}, true
}

func (a *amdPanelPowerAction) Name() string { return "amdgpu_panel_power" }

func (a *amdPanelPowerAction) Probe(ctx context.Context) bool {
	var found []*udevutil.Device

	err := udevutil.ForEachDevice(drmSubsystem, func(d *udevutil.Device) error {
		if _, attrErr := d.Attr(panelPowerSavingsAttr); attrErr == nil {
			found = append(found, d)
		}

		return nil
	})
	if err != nil || len(found) == 0 {
		return false
	}

	a.connectors = found

	if conn, connErr := dbus.SystemBus(); connErr == nil {
		a.conn = conn
	} else {
		logger.Debugf("amdgpu_panel_power: no system bus, assuming on AC power: %v", connErr)
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if added, watchErr := udevutil.WatchAdd(watchCtx, drmSubsystem); watchErr == nil {
		go a.watchConnectors(added)
	}

	if a.conn != nil {
		go a.watchBattery(watchCtx)
	}

	return true
}

func (a *amdPanelPowerAction) onBattery() bool {
	if a.conn == nil {
		return false
	}

	obj := a.conn.Object("org.freedesktop.UPower", dbus.ObjectPath("/org/freedesktop/UPower"))

	v, err := obj.GetProperty("org.freedesktop.UPower.OnBattery")
	if err != nil {
		return false
	}

	onBattery, _ := v.Value().(bool)

	return onBattery
}

func (a *amdPanelPowerAction) Apply(ctx context.Context, target profile.Profile) error {
	a.mu.Lock()
	a.lastTarget = target
	connectors := append([]*udevutil.Device(nil), a.connectors...)
	a.mu.Unlock()

	if !a.onBattery() {
		return nil
	}

	level, ok := panelPowerSavingsLevels[target]
	if !ok {
		return nil
	}

	var firstErr error
	for _, c := range connectors {
		if err := c.WriteAttr(panelPowerSavingsAttr, level); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (a *amdPanelPowerAction) watchConnectors(added udevutil.Added) {
	for d := range added {
		if _, err := d.Attr(panelPowerSavingsAttr); err != nil {
			continue
		}

		a.mu.Lock()
		a.connectors = append(a.connectors, d)
		target := a.lastTarget
		a.mu.Unlock()

		if target.IsReal() {
			_ = a.Apply(context.Background(), target)
		}
	}
}

func (a *amdPanelPowerAction) watchBattery(ctx context.Context) {
	sigCh := make(chan *dbus.Signal, 4)
	a.conn.Signal(sigCh)

	err := a.conn.AddMatchSignal(
		dbus.WithMatchObjectPath("/org/freedesktop/UPower"),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	)
	if err != nil {
		logger.Debugf("amdgpu_panel_power: could not subscribe to UPower property changes: %v", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-sigCh:
			if !ok {
				return
			}

			if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" {
				continue
			}

			a.mu.Lock()
			target := a.lastTarget
			a.mu.Unlock()

			if target.IsReal() {
				_ = a.Apply(context.Background(), target)
			}
		}
	}
}

func (a *amdPanelPowerAction) Close() error {
	if a.cancel != nil {
		a.cancel()
	}

	return nil
}

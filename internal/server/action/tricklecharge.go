package action

import (
	"context"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
	"github.com/powerprofilesd/powerprofilesd/internal/server/udevutil"
)

const powerSupplySubsystem = "power_supply"

// isDeviceScoped reports whether a power_supply device is scoped
// "Device" rather than "System" -- only discrete batteries/chargers
// attached to peripherals support trickle charging (spec §4.5).
func isDeviceScoped(d *udevutil.Device) bool {
	scope, err := d.Attr("scope")
	return err == nil && scope == "Device"
}

// trickleChargeAction sets charge_type to Trickle on power-saver and
// Fast otherwise, for every Device-scoped power_supply (spec §4.5).
type trickleChargeAction struct {
	devices []*udevutil.Device
}

// NewTrickleChargeAction constructs the action candidate.
func NewTrickleChargeAction() (Action, bool) {
	return &trickleChargeAction{}, true
}

func (a *trickleChargeAction) Name() string { return "trickle_charge" }

func (a *trickleChargeAction) Probe(ctx context.Context) bool {
	var found []*udevutil.Device

	err := udevutil.ForEachDevice(powerSupplySubsystem, func(d *udevutil.Device) error {
		if !isDeviceScoped(d) {
			return nil
		}

		if _, attrErr := d.Attr("charge_type"); attrErr == nil {
			found = append(found, d)
		}

		return nil
	})
	if err != nil || len(found) == 0 {
		return false
	}

	a.devices = found

	return true
}

func (a *trickleChargeAction) Apply(ctx context.Context, target profile.Profile) error {
	value := "Fast"
	if target == profile.PowerSaver {
		value = "Trickle"
	}

	var firstErr error
	for _, d := range a.devices {
		if err := d.WriteAttr("charge_type", value); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (a *trickleChargeAction) Close() error {
	return nil
}

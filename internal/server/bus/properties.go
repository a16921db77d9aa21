package bus

import (
	"context"

	"github.com/godbus/dbus/v5"

	"github.com/powerprofilesd/powerprofilesd/internal/server/manager"
	"github.com/powerprofilesd/powerprofilesd/internal/server/polkitutil"
)

// propertiesObject implements org.freedesktop.DBus.Properties by hand
// rather than through a generic property-table library, since the
// only writable property (ActiveProfile) needs a polkit check and a
// manager round trip rather than a plain in-memory set (spec §4.11).
type propertiesObject struct {
	srv *Server
}

var readOnlyProperties = []string{
	"ActiveProfile", "Profiles", "Actions", "PerformanceDegraded",
	"PerformanceInhibited", "ActiveProfileHolds", "Version",
}

func (o *propertiesObject) Get(ifaceName, property string) (dbus.Variant, *dbus.Error) {
	snap, err := o.srv.mgr.Snapshot(context.Background())
	if err != nil {
		return dbus.Variant{}, dbus.NewError("org.freedesktop.UPower.PowerProfiles.Error.Failed", []interface{}{err.Error()})
	}

	v, ok := propertyValue(snap, property)
	if !ok {
		return dbus.Variant{}, dbus.NewError("org.freedesktop.DBus.Error.UnknownProperty", []interface{}{property})
	}

	return dbus.MakeVariant(v), nil
}

func (o *propertiesObject) GetAll(ifaceName string) (map[string]dbus.Variant, *dbus.Error) {
	snap, err := o.srv.mgr.Snapshot(context.Background())
	if err != nil {
		return nil, dbus.NewError("org.freedesktop.UPower.PowerProfiles.Error.Failed", []interface{}{err.Error()})
	}

	out := make(map[string]dbus.Variant, len(readOnlyProperties))

	for _, name := range readOnlyProperties {
		if v, ok := propertyValue(snap, name); ok {
			out[name] = dbus.MakeVariant(v)
		}
	}

	return out, nil
}

// Set only ever accepts ActiveProfile, gated by switch-profile (spec §4.11).
func (o *propertiesObject) Set(ifaceName, property string, value dbus.Variant, sender dbus.Sender) *dbus.Error {
	if property != "ActiveProfile" {
		return dbus.NewError("org.freedesktop.DBus.Error.PropertyReadOnly", []interface{}{property})
	}

	if err := o.srv.gate.Authorize(string(sender), polkitutil.ActionSwitchProfile, true); err != nil {
		return dbusError(err)
	}

	name, ok := value.Value().(string)
	if !ok {
		return dbus.NewError("org.freedesktop.DBus.Error.InvalidArgs", []interface{}{"ActiveProfile must be a string"})
	}

	if err := o.srv.mgr.SetActiveProfile(context.Background(), name); err != nil {
		return dbusError(err)
	}

	return nil
}

// propertyValue resolves one exported property name against a
// manager snapshot, returning the D-Bus wire-shaped value.
func propertyValue(snap manager.Snapshot, name string) (interface{}, bool) {
	switch name {
	case "ActiveProfile":
		return snap.ActiveProfile.String(), true
	case "Profiles":
		return buildProfiles(snap), true
	case "Actions":
		if snap.Actions == nil {
			return []string{}, true
		}

		return snap.Actions, true
	case "PerformanceDegraded":
		return snap.PerformanceDegraded, true
	case "PerformanceInhibited":
		// Always empty; kept only for legacy compatibility (spec §4.11).
		return "", true
	case "ActiveProfileHolds":
		return buildHolds(snap), true
	case "Version":
		return snap.Version, true
	default:
		return nil, false
	}
}

func buildProfiles(snap manager.Snapshot) []map[string]dbus.Variant {
	out := make([]map[string]dbus.Variant, 0, len(snap.Profiles))

	for _, p := range snap.Profiles {
		entry := map[string]dbus.Variant{
			"Profile": dbus.MakeVariant(p.Profile.String()),
			"Driver":  dbus.MakeVariant(p.Driver),
		}

		if p.CPUDriver != "" {
			entry["CpuDriver"] = dbus.MakeVariant(p.CPUDriver)
		}

		if p.PlatformDriver != "" {
			entry["PlatformDriver"] = dbus.MakeVariant(p.PlatformDriver)
		}

		out = append(out, entry)
	}

	return out
}

func buildHolds(snap manager.Snapshot) []map[string]dbus.Variant {
	out := make([]map[string]dbus.Variant, 0, len(snap.Holds))

	for _, h := range snap.Holds {
		out = append(out, map[string]dbus.Variant{
			"Profile":       dbus.MakeVariant(h.Profile.String()),
			"Reason":        dbus.MakeVariant(h.Reason),
			"ApplicationId": dbus.MakeVariant(h.ApplicationID),
		})
	}

	return out
}

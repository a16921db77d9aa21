package bus

import (
	"context"
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/powerprofilesd/powerprofilesd/internal/server/ppderrors"
	"github.com/powerprofilesd/powerprofilesd/internal/server/polkitutil"
)

// vtableObject is exported once per publication, under that
// publication's own interface name, carrying HoldProfile and
// ReleaseProfile (spec §4.11).
type vtableObject struct {
	srv   *Server
	iface string
}

// HoldProfile is gated by the hold-profile polkit action (spec §4.8/§4.10).
func (o *vtableObject) HoldProfile(profileName, reason, applicationID string, sender dbus.Sender) (uint32, *dbus.Error) {
	if err := o.srv.gate.Authorize(string(sender), polkitutil.ActionHoldProfile, true); err != nil {
		return 0, dbusError(err)
	}

	cookie, err := o.srv.mgr.HoldProfile(context.Background(), profileName, reason, applicationID, string(sender), o.iface)
	if err != nil {
		return 0, dbusError(err)
	}

	o.srv.watchSenderDeparture(string(sender))

	return cookie, nil
}

// ReleaseProfile is ungated: only the owner of a cookie can present it
// (spec §4.11).
func (o *vtableObject) ReleaseProfile(cookie uint32) *dbus.Error {
	if err := o.srv.mgr.ReleaseProfile(context.Background(), cookie); err != nil {
		return dbusError(err)
	}

	return nil
}

// dbusError maps the error taxonomy of spec §7 onto D-Bus error names.
func dbusError(err error) *dbus.Error {
	var invalidArgs *ppderrors.InvalidArgs
	if errors.As(err, &invalidArgs) {
		return dbus.NewError("org.freedesktop.DBus.Error.InvalidArgs", []interface{}{invalidArgs.Error()})
	}

	var denied *ppderrors.AccessDenied
	if errors.As(err, &denied) {
		return dbus.NewError("org.freedesktop.DBus.Error.AccessDenied", []interface{}{denied.Error()})
	}

	var failure *ppderrors.DriverFailure
	if errors.As(err, &failure) {
		return dbus.NewError("org.freedesktop.UPower.PowerProfiles.Error.Failed", []interface{}{failure.Error()})
	}

	return dbus.NewError("org.freedesktop.UPower.PowerProfiles.Error.Failed", []interface{}{err.Error()})
}

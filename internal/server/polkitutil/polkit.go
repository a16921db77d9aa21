// Package polkitutil implements the polkit gate of spec §4.8:
// resolve a D-Bus sender to a polkit subject, synchronously check a
// named action, and return allow/deny. The API shape (CheckFlags,
// ErrDismissed, a CheckAuthorization free function tests can replace)
// mirrors canonical-snapd's own polkit package.
package polkitutil

import (
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	polkitBusName    = "org.freedesktop.PolicyKit1"
	polkitObjectPath = "/org/freedesktop/PolicyKit1/Authority"
	polkitInterface  = "org.freedesktop.PolicyKit1.Authority"
)

// CheckFlags mirrors polkit's CheckAuthorizationFlags bitmask.
type CheckFlags uint32

const (
	// CheckAllowInteraction permits polkitd to show an authentication
	// dialog. The bus layer sets it on every check it makes,
	// whatever the calling message's own interaction flag.
	CheckAllowInteraction CheckFlags = 1
)

// ErrDismissed is returned when the user dismissed (rather than
// failed) an interactive authentication dialog.
var ErrDismissed = errors.New("polkit: authentication dialog dismissed")

type authSubject struct {
	Kind    string
	Details map[string]dbus.Variant
}

type authResult struct {
	IsAuthorized bool
	IsChallenge  bool
	Details      map[string]string
}

// CheckAuthorization is a package variable so tests can replace it
// wholesale, the same pattern canonical-snapd uses for
// polkitCheckAuthorization in its access layer.
var CheckAuthorization = checkAuthorization

// checkAuthorization resolves sender (a unique or well-known D-Bus
// bus name) to a polkit "system-bus-name" subject and synchronously
// checks actionID.
func checkAuthorization(sender, actionID string, details map[string]string, flags CheckFlags) (bool, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false, fmt.Errorf("polkit: connecting to system bus: %w", err)
	}

	obj := conn.Object(polkitBusName, dbus.ObjectPath(polkitObjectPath))

	subject := authSubject{
		Kind:    "system-bus-name",
		Details: map[string]dbus.Variant{"name": dbus.MakeVariant(sender)},
	}

	var res authResult

	call := obj.Call(polkitInterface+".CheckAuthorization", 0, subject, actionID, details, uint32(flags), "")
	if call.Err != nil {
		return false, fmt.Errorf("polkit: CheckAuthorization: %w", call.Err)
	}

	if err := call.Store(&res); err != nil {
		return false, fmt.Errorf("polkit: decoding CheckAuthorization reply: %w", err)
	}

	if !res.IsAuthorized {
		if res.IsChallenge {
			return false, ErrDismissed
		}

		return false, nil
	}

	return true, nil
}

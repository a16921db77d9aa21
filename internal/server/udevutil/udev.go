// Package udevutil implements the device enumeration helper of spec
// §4.2: find the first device in a subsystem matching a predicate, or
// iterate them all. It is a thin layer over jochenvg/go-udev, as the
// spec requires ("no ordering contract is offered").
package udevutil

import (
	"fmt"

	"github.com/jochenvg/go-udev"

	"github.com/powerprofilesd/powerprofilesd/internal/shared/sysfs"
)

// Device is the narrow view of a udev device the rest of the daemon
// needs: its syspath (to read/write sysfs attributes through the
// UMOCKDEV_DIR-aware sysfs package) and a couple of udev properties.
type Device struct {
	Syspath   string
	Subsystem string
	Sysname   string
	DevType   string
}

// Attr reads a sysfs attribute of this device through the sysfs
// package, honoring UMOCKDEV_DIR.
func (d *Device) Attr(name string) (string, error) {
	return sysfs.ReadAttr(d.Syspath + "/" + name)
}

// WriteAttr writes a sysfs attribute of this device.
func (d *Device) WriteAttr(name, value string) error {
	return sysfs.WriteAttr(d.Syspath+"/"+name, value)
}

// Predicate decides whether a Device matches, for FindDevice.
type Predicate func(*Device) bool

func newEnumerate(subsystem string) (*udev.Enumerate, func(), error) {
	u := udev.Udev{}
	e := u.NewEnumerate()

	if err := e.AddMatchSubsystem(subsystem); err != nil {
		return nil, nil, fmt.Errorf("udevutil: matching subsystem %q: %w", subsystem, err)
	}

	if err := e.AddMatchIsInitialized(); err != nil {
		return nil, nil, fmt.Errorf("udevutil: restricting to initialized devices: %w", err)
	}

	return e, func() {}, nil
}

func toDevice(ud *udev.Device) *Device {
	return &Device{
		Syspath:   ud.Syspath(),
		Subsystem: ud.Subsystem(),
		Sysname:   ud.Sysname(),
		DevType:   ud.Devtype(),
	}
}

// ForEachDevice iterates every device in subsystem, in unspecified
// order (spec §4.2), calling fn for each. If fn returns an error,
// iteration stops and that error is returned.
func ForEachDevice(subsystem string, fn func(*Device) error) error {
	e, release, err := newEnumerate(subsystem)
	if err != nil {
		return err
	}
	defer release()

	devices, err := e.Devices()
	if err != nil {
		return fmt.Errorf("udevutil: enumerating subsystem %q: %w", subsystem, err)
	}

	for _, ud := range devices {
		if err := fn(toDevice(ud)); err != nil {
			return err
		}
	}

	return nil
}

// FindDevice returns the first device in subsystem satisfying pred.
func FindDevice(subsystem string, pred Predicate) (*Device, bool, error) {
	var found *Device

	err := ForEachDevice(subsystem, func(d *Device) error {
		if found != nil {
			return nil
		}

		if pred(d) {
			found = d
		}

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return found, found != nil, nil
}

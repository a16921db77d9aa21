package driver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/sysfs"
)

const (
	acpiPlatformProfilePath        = "/sys/firmware/acpi/platform_profile"
	acpiPlatformProfileChoicesPath = "/sys/firmware/acpi/platform_profile_choices"
	lenovoLapSensorPath            = "/sys/bus/platform/devices/PNP0C09:00/dytc_lapmode"
)

// platformChoiceAliases maps the three real profiles onto the
// synonyms actually published in platform_profile_choices across
// firmware vendors (spec §4.4).
var platformChoiceAliases = map[profile.Profile][]string{
	profile.PowerSaver:  {"low-power", "cool", "quiet"},
	profile.Balanced:    {"balanced"},
	profile.Performance: {"performance"},
}

// platformDriver consumes the ACPI platform_profile kernel attribute.
type platformDriver struct {
	choice map[profile.Profile]string // resolved alias actually present
	mask   profile.Mask

	hasLapSensor bool
	degraded     string

	watcher    *sysfs.Watcher
	lapWatcher *sysfs.Watcher
	events     chan Event
	stop       chan struct{}
	pumps      sync.WaitGroup
}

// NewPlatformDriver constructs the ACPI platform_profile driver
// candidate.
func NewPlatformDriver() (Driver, bool) {
	return &platformDriver{
		events: make(chan Event, 4),
		stop:   make(chan struct{}),
	}, true
}

func (d *platformDriver) Name() string               { return "platform_profile" }
func (d *platformDriver) Kind() profile.DriverKind    { return profile.Platform }
func (d *platformDriver) Events() <-chan Event        { return d.events }
func (d *platformDriver) PerformanceDegraded() string { return d.degraded }

func (d *platformDriver) SupportedProfiles() profile.Mask {
	return d.mask
}

func (d *platformDriver) Probe(ctx context.Context) ProbeResult {
	raw, err := sysfs.ReadAttr(acpiPlatformProfileChoicesPath)
	if err != nil {
		return ProbeFail
	}

	available := map[string]bool{}
	for _, c := range strings.Fields(raw) {
		available[c] = true
	}

	choice := map[profile.Profile]string{}
	var mask profile.Mask

	for p, aliases := range platformChoiceAliases {
		for _, alias := range aliases {
			if available[alias] {
				choice[p] = alias
				mask |= profile.FlagFor(p)
				break
			}
		}
	}

	if mask != profile.MaskAll {
		// Spec §4.4: "When the published choices omit any of
		// {low-power|cool|quiet, balanced, performance} probing
		// returns defer" -- a firmware update or module reload may
		// add the missing choice later.
		logger.Debug("Platform driver deferring: platform_profile_choices incomplete", logger.Ctx{"choices": raw})
		return ProbeDefer
	}

	d.choice = choice
	d.mask = mask
	d.hasLapSensor = sysfs.ReadAttrOr(lenovoLapSensorPath, "") != "" || attrExists(lenovoLapSensorPath)

	return ProbeSuccess
}

func attrExists(path string) bool {
	_, err := sysfs.ReadAttr(path)
	return err == nil
}

func (d *platformDriver) Activate(ctx context.Context, target profile.Profile, reason profile.Reason) error {
	alias, ok := d.choice[target]
	if !ok {
		return fmt.Errorf("platform driver: no choice for profile %v", target)
	}

	err := sysfs.WithSuppressed(d.watcher, func() error {
		return sysfs.WriteAttr(acpiPlatformProfilePath, alias)
	})
	if err != nil {
		return fmt.Errorf("platform driver: writing platform_profile: %w", err)
	}

	return nil
}

// Watch starts the file watchers for external platform_profile writes
// and, if present, the Lenovo lap-proximity sensor. Called by the
// manager once the driver has been selected (not during probe, so
// deferred/rejected candidates never leak watchers).
func (d *platformDriver) Watch() error {
	w, err := sysfs.WatchAttr(acpiPlatformProfilePath)
	if err != nil {
		return err
	}

	d.watcher = w

	d.pumps.Add(1)
	go d.pumpProfileChanges()

	if d.hasLapSensor {
		lw, err := sysfs.WatchAttr(lenovoLapSensorPath)
		if err == nil {
			d.lapWatcher = lw

			d.pumps.Add(1)
			go d.pumpLapSensor()
		}
	}

	return nil
}

func (d *platformDriver) pumpProfileChanges() {
	defer d.pumps.Done()

	for {
		select {
		case <-d.stop:
			return
		case _, ok := <-d.watcher.Changed():
			if !ok {
				return
			}

			v, err := sysfs.ReadAttr(acpiPlatformProfilePath)
			if err != nil {
				continue
			}

			for p, alias := range d.choice {
				if alias == v {
					select {
					case d.events <- Event{Kind: EventProfileChanged, Profile: p}:
					case <-d.stop:
						return
					}

					break
				}
			}
		}
	}
}

func (d *platformDriver) pumpLapSensor() {
	defer d.pumps.Done()

	for {
		select {
		case <-d.stop:
			return
		case _, ok := <-d.lapWatcher.Changed():
			if !ok {
				return
			}

			on := sysfs.ReadAttrOr(lenovoLapSensorPath, "0")
			degraded := ""
			if on == "1" || strings.EqualFold(on, "true") {
				degraded = "lap-detected"
			}

			if degraded != d.degraded {
				d.degraded = degraded

				select {
				case d.events <- Event{Kind: EventDegradedChanged}:
				case <-d.stop:
					return
				}
			}
		}
	}
}

func (d *platformDriver) Close() error {
	close(d.stop)
	d.pumps.Wait()

	if d.watcher != nil {
		_ = d.watcher.Close()
	}

	if d.lapWatcher != nil {
		_ = d.lapWatcher.Close()
	}

	close(d.events)

	return nil
}

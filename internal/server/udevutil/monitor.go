package udevutil

import (
	"context"

	"github.com/jochenvg/go-udev"
)

// Added delivers devices that appear in a watched subsystem after
// WatchAdd was called, e.g. a DRM connector hot-plugged after
// startup (spec §4.5, amdgpu_panel_power: "subscribes ... to
// drm-connector add events so late-appearing panels receive the
// current setting").
type Added <-chan *Device

// WatchAdd streams "add" events for subsystem until ctx is canceled.
// The returned channel is closed when the monitor stops.
func WatchAdd(ctx context.Context, subsystem string) (Added, error) {
	u := udev.Udev{}
	m := u.NewMonitorFromNetlink("udev")

	if err := m.FilterAddMatchSubsystem(subsystem); err != nil {
		return nil, err
	}

	devCh, errCh, err := m.DeviceChan(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan *Device, 4)

	go func() {
		defer close(out)

		for {
			select {
			case <-ctx.Done():
				return
			case ud, ok := <-devCh:
				if !ok {
					return
				}

				if ud.Action() != "add" {
					continue
				}

				select {
				case out <- toDevice(ud):
				case <-ctx.Done():
					return
				}
			case _, ok := <-errCh:
				if !ok {
					return
				}
			}
		}
	}()

	return out, nil
}

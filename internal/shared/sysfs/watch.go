package sysfs

import (
	"github.com/fsnotify/fsnotify"

	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
)

// WatchAttr returns a Watcher for path. Kernel attribute files rarely
// generate inotify IN_MODIFY events reliably (many are regenerated on
// every open, not truncated in place), so the watcher treats any
// CREATE/WRITE/CHMOD event on the watched file as "may have changed"
// and lets the caller re-read and compare.
func WatchAttr(path string) (*Watcher, error) {
	resolved := Path(path)

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, &IoError{Path: path, Err: err}
	}

	if err := fw.Add(resolved); err != nil {
		fw.Close()
		return nil, &IoError{Path: path, Err: err}
	}

	w := &Watcher{
		path:     path,
		changed:  make(chan struct{}, 1),
		suppress: make(chan bool, 1),
	}

	done := make(chan struct{})
	w.closeFn = func() error {
		err := fw.Close()
		<-done
		return err
	}

	go w.pump(fw, done)

	return w, nil
}

func (w *Watcher) pump(fw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	for {
		select {
		case s, ok := <-w.suppress:
			if !ok {
				return
			}

			if s {
				w.suppressN++
			} else if w.suppressN > 0 {
				w.suppressN--
			}
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Chmod) == 0 {
				continue
			}

			if w.suppressN > 0 {
				continue
			}

			select {
			case w.changed <- struct{}{}:
			default:
				// A change notification is already pending; the
				// manager coalesces anyway (spec §5).
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}

			logUnexpectedClose(w.path, err)
		}
	}
}

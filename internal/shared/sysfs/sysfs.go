// Package sysfs implements the Sysfs/Procfs I/O helpers of spec §4.1:
// attribute read/write with the exact error semantics drivers and
// actions depend on, plus a watcher that can be suppressed across a
// self-initiated write so it doesn't synthesize a spurious external
// change (spec §5).
package sysfs

import (
	"errors"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
)

// ErrNotFound is returned by ReadAttr when the underlying file does
// not exist, distinct from a generic I/O failure per spec §4.1.
var ErrNotFound = errors.New("sysfs: attribute not found")

// IoError wraps any failure writing an attribute (a missing file
// included), and any failure other than absence reading one.
type IoError struct {
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return "sysfs: " + e.Path + ": " + e.Err.Error()
}

func (e *IoError) Unwrap() error {
	return e.Err
}

// Root returns the UMOCKDEV_DIR override, if set, else "".
func Root() string {
	return os.Getenv("UMOCKDEV_DIR")
}

// Path prepends the UMOCKDEV_DIR root override (spec §4.1) to an
// absolute kernel path, for testability.
func Path(p string) string {
	root := Root()
	if root == "" {
		return p
	}

	return root + p
}

// WriteAttr opens, truncates, writes and closes path with value,
// retrying short writes and EINTR. Any other failure is returned as
// *IoError.
func WriteAttr(path, value string) error {
	resolved := Path(path)

	f, err := os.OpenFile(resolved, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return &IoError{Path: path, Err: err}
	}
	defer f.Close()

	data := []byte(value)
	for len(data) > 0 {
		n, err := f.Write(data)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				continue
			}

			return &IoError{Path: path, Err: err}
		}

		data = data[n:]
	}

	// Flush before returning so the write is observable immediately,
	// per spec §4.1.
	if err := f.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
		// Many sysfs/procfs attributes don't support fsync; only
		// surface a real I/O failure.
		return &IoError{Path: path, Err: err}
	}

	return nil
}

// ReadAttr reads path, trimming a single trailing newline. Returns
// ErrNotFound if the file is absent.
func ReadAttr(path string) (string, error) {
	resolved := Path(path)

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}

		return "", &IoError{Path: path, Err: err}
	}

	return strings.TrimSuffix(string(data), "\n"), nil
}

// ReadAttrOr reads path, returning def if the attribute is absent.
func ReadAttrOr(path, def string) string {
	v, err := ReadAttr(path)
	if err != nil {
		return def
	}

	return v
}

// Watcher yields a Changed event whenever an attribute file's
// contents may have changed. It can be suppressed around a
// self-initiated write so that write doesn't get reported back as an
// external change.
type Watcher struct {
	path      string
	changed   chan struct{}
	closeFn   func() error
	suppress  chan bool
	suppressN int
}

// Changed returns the channel that receives a value whenever the
// watched file may have changed, except while suppressed.
func (w *Watcher) Changed() <-chan struct{} {
	return w.changed
}

// Suppress marks the next change notifications as self-initiated;
// pair with Unsuppress around a write to the same path (spec §5).
func (w *Watcher) Suppress() {
	w.suppress <- true
}

// Unsuppress ends a suppression window.
func (w *Watcher) Unsuppress() {
	w.suppress <- false
}

// Close stops watching and releases the underlying OS resources.
func (w *Watcher) Close() error {
	if w.closeFn == nil {
		return nil
	}

	return w.closeFn()
}

// WithSuppressed runs fn with the watcher's notifications suppressed,
// guaranteeing Unsuppress runs even if fn panics or errors.
func WithSuppressed(w *Watcher, fn func() error) error {
	if w == nil {
		return fn()
	}

	w.Suppress()
	defer w.Unsuppress()

	return fn()
}

// logUnexpectedClose logs a non-fatal error closing a watcher.
func logUnexpectedClose(path string, err error) {
	if err != nil && err != io.EOF {
		logger.Debugf("sysfs: error closing watcher for %s: %v", path, err)
	}
}

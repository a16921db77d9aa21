// Package bus implements the bus surface of spec §4.11/§6: the dual
// (current, legacy) D-Bus object-path publication, identical on both,
// backed by the manager core. Everything here is the "external
// collaborator" layer spec §1 keeps out of the core: it translates
// bus calls into manager.Manager requests and manager results back
// into D-Bus replies and signals.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/powerprofilesd/powerprofilesd/internal/server/manager"
	"github.com/powerprofilesd/powerprofilesd/internal/server/polkitutil"
	"github.com/powerprofilesd/powerprofilesd/internal/server/ppderrors"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
)

const propertiesInterface = "org.freedesktop.DBus.Properties"

// published is one (bus name, object path, interface) triple. Both
// entries publish byte-identical behavior (spec §6).
type published struct {
	Name  string
	Path  dbus.ObjectPath
	Iface string
}

var publications = []published{
	{
		Name:  "org.freedesktop.UPower.PowerProfiles",
		Path:  "/org/freedesktop/UPower/PowerProfiles",
		Iface: "org.freedesktop.UPower.PowerProfiles",
	},
	{
		Name:  "net.hadess.PowerProfiles",
		Path:  "/net/hadess/PowerProfiles",
		Iface: "net.hadess.PowerProfiles",
	},
}

// Server owns the system bus connection and exports the vtable onto
// both publications.
type Server struct {
	conn *dbus.Conn
	mgr  *manager.Manager
	gate polkitutil.Gate

	nameLost chan struct{}

	watchedMu    sync.Mutex
	watchedNames map[string]bool
}

// New exports every method, property, and introspection interface
// onto both publications over the given bus connection. It does not yet
// own either bus name; call AcquireNames once the manager is ready to
// serve requests.
func New(conn *dbus.Conn, mgr *manager.Manager) (*Server, error) {
	s := &Server{conn: conn, mgr: mgr, nameLost: make(chan struct{}, 1), watchedNames: map[string]bool{}}

	for _, pub := range publications {
		vt := &vtableObject{srv: s, iface: pub.Iface}
		if err := conn.Export(vt, pub.Path, pub.Iface); err != nil {
			return nil, fmt.Errorf("bus: exporting %s at %s: %w", pub.Iface, pub.Path, err)
		}

		po := &propertiesObject{srv: s}
		if err := conn.Export(po, pub.Path, propertiesInterface); err != nil {
			return nil, fmt.Errorf("bus: exporting properties at %s: %w", pub.Path, err)
		}

		intro := introspect.NewIntrospectable(introspectNode(pub.Iface))
		if err := conn.Export(intro, pub.Path, "org.freedesktop.DBus.Introspectable"); err != nil {
			return nil, fmt.Errorf("bus: exporting introspection at %s: %w", pub.Path, err)
		}
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameLost"),
	); err != nil {
		return nil, fmt.Errorf("bus: matching NameLost: %w", err)
	}

	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)

	go s.watchSignals(signals)

	return s, nil
}

// watchSignals dispatches org.freedesktop.DBus signals the server has
// asked to be matched on: NameLost (our own primary name taken over)
// and NameOwnerChanged (a hold requester's bus name has gone away).
func (s *Server) watchSignals(signals <-chan *dbus.Signal) {
	for sig := range signals {
		switch sig.Name {
		case "org.freedesktop.DBus.NameLost":
			for _, v := range sig.Body {
				if name, ok := v.(string); ok && name == publications[0].Name {
					select {
					case s.nameLost <- struct{}{}:
					default:
					}
				}
			}
		case "org.freedesktop.DBus.NameOwnerChanged":
			name, vanished := parseNameOwnerChanged(sig)
			if !vanished {
				continue
			}

			if err := s.mgr.BusNameVanished(context.Background(), name); err != nil {
				logger.Warn("releasing holds for vanished bus name", logger.Ctx{"sender": name, "error": err.Error()})
			}
		}
	}
}

// parseNameOwnerChanged reports the bus name a NameOwnerChanged signal
// concerns and whether it signals that name disappearing (new owner
// empty), per the org.freedesktop.DBus signature
// (name string, old_owner string, new_owner string).
func parseNameOwnerChanged(sig *dbus.Signal) (name string, vanished bool) {
	if len(sig.Body) != 3 {
		return "", false
	}

	name, ok := sig.Body[0].(string)
	if !ok {
		return "", false
	}

	newOwner, ok := sig.Body[2].(string)
	if !ok {
		return "", false
	}

	return name, newOwner == ""
}

// watchSenderDeparture arranges for a NameOwnerChanged signal to be
// matched for sender, so a hold requester that disconnects without
// releasing its holds still has them released (spec §3/§8, invariant
// 5). Idempotent per sender: a requester with several holds is
// matched once.
func (s *Server) watchSenderDeparture(sender string) {
	s.watchedMu.Lock()
	if s.watchedNames[sender] {
		s.watchedMu.Unlock()
		return
	}

	s.watchedNames[sender] = true
	s.watchedMu.Unlock()

	err := s.conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
		dbus.WithMatchArg(0, sender),
	)
	if err != nil {
		logger.Warn("watching hold requester bus name", logger.Ctx{"sender": sender, "error": err.Error()})
	}
}

// NameLost fires once if this instance's primary bus name is taken
// over by another owner after having been acquired; the daemon then
// shuts down cleanly. Failing to acquire the name in the first place
// is reported by AcquireNames instead and ends startup with an error.
func (s *Server) NameLost() <-chan struct{} {
	return s.nameLost
}

// AcquireNames requests ownership of the primary name, failing hard
// per spec §4.10 step 2 if another instance holds it and replace is
// false; the legacy name is requested best-effort and only logged on
// failure, since nothing in the spec makes it load-bearing.
func (s *Server) AcquireNames(replace bool) error {
	flags := dbus.NameFlagAllowReplacement
	if replace {
		flags |= dbus.NameFlagReplaceExisting
	}

	primary := publications[0]

	reply, err := s.conn.RequestName(primary.Name, flags)
	if err != nil {
		return fmt.Errorf("bus: requesting name %s: %w", primary.Name, err)
	}

	if reply != dbus.RequestNameReplyPrimaryOwner {
		return ppderrors.NewFatal("bus name %s is already owned by another instance", primary.Name)
	}

	legacy := publications[1]

	if reply, err := s.conn.RequestName(legacy.Name, flags); err != nil || reply != dbus.RequestNameReplyPrimaryOwner {
		logger.Warn("could not acquire legacy bus name", logger.Ctx{"name": legacy.Name, "reply": reply, "error": err})
	}

	return nil
}

// PropertiesChanged implements manager.Publisher by re-reading a
// snapshot and emitting PropertiesChanged on both publications (spec §6).
func (s *Server) PropertiesChanged(props ...string) {
	snap, err := s.mgr.Snapshot(context.Background())
	if err != nil {
		logger.Warn("reading snapshot for property-changed emission", logger.Ctx{"error": err.Error()})
		return
	}

	changed := map[string]dbus.Variant{}

	for _, name := range props {
		if v, ok := propertyValue(snap, name); ok {
			changed[name] = dbus.MakeVariant(v)
		}
	}

	if len(changed) == 0 {
		return
	}

	for _, pub := range publications {
		err := s.conn.Emit(pub.Path, propertiesInterface+".PropertiesChanged", pub.Iface, changed, []string{})
		if err != nil {
			logger.Warn("emitting PropertiesChanged", logger.Ctx{"path": string(pub.Path), "error": err.Error()})
		}
	}
}

// ProfileReleased implements manager.Publisher, emitting the signal
// on whichever publication iface originated the hold (spec §4.10/§6).
func (s *Server) ProfileReleased(iface string, cookie uint32) {
	for _, pub := range publications {
		if pub.Iface != iface {
			continue
		}

		if err := s.conn.Emit(pub.Path, iface+".ProfileReleased", cookie); err != nil {
			logger.Warn("emitting ProfileReleased", logger.Ctx{"path": string(pub.Path), "error": err.Error()})
		}

		return
	}
}

// Close releases the bus connection.
func (s *Server) Close() error {
	return s.conn.Close()
}

// Package holds implements the hold table of spec §4.9: a cookie-keyed
// set of outstanding HoldProfile requests, the release-on-watch-lost
// wiring, and the effective_hold_profile rule used to derive which
// profile a hold forces regardless of the user's selected profile.
package holds

import (
	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
)

// Table is a cookie-keyed set of active holds. It is not safe for
// concurrent use; callers serialize access the same way the manager
// serializes all other state (spec §5).
type Table struct {
	next  uint32
	holds map[uint32]profile.Hold
}

// New returns an empty hold table.
func New() *Table {
	return &Table{holds: make(map[uint32]profile.Hold)}
}

// Add records a new hold and returns its cookie. Cookies are assigned
// sequentially starting at 1; 0 is never issued, so it can be used by
// callers as a "no such hold" sentinel.
func (t *Table) Add(target profile.Profile, reason, applicationID, requesterBusName, iface string) uint32 {
	t.next++
	cookie := t.next

	t.holds[cookie] = profile.Hold{
		Cookie:           cookie,
		Profile:          target,
		Reason:           reason,
		ApplicationID:    applicationID,
		RequesterBusName: requesterBusName,
		Iface:            iface,
	}

	return cookie
}

// Release removes a hold by cookie, returning the removed hold and
// whether it existed.
func (t *Table) Release(cookie uint32) (profile.Hold, bool) {
	h, ok := t.holds[cookie]
	if ok {
		delete(t.holds, cookie)
	}

	return h, ok
}

// ReleaseByBusName removes every hold whose requester owns
// requesterBusName, returning the removed holds. Used when the bus
// layer observes the requester's unique name vanish (spec §4.9: "a
// hold is also released automatically if the requesting client
// disconnects from the bus").
func (t *Table) ReleaseByBusName(requesterBusName string) []profile.Hold {
	var released []profile.Hold

	for cookie, h := range t.holds {
		if h.RequesterBusName == requesterBusName {
			released = append(released, h)
			delete(t.holds, cookie)
		}
	}

	return released
}

// Clear removes every hold, returning the removed holds. Called when
// the user explicitly selects a profile (spec §4.9: "explicitly
// setting ActiveProfile releases every outstanding hold").
func (t *Table) Clear() []profile.Hold {
	if len(t.holds) == 0 {
		return nil
	}

	released := make([]profile.Hold, 0, len(t.holds))
	for _, h := range t.holds {
		released = append(released, h)
	}

	t.holds = make(map[uint32]profile.Hold)

	return released
}

// Len reports the number of active holds.
func (t *Table) Len() int {
	return len(t.holds)
}

// All returns a snapshot of the active holds, in no particular order.
// Used to populate the ActiveProfileHolds property (spec §4.11).
func (t *Table) All() []profile.Hold {
	out := make([]profile.Hold, 0, len(t.holds))
	for _, h := range t.holds {
		out = append(out, h)
	}

	return out
}

// Effective implements the effective_hold_profile rule of spec §4.9:
// if any hold targets PowerSaver, it wins regardless of insertion
// order; otherwise the profile of an arbitrary remaining hold applies.
// The bool is false when there are no active holds.
func (t *Table) Effective() (profile.Profile, bool) {
	if len(t.holds) == 0 {
		return profile.Unset, false
	}

	var fallback profile.Profile
	haveFallback := false

	for _, h := range t.holds {
		if h.Profile == profile.PowerSaver {
			return profile.PowerSaver, true
		}

		if !haveFallback {
			fallback = h.Profile
			haveFallback = true
		}
	}

	return fallback, true
}

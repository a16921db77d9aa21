// Package profile implements the Profile value type of spec §3/§4.3:
// a closed three-variant enum plus an Unset sentinel, wire-name
// round-trip, and a mask type used where a driver declares which of
// the three real variants it supports.
package profile

// Profile is one of the three real power profiles, or Unset.
type Profile int

const (
	// Unset is the sentinel returned when a wire name doesn't parse.
	Unset Profile = iota
	PowerSaver
	Balanced
	Performance
)

// String returns the lowercase wire nick for p, or "" for Unset.
func (p Profile) String() string {
	switch p {
	case PowerSaver:
		return "power-saver"
	case Balanced:
		return "balanced"
	case Performance:
		return "performance"
	default:
		return ""
	}
}

// ParseProfile parses a wire nick. Unknown input yields (Unset, false).
func ParseProfile(s string) (Profile, bool) {
	switch s {
	case "power-saver":
		return PowerSaver, true
	case "balanced":
		return Balanced, true
	case "performance":
		return Performance, true
	default:
		return Unset, false
	}
}

// IsReal reports whether p is exactly one of the three real variants,
// i.e. the "has_single_flag" predicate of spec §4.3, applied to the
// scalar representation used for active/selected/hold profiles.
func (p Profile) IsReal() bool {
	return p == PowerSaver || p == Balanced || p == Performance
}

// Mask is a bitmask over the three real variants, used to declare a
// driver's supported_profiles (spec §3).
type Mask uint8

const (
	PowerSaverFlag Mask = 1 << iota
	BalancedFlag
	PerformanceFlag

	// MaskAll is PROFILE_ALL from spec §4.3.
	MaskAll = PowerSaverFlag | BalancedFlag | PerformanceFlag
	// MaskNone declares no supported profiles; always invalid for a
	// driver (spec §3: "non-empty subset").
	MaskNone Mask = 0
)

// FlagFor returns the Mask bit corresponding to a real Profile, or
// MaskNone for Unset.
func FlagFor(p Profile) Mask {
	switch p {
	case PowerSaver:
		return PowerSaverFlag
	case Balanced:
		return BalancedFlag
	case Performance:
		return PerformanceFlag
	default:
		return MaskNone
	}
}

// Has reports whether mask advertises p.
func (m Mask) Has(p Profile) bool {
	return m&FlagFor(p) != 0
}

// HasSingleFlag reports whether mask declares exactly one profile,
// the bitmask-shaped twin of Profile.IsReal (spec §4.3).
func (m Mask) HasSingleFlag() bool {
	return m == PowerSaverFlag || m == BalancedFlag || m == PerformanceFlag
}

// Profiles returns the real profiles set in mask, in PowerSaver,
// Balanced, Performance order.
func (m Mask) Profiles() []Profile {
	var out []Profile
	for _, p := range [...]Profile{PowerSaver, Balanced, Performance} {
		if m.Has(p) {
			out = append(out, p)
		}
	}

	return out
}

// DriverKind distinguishes the two driver roles the manager arbitrates
// between (spec §3).
type DriverKind int

const (
	CPU DriverKind = iota
	Platform
)

func (k DriverKind) String() string {
	if k == CPU {
		return "cpu"
	}

	return "platform"
}

// Reason is the informational "why" behind an activate call (spec §4.4).
type Reason string

const (
	ReasonInternal    Reason = "internal"
	ReasonReset       Reason = "reset"
	ReasonUser        Reason = "user"
	ReasonResume      Reason = "resume"
	ReasonProgramHold Reason = "program-hold"
)

// Persists reports whether a transition with this reason should be
// written to the configuration store (spec §4.7).
func (r Reason) Persists() bool {
	return r == ReasonUser || r == ReasonInternal
}

// Hold is a client's temporary pin on a profile (spec §3/§4.9).
type Hold struct {
	Cookie           uint32
	Profile          Profile
	Reason           string
	ApplicationID    string
	RequesterBusName string
	// Iface records which of the two published bus interfaces
	// (current or legacy) the hold was created against, so
	// ProfileReleased is emitted back on the same one (spec §6).
	Iface string
}

// PersistentState is the last (cpu_driver, platform_driver, profile)
// triple persisted across restarts (spec §3/§4.7).
type PersistentState struct {
	CPUDriver      string
	PlatformDriver string
	Profile        Profile
}

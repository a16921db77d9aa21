package driver

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/powerprofilesd/powerprofilesd/internal/server/profile"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/logger"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/revert"
	"github.com/powerprofilesd/powerprofilesd/internal/shared/sysfs"
)

const (
	intelPstateStatusPath = "/sys/devices/system/cpu/intel_pstate/status"
	acpiPMProfilePath     = "/sys/firmware/acpi/pm_profile"
)

// serverPMProfiles are the ACPI FADT Preferred_PM_Profile values
// considered server-class; the CPU driver refuses to load on these
// (spec §4.4).
var serverPMProfiles = map[int]bool{
	4: true, // Enterprise Server
	5: true, // SOHO Server
	6: true, // Appliance PC
	7: true, // Performance Server
	8: true, // Tablet (treated conservatively alongside servers upstream)
}

// eppTokens maps a real profile to the intel_pstate/amd_pstate
// energy_performance_preference string written to each policy.
var eppTokens = map[profile.Profile]string{
	profile.PowerSaver:  "power",
	profile.Balanced:    "balance_performance",
	profile.Performance: "performance",
}

// governorFor returns the scaling_governor value that lets target's
// EPP preference take effect; "performance" bypasses EPP entirely by
// pinning max frequency (spec §4.4: "sets the scaling governor to the
// value that lets the preference take effect").
func governorFor(target profile.Profile) string {
	if target == profile.Performance {
		return "performance"
	}

	return "powersave"
}

// cpuDriver implements Driver for the in-kernel CPU frequency scaling
// preference controls (Intel EPP or AMD EPP, both exposed the same
// way through cpufreq policy sysfs attributes).
type cpuDriver struct {
	name     string
	policies []string // /sys/devices/system/cpu/cpufreq/policyN paths

	degraded string
	events   chan Event
}

// NewCPUDriver constructs the CPU driver candidate. It does not touch
// the filesystem until Probe is called.
func NewCPUDriver() (Driver, bool) {
	return &cpuDriver{
		name:   "intel_pstate",
		events: make(chan Event, 4),
	}, true
}

func (d *cpuDriver) Name() string               { return d.name }
func (d *cpuDriver) Kind() profile.DriverKind    { return profile.CPU }
func (d *cpuDriver) Events() <-chan Event        { return d.events }
func (d *cpuDriver) PerformanceDegraded() string { return d.degraded }

func (d *cpuDriver) SupportedProfiles() profile.Mask {
	return profile.MaskAll
}

func (d *cpuDriver) Probe(ctx context.Context) ProbeResult {
	if status := sysfs.ReadAttrOr(intelPstateStatusPath, ""); status == "passive" {
		logger.Debug("CPU driver refusing to load: intel_pstate is in passive mode")
		return ProbeFail
	}

	if pm, err := sysfs.ReadAttr(acpiPMProfilePath); err == nil {
		if n, convErr := strconv.Atoi(pm); convErr == nil && serverPMProfiles[n] {
			logger.Debug("CPU driver refusing to load: server-class ACPI PM profile", logger.Ctx{"pm_profile": n})
			return ProbeFail
		}
	}

	matches, err := filepath.Glob(sysfs.Path("/sys/devices/system/cpu/cpufreq/policy*"))
	if err != nil || len(matches) == 0 {
		return ProbeFail
	}

	root := sysfs.Root()
	policies := make([]string, 0, len(matches))
	for _, m := range matches {
		policies = append(policies, strings.TrimPrefix(m, root))
	}

	usable := policies[:0:0]
	for _, p := range policies {
		if _, err := sysfs.ReadAttr(p + "/energy_performance_preference"); err != nil {
			continue
		}

		usable = append(usable, p)
	}

	if len(usable) == 0 {
		return ProbeFail
	}

	sort.Strings(usable)
	d.policies = usable

	return ProbeSuccess
}

func (d *cpuDriver) Activate(ctx context.Context, target profile.Profile, reason profile.Reason) error {
	token, ok := eppTokens[target]
	if !ok {
		return fmt.Errorf("cpu driver: no EPP token for profile %v", target)
	}

	governor := governorFor(target)

	r := revert.New()
	defer r.Fail()

	for _, policy := range d.policies {
		prevGovernor := sysfs.ReadAttrOr(policy+"/scaling_governor", "")
		prevEPP := sysfs.ReadAttrOr(policy+"/energy_performance_preference", "")

		if err := sysfs.WriteAttr(policy+"/scaling_governor", governor); err != nil {
			return fmt.Errorf("cpu driver: writing governor for %s: %w", policy, err)
		}

		policy := policy
		if prevGovernor != "" {
			r.Add(func() {
				if err := sysfs.WriteAttr(policy+"/scaling_governor", prevGovernor); err != nil {
					logger.Warnf("cpu driver: rollback of governor for %s failed: %v", policy, err)
				}
			})
		}

		if err := sysfs.WriteAttr(policy+"/energy_performance_preference", token); err != nil {
			return fmt.Errorf("cpu driver: writing EPP for %s: %w", policy, err)
		}

		if prevEPP != "" {
			r.Add(func() {
				if err := sysfs.WriteAttr(policy+"/energy_performance_preference", prevEPP); err != nil {
					logger.Warnf("cpu driver: rollback of EPP for %s failed: %v", policy, err)
				}
			})
		}
	}

	r.Success()

	return nil
}

func (d *cpuDriver) Close() error {
	close(d.events)
	return nil
}

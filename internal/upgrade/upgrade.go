// Package upgrade implements the generic layout-upgrade driver: a
// region-by-region walk that runs each region's registered upgrade
// callback as a child management process and persists the super-block
// after every region, grounded on
// original_source/lib/ftl/mngt/ftl_mngt_upgrade.c.
package upgrade

import (
	"github.com/ehrlich-b/ftlmngt/internal/collab"
	"github.com/ehrlich-b/ftlmngt/mngt"
)

// Outcome is what Driver.Next returns after inspecting super-block
// region versions: either advance to a specific region, or report the
// whole layout is current, or report a version combination the driver
// cannot resolve.
type Outcome int

const (
	// OutcomeDone means every region is already at its target version.
	OutcomeDone Outcome = iota
	// OutcomeContinue means the returned Region needs upgrading.
	OutcomeContinue
	// OutcomeFault means a region's on-media version is newer than any
	// upgrade this driver knows, or otherwise unresolvable.
	OutcomeFault
)

// RegionUpgrade is one step of a named region's layout upgrade: it must
// transform whatever on-media state the region's version implies toward
// version+1, reading and writing only through Provider's collaborators
// (or, for P2L, through the region buffer accessor used by p2lv1.go).
type RegionUpgrade func(p collab.Provider, region string, fromVersion int) error

// Driver walks registered regions from their current version toward a
// target version, one region at a time, across repeated ContinueStep
// re-entries of the owning step.
type Driver struct {
	// Regions is the ordered list of region names the driver walks,
	// mirroring the source's fixed md_region upgrade table.
	Regions []string
	// TargetVersion is the version every region must reach for
	// OutcomeDone to be returned.
	TargetVersion int
	// Upgrades maps a region name to the function that upgrades it by
	// exactly one version step.
	Upgrades map[string]RegionUpgrade
}

// Next inspects p's super-block versions and returns the next region
// needing an upgrade step, or OutcomeDone/OutcomeFault.
func (d *Driver) Next(p collab.Provider) (Outcome, string, int) {
	sb := p.SuperBlock()
	for _, region := range d.Regions {
		v := sb.LayoutVersion(region)
		if v == d.TargetVersion {
			continue
		}
		if v > d.TargetVersion {
			return OutcomeFault, region, v
		}
		if _, ok := d.Upgrades[region]; !ok {
			return OutcomeFault, region, v
		}
		return OutcomeContinue, region, v
	}
	return OutcomeDone, "", 0
}

// Verify reports whether every registered region is at TargetVersion,
// the Go equivalent of the source's layout_dump sanity check run once
// the walk reports Done.
func (d *Driver) Verify(p collab.Provider) bool {
	sb := p.SuperBlock()
	for _, region := range d.Regions {
		if sb.LayoutVersion(region) != d.TargetVersion {
			return false
		}
	}
	return true
}

// LayoutUpgradeStep is the StepFn driving the whole walk. It is meant to
// be used as the single step (with no Cleanup — a layout upgrade is not
// rolled back once started, per spec.md's upgrade composition) of a
// dedicated LayoutUpgrade process.
func (d *Driver) LayoutUpgradeStep(h *mngt.Handle) {
	p, ok := h.GetDevice().(collab.Provider)
	if !ok {
		h.FailStep(-1)
		return
	}

	outcome, region, fromVersion := d.Next(p)
	switch outcome {
	case OutcomeDone:
		if !d.Verify(p) {
			h.FailStep(-1)
			return
		}
		h.NextStep()
	case OutcomeFault:
		h.FailStep(-1)
	case OutcomeContinue:
		d.runRegion(h, p, region, fromVersion)
	}
}

func (d *Driver) runRegion(h *mngt.Handle, p collab.Provider, region string, fromVersion int) {
	upgrade := d.Upgrades[region]
	child := &mngt.ProcessDesc{
		Name: "region_upgrade." + region,
		Steps: []mngt.StepDesc{
			{
				Name: "upgrade_region",
				Action: func(ch *mngt.Handle) {
					cp, ok := ch.GetDevice().(collab.Provider)
					if !ok {
						ch.FailStep(-1)
						return
					}
					if err := upgrade(cp, region, fromVersion); err != nil {
						ch.FailStep(-1)
						return
					}
					cp.SuperBlock().SetLayoutVersion(region, fromVersion+1)
					ch.NextStep()
				},
			},
			{
				Name: "persist_super_block",
				Action: func(ch *mngt.Handle) {
					cp, ok := ch.GetDevice().(collab.Provider)
					if !ok {
						ch.FailStep(-1)
						return
					}
					if err := cp.SuperBlock().Persist(cp.Context()); err != nil {
						ch.FailStep(-1)
						return
					}
					ch.NextStep()
				},
			},
		},
	}
	h.CallLoop(child)
}

// Package reconcile cleans up equipment records that drifted apart while
// several devices worked on the same unit.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/erazemk/inventura/internal/model"
	"github.com/erazemk/inventura/internal/mutation"
	"github.com/erazemk/inventura/internal/store"
)

// Report describes one reconciliation run.
type Report struct {
	Examined int      `json:"examined"`
	Changed  []string `json:"changed"`
}

type duplicateKey struct {
	nsn    string
	serial string
}

// CollapseDuplicates groups live equipment by NSN and folded serial number.
// In every group with more than one record the newest one survives (ties go
// to the greater id) and the rest are tombstoned. Equipment without a serial
// number is never considered a duplicate.
func CollapseDuplicates(ctx context.Context, p *mutation.Protocol, equipment store.Table[model.Equipment]) (Report, error) {
	all, err := equipment.Query(ctx, store.Filter{})
	if err != nil {
		return Report{}, fmt.Errorf("listing equipment: %w", err)
	}

	groups := make(map[duplicateKey][]model.Equipment)
	var keys []duplicateKey
	for _, e := range all {
		serial := model.NormalizeSerial(e.SerialNumber)
		if serial == "" {
			continue
		}
		k := duplicateKey{nsn: e.NSN, serial: serial}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], e)
	}

	report := Report{Examined: len(all)}
	for _, k := range keys {
		dups := groups[k]
		if len(dups) < 2 {
			continue
		}
		sort.Slice(dups, func(i, j int) bool { return newer(dups[i], dups[j]) })
		for _, loser := range dups[1:] {
			if _, err := mutation.Force(ctx, p, equipment, loser.ID, store.Fields{"deleted": true}); err != nil {
				return report, fmt.Errorf("tombstoning duplicate %s: %w", loser.ID, err)
			}
			slog.Info("duplicate equipment collapsed", "nsn", k.nsn, "kept", dups[0].ID, "removed", loser.ID)
			report.Changed = append(report.Changed, loser.ID)
		}
	}
	return report, nil
}

func newer(a, b model.Equipment) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// ReleaseOrphans ungroups equipment whose group no longer exists or has been
// tombstoned.
func ReleaseOrphans(ctx context.Context, p *mutation.Protocol, equipment store.Table[model.Equipment], groups store.Table[model.EquipmentGroup]) (Report, error) {
	grouped, err := equipment.Query(ctx, store.Filter{"is_grouped": true})
	if err != nil {
		return Report{}, fmt.Errorf("listing grouped equipment: %w", err)
	}
	live, err := groups.Query(ctx, store.Filter{})
	if err != nil {
		return Report{}, fmt.Errorf("listing groups: %w", err)
	}
	exists := make(map[string]bool, len(live))
	for _, g := range live {
		exists[g.ID] = true
	}

	report := Report{Examined: len(grouped)}
	for _, e := range grouped {
		if e.GroupID != "" && exists[e.GroupID] {
			continue
		}
		if _, err := mutation.Force(ctx, p, equipment, e.ID, store.Fields{"is_grouped": false, "group_id": ""}); err != nil {
			return report, fmt.Errorf("releasing %s: %w", e.ID, err)
		}
		slog.Info("orphaned equipment released", "id", e.ID, "group_id", e.GroupID)
		report.Changed = append(report.Changed, e.ID)
	}
	return report, nil
}

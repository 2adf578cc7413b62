package replica

import (
	"sort"

	"github.com/erazemk/inventura/internal/store"
)

// Op is the kind of queued write.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// Entry is one queued write. Only column names are queued; values are read
// from the local entity at flush time so the latest local state is sent.
type Entry struct {
	Seq         int64    `json:"seq"`
	Kind        string   `json:"kind"`
	ID          string   `json:"id"`
	Op          Op       `json:"op"`
	BaseVersion int64    `json:"base_version,omitempty"`
	Columns     []string `json:"columns,omitempty"`
	Force       bool     `json:"force,omitempty"`
}

// outbox is ordered by Seq and holds at most one entry per entity.
type outbox struct {
	Seq     int64   `json:"seq"`
	Entries []Entry `json:"entries"`
}

func (o *outbox) entries() []Entry {
	out := make([]Entry, len(o.Entries))
	for i, e := range o.Entries {
		e.Columns = append([]string(nil), e.Columns...)
		out[i] = e
	}
	return out
}

func (o *outbox) clone() outbox {
	return outbox{Seq: o.Seq, Entries: o.entries()}
}

func (o *outbox) find(kind, id string) int {
	for i, e := range o.Entries {
		if e.Kind == kind && e.ID == id {
			return i
		}
	}
	return -1
}

func (o *outbox) recordCreate(kind, id string) {
	o.Seq++
	o.Entries = append(o.Entries, Entry{Seq: o.Seq, Kind: kind, ID: id, Op: OpCreate})
}

// recordUpdate queues f against the entity. A pending create absorbs the
// update. A pending update keeps its base version, gains the new columns
// and moves to the back of the queue so it flushes after the writes it
// depends on.
func (o *outbox) recordUpdate(kind, id string, f store.Fields, baseVersion int64, force bool) {
	i := o.find(kind, id)
	if i >= 0 && o.Entries[i].Op == OpCreate {
		return
	}

	o.Seq++
	e := Entry{Seq: o.Seq, Kind: kind, ID: id, Op: OpUpdate, BaseVersion: baseVersion, Force: force}
	cols := make(map[string]struct{}, len(f))
	for c := range f {
		cols[c] = struct{}{}
	}
	if i >= 0 {
		prev := o.Entries[i]
		e.BaseVersion = prev.BaseVersion
		e.Force = e.Force || prev.Force
		for _, c := range prev.Columns {
			cols[c] = struct{}{}
		}
		o.Entries = append(o.Entries[:i], o.Entries[i+1:]...)
	}
	for c := range cols {
		e.Columns = append(e.Columns, c)
	}
	sort.Strings(e.Columns)
	o.Entries = append(o.Entries, e)
}

func (o *outbox) remove(seq int64) {
	for i, e := range o.Entries {
		if e.Seq == seq {
			o.Entries = append(o.Entries[:i], o.Entries[i+1:]...)
			return
		}
	}
}

func (o *outbox) dropKind(kind string) {
	kept := o.Entries[:0]
	for _, e := range o.Entries {
		if e.Kind != kind {
			kept = append(kept, e)
		}
	}
	o.Entries = kept
}

package model

import "strings"

// Holder is a person in the unit who can be assigned equipment.
type Holder struct {
	Record
	UnitID string `json:"unit_id"`
	Name   string `json:"name"`
	Rank   string `json:"rank,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

// Selection outcomes.
const (
	SelectionMatched   = "matched"
	SelectionAmbiguous = "ambiguous"
	SelectionNone      = "none"
)

// HolderSelection is the result of resolving a holder from a free-text query.
type HolderSelection struct {
	Outcome    string   `json:"outcome"`
	Holder     *Holder  `json:"holder,omitempty"`
	Candidates []Holder `json:"candidates,omitempty"`
}

// SelectHolder resolves query against holders. An exact id or a
// case-insensitive exact name wins outright; otherwise a unique substring
// match on the name or "rank name" is selected. Tombstoned holders are ignored.
func SelectHolder(holders []Holder, query string) HolderSelection {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return HolderSelection{Outcome: SelectionNone}
	}

	var exact, partial []Holder
	for _, h := range holders {
		if h.Deleted {
			continue
		}
		name := strings.ToLower(h.Name)
		full := strings.ToLower(strings.TrimSpace(h.Rank + " " + h.Name))
		switch {
		case strings.ToLower(h.ID) == q || name == q || full == q:
			exact = append(exact, h)
		case strings.Contains(name, q) || strings.Contains(full, q):
			partial = append(partial, h)
		}
	}

	candidates := exact
	if len(candidates) == 0 {
		candidates = partial
	}
	switch len(candidates) {
	case 0:
		return HolderSelection{Outcome: SelectionNone}
	case 1:
		h := candidates[0]
		return HolderSelection{Outcome: SelectionMatched, Holder: &h}
	default:
		return HolderSelection{Outcome: SelectionAmbiguous, Candidates: candidates}
	}
}

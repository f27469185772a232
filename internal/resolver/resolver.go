// Package resolver implements C2, the canonical code resolver. It is a
// pure in-memory function over a catalog snapshot handed to it by the
// caller (internal/ledger.CatalogSnapshot) — mirroring the teacher's
// internal/resolver.StandardResolver, which likewise ranks a slice of
// resources passed in by the caller rather than touching storage
// itself. Keeping the walk pure makes it trivially unit-testable
// without a live database.
package resolver

import "strings"

// Snapshot is the minimal view of the catalog the resolver needs: every
// row's code_id, canonical_code_id and status for one project.
type Snapshot struct {
	byID    map[int64]node
	byLabel map[string]int64 // lower(codigo) -> code_id
}

type node struct {
	codeID          int64
	canonicalCodeID *int64
	active          bool
	codigo          string
}

// Row is one catalog row as seen by the resolver.
type Row struct {
	CodeID          int64
	CanonicalCodeID *int64
	Active          bool
	Codigo          string
}

// NewSnapshot builds a Snapshot from rows fetched in one query.
func NewSnapshot(rows []Row) *Snapshot {
	s := &Snapshot{
		byID:    make(map[int64]node, len(rows)),
		byLabel: make(map[string]int64, len(rows)),
	}
	for _, r := range rows {
		s.byID[r.CodeID] = node{codeID: r.CodeID, canonicalCodeID: r.CanonicalCodeID, active: r.Active, codigo: r.Codigo}
		s.byLabel[strings.ToLower(r.Codigo)] = r.CodeID
	}
	return s
}

// ResolveCanonical follows canonical_code_id from codeID until NULL or
// a self-reference, bounded by maxHops. Per spec section 4.2:
//   - a missing input code returns (0, false)
//   - a self-canonical code returns itself
//   - exceeding maxHops returns (0, false) and the caller should treat
//     this as a cycle (cycle detection is a property of the overall
//     catalog, computed separately by the readiness gate; this method
//     only reports non-termination for a single chain)
func (s *Snapshot) ResolveCanonical(codeID int64, maxHops int) (int64, bool) {
	if maxHops <= 0 {
		maxHops = 10
	}
	cur, ok := s.byID[codeID]
	if !ok {
		return 0, false
	}
	visited := map[int64]bool{cur.codeID: true}
	for hops := 0; hops < maxHops; hops++ {
		if cur.canonicalCodeID == nil {
			return cur.codeID, true
		}
		if *cur.canonicalCodeID == cur.codeID {
			return cur.codeID, true
		}
		next, ok := s.byID[*cur.canonicalCodeID]
		if !ok {
			return 0, false
		}
		if visited[next.codeID] {
			return 0, false
		}
		visited[next.codeID] = true
		cur = next
	}
	return 0, false
}

// CodeIDOfLabel resolves codigo to its code_id, case-insensitively.
// Stable across case-only renames because the lookup key is always
// lower-cased.
func (s *Snapshot) CodeIDOfLabel(codigo string) (int64, bool) {
	id, ok := s.byLabel[strings.ToLower(codigo)]
	return id, ok
}

// IsActive reports whether codeID is a known, active catalog row.
func (s *Snapshot) IsActive(codeID int64) bool {
	n, ok := s.byID[codeID]
	return ok && n.active
}

// Cycles returns, for every code_id that participates in a canonical
// cycle of length > 1 (self-loops excluded), the members of that
// cycle. Used by the readiness gate's cycles_non_trivial counter and by
// repair's cycle-break policy.
func (s *Snapshot) Cycles() [][]int64 {
	seenGlobal := make(map[int64]bool)
	var cycles [][]int64

	for id := range s.byID {
		if seenGlobal[id] {
			continue
		}
		path := []int64{}
		onPath := make(map[int64]int) // codeID -> index in path
		cur := id
		for {
			if seenGlobal[cur] {
				break
			}
			if idx, ok := onPath[cur]; ok {
				cyc := append([]int64(nil), path[idx:]...)
				if len(cyc) > 1 {
					cycles = append(cycles, cyc)
				}
				for _, c := range cyc {
					seenGlobal[c] = true
				}
				break
			}
			n, ok := s.byID[cur]
			if !ok {
				break
			}
			onPath[cur] = len(path)
			path = append(path, cur)
			if n.canonicalCodeID == nil {
				seenGlobal[cur] = true
				break
			}
			next := *n.canonicalCodeID
			if next == cur {
				seenGlobal[cur] = true
				break
			}
			cur = next
		}
		for _, c := range path {
			seenGlobal[c] = true
		}
	}
	return cycles
}

// LowestInCycle applies the repair cycle-break policy recorded in
// SPEC_FULL.md section 7: the lowest code_id in the cycle becomes
// canonical.
func LowestInCycle(cycle []int64) int64 {
	lowest := cycle[0]
	for _, id := range cycle[1:] {
		if id < lowest {
			lowest = id
		}
	}
	return lowest
}

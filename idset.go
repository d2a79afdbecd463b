// idset.go - uniform representation for one-or-many record ids
package erp

import "strconv"

// Id is the storage-assigned identifier of a record.
type Id = uint32

// IdNone is the sentinel meaning "no id at this position".
const IdNone Id = 1<<32 - 1

// IdSet is a set of record ids. SingleId and MultiId both implement it;
// a SingleId is usable anywhere a multi-id set is expected.
type IdSet interface {
	// Ids returns every id in the set, in iteration order.
	Ids() []Id
	// Contains reports whether id is a member of the set.
	Contains(id Id) bool
	// Len returns the number of ids (duplicates counted).
	Len() int
}

// SingleId is an IdSet holding exactly one id.
type SingleId Id

// Ids implements IdSet.
func (s SingleId) Ids() []Id { return []Id{Id(s)} }

// Contains implements IdSet.
func (s SingleId) Contains(id Id) bool { return Id(s) == id }

// Len implements IdSet.
func (s SingleId) Len() int { return 1 }

// String renders the id for logging.
func (s SingleId) String() string { return strconv.FormatUint(uint64(s), 10) }

// MultiId is an ordered IdSet; duplicates are allowed and explicitly removable.
type MultiId []Id

// Ids implements IdSet.
func (m MultiId) Ids() []Id { return []Id(m) }

// Contains implements IdSet.
func (m MultiId) Contains(id Id) bool {
	for _, i := range m {
		if i == id {
			return true
		}
	}
	return false
}

// Len implements IdSet.
func (m MultiId) Len() int { return len(m) }

// Dedup returns a copy of m with duplicate ids removed, order preserved.
func (m MultiId) Dedup() MultiId {
	seen := make(map[Id]struct{}, len(m))
	out := make(MultiId, 0, len(m))
	for _, id := range m {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Union returns the set union of a and b as a deduplicated MultiId.
func Union(a, b IdSet) MultiId {
	out := make(MultiId, 0, a.Len()+b.Len())
	seen := make(map[Id]struct{}, a.Len()+b.Len())
	for _, id := range a.Ids() {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range b.Ids() {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Difference returns the ids in a that are not in b, order preserved.
func Difference(a, b IdSet) MultiId {
	out := make(MultiId, 0, a.Len())
	for _, id := range a.Ids() {
		if !b.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// NewIdSet builds an IdSet from a variadic list of ids, collapsing to a
// SingleId when exactly one id is given.
func NewIdSet(ids ...Id) IdSet {
	if len(ids) == 1 {
		return SingleId(ids[0])
	}
	return MultiId(ids)
}

// IdsOf flattens any IdSet to a plain slice, convenience for storage calls.
func IdsOf(s IdSet) []Id {
	return s.Ids()
}

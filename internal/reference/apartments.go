package reference

import (
	"sort"
	"strings"
)

// DefaultApartmentCount is used when an area matches no known count.
const DefaultApartmentCount = 20000

// ApartmentCount returns the known multifamily unit count for an area:
// an exact name match first, then the first name that contains or is
// contained by the query (case-insensitive, in sorted key order), then
// DefaultApartmentCount. ok reports whether a table entry matched.
func (t *Tables) ApartmentCount(areaName string) (int, bool) {
	if n, ok := t.Apartments[areaName]; ok {
		return n, true
	}

	keys := make([]string, 0, len(t.Apartments))
	for k := range t.Apartments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := strings.ToLower(areaName)
	for _, k := range keys {
		lk := strings.ToLower(k)
		if strings.Contains(lk, q) || strings.Contains(q, lk) {
			return t.Apartments[k], true
		}
	}
	return DefaultApartmentCount, false
}

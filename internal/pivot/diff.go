package pivot

// Diff compares persisted and desired memberships. toAdd follows desired
// order, toDelete follows current order; duplicates collapse to the first
// occurrence.
func Diff(current, desired []string) (toAdd, toDelete, unchanged []string) {
	have := make(map[string]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[string]struct{}, len(desired))
	for _, id := range Dedupe(desired) {
		want[id] = struct{}{}
		if _, ok := have[id]; ok {
			unchanged = append(unchanged, id)
		} else {
			toAdd = append(toAdd, id)
		}
	}
	for _, id := range Dedupe(current) {
		if _, ok := want[id]; !ok {
			toDelete = append(toDelete, id)
		}
	}
	return toAdd, toDelete, unchanged
}

// Dedupe drops repeated ids, keeping the first occurrence.
func Dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

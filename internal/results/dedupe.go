package results

// Deduplicate keeps the first record for each Key, in input order. It never
// fails and returns an empty, non-nil slice for empty input.
func Deduplicate(records []Record) []Record {
	seen := make(map[Key]struct{}, len(records))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		k := r.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

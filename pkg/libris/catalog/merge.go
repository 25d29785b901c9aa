package catalog

// Merge appends the incoming records whose filename is not yet in existing.
// Existing records keep their position and content; incoming records without
// a filename are skipped. It returns the merged catalog and how many records
// were added.
func Merge(existing, incoming []Record) ([]Record, int) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	out := make([]Record, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if name := r.Filename(); name != "" {
			seen[name] = struct{}{}
		}
		out = append(out, r)
	}

	added := 0
	for _, r := range incoming {
		name := r.Filename()
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, r)
		added++
	}
	return out, added
}

package pipeline

// Duplicate records a superseded record. Duplicates are a normal, expected
// condition: they are logged and counted, never quarantined.
type Duplicate struct {
	Key        string
	Superseded RawRecord
}

// Dedup collapses records sharing a natural key, keeping the one appearing
// latest in input order (last write wins). The kept records come back in
// input order of their surviving occurrence, so the result is deterministic
// for a given input sequence.
func Dedup(records []EnrichedRecord) ([]EnrichedRecord, []Duplicate) {
	if len(records) == 0 {
		return nil, nil
	}

	lastIdx := make(map[string]int, len(records))
	for i, rec := range records {
		lastIdx[rec.Key] = i
	}

	kept := make([]EnrichedRecord, 0, len(lastIdx))
	var duplicates []Duplicate
	for i, rec := range records {
		if lastIdx[rec.Key] == i {
			kept = append(kept, rec)
			continue
		}
		duplicates = append(duplicates, Duplicate{Key: rec.Key, Superseded: rec.Raw})
	}
	return kept, duplicates
}

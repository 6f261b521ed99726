package aggregate

import "github.com/economy-energy/crm-aggregator/pkg/bitrix"

// Dedupe collapses records sharing the same identifier, first-seen-wins:
// the record observed earliest in input order keeps its field values and
// later sightings are discarded, even if their fields differ. Records with
// a missing or empty identifier are dropped.
//
// Idempotent and pure; the input slice is not modified.
func Dedupe(records []bitrix.Record, idField string) []bitrix.Record {
	if len(records) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(records))
	out := make([]bitrix.Record, 0, len(records))
	for _, rec := range records {
		id := rec.StringField(idField)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, rec)
	}
	return out
}

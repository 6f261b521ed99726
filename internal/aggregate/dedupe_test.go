package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/economy-energy/crm-aggregator/pkg/bitrix"
)

func TestDedupe_FirstSeenWins(t *testing.T) {
	records := []bitrix.Record{
		{"ID": "1", "TITLE": "first sighting"},
		{"ID": "2", "TITLE": "other"},
		{"ID": "1", "TITLE": "second sighting, newer fields"},
	}

	out := Dedupe(records, "ID")
	assert.Len(t, out, 2)
	assert.Equal(t, "first sighting", out[0].StringField("TITLE"))
}

func TestDedupe_Idempotent(t *testing.T) {
	records := []bitrix.Record{
		{"ID": "1"}, {"ID": "2"}, {"ID": "1"}, {"ID": "3"}, {"ID": "2"},
	}

	once := Dedupe(records, "ID")
	twice := Dedupe(once, "ID")
	assert.Equal(t, once, twice)
	assert.Len(t, once, 3)
}

func TestDedupe_DropsMissingIdentifier(t *testing.T) {
	records := []bitrix.Record{
		{"ID": "1"},
		{"TITLE": "no id"},
		{"ID": ""},
		{"ID": "2"},
	}

	out := Dedupe(records, "ID")
	assert.Len(t, out, 2)
}

func TestDedupe_UnionAcrossPredicates(t *testing.T) {
	// Two predicate result sets with 5 overlapping identifiers.
	var a, b []bitrix.Record
	for i := 1; i <= 40; i++ {
		a = append(a, bitrix.Record{"ID": idString(i), "SRC": "F1"})
	}
	for i := 36; i <= 60; i++ {
		b = append(b, bitrix.Record{"ID": idString(i), "SRC": "F2"})
	}

	out := Dedupe(append(a, b...), "ID")
	assert.Len(t, out, 60)

	// Overlapping IDs keep the first-seen (F1) field values.
	bySrc := map[string]int{}
	for _, rec := range out {
		bySrc[rec.StringField("SRC")]++
	}
	assert.Equal(t, 40, bySrc["F1"])
	assert.Equal(t, 20, bySrc["F2"])
}

func TestDedupe_Empty(t *testing.T) {
	assert.Nil(t, Dedupe(nil, "ID"))
}

package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/economy-energy/crm-aggregator/internal/config"
	"github.com/economy-energy/crm-aggregator/pkg/bitrix"
)

// Test schema: predicate fields F1/F2 for leads, F3 for deals, F4 for usina
// deals (category 9).
func testAggConfig() config.AggregateConfig {
	return config.AggregateConfig{
		RunTimeoutSecs:  5,
		LeadEmailFields: []string{"F1", "F2"},
		DealEmailField:  "F3",
		UsinaEmailField: "F4",
		UsinaCategoryID: "9",
	}
}

// fakeCRM simulates the remote: per-predicate record sets served through
// honest ID-watermark pagination, and contact lookups via batch.
type fakeCRM struct {
	mu        sync.Mutex
	byField   map[string][]bitrix.Record // predicate field → matching records
	contacts  map[string]bitrix.Contact
	failField map[string]bool // predicate field → transport always fails
	failBatch bool

	listCalls  map[string]int // page requests per predicate field
	batchCalls int
	usinaSeen  bool // a list request carried the usina CATEGORY_ID filter
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		byField:   make(map[string][]bitrix.Record),
		contacts:  make(map[string]bitrix.Contact),
		failField: make(map[string]bool),
		listCalls: make(map[string]int),
	}
}

func (f *fakeCRM) List(_ context.Context, _ string, req bitrix.ListRequest) (*bitrix.ListPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var field string
	for _, candidate := range []string{"F1", "F2", "F3", "F4"} {
		if _, ok := req.Filter[candidate]; ok {
			field = candidate
			break
		}
	}
	if field == "" {
		return nil, errors.New("no known predicate field in filter")
	}
	f.listCalls[field]++

	if req.Filter["CATEGORY_ID"] == "9" {
		f.usinaSeen = true
	}
	if f.failField[field] {
		return nil, errors.New("all retries exhausted")
	}

	var after int64
	if v, ok := req.Filter[">ID"]; ok {
		after = v.(int64)
	}

	var matched []bitrix.Record
	for _, rec := range f.byField[field] {
		if id, ok := rec.ID(); ok && id > after {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, _ := matched[i].ID()
		b, _ := matched[j].ID()
		return a < b
	})
	if len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}
	return &bitrix.ListPage{Records: matched}, nil
}

func (f *fakeCRM) Batch(_ context.Context, commands map[string]string) (map[string]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.batchCalls++
	if f.failBatch {
		return nil, errors.New("all retries exhausted")
	}

	results := make(map[string]json.RawMessage, len(commands))
	for label, cmd := range commands {
		id := strings.TrimPrefix(cmd, "crm.contact.get?id=")
		contact, ok := f.contacts[id]
		if !ok {
			continue
		}
		raw, err := json.Marshal(contact)
		if err != nil {
			return nil, err
		}
		results[label] = raw
	}
	return results, nil
}

func (f *fakeCRM) addRecords(field string, from, to int, extra map[string]any) {
	for i := from; i <= to; i++ {
		rec := bitrix.Record{"ID": idString(i), "TITLE": "rec " + idString(i)}
		for k, v := range extra {
			rec[k] = v
		}
		f.byField[field] = append(f.byField[field], rec)
	}
}

func idString(i int) string {
	return strconv.Itoa(i)
}

func mustRun(t *testing.T, crm *fakeCRM, email string) *Result {
	t.Helper()
	result, err := New(crm, testAggConfig()).Run(context.Background(), email)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return result
}

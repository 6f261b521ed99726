package aggregate

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/economy-energy/crm-aggregator/internal/config"
	"github.com/economy-energy/crm-aggregator/pkg/bitrix"
)

// ErrInvalidEmail is returned when the search key is not a plausible email
// address. This is the only validation failure the engine itself enforces.
var ErrInvalidEmail = eris.New("aggregate: invalid email")

// Aggregator runs whole-identifier aggregations against the remote CRM.
// It is safe for concurrent use; each run owns its own state.
type Aggregator struct {
	client     bitrix.Client
	queries    []EntityQuery
	runTimeout time.Duration
}

// New creates an Aggregator over the given transport.
func New(client bitrix.Client, cfg config.AggregateConfig) *Aggregator {
	timeout := time.Duration(cfg.RunTimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Aggregator{
		client:     client,
		queries:    Queries(cfg),
		runTimeout: timeout,
	}
}

// Run aggregates every lead, deal, and usina deal matching the email.
//
// The three entity categories are fetched concurrently and deduplicated
// independently, contact phones are resolved in one bulk pass over the
// union of CONTACT_IDs, and each record is stamped with its DATA_TYPE and
// joined phone before the categories are concatenated. A category that
// fails entirely yields zero records, not a failed run; only the inability
// to start at all (bad input, cancelled context) surfaces as an error.
func (a *Aggregator) Run(ctx context.Context, email string) (*Result, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "aggregate: run")
	}

	ctx, cancel := context.WithTimeout(ctx, a.runTimeout)
	defer cancel()

	runID := uuid.NewString()
	start := time.Now()

	// Fetch all categories concurrently, each deduplicated by ID.
	var (
		mu      sync.Mutex
		byQuery = make([][]bitrix.Record, len(a.queries))
		partial []string
	)
	g, gCtx := errgroup.WithContext(ctx)
	for i, q := range a.queries {
		i, q := i, q
		g.Go(func() error {
			records, notes := fetchEntity(gCtx, a.client, q, email)
			deduped := Dedupe(records, "ID")

			mu.Lock()
			defer mu.Unlock()
			byQuery[i] = deduped
			partial = append(partial, notes...)
			return nil
		})
	}
	_ = g.Wait()

	// One bulk resolution pass over the union of contact references.
	phones, notes := resolvePhones(ctx, a.client, contactIDs(byQuery))
	partial = append(partial, notes...)

	// Merge: stamp provenance, join phones, count per category.
	result := &Result{
		RunID:   runID,
		Counts:  make(map[DataType]int, len(a.queries)),
		Partial: partial,
	}
	for _, q := range a.queries {
		result.Counts[q.DataType] = 0
	}
	for i, q := range a.queries {
		for _, rec := range byQuery[i] {
			rec["DATA_TYPE"] = string(q.DataType)
			attachPhone(rec, phones)
			result.Records = append(result.Records, rec)
		}
		result.Counts[q.DataType] += len(byQuery[i])
	}
	result.Total = len(result.Records)

	zap.L().Info("aggregation run complete",
		zap.String("run_id", runID),
		zap.Int("total", result.Total),
		zap.Int("partial_failures", len(partial)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

// contactIDs returns the sorted union of non-empty CONTACT_ID values across
// all deduplicated category results.
func contactIDs(byQuery [][]bitrix.Record) []string {
	set := make(map[string]struct{})
	for _, records := range byQuery {
		for _, rec := range records {
			if id := rec.ContactID(); id != "" {
				set[id] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// attachPhone sets the record's PHONE field. A phone already inlined on the
// record (leads carry their own PHONE list) wins; otherwise the contact
// table is consulted. Unresolved or phoneless contacts yield null.
func attachPhone(rec bitrix.Record, phones PhoneTable) {
	if entries, ok := rec["PHONE"].([]any); ok && len(entries) > 0 {
		if entry, ok := entries[0].(map[string]any); ok {
			if value, ok := entry["VALUE"].(string); ok && value != "" {
				rec["PHONE"] = value
				return
			}
		}
	}

	if contactID := rec.ContactID(); contactID != "" {
		if phone, ok := phones.Lookup(contactID); ok && phone != "" {
			rec["PHONE"] = phone
			return
		}
	}
	rec["PHONE"] = nil
}

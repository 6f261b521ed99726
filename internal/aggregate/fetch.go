package aggregate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/economy-energy/crm-aggregator/pkg/bitrix"
)

// fetchEntity runs one paginated fetch per predicate, concurrently, and
// concatenates the results. Duplicates across predicates are expected and
// resolved by the caller's dedupe pass.
//
// A predicate whose pagination fails still contributes whatever pages it
// completed; the failure is recorded as a partial note instead of aborting
// the sibling predicates.
func fetchEntity(ctx context.Context, c bitrix.Client, q EntityQuery, email string) ([]bitrix.Record, []string) {
	var (
		mu      sync.Mutex
		records []bitrix.Record
		partial []string
	)

	g, gCtx := errgroup.WithContext(ctx)
	for _, pred := range q.predicates(email) {
		pred := pred
		g.Go(func() error {
			filter := make(map[string]any, len(q.Filter)+1)
			for k, v := range q.Filter {
				filter[k] = v
			}
			filter[pred.Field] = pred.Value

			recs, err := bitrix.ListAll(gCtx, c, q.Method, bitrix.ListQuery{
				Filter: filter,
				Select: q.Select,
			})

			mu.Lock()
			defer mu.Unlock()
			records = append(records, recs...)
			if err != nil {
				partial = append(partial, fmt.Sprintf("%s: predicate %s failed after %d records", q.DataType, pred.Field, len(recs)))
				zap.L().Warn("predicate fetch failed, keeping partial results",
					zap.String("data_type", string(q.DataType)),
					zap.String("method", q.Method),
					zap.String("field", pred.Field),
					zap.Int("records", len(recs)),
					zap.Error(err),
				)
			}
			return nil
		})
	}

	// Goroutines always return nil; failures degrade to partial notes.
	_ = g.Wait()

	return records, partial
}

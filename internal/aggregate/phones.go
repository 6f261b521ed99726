package aggregate

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/economy-energy/crm-aggregator/pkg/bitrix"
)

// batchChunkSize is how many contact lookups go into one batch call,
// matching the remote's 50-command batch limit.
const batchChunkSize = 50

// resolvePhones builds the contact → phone table for the given contact IDs.
// IDs are partitioned into chunks of 50 and each chunk is resolved through
// one batch call; chunks run concurrently and fail independently. Contacts
// in a failed chunk stay absent from the table, which downstream renders as
// a null phone.
//
// The table is written only while this function runs; afterwards it is
// shared read-only across all enrichment joins of the run.
func resolvePhones(ctx context.Context, c bitrix.Client, contactIDs []string) (PhoneTable, []string) {
	table := make(PhoneTable, len(contactIDs))
	if len(contactIDs) == 0 {
		return table, nil
	}

	var (
		mu      sync.Mutex
		partial []string
	)

	g, gCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(contactIDs); start += batchChunkSize {
		chunk := contactIDs[start:min(start+batchChunkSize, len(contactIDs))]
		g.Go(func() error {
			contacts, err := bitrix.GetContacts(gCtx, c, chunk)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				partial = append(partial, fmt.Sprintf("contacts: chunk of %d unresolved", len(chunk)))
				zap.L().Warn("contact batch failed, phones left unresolved",
					zap.Int("chunk_size", len(chunk)),
					zap.Error(err),
				)
				return nil
			}
			for id, contact := range contacts {
				table[id] = contact.FirstPhone()
			}
			return nil
		})
	}
	_ = g.Wait()

	return table, partial
}

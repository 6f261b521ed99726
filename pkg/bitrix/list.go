package bitrix

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrMissingID is returned when a list page contains a record without a
// usable ID. The paginator cannot advance the watermark past such a record,
// so the stream stops there.
var ErrMissingID = eris.New("bitrix: record missing numeric ID")

// ErrCursorStalled is returned when a full page fails to advance the
// watermark, which would otherwise loop forever. Seen only with a remote
// that ignores the ID filter or returns duplicate pages.
var ErrCursorStalled = eris.New("bitrix: pagination cursor did not advance")

// ListAll drains a list method, one page at a time, using an ID watermark.
//
// Pages are requested ordered by ID ascending with the filter ID > watermark,
// so each request strictly advances past everything already seen. That
// ordering is what makes termination independent of the remote's `next`
// hint, which Bitrix omits inconsistently: an empty or short page is the
// authoritative end-of-data signal.
//
// On a transport failure after retries, ListAll returns the records
// accumulated so far together with the error, so one failing query degrades
// to partial data instead of discarding completed pages.
func ListAll(ctx context.Context, c Client, method string, q ListQuery) ([]Record, error) {
	var (
		all       []Record
		watermark int64
	)

	for {
		filter := make(map[string]any, len(q.Filter)+1)
		for k, v := range q.Filter {
			filter[k] = v
		}
		if watermark > 0 {
			filter[">ID"] = watermark
		}

		page, err := c.List(ctx, method, ListRequest{
			Order:  map[string]string{"ID": "ASC"},
			Filter: filter,
			Select: q.Select,
			// start=-1 disables the remote's total-count scan, which is
			// expensive and unused here.
			Start: -1,
			Limit: pageSize,
		})
		if err != nil {
			return all, eris.Wrap(err, "bitrix: list "+method)
		}

		all = append(all, page.Records...)

		prev := watermark
		for _, rec := range page.Records {
			id, ok := rec.ID()
			if !ok {
				zap.L().Warn("list page contains record without numeric ID, stopping stream",
					zap.String("method", method),
					zap.Int64("watermark", watermark),
				)
				return all, ErrMissingID
			}
			if id > watermark {
				watermark = id
			}
		}

		if len(page.Records) < pageSize {
			return all, nil
		}
		if watermark <= prev {
			zap.L().Warn("full page did not advance the ID watermark, stopping stream",
				zap.String("method", method),
				zap.Int64("watermark", watermark),
			)
			return all, ErrCursorStalled
		}
	}
}

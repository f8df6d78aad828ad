package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/voicetel/helpdesk-board/internal/transition"
)

// BulkFailure is one failed item of a bulk operation.
type BulkFailure struct {
	ID    string
	Err   error
	Class transition.Class
}

// BulkResult reports both halves of a bulk operation; a partial success is
// not a failure of the whole.
type BulkResult struct {
	Succeeded []string
	Failed    []BulkFailure
}

func (r BulkResult) Total() int { return len(r.Succeeded) + len(r.Failed) }

// DeleteMany deletes ids concurrently, at most bulkLimit at a time. Results
// keep the order of ids. Duplicate ids are deleted once.
func (e *Engine) DeleteMany(ctx context.Context, ids []string) BulkResult {
	ids = dedupe(ids)
	errs := make([]error, len(ids))

	var g errgroup.Group
	g.SetLimit(e.bulkLimit)

	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			errs[i] = e.Delete(ctx, id)
			return nil // per-item errors are reported in the result
		})
	}
	_ = g.Wait()

	var res BulkResult
	for i, id := range ids {
		if errs[i] != nil {
			res.Failed = append(res.Failed, BulkFailure{ID: id, Err: errs[i], Class: transition.Classify(errs[i])})
			continue
		}
		res.Succeeded = append(res.Succeeded, id)
	}

	e.logger.LogStats("bulk_delete", map[string]any{
		"requested": len(ids),
		"succeeded": len(res.Succeeded),
		"failed":    len(res.Failed),
	})
	return res
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

package scanner

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/CodeMonkeyCybersecurity/safelink/pkg/types"
)

// BatchItem is the outcome for one input of ScanMany. Err is set only for
// invalid input.
type BatchItem struct {
	Input  string
	Result *types.ScanResult
	Err    error
}

// ScanMany scans inputs with at most limit scans in flight. Results keep
// input order.
func (s *Scanner) ScanMany(ctx context.Context, inputs []string, userID string, limit int) []BatchItem {
	if limit < 1 {
		limit = 1
	}

	items := make([]BatchItem, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			res, err := s.Scan(gctx, input, userID)
			items[i] = BatchItem{Input: input, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

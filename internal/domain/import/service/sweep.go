package service

import (
	"context"
	"fmt"
	"time"

	"github.com/FACorreiaa/bookkeeper/pkg/metrics"
)

// SweepOrphanedDocuments removes document uploads that stayed pending for
// longer than grace, together with any object they already wrote. It returns
// how many entries were removed. Entries that fail are retried on the next run.
func (s *ImportService) SweepOrphanedDocuments(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.now().Add(-grace)

	uploads, err := s.repo.ListStalePendingUploads(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale uploads: %w", err)
	}

	removed := 0
	for _, u := range uploads {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if u.StorageKey != nil && s.storage != nil {
			if err := s.storage.Delete(ctx, *u.StorageKey); err != nil {
				s.logger.WarnContext(ctx, "failed to delete orphaned document",
					"upload_id", u.ID,
					"key", *u.StorageKey,
					"error", err)
				continue
			}
		}
		if err := s.repo.DeleteDocumentUpload(ctx, u.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to delete document journal entry",
				"upload_id", u.ID,
				"error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		metrics.DocumentsTotal.WithLabelValues("swept").Add(float64(removed))
		s.logger.InfoContext(ctx, "swept orphaned documents", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

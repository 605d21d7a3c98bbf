package outbox

import (
	"sort"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/models"
)

// SelectRetryable picks the items a sweep should re-attempt from a snapshot
// of candidates: pending or failed, retry_count below maxRetries, oldest
// first, at most maxBatch. Pending items created at or after pendingBefore
// are skipped because their first attempt may still be in flight; a zero
// pendingBefore disables that check.
func SelectRetryable(items []models.OutboxItem, maxBatch, maxRetries int, pendingBefore time.Time) []models.OutboxItem {
	selected := make([]models.OutboxItem, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item.ID] || item.RetryCount >= maxRetries {
			continue
		}
		switch item.Status {
		case models.OutboxFailed:
		case models.OutboxPending:
			if !pendingBefore.IsZero() && !item.CreatedAt.Before(pendingBefore) {
				continue
			}
		default:
			continue
		}
		seen[item.ID] = true
		selected = append(selected, item)
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].CreatedAt.Equal(selected[j].CreatedAt) {
			return selected[i].ID < selected[j].ID
		}
		return selected[i].CreatedAt.Before(selected[j].CreatedAt)
	})
	if maxBatch >= 0 && len(selected) > maxBatch {
		selected = selected[:maxBatch]
	}
	return selected
}

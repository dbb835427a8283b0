package store

import (
	"context"
	"fmt"

	"payment-service/internal/models"
)

// RecordEventOnce appends an external event to the dedup log. The primary
// key on event_id arbitrates duplicate deliveries: the insert silently
// no-ops on conflict and isNew is false. This is the sole defense against
// at-least-once webhook delivery; callers never pre-check.
func (s *Store) RecordEventOnce(ctx context.Context, event *models.ExternalEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO external_events (event_id, provider, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.Provider, event.EventType, event.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to record event: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

package store

import (
	"context"
	"fmt"

	"payment-service/internal/models"
)

// UpsertEnrollment grants course access, keyed on (user_id, course_id) so
// a repeated grant is a no-op.
func (s *Store) UpsertEnrollment(ctx context.Context, userID, courseID int64, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (user_id, course_id, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, course_id) DO NOTHING`,
		userID, courseID, source)
	if err != nil {
		return fmt.Errorf("failed to upsert enrollment: %w", err)
	}
	return nil
}

// UpsertTierPurchase grants a tier, keyed on (user_id, tier).
func (s *Store) UpsertTierPurchase(ctx context.Context, userID int64, tier, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tier_purchases (user_id, tier, source)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, tier) DO NOTHING`,
		userID, tier, source)
	if err != nil {
		return fmt.Errorf("failed to upsert tier purchase: %w", err)
	}
	return nil
}

// CreateScholarship seeds one scholarship pool row.
func (s *Store) CreateScholarship(ctx context.Context, donorUserID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scholarships (donor_user_id, status)
		VALUES ($1, $2)`,
		donorUserID, models.ScholarshipStatusAvailable)
	if err != nil {
		return fmt.Errorf("failed to create scholarship: %w", err)
	}
	return nil
}

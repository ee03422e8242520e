package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/agentplan/internal/domain/plan"
)

// ArchiveStore implements database.Archive on PostgreSQL. Plans are stored as
// JSONB documents with their results and feedback.
type ArchiveStore struct {
	pool *pgxpool.Pool
}

// NewArchiveStore returns an archive over pool.
func NewArchiveStore(pool *pgxpool.Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

// ArchivePlan stores rec, replacing an earlier archive of the same plan.
func (s *ArchiveStore) ArchivePlan(ctx context.Context, rec *plan.Record) error {
	p := rec.Plan
	planJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal plan %s: %w", p.ID, err)
	}
	resultsJSON, err := json.Marshal(orEmpty(rec.Results))
	if err != nil {
		return fmt.Errorf("marshal results %s: %w", p.ID, err)
	}
	feedbackJSON, err := json.Marshal(orEmpty(rec.Feedback))
	if err != nil {
		return fmt.Errorf("marshal feedback %s: %w", p.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO archived_plans (id, goal, status, adapted_from, plan, results, feedback, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			plan = EXCLUDED.plan,
			results = EXCLUDED.results,
			feedback = EXCLUDED.feedback,
			updated_at = EXCLUDED.updated_at,
			archived_at = now()`,
		p.ID, p.Goal, string(p.Status), nullIfEmpty(p.AdaptedFrom),
		json.RawMessage(planJSON), json.RawMessage(resultsJSON), json.RawMessage(feedbackJSON),
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("archive plan %s: %w", p.ID, err)
	}
	return nil
}

// GetArchivedPlan loads an archived plan.
func (s *ArchiveStore) GetArchivedPlan(ctx context.Context, id string) (*plan.Record, error) {
	var planJSON, resultsJSON, feedbackJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT plan, results, feedback FROM archived_plans WHERE id = $1`, id,
	).Scan(&planJSON, &resultsJSON, &feedbackJSON)
	if err != nil {
		return nil, notFoundWrap(err, "get archived plan %s", id)
	}

	rec := &plan.Record{Plan: &plan.TaskPlan{}}
	if err := json.Unmarshal(planJSON, rec.Plan); err != nil {
		return nil, fmt.Errorf("decode archived plan %s: %w", id, err)
	}
	if err := json.Unmarshal(resultsJSON, &rec.Results); err != nil {
		return nil, fmt.Errorf("decode archived results %s: %w", id, err)
	}
	if err := json.Unmarshal(feedbackJSON, &rec.Feedback); err != nil {
		return nil, fmt.Errorf("decode archived feedback %s: %w", id, err)
	}
	return rec, nil
}

// ArchivedSummary is one row of the archive listing.
type ArchivedSummary struct {
	ID          string      `json:"id"`
	Goal        string      `json:"goal"`
	Status      plan.Status `json:"status"`
	AdaptedFrom string      `json:"adapted_from,omitempty"`
	ArchivedAt  time.Time   `json:"archived_at"`
}

// ListArchived returns the most recently archived plans, newest first.
func (s *ArchiveStore) ListArchived(ctx context.Context, limit int) ([]ArchivedSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, goal, status, COALESCE(adapted_from, ''), archived_at
		FROM archived_plans
		ORDER BY archived_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list archived plans: %w", err)
	}
	defer rows.Close()

	var out []ArchivedSummary
	for rows.Next() {
		var (
			sum    ArchivedSummary
			status string
		)
		if err := rows.Scan(&sum.ID, &sum.Goal, &status, &sum.AdaptedFrom, &sum.ArchivedAt); err != nil {
			return nil, fmt.Errorf("scan archived plan: %w", err)
		}
		sum.Status = plan.Status(status)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// PurgeArchivedBefore deletes archived plans archived before cutoff and
// returns how many were removed.
func (s *ArchiveStore) PurgeArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM archived_plans WHERE archived_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge archived plans: %w", err)
	}
	return tag.RowsAffected(), nil
}

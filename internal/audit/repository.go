package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository provides PostgreSQL backed ledger persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Insert appends one ledger entry.
func (r *PGRepository) Insert(ctx context.Context, entry Entry) error {
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("audit: marshal context: %w", err)
	}
	const query = `
		INSERT INTO rbac_audit_logs
			(decision_id, actor_id, action, resource_type, resource_id, decision, reason, source, context, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))`
	_, err = r.pool.Exec(ctx, query,
		entry.DecisionID, entry.ActorID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Decision, entry.Reason, entry.Source, contextJSON, entry.At)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// Window returns a page of entries matching the filters, newest first.
func (r *PGRepository) Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	query, args := buildQuery(filters)
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY occurred_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	return r.query(ctx, query, args)
}

// All returns every entry matching the filters, newest first.
func (r *PGRepository) All(ctx context.Context, filters Filters) ([]Entry, error) {
	query, args := buildQuery(filters)
	query += " ORDER BY occurred_at DESC, id DESC"
	return r.query(ctx, query, args)
}

// DeleteBefore removes entries older than cutoff and reports the count.
func (r *PGRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rbac_audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: delete before: %w", err)
	}
	return tag.RowsAffected(), nil
}

func buildQuery(filters Filters) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filters.ActorID != 0 {
		add("actor_id = $%d", filters.ActorID)
	}
	if filters.ResourceType != "" {
		add("resource_type = $%d", filters.ResourceType)
	}
	if filters.ResourceID != "" {
		add("resource_id = $%d", filters.ResourceID)
	}
	if !filters.From.IsZero() {
		add("occurred_at >= $%d", filters.From)
	}
	if !filters.To.IsZero() {
		add("occurred_at <= $%d", filters.To)
	}

	query := `
		SELECT id, decision_id, actor_id, action, resource_type, resource_id,
		       decision, reason, source, context, occurred_at
		FROM rbac_audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, args
}

func (r *PGRepository) query(ctx context.Context, query string, args []any) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		entry       Entry
		contextJSON []byte
	)
	err := row.Scan(&entry.ID, &entry.DecisionID, &entry.ActorID, &entry.Action,
		&entry.ResourceType, &entry.ResourceID, &entry.Decision, &entry.Reason,
		&entry.Source, &contextJSON, &entry.At)
	if err != nil {
		return Entry{}, fmt.Errorf("audit: scan entry: %w", err)
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &entry.Context); err != nil {
			return Entry{}, fmt.Errorf("audit: unmarshal context: %w", err)
		}
	}
	return entry, nil
}

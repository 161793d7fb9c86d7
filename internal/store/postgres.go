package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/jobclock/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, technician_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TechnicianID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, technician_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TechnicianID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Jobs ---

const jobColumns = `id, technician_id, description, vehicle_registration, status, target_seconds,
	total_work_seconds, start_time, end_time, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.TechnicianID, &j.Description, &j.VehicleRegistration, &j.Status,
		&j.TargetSeconds, &j.TotalWorkSeconds, &j.StartTime, &j.EndTime, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, technician_id, description, vehicle_registration, status, target_seconds,
		   total_work_seconds, start_time, end_time, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		job.ID, job.TechnicianID, job.Description, job.VehicleRegistration, job.Status, job.TargetSeconds,
		job.TotalWorkSeconds, job.StartTime, job.EndTime, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]*models.Job, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if filter.TechnicianID != uuid.Nil {
		conditions = append(conditions, fmt.Sprintf("technician_id = $%d", argIdx))
		args = append(args, filter.TechnicianID)
		argIdx++
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argIdx))
		args = append(args, filter.Statuses)
		argIdx++
	}
	if len(filter.ExcludeStatus) > 0 {
		conditions = append(conditions, fmt.Sprintf("NOT (status = ANY($%d))", argIdx))
		args = append(args, filter.ExcludeStatus)
		argIdx++
	}

	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// SaveJobClock writes the job's clock fields and status, guarded on the job
// still having fromStatus, and applies the pause log change in the same
// transaction. A lost race returns ErrConflict.
func (s *PostgresStore) SaveJobClock(ctx context.Context, job *models.Job, fromStatus string, change PauseLogChange) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE jobs SET status = $3, total_work_seconds = $4, start_time = $5, end_time = $6, updated_at = $7
			 WHERE id = $1 AND status = $2`,
			job.ID, fromStatus, job.Status, job.TotalWorkSeconds, job.StartTime, job.EndTime, job.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update job clock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, job.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check job exists: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}

		if change.Close != nil {
			_, err := tx.Exec(ctx,
				`UPDATE job_pause_logs SET resumed_at = $2
				 WHERE id = (
				   SELECT id FROM job_pause_logs
				   WHERE job_id = $1 AND resumed_at IS NULL
				   ORDER BY paused_at DESC LIMIT 1
				 )`, job.ID, *change.Close)
			if err != nil {
				return fmt.Errorf("close pause log: %w", err)
			}
		}

		if l := change.Open; l != nil {
			_, err := tx.Exec(ctx,
				`INSERT INTO job_pause_logs (id, job_id, paused_at, resumed_at, timer_value, reason)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				l.ID, job.ID, l.PausedAt, l.ResumedAt, l.TimerValue, l.Reason)
			if err != nil {
				return fmt.Errorf("create pause log: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListPauseLogs(ctx context.Context, jobID uuid.UUID) ([]*models.PauseLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, paused_at, resumed_at, timer_value, reason
		 FROM job_pause_logs WHERE job_id = $1 ORDER BY paused_at ASC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list pause logs: %w", err)
	}
	defer rows.Close()

	var logs []*models.PauseLog
	for rows.Next() {
		var l models.PauseLog
		if err := rows.Scan(&l.ID, &l.JobID, &l.PausedAt, &l.ResumedAt, &l.TimerValue, &l.Reason); err != nil {
			return nil, fmt.Errorf("scan pause log: %w", err)
		}
		logs = append(logs, &l)
	}
	return logs, rows.Err()
}

// --- Push Subscriptions ---

// UpsertPushSubscription stores sub, replacing the keys and owner of an
// existing subscription with the same endpoint. sub.ID is updated to the
// stored row's ID.
func (s *PostgresStore) UpsertPushSubscription(ctx context.Context, sub *models.PushSubscription) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO push_subscriptions (id, technician_id, endpoint, p256dh, auth, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (endpoint) DO UPDATE SET
		   technician_id = EXCLUDED.technician_id,
		   p256dh = EXCLUDED.p256dh,
		   auth = EXCLUDED.auth,
		   updated_at = EXCLUDED.updated_at
		 RETURNING id, created_at`,
		sub.ID, sub.TechnicianID, sub.Endpoint, sub.P256dh, sub.Auth, sub.CreatedAt, sub.UpdatedAt,
	).Scan(&sub.ID, &sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePushSubscription(ctx context.Context, endpoint string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE endpoint = $1`, endpoint)
	if err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListPushSubscriptions(ctx context.Context, technicianID uuid.UUID) ([]*models.PushSubscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, technician_id, endpoint, p256dh, auth, created_at, updated_at
		 FROM push_subscriptions WHERE technician_id = $1 ORDER BY created_at ASC`, technicianID)
	if err != nil {
		return nil, fmt.Errorf("list push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.PushSubscription
	for rows.Next() {
		var p models.PushSubscription
		if err := rows.Scan(&p.ID, &p.TechnicianID, &p.Endpoint, &p.P256dh, &p.Auth, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan push subscription: %w", err)
		}
		subs = append(subs, &p)
	}
	return subs, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

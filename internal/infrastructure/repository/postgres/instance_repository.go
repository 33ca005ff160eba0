package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/avolkov/docpipe/internal/core/domain"
)

// InstanceRepository is the durable substrate for workflow instances. The
// resumption handle column is the only lookup path the completion side has;
// all other access goes by id or name.
type InstanceRepository struct {
	db *sql.DB
}

func NewInstanceRepository(db *sql.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *InstanceRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across orchestrator/correlator startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS workflow_instances (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	trigger JSONB NOT NULL,
	label TEXT,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	feature TEXT,
	state TEXT NOT NULL,
	resumption_handle TEXT UNIQUE,
	result JSONB,
	error_code TEXT,
	error_cause TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	suspended_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_workflow_instances_state ON workflow_instances(state);
CREATE INDEX IF NOT EXISTS idx_workflow_instances_suspended_at ON workflow_instances(suspended_at) WHERE state = 'suspended';
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *InstanceRepository) Create(ctx context.Context, inst *domain.Instance) (bool, error) {
	triggerJSON, err := json.Marshal(inst.Trigger)
	if err != nil {
		return false, fmt.Errorf("marshal trigger: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO workflow_instances (id, name, trigger, state, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (name) DO NOTHING
`,
		inst.ID, inst.Name, triggerJSON, string(inst.State), inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert instance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert instance rows: %w", err)
	}
	return rows == 1, nil
}

func (r *InstanceRepository) GetByName(ctx context.Context, name string) (*domain.Instance, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, name, trigger, label, confidence, feature, state, resumption_handle, result, error_code, error_cause, created_at, updated_at, suspended_at
FROM workflow_instances
WHERE name = $1
`, name)

	var inst domain.Instance
	var triggerRaw []byte
	var label, feature, handle, errorCode, errorCause sql.NullString
	var result []byte
	var state string

	err := row.Scan(
		&inst.ID, &inst.Name, &triggerRaw, &label, &inst.Classification.Confidence, &feature,
		&state, &handle, &result, &errorCode, &errorCause, &inst.CreatedAt, &inst.UpdatedAt, &inst.SuspendedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get instance", fmt.Errorf("name %s", name))
		}
		return nil, fmt.Errorf("scan instance: %w", err)
	}

	if err := json.Unmarshal(triggerRaw, &inst.Trigger); err != nil {
		return nil, fmt.Errorf("unmarshal trigger: %w", err)
	}
	inst.Classification.Label = domain.Label(label.String)
	inst.Feature = domain.FeatureSet(feature.String)
	inst.State = domain.InstanceState(state)
	inst.Handle = handle.String
	inst.Result = result
	inst.ErrorCode = errorCode.String
	inst.ErrorCause = errorCause.String
	return &inst, nil
}

func (r *InstanceRepository) SetState(ctx context.Context, id string, state domain.InstanceState) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE workflow_instances
SET state = $2, updated_at = $3
WHERE id = $1
`, id, string(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update instance state: %w", err)
	}
	return nil
}

func (r *InstanceRepository) SaveClassification(ctx context.Context, id string, cls domain.Classification) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE workflow_instances
SET label = $2, confidence = $3, updated_at = $4
WHERE id = $1
`, id, string(cls.Label), cls.Confidence, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	return nil
}

// Suspend mints a fresh resumption handle and parks the instance on it. The
// handle is opaque to everything but this repository.
func (r *InstanceRepository) Suspend(ctx context.Context, id string, feature domain.FeatureSet) (string, error) {
	handle := uuid.NewString()
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE workflow_instances
SET state = $2, feature = $3, resumption_handle = $4, suspended_at = $5, updated_at = $5
WHERE id = $1
`, id, string(domain.StateSuspended), string(feature), handle, now)
	if err != nil {
		return "", fmt.Errorf("suspend instance: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("suspend instance rows: %w", err)
	}
	if rows == 0 {
		return "", domain.WrapError(domain.ErrNotFound, "suspend instance", fmt.Errorf("id %s", id))
	}
	return handle, nil
}

func (r *InstanceRepository) Resume(ctx context.Context, handle string, result []byte) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE workflow_instances
SET state = $2, result = $3, updated_at = $4
WHERE resumption_handle = $1 AND state = $5
`, handle, string(domain.StateCompleted), result, time.Now().UTC(), string(domain.StateSuspended))
	if err != nil {
		return fmt.Errorf("resume instance: %w", err)
	}
	return r.checkSettled(ctx, "resume instance", handle, res)
}

func (r *InstanceRepository) Abort(ctx context.Context, handle string, code, cause string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE workflow_instances
SET state = $2, error_code = $3, error_cause = $4, updated_at = $5
WHERE resumption_handle = $1 AND state = $6
`, handle, string(domain.StateAborted), code, cause, time.Now().UTC(), string(domain.StateSuspended))
	if err != nil {
		return fmt.Errorf("abort instance: %w", err)
	}
	return r.checkSettled(ctx, "abort instance", handle, res)
}

// Fail settles a live instance by id. Zero updated rows means the instance
// already reached a terminal state, which is fine; the first settlement wins.
func (r *InstanceRepository) Fail(ctx context.Context, id string, code, cause string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE workflow_instances
SET state = $2, error_code = $3, error_cause = $4, updated_at = $5
WHERE id = $1 AND state NOT IN ($6, $7, $8)
`,
		id, string(domain.StateAborted), code, cause, time.Now().UTC(),
		string(domain.StateCompleted), string(domain.StateSkipped), string(domain.StateAborted),
	)
	if err != nil {
		return fmt.Errorf("fail instance: %w", err)
	}
	return nil
}

// checkSettled distinguishes the two zero-row cases: a handle that never
// existed and a handle whose instance already left the suspended state.
func (r *InstanceRepository) checkSettled(ctx context.Context, operation, handle string, res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", operation, err)
	}
	if rows == 1 {
		return nil
	}

	var state string
	err = r.db.QueryRowContext(ctx, `
SELECT state FROM workflow_instances WHERE resumption_handle = $1
`, handle).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.WrapError(domain.ErrNotFound, operation, fmt.Errorf("unknown handle"))
	}
	if err != nil {
		return fmt.Errorf("%s lookup: %w", operation, err)
	}
	return domain.WrapError(domain.ErrAlreadyResolved, operation, fmt.Errorf("instance state %s", state))
}

// SweepExpired force-aborts instances suspended since before cutoff.
func (r *InstanceRepository) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE workflow_instances
SET state = $1, error_code = $2, error_cause = $3, updated_at = $4
WHERE state = $5 AND suspended_at < $6
`,
		string(domain.StateAborted), domain.AbortCodeTimeout,
		"suspension ceiling exceeded before any completion notification arrived",
		time.Now().UTC(), string(domain.StateSuspended), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("sweep expired instances: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep expired rows: %w", err)
	}
	return rows, nil
}

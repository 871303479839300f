package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/agentregistry-dev/modelregistry/pkg/models"
	"github.com/agentregistry-dev/modelregistry/pkg/registry/database"
)

// PostgreSQL error codes surfaced as typed store errors
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgreSQL is an implementation of the Database interface using PostgreSQL
type PostgreSQL struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ database.Database = (*PostgreSQL)(nil)

// Executor is an interface for executing queries (satisfied by both pgx.Tx and pgxpool.Pool)
type Executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// getExecutor returns the appropriate executor (transaction or pool)
func (db *PostgreSQL) getExecutor(tx pgx.Tx) Executor {
	if tx != nil {
		return tx
	}
	return db.pool
}

// NewPostgreSQL creates a new instance of the PostgreSQL database and applies migrations
func NewPostgreSQL(ctx context.Context, connectionURI string, logger *zap.Logger) (*PostgreSQL, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// Parse connection config for pool settings
	config, err := pgxpool.ParseConfig(connectionURI)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	// Configure pool for stability-focused defaults
	config.MaxConns = 30
	config.MinConns = 5
	config.MaxConnIdleTime = 30 * time.Minute
	config.MaxConnLifetime = 2 * time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := Migrate(ctx, connectionURI); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	return &PostgreSQL{
		pool:   pool,
		logger: logger,
	}, nil
}

// translateError maps constraint violations to store sentinels
func translateError(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return database.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", database.ErrAlreadyExists, pgErr.ConstraintName)
		case pgForeignKeyViolation:
			return fmt.Errorf("%w: %s", database.ErrForeignKey, pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%w: failed to %s: %w", database.ErrDatabase, op, err)
}

// InTransaction executes a function within a database transaction
func (db *PostgreSQL) InTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %w", database.ErrDatabase, err)
	}
	//nolint:contextcheck // Intentionally using separate context for rollback to ensure cleanup even if request is cancelled
	defer func() {
		rollbackCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if rbErr := tx.Rollback(rollbackCtx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			db.logger.Warn("failed to rollback transaction", zap.Error(rbErr))
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", database.ErrDatabase, err)
	}

	return nil
}

// CreateModelVersion registers a version in the version catalog
func (db *PostgreSQL) CreateModelVersion(ctx context.Context, tx pgx.Tx, version *models.ModelVersion) error {
	query := `
		INSERT INTO model_versions (id, model_id, version, artifact_uri, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := db.getExecutor(tx).Exec(ctx, query,
		version.ID,
		version.ModelID,
		version.Version,
		version.ArtifactURI,
		version.CreatedAt,
	)
	if err != nil {
		return translateError(err, "create model version")
	}
	return nil
}

// GetModelVersion retrieves a version by id
func (db *PostgreSQL) GetModelVersion(ctx context.Context, tx pgx.Tx, id string) (*models.ModelVersion, error) {
	query := `SELECT id, model_id, version, artifact_uri, created_at FROM model_versions WHERE id = $1`

	var v models.ModelVersion
	err := db.getExecutor(tx).QueryRow(ctx, query, id).Scan(&v.ID, &v.ModelID, &v.Version, &v.ArtifactURI, &v.CreatedAt)
	if err != nil {
		return nil, translateError(err, "get model version")
	}
	return &v, nil
}

const deploymentColumns = `id, version_id, environment, status, strategy, config, current_traffic,
		slo_targets, drift_thresholds, deployed_by, deployed_at, updated_at`

func scanDeployment(row pgx.Row) (*models.Deployment, error) {
	var d models.Deployment
	var configJSON, sloJSON, driftJSON []byte

	err := row.Scan(
		&d.ID,
		&d.VersionID,
		&d.Environment,
		&d.Status,
		&d.Strategy,
		&configJSON,
		&d.CurrentTraffic,
		&sloJSON,
		&driftJSON,
		&d.DeployedBy,
		&d.DeployedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(configJSON, &d.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if len(sloJSON) > 0 {
		if err := json.Unmarshal(sloJSON, &d.SLOTargets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal slo targets: %w", err)
		}
	}
	if len(driftJSON) > 0 {
		if err := json.Unmarshal(driftJSON, &d.DriftThresholds); err != nil {
			return nil, fmt.Errorf("failed to unmarshal drift thresholds: %w", err)
		}
	}
	return &d, nil
}

// CreateDeployment inserts a new deployment record
func (db *PostgreSQL) CreateDeployment(ctx context.Context, tx pgx.Tx, deployment *models.Deployment) error {
	configJSON, err := json.Marshal(deployment.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	sloJSON, err := json.Marshal(deployment.SLOTargets)
	if err != nil {
		return fmt.Errorf("failed to marshal slo targets: %w", err)
	}
	driftJSON, err := json.Marshal(deployment.DriftThresholds)
	if err != nil {
		return fmt.Errorf("failed to marshal drift thresholds: %w", err)
	}

	query := `
		INSERT INTO deployments (` + deploymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = db.getExecutor(tx).Exec(ctx, query,
		deployment.ID,
		deployment.VersionID,
		deployment.Environment,
		deployment.Status,
		deployment.Strategy,
		configJSON,
		deployment.CurrentTraffic,
		sloJSON,
		driftJSON,
		deployment.DeployedBy,
		deployment.DeployedAt,
		deployment.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "create deployment")
	}
	return nil
}

// GetDeployment retrieves a deployment by id
func (db *PostgreSQL) GetDeployment(ctx context.Context, tx pgx.Tx, id string) (*models.Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE id = $1`

	d, err := scanDeployment(db.getExecutor(tx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "get deployment")
	}
	return d, nil
}

// ListDeployments retrieves deployments matching filter, newest first
func (db *PostgreSQL) ListDeployments(ctx context.Context, tx pgx.Tx, filter *models.DeploymentFilter, limit, offset int) ([]*models.Deployment, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var whereConditions []string
	args := []any{}
	argIndex := 1

	if filter != nil { //nolint:nestif
		if filter.Environment != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("environment = $%d", argIndex))
			args = append(args, *filter.Environment)
			argIndex++
		}
		if filter.Status != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("status = $%d", argIndex))
			args = append(args, *filter.Status)
			argIndex++
		}
		if filter.VersionID != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("version_id = $%d", argIndex))
			args = append(args, *filter.VersionID)
			argIndex++
		}
		if filter.DeployedBy != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("deployed_by = $%d", argIndex))
			args = append(args, *filter.DeployedBy)
			argIndex++
		}
		if filter.DeployedAfter != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("deployed_at >= $%d", argIndex))
			args = append(args, *filter.DeployedAfter)
			argIndex++
		}
		if filter.DeployedUntil != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("deployed_at <= $%d", argIndex))
			args = append(args, *filter.DeployedUntil)
			argIndex++
		}
		if filter.ExcludeID != nil {
			whereConditions = append(whereConditions, fmt.Sprintf("id <> $%d", argIndex))
			args = append(args, *filter.ExcludeID)
			argIndex++
		}
	}

	whereClause := ""
	if len(whereConditions) > 0 {
		whereClause = "WHERE " + strings.Join(whereConditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM deployments
		%s
		ORDER BY deployed_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, deploymentColumns, whereClause, argIndex, argIndex+1)
	args = append(args, limit, offset)

	rows, err := db.getExecutor(tx).Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "query deployments")
	}
	defer rows.Close()

	var deployments []*models.Deployment
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		deployments = append(deployments, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}

	return deployments, nil
}

// UpdateDeploymentStatus overwrites the status of a deployment
func (db *PostgreSQL) UpdateDeploymentStatus(ctx context.Context, tx pgx.Tx, id string, status models.DeploymentStatus) (*models.Deployment, error) {
	query := `
		UPDATE deployments
		SET status = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + deploymentColumns

	d, err := scanDeployment(db.getExecutor(tx).QueryRow(ctx, query, id, status))
	if err != nil {
		return nil, translateError(err, "update deployment status")
	}
	return d, nil
}

// UpdateDeploymentTraffic stamps the current traffic percentage of a deployment
func (db *PostgreSQL) UpdateDeploymentTraffic(ctx context.Context, tx pgx.Tx, id string, percentage *float64) error {
	query := `UPDATE deployments SET current_traffic = $2, updated_at = NOW() WHERE id = $1`

	result, err := db.getExecutor(tx).Exec(ctx, query, id, percentage)
	if err != nil {
		return translateError(err, "update deployment traffic")
	}
	if result.RowsAffected() == 0 {
		return database.ErrNotFound
	}
	return nil
}

// CreateTrafficSplit appends a traffic split
func (db *PostgreSQL) CreateTrafficSplit(ctx context.Context, tx pgx.Tx, split *models.TrafficSplit) error {
	query := `
		INSERT INTO traffic_splits (id, deployment_id, percentage, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := db.getExecutor(tx).Exec(ctx, query, split.ID, split.DeploymentID, split.Percentage, split.StartedAt, split.CompletedAt)
	if err != nil {
		return translateError(err, "create traffic split")
	}
	return nil
}

// CompleteTrafficSplit stamps the completion time of a split
func (db *PostgreSQL) CompleteTrafficSplit(ctx context.Context, tx pgx.Tx, id string, completedAt time.Time) (*models.TrafficSplit, error) {
	query := `
		UPDATE traffic_splits
		SET completed_at = $2
		WHERE id = $1
		RETURNING id, deployment_id, percentage, started_at, completed_at
	`
	var s models.TrafficSplit
	err := db.getExecutor(tx).QueryRow(ctx, query, id, completedAt).Scan(&s.ID, &s.DeploymentID, &s.Percentage, &s.StartedAt, &s.CompletedAt)
	if err != nil {
		return nil, translateError(err, "complete traffic split")
	}
	return &s, nil
}

// ListTrafficSplits retrieves the splits of a deployment newest first
func (db *PostgreSQL) ListTrafficSplits(ctx context.Context, tx pgx.Tx, deploymentID string) ([]*models.TrafficSplit, error) {
	query := `
		SELECT id, deployment_id, percentage, started_at, completed_at
		FROM traffic_splits
		WHERE deployment_id = $1
		ORDER BY started_at DESC, id DESC
	`
	rows, err := db.getExecutor(tx).Query(ctx, query, deploymentID)
	if err != nil {
		return nil, translateError(err, "query traffic splits")
	}
	defer rows.Close()

	var splits []*models.TrafficSplit
	for rows.Next() {
		var s models.TrafficSplit
		if err := rows.Scan(&s.ID, &s.DeploymentID, &s.Percentage, &s.StartedAt, &s.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan traffic split: %w", err)
		}
		splits = append(splits, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating traffic splits: %w", err)
	}
	return splits, nil
}

const rollbackColumns = `id, deployment_id, target_version_id, reason, status, initiated_by,
		created_at, updated_at, completed_at, error_message`

func scanRollback(row pgx.Row) (*models.RollbackOperation, error) {
	var op models.RollbackOperation
	err := row.Scan(
		&op.ID,
		&op.DeploymentID,
		&op.TargetVersionID,
		&op.Reason,
		&op.Status,
		&op.InitiatedBy,
		&op.CreatedAt,
		&op.UpdatedAt,
		&op.CompletedAt,
		&op.ErrorMessage,
	)
	if err != nil {
		return nil, err
	}
	return &op, nil
}

func (db *PostgreSQL) queryRollbacks(ctx context.Context, tx pgx.Tx, query string, args ...any) ([]*models.RollbackOperation, error) {
	rows, err := db.getExecutor(tx).Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "query rollbacks")
	}
	defer rows.Close()

	var ops []*models.RollbackOperation
	for rows.Next() {
		op, err := scanRollback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rollback: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rollbacks: %w", err)
	}
	return ops, nil
}

// CreateRollback inserts a rollback operation
func (db *PostgreSQL) CreateRollback(ctx context.Context, tx pgx.Tx, op *models.RollbackOperation) error {
	query := `
		INSERT INTO rollback_operations (` + rollbackColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := db.getExecutor(tx).Exec(ctx, query,
		op.ID,
		op.DeploymentID,
		op.TargetVersionID,
		op.Reason,
		op.Status,
		op.InitiatedBy,
		op.CreatedAt,
		op.UpdatedAt,
		op.CompletedAt,
		op.ErrorMessage,
	)
	if err != nil {
		return translateError(err, "create rollback")
	}
	return nil
}

// GetRollback retrieves a rollback operation by id
func (db *PostgreSQL) GetRollback(ctx context.Context, tx pgx.Tx, id string) (*models.RollbackOperation, error) {
	query := `SELECT ` + rollbackColumns + ` FROM rollback_operations WHERE id = $1`

	op, err := scanRollback(db.getExecutor(tx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "get rollback")
	}
	return op, nil
}

// ListRollbacks retrieves the rollback operations of a deployment newest first
func (db *PostgreSQL) ListRollbacks(ctx context.Context, tx pgx.Tx, deploymentID string) ([]*models.RollbackOperation, error) {
	query := `
		SELECT ` + rollbackColumns + `
		FROM rollback_operations
		WHERE deployment_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return db.queryRollbacks(ctx, tx, query, deploymentID)
}

// ListActiveRollbacks retrieves every pending or in-progress rollback operation
func (db *PostgreSQL) ListActiveRollbacks(ctx context.Context, tx pgx.Tx) ([]*models.RollbackOperation, error) {
	query := `
		SELECT ` + rollbackColumns + `
		FROM rollback_operations
		WHERE status IN ('pending', 'in_progress')
		ORDER BY created_at
	`
	return db.queryRollbacks(ctx, tx, query)
}

// UpdateRollback overwrites status, error message and completion time of a rollback
func (db *PostgreSQL) UpdateRollback(ctx context.Context, tx pgx.Tx, id string, update database.RollbackUpdate) (*models.RollbackOperation, error) {
	query := `
		UPDATE rollback_operations
		SET status = $2, error_message = $3, completed_at = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + rollbackColumns

	op, err := scanRollback(db.getExecutor(tx).QueryRow(ctx, query, id, update.Status, update.ErrorMessage, update.CompletedAt))
	if err != nil {
		return nil, translateError(err, "update rollback")
	}
	return op, nil
}

// CreateMetrics appends a metrics sample
func (db *PostgreSQL) CreateMetrics(ctx context.Context, tx pgx.Tx, sample *models.DeploymentMetrics) error {
	query := `
		INSERT INTO deployment_metrics (id, deployment_id, ts, availability, latency_p95_ms, latency_p99_ms,
			error_rate, input_drift, output_drift, performance_drift, request_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.getExecutor(tx).Exec(ctx, query,
		sample.ID,
		sample.DeploymentID,
		sample.Timestamp,
		sample.Availability,
		sample.LatencyP95Ms,
		sample.LatencyP99Ms,
		sample.ErrorRate,
		sample.InputDrift,
		sample.OutputDrift,
		sample.PerformanceDrift,
		sample.RequestCount,
	)
	if err != nil {
		return translateError(err, "create metrics")
	}
	return nil
}

// ListMetrics retrieves samples in [from, to] oldest first
func (db *PostgreSQL) ListMetrics(ctx context.Context, tx pgx.Tx, deploymentID string, from, to time.Time) ([]*models.DeploymentMetrics, error) {
	query := `
		SELECT id, deployment_id, ts, availability, latency_p95_ms, latency_p99_ms,
			error_rate, input_drift, output_drift, performance_drift, request_count
		FROM deployment_metrics
		WHERE deployment_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts, id
	`
	rows, err := db.getExecutor(tx).Query(ctx, query, deploymentID, from, to)
	if err != nil {
		return nil, translateError(err, "query metrics")
	}
	defer rows.Close()

	var samples []*models.DeploymentMetrics
	for rows.Next() {
		var m models.DeploymentMetrics
		err := rows.Scan(
			&m.ID,
			&m.DeploymentID,
			&m.Timestamp,
			&m.Availability,
			&m.LatencyP95Ms,
			&m.LatencyP99Ms,
			&m.ErrorRate,
			&m.InputDrift,
			&m.OutputDrift,
			&m.PerformanceDrift,
			&m.RequestCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		samples = append(samples, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metrics: %w", err)
	}
	return samples, nil
}

const alertColumns = `id, deployment_id, type, severity, message, threshold, value, triggered_at, resolved_at, acknowledged`

func scanAlert(row pgx.Row) (*models.DeploymentAlert, error) {
	var a models.DeploymentAlert
	err := row.Scan(
		&a.ID,
		&a.DeploymentID,
		&a.Type,
		&a.Severity,
		&a.Message,
		&a.Threshold,
		&a.Value,
		&a.TriggeredAt,
		&a.ResolvedAt,
		&a.Acknowledged,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAlert inserts an alert
func (db *PostgreSQL) CreateAlert(ctx context.Context, tx pgx.Tx, alert *models.DeploymentAlert) error {
	query := `
		INSERT INTO deployment_alerts (` + alertColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := db.getExecutor(tx).Exec(ctx, query,
		alert.ID,
		alert.DeploymentID,
		alert.Type,
		alert.Severity,
		alert.Message,
		alert.Threshold,
		alert.Value,
		alert.TriggeredAt,
		alert.ResolvedAt,
		alert.Acknowledged,
	)
	if err != nil {
		return translateError(err, "create alert")
	}
	return nil
}

// ListAlerts retrieves the alerts of a deployment newest first
func (db *PostgreSQL) ListAlerts(ctx context.Context, tx pgx.Tx, deploymentID string, acknowledged *bool) ([]*models.DeploymentAlert, error) {
	query := `SELECT ` + alertColumns + ` FROM deployment_alerts WHERE deployment_id = $1`
	args := []any{deploymentID}
	if acknowledged != nil {
		query += ` AND acknowledged = $2`
		args = append(args, *acknowledged)
	}
	query += ` ORDER BY triggered_at DESC, id DESC`

	rows, err := db.getExecutor(tx).Query(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, "query alerts")
	}
	defer rows.Close()

	var alerts []*models.DeploymentAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert as acknowledged
func (db *PostgreSQL) AcknowledgeAlert(ctx context.Context, tx pgx.Tx, id string) (*models.DeploymentAlert, error) {
	query := `UPDATE deployment_alerts SET acknowledged = TRUE WHERE id = $1 RETURNING ` + alertColumns

	a, err := scanAlert(db.getExecutor(tx).QueryRow(ctx, query, id))
	if err != nil {
		return nil, translateError(err, "acknowledge alert")
	}
	return a, nil
}

// ResolveAlert stamps the resolution time of an alert
func (db *PostgreSQL) ResolveAlert(ctx context.Context, tx pgx.Tx, id string, resolvedAt time.Time) (*models.DeploymentAlert, error) {
	query := `UPDATE deployment_alerts SET resolved_at = $2 WHERE id = $1 RETURNING ` + alertColumns

	a, err := scanAlert(db.getExecutor(tx).QueryRow(ctx, query, id, resolvedAt))
	if err != nil {
		return nil, translateError(err, "resolve alert")
	}
	return a, nil
}

// Close closes the database connection
func (db *PostgreSQL) Close() error {
	db.pool.Close()
	return nil
}

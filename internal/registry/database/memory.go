package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/agentregistry-dev/modelregistry/pkg/models"
	"github.com/agentregistry-dev/modelregistry/pkg/registry/database"
)

// Memory is an in-process implementation of the Database interface.
// It mirrors the constraints of the PostgreSQL schema: foreign keys to
// deployments and versions, and at most one active rollback per deployment.
type Memory struct {
	mu          sync.RWMutex
	versions    map[string]*models.ModelVersion
	deployments map[string]*models.Deployment
	splits      map[string]*models.TrafficSplit
	rollbacks   map[string]*models.RollbackOperation
	metrics     []*models.DeploymentMetrics
	alerts      map[string]*models.DeploymentAlert

	// seq orders rows created in the same instant; keyed by table and id
	seq   uint64
	order map[string]uint64

	now func() time.Time
}

var _ database.Database = (*Memory)(nil)

// NewMemory returns an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		versions:    make(map[string]*models.ModelVersion),
		deployments: make(map[string]*models.Deployment),
		splits:      make(map[string]*models.TrafficSplit),
		rollbacks:   make(map[string]*models.RollbackOperation),
		alerts:      make(map[string]*models.DeploymentAlert),
		order:       make(map[string]uint64),
		now:         time.Now,
	}
}

// stamp records the insertion position of a row. Callers hold m.mu.
func (m *Memory) stamp(table, id string) {
	m.seq++
	m.order[table+"/"+id] = m.seq
}

// newer reports whether row a of table was inserted after row b
func (m *Memory) newer(table, a, b string) bool {
	return m.order[table+"/"+a] > m.order[table+"/"+b]
}

func (m *Memory) checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", database.ErrDatabase, err)
	}
	return nil
}

// InTransaction runs fn without isolation; every statement is applied immediately
func (m *Memory) InTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fn(ctx, nil)
}

func (m *Memory) CreateModelVersion(ctx context.Context, _ pgx.Tx, version *models.ModelVersion) error {
	if err := m.checkContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.versions[version.ID]; ok {
		return fmt.Errorf("%w: model_versions_pkey", database.ErrAlreadyExists)
	}
	for _, existing := range m.versions {
		if existing.ModelID == version.ModelID && existing.Version == version.Version {
			return fmt.Errorf("%w: model_versions_model_id_version_key", database.ErrAlreadyExists)
		}
	}
	v := *version
	m.versions[v.ID] = &v
	return nil
}

func (m *Memory) GetModelVersion(ctx context.Context, _ pgx.Tx, id string) (*models.ModelVersion, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.versions[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	out := *v
	return &out, nil
}

func copyDeployment(d *models.Deployment) *models.Deployment {
	out := *d
	if d.CurrentTraffic != nil {
		traffic := *d.CurrentTraffic
		out.CurrentTraffic = &traffic
	}
	return &out
}

func (m *Memory) CreateDeployment(ctx context.Context, _ pgx.Tx, deployment *models.Deployment) error {
	if err := m.checkContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deployments[deployment.ID]; ok {
		return fmt.Errorf("%w: deployments_pkey", database.ErrAlreadyExists)
	}
	if _, ok := m.versions[deployment.VersionID]; !ok {
		return fmt.Errorf("%w: deployments_version_id_fkey", database.ErrForeignKey)
	}
	m.deployments[deployment.ID] = copyDeployment(deployment)
	m.stamp("deployments", deployment.ID)
	return nil
}

func (m *Memory) GetDeployment(ctx context.Context, _ pgx.Tx, id string) (*models.Deployment, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.deployments[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return copyDeployment(d), nil
}

func matchesFilter(d *models.Deployment, filter *models.DeploymentFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Environment != nil && d.Environment != *filter.Environment {
		return false
	}
	if filter.Status != nil && d.Status != *filter.Status {
		return false
	}
	if filter.VersionID != nil && d.VersionID != *filter.VersionID {
		return false
	}
	if filter.DeployedBy != nil && d.DeployedBy != *filter.DeployedBy {
		return false
	}
	if filter.DeployedAfter != nil && d.DeployedAt.Before(*filter.DeployedAfter) {
		return false
	}
	if filter.DeployedUntil != nil && d.DeployedAt.After(*filter.DeployedUntil) {
		return false
	}
	if filter.ExcludeID != nil && d.ID == *filter.ExcludeID {
		return false
	}
	return true
}

func (m *Memory) ListDeployments(ctx context.Context, _ pgx.Tx, filter *models.DeploymentFilter, limit, offset int) ([]*models.Deployment, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*models.Deployment
	for _, d := range m.deployments {
		if matchesFilter(d, filter) {
			matched = append(matched, copyDeployment(d))
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].DeployedAt.Equal(matched[j].DeployedAt) {
			return m.newer("deployments", matched[i].ID, matched[j].ID)
		}
		return matched[i].DeployedAt.After(matched[j].DeployedAt)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	end := min(offset+limit, len(matched))
	return matched[offset:end], nil
}

func (m *Memory) UpdateDeploymentStatus(ctx context.Context, _ pgx.Tx, id string, status models.DeploymentStatus) (*models.Deployment, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deployments[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	d.Status = status
	d.UpdatedAt = m.now()
	return copyDeployment(d), nil
}

func (m *Memory) UpdateDeploymentTraffic(ctx context.Context, _ pgx.Tx, id string, percentage *float64) error {
	if err := m.checkContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.deployments[id]
	if !ok {
		return database.ErrNotFound
	}
	if percentage == nil {
		d.CurrentTraffic = nil
	} else {
		p := *percentage
		d.CurrentTraffic = &p
	}
	d.UpdatedAt = m.now()
	return nil
}

func copySplit(s *models.TrafficSplit) *models.TrafficSplit {
	out := *s
	if s.CompletedAt != nil {
		completed := *s.CompletedAt
		out.CompletedAt = &completed
	}
	return &out
}

func (m *Memory) CreateTrafficSplit(ctx context.Context, _ pgx.Tx, split *models.TrafficSplit) error {
	if err := m.checkContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deployments[split.DeploymentID]; !ok {
		return fmt.Errorf("%w: traffic_splits_deployment_id_fkey", database.ErrForeignKey)
	}
	if _, ok := m.splits[split.ID]; ok {
		return fmt.Errorf("%w: traffic_splits_pkey", database.ErrAlreadyExists)
	}
	m.splits[split.ID] = copySplit(split)
	m.stamp("splits", split.ID)
	return nil
}

func (m *Memory) CompleteTrafficSplit(ctx context.Context, _ pgx.Tx, id string, completedAt time.Time) (*models.TrafficSplit, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.splits[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	s.CompletedAt = &completedAt
	return copySplit(s), nil
}

func (m *Memory) ListTrafficSplits(ctx context.Context, _ pgx.Tx, deploymentID string) ([]*models.TrafficSplit, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var splits []*models.TrafficSplit
	for _, s := range m.splits {
		if s.DeploymentID == deploymentID {
			splits = append(splits, copySplit(s))
		}
	}
	sort.Slice(splits, func(i, j int) bool {
		if splits[i].StartedAt.Equal(splits[j].StartedAt) {
			return m.newer("splits", splits[i].ID, splits[j].ID)
		}
		return splits[i].StartedAt.After(splits[j].StartedAt)
	})
	return splits, nil
}

func copyRollback(op *models.RollbackOperation) *models.RollbackOperation {
	out := *op
	if op.CompletedAt != nil {
		completed := *op.CompletedAt
		out.CompletedAt = &completed
	}
	if op.ErrorMessage != nil {
		msg := *op.ErrorMessage
		out.ErrorMessage = &msg
	}
	return &out
}

func (m *Memory) CreateRollback(ctx context.Context, _ pgx.Tx, op *models.RollbackOperation) error {
	if err := m.checkContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deployments[op.DeploymentID]; !ok {
		return fmt.Errorf("%w: rollback_operations_deployment_id_fkey", database.ErrForeignKey)
	}
	if _, ok := m.rollbacks[op.ID]; ok {
		return fmt.Errorf("%w: rollback_operations_pkey", database.ErrAlreadyExists)
	}
	if !op.Status.IsTerminal() {
		for _, existing := range m.rollbacks {
			if existing.DeploymentID == op.DeploymentID && !existing.Status.IsTerminal() {
				return fmt.Errorf("%w: idx_rollback_operations_one_active", database.ErrAlreadyExists)
			}
		}
	}
	m.rollbacks[op.ID] = copyRollback(op)
	m.stamp("rollbacks", op.ID)
	return nil
}

func (m *Memory) GetRollback(ctx context.Context, _ pgx.Tx, id string) (*models.RollbackOperation, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	op, ok := m.rollbacks[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return copyRollback(op), nil
}

func (m *Memory) listRollbacks(match func(*models.RollbackOperation) bool, newestFirst bool) []*models.RollbackOperation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ops []*models.RollbackOperation
	for _, op := range m.rollbacks {
		if match(op) {
			ops = append(ops, copyRollback(op))
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].CreatedAt.Equal(ops[j].CreatedAt) {
			if newestFirst {
				return m.newer("rollbacks", ops[i].ID, ops[j].ID)
			}
			return m.newer("rollbacks", ops[j].ID, ops[i].ID)
		}
		if newestFirst {
			return ops[i].CreatedAt.After(ops[j].CreatedAt)
		}
		return ops[i].CreatedAt.Before(ops[j].CreatedAt)
	})
	return ops
}

func (m *Memory) ListRollbacks(ctx context.Context, _ pgx.Tx, deploymentID string) ([]*models.RollbackOperation, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	return m.listRollbacks(func(op *models.RollbackOperation) bool {
		return op.DeploymentID == deploymentID
	}, true), nil
}

func (m *Memory) ListActiveRollbacks(ctx context.Context, _ pgx.Tx) ([]*models.RollbackOperation, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	return m.listRollbacks(func(op *models.RollbackOperation) bool {
		return !op.Status.IsTerminal()
	}, false), nil
}

func (m *Memory) UpdateRollback(ctx context.Context, _ pgx.Tx, id string, update database.RollbackUpdate) (*models.RollbackOperation, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	op, ok := m.rollbacks[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	op.Status = update.Status
	op.ErrorMessage = update.ErrorMessage
	op.CompletedAt = update.CompletedAt
	op.UpdatedAt = m.now()
	return copyRollback(op), nil
}

func (m *Memory) CreateMetrics(ctx context.Context, _ pgx.Tx, sample *models.DeploymentMetrics) error {
	if err := m.checkContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deployments[sample.DeploymentID]; !ok {
		return fmt.Errorf("%w: deployment_metrics_deployment_id_fkey", database.ErrForeignKey)
	}
	s := *sample
	m.metrics = append(m.metrics, &s)
	return nil
}

func (m *Memory) ListMetrics(ctx context.Context, _ pgx.Tx, deploymentID string, from, to time.Time) ([]*models.DeploymentMetrics, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var samples []*models.DeploymentMetrics
	for _, s := range m.metrics {
		if s.DeploymentID != deploymentID || s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		out := *s
		samples = append(samples, &out)
	}
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Timestamp.Before(samples[j].Timestamp)
	})
	return samples, nil
}

func copyAlert(a *models.DeploymentAlert) *models.DeploymentAlert {
	out := *a
	if a.ResolvedAt != nil {
		resolved := *a.ResolvedAt
		out.ResolvedAt = &resolved
	}
	return &out
}

func (m *Memory) CreateAlert(ctx context.Context, _ pgx.Tx, alert *models.DeploymentAlert) error {
	if err := m.checkContext(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.deployments[alert.DeploymentID]; !ok {
		return fmt.Errorf("%w: deployment_alerts_deployment_id_fkey", database.ErrForeignKey)
	}
	if _, ok := m.alerts[alert.ID]; ok {
		return fmt.Errorf("%w: deployment_alerts_pkey", database.ErrAlreadyExists)
	}
	m.alerts[alert.ID] = copyAlert(alert)
	m.stamp("alerts", alert.ID)
	return nil
}

func (m *Memory) ListAlerts(ctx context.Context, _ pgx.Tx, deploymentID string, acknowledged *bool) ([]*models.DeploymentAlert, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var alerts []*models.DeploymentAlert
	for _, a := range m.alerts {
		if a.DeploymentID != deploymentID {
			continue
		}
		if acknowledged != nil && a.Acknowledged != *acknowledged {
			continue
		}
		alerts = append(alerts, copyAlert(a))
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].TriggeredAt.Equal(alerts[j].TriggeredAt) {
			return m.newer("alerts", alerts[i].ID, alerts[j].ID)
		}
		return alerts[i].TriggeredAt.After(alerts[j].TriggeredAt)
	})
	return alerts, nil
}

func (m *Memory) AcknowledgeAlert(ctx context.Context, _ pgx.Tx, id string) (*models.DeploymentAlert, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	a.Acknowledged = true
	return copyAlert(a), nil
}

func (m *Memory) ResolveAlert(ctx context.Context, _ pgx.Tx, id string, resolvedAt time.Time) (*models.DeploymentAlert, error) {
	if err := m.checkContext(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.alerts[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	a.ResolvedAt = &resolvedAt
	return copyAlert(a), nil
}

func (m *Memory) Close() error {
	return nil
}

package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/agentregistry-dev/modelregistry/pkg/models"
)

func TestLocalRuntime_DeployAndVerify(t *testing.T) {
	ctx := context.Background()
	r := NewLocalRuntime(zaptest.NewLogger(t))
	r.SetDeployedVersion("dep-1", "v2")

	ok, err := r.CheckDeployedVersion(ctx, "dep-1", "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	cfg := ResolveRollbackConfig(
		&models.Deployment{Config: models.DeploymentConfig{Replicas: 3}},
		&models.ModelVersion{ID: "v1", ModelID: "m", Version: "1.0.0", ArtifactURI: "s3://models/m/1.0.0"},
	)
	require.NoError(t, r.DeployVersion(ctx, "dep-1", "v1", cfg))

	ok, err = r.CheckDeployedVersion(ctx, "dep-1", "v1")
	require.NoError(t, err)
	assert.True(t, ok)

	v, found := r.DeployedVersion("dep-1")
	assert.True(t, found)
	assert.Equal(t, "v1", v)

	calls := r.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, OpDeploy, calls[1].Op)
	require.NotNil(t, calls[1].Config)
	assert.True(t, calls[1].Config.Rollback)
	assert.Equal(t, 3, calls[1].Config.Replicas)
	assert.Equal(t, "s3://models/m/1.0.0", calls[1].Config.ArtifactURI)
}

func TestLocalRuntime_Traffic(t *testing.T) {
	ctx := context.Background()
	r := NewLocalRuntime(nil)

	require.NoError(t, r.ShiftTraffic(ctx, "dep-1", 0))
	w, ok := r.TrafficWeight("dep-1")
	assert.True(t, ok)
	assert.Zero(t, w)

	require.NoError(t, r.ShiftTraffic(ctx, "dep-1", 100))
	w, _ = r.TrafficWeight("dep-1")
	assert.InDelta(t, 100.0, w, 0.0001)

	assert.Error(t, r.ShiftTraffic(ctx, "dep-1", 150))
}

func TestLocalRuntime_Health(t *testing.T) {
	ctx := context.Background()
	r := NewLocalRuntime(nil)

	healthy, err := r.CheckHealth(ctx, "dep-1")
	require.NoError(t, err)
	assert.True(t, healthy)

	r.SetHealthy("dep-1", false)
	healthy, err = r.CheckHealth(ctx, "dep-1")
	require.NoError(t, err)
	assert.False(t, healthy)

	r.SetHealthy("dep-1", true)
	healthy, err = r.CheckHealth(ctx, "dep-1")
	require.NoError(t, err)
	assert.True(t, healthy)
}

func TestLocalRuntime_FailNext(t *testing.T) {
	ctx := context.Background()
	r := NewLocalRuntime(nil)
	r.FailNext(OpCheckHealth, 2)

	for i := 0; i < 2; i++ {
		_, err := r.CheckHealth(ctx, "dep-1")
		assert.ErrorIs(t, err, ErrInjected)
	}
	healthy, err := r.CheckHealth(ctx, "dep-1")
	require.NoError(t, err)
	assert.True(t, healthy)
}

func TestLocalRuntime_DeployDelayHonoursCancellation(t *testing.T) {
	r := NewLocalRuntime(nil)
	r.DeployDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.DeployVersion(ctx, "dep-1", "v1", ResolvedConfig{})
	assert.ErrorIs(t, err, context.Canceled)
	_, found := r.DeployedVersion("dep-1")
	assert.False(t, found)
}

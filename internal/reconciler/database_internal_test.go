package reconciler

import (
	"context"
	"testing"

	appsv1 "k8s.io/api/apps/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patr-cloud/patr-api/internal/db"
)

func TestDatabaseObjectNaming(t *testing.T) {
	assert.Equal(t, "db-sts-abc", dbStatefulSetName("abc"))
	assert.Equal(t, "db-svc-abc", dbServiceName("abc"))
	assert.Equal(t, "db-pvc-abc", dbPVCName("abc"))
}

func TestPlanStorage_KnownAndUnknownPlans(t *testing.T) {
	assert.Equal(t, "1Gi", planStorage("db-plan-nano"))
	assert.Equal(t, "50Gi", planStorage("db-plan-medium"))
	assert.Equal(t, "5Gi", planStorage("db-plan-does-not-exist"))
}

func TestDatabaseEngineCatalog_CoversEveryEngine(t *testing.T) {
	for _, engine := range []db.ManagedDatabaseEngine{db.EnginePostgres, db.EngineMySQL, db.EngineMongo, db.EngineRedis} {
		spec, ok := databaseEngineCatalog[engine]
		require.True(t, ok, "missing catalog entry for %s", engine)
		assert.NotEmpty(t, spec.Image)
		assert.NotZero(t, spec.Port)
		assert.NotEmpty(t, spec.PingCommand)
	}
}

func TestStatefulSetReady(t *testing.T) {
	replicas := int32(2)
	sts := &appsv1.StatefulSet{
		Spec:   appsv1.StatefulSetSpec{Replicas: &replicas},
		Status: appsv1.StatefulSetStatus{ReadyReplicas: 1},
	}
	assert.False(t, statefulSetReady(sts))

	sts.Status.ReadyReplicas = 2
	assert.True(t, statefulSetReady(sts))
}

func TestStatefulSetReady_DefaultsToOneReplicaWhenUnset(t *testing.T) {
	sts := &appsv1.StatefulSet{Status: appsv1.StatefulSetStatus{ReadyReplicas: 1}}
	assert.True(t, statefulSetReady(sts))
}

func TestGenerateDatabasePassword_IsNonEmptyAndVaries(t *testing.T) {
	a, err := generateDatabasePassword()
	require.NoError(t, err)
	b, err := generateDatabasePassword()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestProvisionDatabase_RequiresDatabaseProvisioningConfigured(t *testing.T) {
	r := New(nil, nil, zap.NewNop())
	err := r.ProvisionDatabase(context.Background(), "db-1")
	require.Error(t, err)
}

func TestProvisionDatabase_UnknownEngineRejected(t *testing.T) {
	_, ok := databaseEngineCatalog[db.ManagedDatabaseEngine("unknown")]
	assert.False(t, ok)
}

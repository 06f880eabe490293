package helm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patr-cloud/patr-api/internal/helm"
)

func TestLoadManagedDatabaseChart(t *testing.T) {
	ch, err := helm.LoadManagedDatabaseChart()
	require.NoError(t, err)
	require.NotNil(t, ch)

	assert.Equal(t, "managed-database", ch.Metadata.Name)

	names := make(map[string]bool, len(ch.Templates))
	for _, tpl := range ch.Templates {
		names[tpl.Name] = true
	}
	assert.True(t, names["templates/statefulset.yaml"])
	assert.True(t, names["templates/service.yaml"])
	assert.True(t, names["templates/pvc.yaml"])
	assert.True(t, names["templates/secret.yaml"])
}

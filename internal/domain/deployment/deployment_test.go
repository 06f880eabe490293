package deployment_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	deployment "github.com/patr-cloud/patr-api/internal/domain/deployment"
)

func TestUpdateRequest_IsEmpty(t *testing.T) {
	assert.True(t, deployment.UpdateRequest{}.IsEmpty())

	name := "new-name"
	assert.False(t, deployment.UpdateRequest{Name: &name}.IsEmpty())

	probe := &deployment.Probe{Port: 8080}
	assert.False(t, deployment.UpdateRequest{StartupProbe: probe}.IsEmpty())
}

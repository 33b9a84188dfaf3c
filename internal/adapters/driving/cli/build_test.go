package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/tmsearch/internal/core/domain"
)

func TestBuildCmd_PrintsReport(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	buildService = &mockBuildService{report: domain.BuildReport{
		BuildID:   "b-1",
		Documents: 5,
		Dimension: 100,
		Degraded:  []int{4},
		Reused:    []domain.ArtifactKind{domain.ArtifactModel},
		Computed:  []domain.ArtifactKind{domain.ArtifactVectors, domain.ArtifactIndex},
	}}

	out, err := execute(t, "build")

	require.NoError(t, err)
	assert.Contains(t, out, "Build b-1 complete")
	assert.Contains(t, out, "Documents: 5")
	assert.Contains(t, out, "Dimension: 100")
	assert.Contains(t, out, "Computed:  vectors, index")
	assert.Contains(t, out, "Reused:    model")
	assert.Contains(t, out, "1 segment(s) indexed as zero vectors [4]")
}

func TestBuildCmd_Error(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	buildService = &mockBuildService{err: errors.New("corpus unreadable")}

	_, err := execute(t, "build")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "build failed: corpus unreadable")
}

func TestBuildCmd_ServiceNotConfigured(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()
	buildService = nil

	_, err := execute(t, "build")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "build service not configured")
}

func TestBuildCmd_RejectsArgs(t *testing.T) {
	_, err := execute(t, "build", "extra")
	assert.Error(t, err)
}

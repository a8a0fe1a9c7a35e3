// cmd/tools/worker-generator/main_test.go
package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-pipeline/pkg/registry"
)

func lookup(t *testing.T, kind string) registry.KindSpec {
	reg, err := registry.Default()
	require.NoError(t, err)
	spec, ok := reg.Lookup(kind)
	require.True(t, ok, kind)
	return spec
}

// ==========================
// render
// ==========================

func TestRender_ArtifactKind(t *testing.T) {
	dir, files, err := render(lookup(t, "interview-kit-generate"))
	require.NoError(t, err)

	assert.Equal(t, "employer/interview-kit-generate", dir)
	require.Len(t, files, 3)

	models := string(files["models.go"])
	assert.Contains(t, models, "package interviewkitgenerate")
	assert.Regexp(t, `Generation\s+int64\s+`+"`json:\"generation\"`", models)
	assert.Regexp(t, `JobID\s+string\s+`+"`json:\"jobId\"`", models)

	handler := string(files["handler.go"])
	assert.Contains(t, handler, `TaskType = "interview-kit-generate"`)
	assert.Contains(t, handler, "func (h *Handler) RecordFailure(")
}

func TestRender_PlainKind(t *testing.T) {
	dir, files, err := render(lookup(t, "salary-prediction-invalidate"))
	require.NoError(t, err)

	assert.Equal(t, "salary/salary-prediction-invalidate", dir)
	assert.NotContains(t, string(files["handler.go"]), "RecordFailure")
	assert.Regexp(t, `UserID\s+string`, string(files["models.go"]))
}

func TestGoFieldName(t *testing.T) {
	tests := map[string]string{
		"jobId":       "JobID",
		"generation":  "Generation",
		"":            "",
		"candidateId": "CandidateID",
	}
	for in, want := range tests {
		assert.Equal(t, want, goFieldName(in), in)
	}
}

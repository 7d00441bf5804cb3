package onboarding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"onboardflow/backend/internal/repository"
	"onboardflow/backend/pkg/models"
)

func TestInstanceFromRecord(t *testing.T) {
	rec := &repository.Record{
		ID: "onboarding-u1",
		Data: map[string]any{
			"engine_id":     "onboarding-u1",
			"user_id":       "u1",
			"workflow_name": "onboarding",
			"current_step":  "discovery",
			"status":        "active",
			"context":       map[string]any{"shared": map[string]any{"locale": "en"}},
			"started_at":    "2026-08-30T10:00:00Z",
		},
	}

	inst := instanceFromRecord(rec)
	require.Equal(t, "u1", inst.UserID)
	require.Equal(t, "onboarding", inst.WorkflowName)
	require.Equal(t, "discovery", inst.CurrentStep)
	require.Equal(t, models.WorkflowStatusActive, inst.Status)
	require.NotNil(t, inst.StartedAt)
	require.Equal(t, time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), inst.StartedAt.UTC())
	require.Nil(t, inst.CompletedAt)
	require.Equal(t, map[string]any{"locale": "en"}, inst.Context["shared"])
}

func TestStringSliceHandlesDecodedJSON(t *testing.T) {
	// JSONB round-trips string slices as []any.
	require.Equal(t, []string{"a", "b"}, stringSlice([]any{"a", "b"}))
	require.Equal(t, []string{"a"}, stringSlice([]string{"a"}))
	require.Equal(t, []string{"a"}, stringSlice([]any{"a", 7}))
	require.Empty(t, stringSlice(nil))
	require.Empty(t, stringSlice("not a slice"))
}

func TestParseTime(t *testing.T) {
	require.Nil(t, parseTime(nil))
	require.Nil(t, parseTime(""))
	require.Nil(t, parseTime("yesterday"))
	require.NotNil(t, parseTime("2026-08-30T10:00:00Z"))
}

func TestServiceInstanceID(t *testing.T) {
	def := twoStepDefinition()
	s := &Service{def: &def}
	require.Equal(t, "onboarding-u1", s.InstanceID("u1"))
}

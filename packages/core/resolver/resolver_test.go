package resolver

import (
	"testing"

	"github.com/abdul-hamid-achik/flowspec/packages/datastore"
	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlaceholder(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		scenario string
		key      string
		ok       bool
	}{
		{"simple", "{sc1.jobId}", "sc1", "jobId", true},
		{"dashes and underscores", "{SCN-JOB_1.job-id_2}", "SCN-JOB_1", "job-id_2", true},
		{"inner whitespace", "{ sc1.jobId }", "sc1", "jobId", true},
		{"embedded", "Job {sc1.jobId}", "", "", false},
		{"trailing text", "{sc1.jobId} ok", "", "", false},
		{"missing key", "{sc1}", "", "", false},
		{"double braces", "{{sc1.jobId}}", "", "", false},
		{"nested path", "{sc1.job.id}", "", "", false},
		{"plain", "Alice", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario, key, ok := ParsePlaceholder(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.scenario, scenario)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestResolve_SubstitutesStoredOutput(t *testing.T) {
	store := datastore.New()
	require.NoError(t, store.Set("u1", "tc1", "sc1", "jobId", "482931"))

	r := NewResolver(store, "u1", "tc1")
	got, err := r.Resolve(map[string]any{
		"sc2_3": "{sc1.jobId}",
		"sc2_4": "kotlin, java",
	})

	require.NoError(t, err)
	assert.Equal(t, "482931", got["sc2_3"])
	assert.Equal(t, "kotlin, java", got["sc2_4"])
}

func TestResolve_LiteralMappingIsUnchanged(t *testing.T) {
	r := NewResolver(datastore.New(), "u1", "tc1")
	data := map[string]any{
		"sc1_0": "Alice",
		"sc1_1": []any{"a", "b"},
		"sc1_2": 42.0,
		"sc1_3": nil,
		"sc1_4": "Job {sc1.jobId}",
	}

	first, err := r.Resolve(data)
	require.NoError(t, err)
	assert.Equal(t, data, first)

	second, err := r.Resolve(first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolve_MissingOutputIsDeterministic(t *testing.T) {
	store := datastore.New()
	require.NoError(t, store.Set("u1", "tc1", "sc1", "present", "yes"))
	r := NewResolver(store, "u1", "tc1")

	inputs := []map[string]any{
		{"sc2_0": "{sc1.jobId}"},
		{"sc2_0": "{sc1.jobId}", "sc2_1": "literal"},
		{"sc2_0": "{sc1.jobId}", "sc2_1": "{sc1.present}", "sc2_2": 3},
	}

	for _, data := range inputs {
		got, err := r.Resolve(data)
		require.Error(t, err)
		assert.Nil(t, got)
		assert.True(t, flowerr.Is(err, flowerr.CodeMissingOutput))

		var fe *FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "sc2_0", fe.Field)
	}
}

func TestResolve_FirstFailingFieldInSortedOrder(t *testing.T) {
	r := NewResolver(datastore.New(), "u1", "tc1")

	for i := 0; i < 10; i++ {
		_, err := r.Resolve(map[string]any{
			"sc2_9": "{sc1.b}",
			"sc2_1": "{sc1.a}",
		})
		var fe *FieldError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "sc2_1", fe.Field)
	}
}

func TestResolveEach_ReportsPerField(t *testing.T) {
	store := datastore.New()
	require.NoError(t, store.Set("u1", "tc1", "sc1", "jobId", "7"))
	r := NewResolver(store, "u1", "tc1")

	resolved, failures := r.ResolveEach(map[string]any{
		"sc2_0": "{sc1.jobId}",
		"sc2_1": "{sc1.missing}",
		"sc2_2": "plain",
	})

	assert.Equal(t, map[string]any{"sc2_0": "7", "sc2_2": "plain"}, resolved)
	require.Len(t, failures, 1)
	assert.True(t, flowerr.Is(failures["sc2_1"], flowerr.CodeMissingOutput))
}

func TestResolve_ScopedToUserAndTestcase(t *testing.T) {
	store := datastore.New()
	require.NoError(t, store.Set("u2", "tc1", "sc1", "jobId", "other-user"))
	require.NoError(t, store.Set("u1", "tc9", "sc1", "jobId", "other-testcase"))

	_, err := NewResolver(store, "u1", "tc1").Resolve(map[string]any{"sc2_0": "{sc1.jobId}"})
	assert.True(t, flowerr.Is(err, flowerr.CodeMissingOutput))
}

func TestIsPlaceholder(t *testing.T) {
	assert.True(t, IsPlaceholder("{sc1.jobId}"))
	assert.False(t, IsPlaceholder("sc1.jobId"))
	assert.False(t, IsPlaceholder(12))
	assert.False(t, IsPlaceholder(nil))
}

package datastore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/abdul-hamid-achik/flowspec/packages/flowerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SetAndGet(t *testing.T) {
	s := New()
	require.NoError(t, s.Set("u1", "tc1", "sc1", "jobId", "482931"))

	v, err := s.Get("u1", "tc1", "sc1", "jobId")
	require.NoError(t, err)
	assert.Equal(t, "482931", v)

	require.NoError(t, s.Set("u1", "tc1", "sc1", "jobId", "100"))
	v, err = s.Get("u1", "tc1", "sc1", "jobId")
	require.NoError(t, err)
	assert.Equal(t, "100", v)
}

func TestStore_GetMissing(t *testing.T) {
	s := New()
	require.NoError(t, s.Set("u1", "tc1", "sc1", "jobId", "1"))

	tests := []struct {
		name                          string
		user, testcase, scenario, key string
	}{
		{"unknown key", "u1", "tc1", "sc1", "other"},
		{"unknown scenario", "u1", "tc1", "sc2", "jobId"},
		{"unknown testcase", "u1", "tc2", "sc1", "jobId"},
		{"unknown user", "u2", "tc1", "sc1", "jobId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Get(tt.user, tt.testcase, tt.scenario, tt.key)
			require.Error(t, err)
			assert.True(t, flowerr.Is(err, flowerr.CodeMissingOutput))
			assert.Contains(t, err.Error(), tt.scenario+"."+tt.key)
		})
	}
}

func TestStore_ResetIsolatesUsers(t *testing.T) {
	s := New()
	require.NoError(t, s.Set("u1", "tc1", "sc1", "k", "a"))
	require.NoError(t, s.Set("u2", "tc1", "sc1", "k", "b"))

	require.NoError(t, s.Reset("u1"))

	_, err := s.Get("u1", "tc1", "sc1", "k")
	assert.Error(t, err)

	v, err := s.Get("u2", "tc1", "sc1", "k")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestStore_RequiresUser(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Set("", "tc1", "sc1", "k", "v"), ErrUserRequired)
	assert.ErrorIs(t, s.Reset(""), ErrUserRequired)
}

func TestStore_GetAllReturnsCopy(t *testing.T) {
	s := New()
	require.NoError(t, s.Set("u1", "tc1", "sc1", "a", 1))
	require.NoError(t, s.Set("u1", "tc1", "sc1", "b", 2))

	all := s.GetAll("u1", "tc1", "sc1")
	assert.Equal(t, map[string]any{"a": 1, "b": 2}, all)

	all["c"] = 3
	_, err := s.Get("u1", "tc1", "sc1", "c")
	assert.Error(t, err)

	assert.Empty(t, s.GetAll("u1", "tc1", "nope"))
}

func TestStore_GetTestcase(t *testing.T) {
	s := New()
	require.NoError(t, s.Set("u1", "tc1", "sc1", "jobId", "7"))
	require.NoError(t, s.Set("u1", "tc1", "sc2", "name", "x"))
	require.NoError(t, s.Set("u1", "tc2", "sc1", "jobId", "8"))

	got := s.GetTestcase("u1", "tc1")
	assert.Equal(t, map[string]map[string]any{
		"sc1": {"jobId": "7"},
		"sc2": {"name": "x"},
	}, got)
}

func TestStore_ConcurrentTestcases(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tc := fmt.Sprintf("tc%d", i)
			_ = s.Set("u1", tc, "sc1", "k", i)
			_, _ = s.Get("u1", tc, "sc1", "k")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		v, err := s.Get("u1", fmt.Sprintf("tc%d", i), "sc1", "k")
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

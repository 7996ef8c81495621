package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/flowmill/flowmill/model"
	"github.com/stretchr/testify/require"
)

func newTestCache() *DefinitionCache {
	return NewDefinitionCache(NewMemoryBackend(16), time.Hour, 24*time.Hour)
}

func TestDefinitionCache(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, ch *DefinitionCache){
		"test plan round trip":              testPlanRoundTrip,
		"test definitions keyed by version": testDefinitionsKeyedByVersion,
		"test invalidate removes versions":  testInvalidateAllVersions,
		"test invalidate scoped":            testInvalidateScoped,
	} {
		t.Run(scenario, func(t *testing.T) {
			fn(t, newTestCache())
		})
	}
}

func testPlanRoundTrip(t *testing.T, ch *DefinitionCache) {
	_, found := ch.GetPlan("wf1", 1)
	require.False(t, found)

	ch.PutPlan("wf1", 1, []string{"A", "B", "C"})
	order, found := ch.GetPlan("wf1", 1)
	require.True(t, found)
	require.Equal(t, []string{"A", "B", "C"}, order)
}

// an engine caching an old pinned version must not shadow a newer one
func testDefinitionsKeyedByVersion(t *testing.T, ch *DefinitionCache) {
	ch.PutDefinition(&model.WorkflowDefinition{WorkflowId: "wf1", Version: 2})
	ch.PutDefinition(&model.WorkflowDefinition{WorkflowId: "wf1", Version: 1})

	def, found := ch.GetDefinition("wf1", 2)
	require.True(t, found)
	require.Equal(t, 2, def.Version)

	def, found = ch.GetDefinition("wf1", 1)
	require.True(t, found)
	require.Equal(t, 1, def.Version)
}

func testInvalidateAllVersions(t *testing.T, ch *DefinitionCache) {
	ch.PutDefinition(&model.WorkflowDefinition{WorkflowId: "wf1", Version: 3})
	ch.PutPlan("wf1", 1, []string{"A"})
	ch.PutPlan("wf1", 2, []string{"A", "B"})
	ch.PutPlan("wf1", 3, []string{"A", "B", "C"})

	ch.Invalidate("wf1")

	_, found := ch.GetDefinition("wf1", 3)
	require.False(t, found)
	for version := 1; version <= 3; version++ {
		_, found := ch.GetPlan("wf1", version)
		require.False(t, found)
	}
}

func testInvalidateScoped(t *testing.T, ch *DefinitionCache) {
	ch.PutPlan("wf1", 1, []string{"A"})
	ch.PutPlan("wf2", 1, []string{"X"})

	ch.Invalidate("wf1")

	_, found := ch.GetPlan("wf1", 1)
	require.False(t, found)
	order, found := ch.GetPlan("wf2", 1)
	require.True(t, found)
	require.Equal(t, []string{"X"}, order)
}

type brokenBackend struct{}

func (brokenBackend) Get(string, string) ([]byte, error) {
	return nil, errors.New("backend unreachable")
}

func (brokenBackend) Set(string, string, []byte, time.Duration) error {
	return errors.New("backend unreachable")
}

func (brokenBackend) InvalidateWorkflow(string) error {
	return errors.New("backend unreachable")
}

func TestBackendFailureDegradesToMiss(t *testing.T) {
	ch := NewDefinitionCache(brokenBackend{}, time.Hour, 24*time.Hour)

	ch.PutPlan("wf1", 1, []string{"A"})
	_, found := ch.GetPlan("wf1", 1)
	require.False(t, found)

	ch.PutDefinition(&model.WorkflowDefinition{WorkflowId: "wf1", Version: 1})
	_, found = ch.GetDefinition("wf1", 1)
	require.False(t, found)

	// must not panic or propagate
	ch.Invalidate("wf1")
}

func TestMemoryBackendEvictsOldestFirst(t *testing.T) {
	b := NewMemoryBackend(2)
	require.NoError(t, b.Set("wf1", "plan:1", []byte("one"), time.Hour))
	require.NoError(t, b.Set("wf2", "plan:1", []byte("two"), time.Hour))
	require.NoError(t, b.Set("wf3", "plan:1", []byte("three"), time.Hour))

	_, err := b.Get("wf1", "plan:1")
	require.ErrorIs(t, err, ErrCacheMiss)

	val, err := b.Get("wf2", "plan:1")
	require.NoError(t, err)
	require.Equal(t, []byte("two"), val)

	val, err = b.Get("wf3", "plan:1")
	require.NoError(t, err)
	require.Equal(t, []byte("three"), val)
}

func TestMemoryBackendOverwriteKeepsSlot(t *testing.T) {
	b := NewMemoryBackend(2)
	require.NoError(t, b.Set("wf1", "def", []byte("v1"), time.Hour))
	require.NoError(t, b.Set("wf1", "def", []byte("v2"), time.Hour))
	require.NoError(t, b.Set("wf2", "def", []byte("x"), time.Hour))

	val, err := b.Get("wf1", "def")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), val)
}

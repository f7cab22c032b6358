package stages

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warehousepulse/warehousepulse/pkg/dataset"
)

func newTestHandoff(ttl time.Duration) (*Handoff, *time.Time) {
	now := time.Date(2024, 6, 1, 2, 0, 0, 0, time.UTC)
	h := NewHandoff(ttl)
	h.now = func() time.Time { return now }
	return h, &now
}

func TestHandoff_PutGet(t *testing.T) {
	h, _ := newTestHandoff(time.Hour)
	h.Put("extract", dataset.Dataset{{"warehouse_id": "W1"}})

	got, ok := h.Get("extract")
	require.True(t, ok)
	require.Len(t, got, 1)

	got[0]["warehouse_id"] = "changed"
	again, _ := h.Get("extract")
	assert.Equal(t, "W1", again[0]["warehouse_id"], "Get returns a copy")

	_, ok = h.Get("transform")
	assert.False(t, ok)
}

func TestHandoff_TTL(t *testing.T) {
	h, now := newTestHandoff(time.Hour)
	h.Put("extract", dataset.Dataset{{"a": int64(1)}})
	h.Put("transform", dataset.Dataset{{"a": int64(1)}, {"a": int64(2)}})

	outs := h.Outputs()
	require.Len(t, outs, 2)
	assert.Equal(t, "extract", outs[0].Stage)
	assert.Equal(t, 2, outs[1].Rows)

	*now = now.Add(time.Hour)
	_, ok := h.Get("extract")
	assert.False(t, ok, "an entry exactly one TTL old is expired")
	assert.Empty(t, h.Outputs())

	assert.Equal(t, 2, h.Evict(*now))
	assert.Equal(t, 0, h.Evict(*now))
}

func TestHandoff_Delete(t *testing.T) {
	h, _ := newTestHandoff(time.Hour)
	h.Put("kpi", dataset.Dataset{})
	h.Delete("kpi")
	_, ok := h.Get("kpi")
	assert.False(t, ok)
}

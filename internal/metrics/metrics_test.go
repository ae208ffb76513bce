package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.Observe("add", "DJ", ResultChanged)
	c.Observe("add", "DJ", ResultChanged)
	c.Observe("remove", "DIEUX", ResultRejected)
	c.SetMembers("DJ", 2)
	c.SetDirty(true)
	c.PublishFailed()
	c.ObserveSave(20 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("add", "DJ", ResultChanged)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requestsTotal.WithLabelValues("remove", "DIEUX", ResultRejected)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.rosterMembers.WithLabelValues("DJ")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dirty))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.publishFailures))

	c.SetDirty(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.dirty))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP wperm_publish_failures_total Saves whose file write succeeded but publish failed
# TYPE wperm_publish_failures_total counter
wperm_publish_failures_total 1
`), "wperm_publish_failures_total")
	require.NoError(t, err)
}

func TestNew_NilRegistry(t *testing.T) {
	// Two collectors with private registries do not collide.
	New(nil).Observe("add", "BAR", ResultNoop)
	New(nil).Observe("add", "BAR", ResultNoop)
}

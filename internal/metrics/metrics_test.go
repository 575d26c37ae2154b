package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/jarscout/internal/archive"
	"github.com/mattjoyce/jarscout/internal/workqueue"
)

func TestObserverUpdatesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	o := m.Observer()

	o.OnEnqueue(workqueue.Item{ID: 1, Kind: "scan"})
	o.OnEnqueue(workqueue.Item{ID: 2, Kind: "entry"})
	o.OnEnqueue(workqueue.Item{ID: 3, Kind: workqueue.KindStop})
	o.OnFinished(workqueue.Item{ID: 1, Kind: "scan"})
	o.OnScanRequested("/r")
	o.OnExtracted(archive.Listing{Path: "/r/a.jar", Entries: []string{"A.class", "B.class"}})
	o.OnExtracted(archive.Listing{Path: "/r/b.jar"})
	o.OnExtractionFailed("/r/c.jar", errors.New("corrupt"))
	o.OnStandalone("/r/X.class")
	o.OnItemFailed(workqueue.Item{Kind: "entry"}, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansRequested))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArchivesListed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArchivesFailed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClassesListed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StandaloneFound))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ItemFailures.WithLabelValues("entry")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["jarscout_archive_classes"])
	assert.True(t, names["jarscout_pipeline_active_items"])
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}

package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vistara-analytics/pkg/metrics"
	"vistara-analytics/pkg/stats"
)

type fixedRates struct {
	snap stats.Snapshot
}

func (f fixedRates) Latest() stats.Snapshot { return f.snap }

func TestCollector(t *testing.T) {
	reg := stats.NewRegistry(2)
	reg.AddDecoded(stats.StageDetection, 0, 10)
	reg.AddProcessed(stats.StageDetection, 0, 9)
	reg.IncFailed(stats.StageDetection, 0)
	reg.AddProcessed(stats.StageFeature, 1, 4)
	reg.IncSkipped(1)

	rates := stats.Snapshot{Channels: []stats.ChannelSnapshot{{DetectionFPS: 12.5}, {Channel: 1, FeatureFPS: 2}}}

	c := metrics.NewCollector(reg, fixedRates{snap: rates})
	c.SetActiveCards(3)

	expected := `
# HELP vsa_items_processed_total Items that completed a stage.
# TYPE vsa_items_processed_total counter
vsa_items_processed_total{channel="0",stage="detection"} 9
vsa_items_processed_total{channel="0",stage="feature"} 0
vsa_items_processed_total{channel="1",stage="detection"} 0
vsa_items_processed_total{channel="1",stage="feature"} 4
# HELP vsa_channel_fps Processing rate over the last report interval.
# TYPE vsa_channel_fps gauge
vsa_channel_fps{channel="0",stage="detection"} 12.5
vsa_channel_fps{channel="0",stage="feature"} 0
vsa_channel_fps{channel="1",stage="detection"} 0
vsa_channel_fps{channel="1",stage="feature"} 2
# HELP vsa_frames_skipped_total Frames not submitted because of the skip interval.
# TYPE vsa_frames_skipped_total counter
vsa_frames_skipped_total{channel="0"} 0
vsa_frames_skipped_total{channel="1"} 1
# HELP vsa_cards_active Cards whose pipeline is running.
# TYPE vsa_cards_active gauge
vsa_cards_active 3
`

	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"vsa_items_processed_total", "vsa_channel_fps", "vsa_frames_skipped_total", "vsa_cards_active")
	require.NoError(t, err)

	assert.Equal(t, 2*2*5+2+1, testutil.CollectAndCount(c))
}

func TestHandler(t *testing.T) {
	reg := stats.NewRegistry(1)
	reg.AddDecoded(stats.StageDetection, 0, 7)

	srv := httptest.NewServer(metrics.Handler(metrics.NewRegistry(metrics.NewCollector(reg, nil))))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `vsa_items_decoded_total{channel="0",stage="detection"} 7`)
	assert.Contains(t, string(body), "go_goroutines")
}

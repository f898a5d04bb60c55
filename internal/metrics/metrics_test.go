package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"cipherline/internal/metrics"
)

func TestNilMetrics_NoPanic(t *testing.T) {
	var m *metrics.Metrics
	m.FrameReceived("message")
	m.FrameError("decode")
	m.DecryptFailed()
	m.GroupKeyResolved("generated")
	m.WrapPublished(false)
	m.SetQueueDepth(3)
	m.UnreadResynced()
	m.EventDropped()
}

func TestHandler_ExposesCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.FrameReceived("new_message")
	m.GroupKeyResolved("cache_hit")
	m.WrapPublished(true)

	srv := httptest.NewServer(metrics.Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	for _, want := range []string{
		`cipherline_channel_frames_received_total{type="new_message"} 1`,
		`cipherline_groupkey_resolutions_total{outcome="cache_hit"} 1`,
		`cipherline_groupkey_wraps_total{result="ok"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("missing %q in\n%s", want, body)
		}
	}
}

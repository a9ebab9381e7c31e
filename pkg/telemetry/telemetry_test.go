package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/sharesphere/spherecore/pkg/config"
)

func TestInitDisabled(t *testing.T) {
	shutdown, err := Init(&config.TelemetryConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	shutdown()

	ctx, span := StartSpan(context.Background(), "test")
	EndSpan(span, errors.New("boom"))
	if ctx == nil {
		t.Error("StartSpan() returned nil context")
	}

	RecordOperation(ctx, "cast_vote", "conflict")
	RecordVote(ctx, "cast")
	RecordNotification(ctx, "comment_reply")
}

func TestMetricsServer(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.TelemetryConfig
		wantAddr string
	}{
		{name: "telemetry off", cfg: config.TelemetryConfig{Enabled: false, PrometheusEnabled: true, PrometheusPort: 9090}},
		{name: "prometheus off", cfg: config.TelemetryConfig{Enabled: true, PrometheusEnabled: false, PrometheusPort: 9090}},
		{name: "on", cfg: config.TelemetryConfig{Enabled: true, PrometheusEnabled: true, PrometheusPort: 9191}, wantAddr: "127.0.0.1:9191"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := MetricsServer(&tt.cfg, "127.0.0.1")
			if tt.wantAddr == "" {
				if srv != nil {
					t.Errorf("MetricsServer() = %v, want nil", srv.Addr)
				}
				return
			}
			if srv == nil || srv.Addr != tt.wantAddr {
				t.Errorf("MetricsServer() = %v, want addr %s", srv, tt.wantAddr)
			}
		})
	}
}

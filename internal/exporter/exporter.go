// Package exporter renders team metrics in the Prometheus text format so a
// node_exporter textfile collector can scrape them.
package exporter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kingrea/timeless/internal/model"
)

const (
	namespace = "timeless"
	subsystem = "team"
)

func gauge(name, help string, value float64) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
	g.Set(value)
	return g
}

// Collectors builds one gauge per metric of the snapshot plus the member count.
func Collectors(metrics model.TeamMetrics, members int) []prometheus.Collector {
	concerning := 0.0
	if metrics.HasConcerningMetrics() {
		concerning = 1
	}
	return []prometheus.Collector{
		gauge("health_score", "Team health score from 0 to 10", metrics.HealthScore()),
		gauge("active_members", "Active members in the latest snapshot", float64(metrics.ActiveMembers)),
		gauge("completed_tasks", "Tasks completed in the latest snapshot", float64(metrics.CompletedTasks)),
		gauge("blockers", "Open blockers in the latest snapshot", float64(metrics.BlockersCount)),
		gauge("average_satisfaction", "Average satisfaction from 0 to 10", metrics.AverageSatisfaction),
		gauge("velocity", "Team velocity in the latest snapshot", metrics.Velocity),
		gauge("concerning", "1 when the latest snapshot needs attention", concerning),
		gauge("members_total", "Team members on record", float64(members)),
		gauge("metrics_timestamp_seconds", "Date of the latest snapshot as a unix timestamp", float64(metrics.Date.Unix())),
	}
}

// WriteTextfile writes the snapshot to path, creating parent directories.
func WriteTextfile(path string, metrics model.TeamMetrics, members int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("exporter: ensure dir: %w", err)
	}
	reg := prometheus.NewRegistry()
	for _, c := range Collectors(metrics, members) {
		if err := reg.Register(c); err != nil {
			return fmt.Errorf("exporter: register: %w", err)
		}
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("exporter: write %s: %w", path, err)
	}
	return nil
}

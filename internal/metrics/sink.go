package metrics

import (
	"context"
	"time"

	"realtime-service/internal/db"
	"realtime-service/internal/logging"
	"realtime-service/internal/models"
)

// PostgresSink writes connection metrics to the connection_metrics table.
// Record is fire-and-forget: writes happen on their own goroutine and
// failures are logged, never surfaced.
type PostgresSink struct {
	db     *db.DB
	logger *logging.Logger
}

func NewPostgresSink(database *db.DB, logger *logging.Logger) *PostgresSink {
	return &PostgresSink{db: database, logger: logger}
}

func (s *PostgresSink) Record(m models.ConnectionMetric) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.db.InsertConnectionMetric(ctx, m); err != nil {
			s.logger.Warnf("Connection metric write failed: %v", err)
		}
	}()
}

// NopSink discards every record. Used in tests.
type NopSink struct{}

func (NopSink) Record(models.ConnectionMetric) {}

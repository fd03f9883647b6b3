package server

import (
	"context"
	"fmt"
	"time"

	"github.com/aesdlogd/aesdlogd/internal/constants"
	"github.com/aesdlogd/aesdlogd/internal/logging"
)

// TimestampProducer is the periodic timestamp writer (TS, spec.md §4.7):
// file-mode only, wakes every constants.TimestampPollInterval up to
// constants.TimestampPeriod, checking ctx for cancellation each tick, then
// appends a formatted line under the file sink's own lock.
type TimestampProducer struct {
	sink   *FileSink
	logger *logging.Logger
}

// NewTimestampProducer returns a producer appending to sink.
func NewTimestampProducer(sink *FileSink, logger *logging.Logger) *TimestampProducer {
	if logger == nil {
		logger = logging.Default()
	}
	return &TimestampProducer{sink: sink, logger: logger}
}

// Run blocks until ctx is canceled, appending one timestamp line every
// constants.TimestampPeriod.
func (t *TimestampProducer) Run(ctx context.Context) {
	ticker := time.NewTicker(constants.TimestampPollInterval)
	defer ticker.Stop()

	var elapsed time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			elapsed += constants.TimestampPollInterval
			if elapsed < constants.TimestampPeriod {
				continue
			}
			elapsed = 0

			line := fmt.Sprintf("timestamp:%s\n", time.Now().Format(constants.TimestampLayout))
			if err := t.sink.AppendTimestamp(line); err != nil {
				t.logger.WithError(err).Warn("failed to append timestamp")
			}
		}
	}
}

package telemetry

import (
	"context"
	"log/slog"

	"github.com/mklimuk/spectral/as7265x"
)

// LogSink writes every frame to the log. It stands in for the broker when no
// broker is configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{log: logger.With("sink", "log")}
}

func (s *LogSink) Publish(_ context.Context, frame as7265x.Frame) error {
	data, err := Encode(frame)
	if err != nil {
		return err
	}
	s.log.Info("frame", "telemetry", string(data), "timestamp", frame.Timestamp)
	return nil
}

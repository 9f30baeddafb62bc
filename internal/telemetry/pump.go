package telemetry

import "log/slog"

// Sink consumes telemetry messages.
type Sink interface {
	Write(Message) error
}

// Pump forwards every message from src to each sink until src is closed or a
// stop message arrives. A failing sink is logged and skipped for the rest of
// the run; the others keep receiving.
func Pump(src <-chan Message, sinks ...Sink) {
	failed := make([]bool, len(sinks))
	for m := range src {
		for i, s := range sinks {
			if failed[i] {
				continue
			}
			if err := s.Write(m); err != nil {
				slog.Warn("telemetry sink failed", "sink", i, "kind", m.Kind, "error", err)
				failed[i] = true
			}
		}
		if m.Kind == KindStop {
			return
		}
	}
}

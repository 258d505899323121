// Package telemetry provides the observability stack for the entity runtime:
// structured logging via zerolog, Prometheus metrics for entity operations
// and cache effectiveness, OpenTelemetry tracing around action dispatch and
// lifecycle transitions, and an event publisher for entity lifecycle events.
//
// The core library stays silent by default; callers construct a Telemetry
// instance from a Config and wire it into the runtime explicitly.
//
// Usage:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer tel.Shutdown(ctx)
//
//	log := tel.Logger.Component("runtime")
//	log.Info("Runtime starting")
package telemetry

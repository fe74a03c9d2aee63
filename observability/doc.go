// Package observability reports nitai's runtime behavior through
// OpenTelemetry: task and resource counters, request durations, and a span
// per outgoing request or WebSocket handshake.
//
// Instruments are created on the global providers by default. An embedding
// application wires its own exporter:
//
//	tp := observability.InitTracer(observability.DefaultTracerConfig("crawler"), exporter)
//	defer tp.Shutdown(ctx)
//
//	mp := observability.InitMeter(observability.DefaultMeterConfig("crawler"), reader)
//	defer mp.Shutdown(ctx)
//
// Tests swap the instruments with SetDefault(NewMetrics(meter)).
package observability

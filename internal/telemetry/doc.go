// Package telemetry exports gitmem traces and metrics over OTLP.
//
// Export is opt-in. With the default configuration New returns an instance
// backed by the global no-op providers, so instrumented code pays nothing:
//
//	tel, err := telemetry.New(ctx, cfg.Telemetry, logger)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// When enabled, New installs the SDK providers as the otel globals. The
// memory engine and both servers obtain their tracers and meters from those
// globals.
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sampling:
//	    rate: 0.25
//
// Exporter failures never stop the process. The instance is marked degraded
// and the failure is logged.
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry

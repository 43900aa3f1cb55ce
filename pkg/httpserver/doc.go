// Package httpserver runs an http.Handler with graceful shutdown driven by a
// context.
//
//	var cfg httpserver.Config
//	config.MustLoad(&cfg)
//
//	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
//	defer stop()
//
//	srv := httpserver.New(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// HealthCheckHandler serves liveness (no checks) and readiness (all checks
// must pass) probes.
package httpserver

// Package logger builds slog loggers for the service.
//
// Loggers write JSON or text to stderr and decorate every record with values
// pulled from the call context:
//
//	log := logger.New(
//		logger.WithEnvironment(environment.Parse(os.Getenv("APP_ENV")), "ghlmux"),
//		logger.WithContextExtractors(tenant.LoggerExtractor(), requestid.LoggerExtractor()),
//	)
//	log.InfoContext(ctx, "tool called", logger.Tool("get_contact"))
package logger

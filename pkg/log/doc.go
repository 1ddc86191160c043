/*
Package log provides structured logging for ridgeline using zerolog.

A global Logger is configured once via Init with a level, an output
format (JSON for production, console for development), and a
destination writer. Component- and entity-scoped child loggers are
created with WithComponent, WithWorkloadID, WithInstanceID, and
WithWorkerHostname so call sites don't repeat field names.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	schedLog := log.WithComponent("scheduler")
	schedLog.Info().Msg("scheduler starting")

	instLog := log.WithWorkloadID(workloadID).With().Str("instance_id", instanceID).Logger()
	instLog.Error().Err(err).Msg("instance failed to start")
*/
package log

// Package logging sets up slog for pzmanager.
//
// Every module gets its own logger with a level that can be overridden per
// module in config:
//
//	[logging]
//	level = "info"
//	format = "text"
//	buffer_size = 1000
//
//	[logging.modules]
//	console = "warn"
//	supervisor = "debug"
//
// Records go to stdout, to the systemd journal when journald is running,
// and to an in-memory ring buffer that backs the log stream endpoint.
// Loggers for a single game server carry a server_id attribute:
//
//	logger := logging.ServerLogger("supervisor", "main")
//
// which makes them filterable in the journal:
//
//	journalctl -t pzmanager SERVER_ID=main
package logging

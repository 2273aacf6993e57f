package main

import (
	"io"
	"log/syslog"
)

// newSyslogWriter opens a connection to the local syslog daemon for
// non-interactive runs, matching the original's use of Python's
// logging.handlers.SysLogHandler when stdout is not a TTY.
func newSyslogWriter() (io.Writer, error) {
	return syslog.New(syslog.LOG_INFO|syslog.LOG_DAEMON, "deimos")
}

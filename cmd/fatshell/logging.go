package main

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

var (
	defaultLogFormatter = &log.TextFormatter{}
)

// infoFormatter prints Info() events as bare messages so normal output isn't
// cluttered with timestamps and levels.
type infoFormatter struct {
}

func (f *infoFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Level == log.InfoLevel {
		return append([]byte(entry.Message), '\n'), nil
	}
	return defaultLogFormatter.Format(entry)
}

// setupLogging configures `logger` once the flags have been parsed. Verbosity 0
// only shows errors, 1 adds informational messages, 2 adds debug output and 3
// traces everything.
func setupLogging(logger *log.Logger, verbose int, verboseSet bool) error {
	logger.SetFormatter(new(infoFormatter))
	logger.SetLevel(log.InfoLevel)

	switch verbose {
	case 0:
		logger.SetLevel(log.ErrorLevel)
	case 1:
		if verboseSet {
			logger.SetFormatter(defaultLogFormatter)
		}
		logger.SetLevel(log.InfoLevel)
	case 2:
		logger.SetFormatter(defaultLogFormatter)
		logger.SetLevel(log.DebugLevel)
	case 3:
		logger.SetFormatter(defaultLogFormatter)
		logger.SetLevel(log.TraceLevel)
	default:
		return errors.New("verbose flag can only be set to 0, 1, 2 or 3")
	}
	return nil
}

// logging.go - default structured logger, per the teacher's compat.go
// SetLogger but promoted to a first-class ambient concern rather than a
// package-level global.
package erp

import (
	"os"

	"github.com/rs/zerolog"
)

// NewDefaultLogger returns a console-writer zerolog.Logger at Info level,
// the console-writer idiom zerolog itself recommends for development; use a
// JSON writer in production by constructing a zerolog.Logger directly and
// passing it to NewEnvironment/Application instead.
func NewDefaultLogger() zerolog.Logger {
	writer := zerolog.ConsoleWriter{Out: os.Stderr}
	return zerolog.New(writer).With().Timestamp().Logger().Level(zerolog.InfoLevel)
}

// Package mainboilerplate contains shared logging and argument-parsing glue
// used by binary mains of the project.
package mainboilerplate

import (
	"os"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
)

// LogConfig configures the logging appearance of a binary.
type LogConfig struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" choice:"fatal" description:"Logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"json" choice:"text" description:"Logging output format"`
}

// InitLog applies the LogConfig to the logrus package-level logger.
func InitLog(cfg LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if lvl, err := log.ParseLevel(cfg.Level); err != nil {
		log.WithField("err", err).Fatal("failed to parse log level")
	} else {
		log.SetLevel(lvl)
	}
}

// Must logs |msg| at fatal level, exiting the process, if |err| is non-nil. |extra| are field key /
// value pairs attached to the logged message.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var fields = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		fields[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(fields).Fatal(msg)
}

// MustParseArgs parses the process arguments against |parser|, exiting on
// failure (go-flags prints usage itself).
func MustParseArgs(parser *flags.Parser) {
	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}
}

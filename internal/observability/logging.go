package observability

import (
	"os"

	"github.com/sirupsen/logrus"
)

// SetupLogger configures the global logrus logger. Production gets JSON
// output, everything else the text formatter with full timestamps.
func SetupLogger(appName, level string, production bool) *logrus.Entry {
	if production {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	logrus.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		logrus.WithField("level", level).Warn("Unknown log level, using info")
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	return logrus.WithField("app", appName)
}

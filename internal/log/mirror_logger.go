package log

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
)

// mirrorLogFile is the name of the trace sink inside the configured log
// directory. Every line of captured transfer output ends up here.
const mirrorLogFile = "gitmirror.log"

// NewMirrorLogger creates a file logger, since both stderr and stdout of this
// process are visible to the operator driving a transfer. When dir is empty
// the returned logger discards everything.
func NewMirrorLogger(dir string) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.Formatter = &logrus.JSONFormatter{TimestampFormat: TimestampFormat}

	if dir == "" {
		logger.SetOutput(ioutil.Discard)
		return logger, nil
	}

	logFile, err := os.OpenFile(filepath.Join(dir, mirrorLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	logger.SetOutput(logFile)

	runtime.SetFinalizer(logFile, func(f *os.File) {
		f.Close()
	})

	return logger, nil
}

package logging

import (
    "fmt"
    "io"
    "os"
    "path/filepath"
    "runtime"
    "strings"
    "time"

    "github.com/sirupsen/logrus"
)

// Log is the application wide logger configured with JSON output.
var Log = logrus.New()

type contextHook struct{}

func (contextHook) Levels() []logrus.Level { return logrus.AllLevels }

func packageFromFunc(fn string) string {
    if i := strings.LastIndex(fn, "/"); i >= 0 {
        fn = fn[i+1:]
    }
    if i := strings.Index(fn, "."); i >= 0 {
        return fn[:i]
    }
    return fn
}

func (contextHook) Fire(e *logrus.Entry) error {
    if e.Caller == nil {
        return nil
    }
    pkg := packageFromFunc(e.Caller.Function)
    file := fmt.Sprintf("%s:%d", filepath.Base(e.Caller.File), e.Caller.Line)
    e.Data["package"] = pkg
    e.Data["file"] = file
    return nil
}

func init() {
    configure(Log, "pps-server.log", os.Getenv("PPS_LOG_LEVEL"))
}

// Init reconfigures Log for an entity process rooted at dataDir, writing
// pps-server.log inside it in addition to stdout. Call once from each
// cmd/ entrypoint's main before anything logs.
func Init(dataDir, level string) {
    logPath := filepath.Join(dataDir, "pps-server.log")
    configure(Log, logPath, level)
}

func configure(l *logrus.Logger, logPath, levelStr string) {
    l.SetReportCaller(true)
    l.SetFormatter(&logrus.JSONFormatter{
        TimestampFormat: time.RFC3339Nano,
        CallerPrettyfier: func(f *runtime.Frame) (string, string) {
            function := filepath.Base(f.Function)
            file := fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
            return function, file
        },
    })
    l.Hooks = make(logrus.LevelHooks)
    l.AddHook(contextHook{})

    logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
    if err != nil {
        l.SetOutput(os.Stdout)
    } else {
        mw := io.MultiWriter(os.Stdout, logFile)
        l.SetOutput(mw)
    }

    if levelStr == "" {
        levelStr = "info"
    }
    if lvl, err := logrus.ParseLevel(levelStr); err == nil {
        l.SetLevel(lvl)
    } else {
        l.SetLevel(logrus.InfoLevel)
    }
}


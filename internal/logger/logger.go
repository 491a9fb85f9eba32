package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rivo/tview"
)

type Level int

const (
	Info Level = iota
	Warn
	Error
	Fatal
)

func (l Level) String() string {
	switch l {
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

type entry struct {
	timestamp time.Time
	tag       string
	level     Level
	message   string
}

// Logger writes tagged log lines to the in-app debug console (dev mode) and
// to an optional log file through a background writer.
type Logger struct {
	view    *tview.TextView
	tag     string
	dev     bool
	logFile *os.File
	logChan chan entry
}

var (
	root *Logger
	once sync.Once
)

// InitLogger sets up the shared sinks. view may be nil when running without
// the debug console.
func InitLogger(dev bool, logPath string, view *tview.TextView) {
	once.Do(func() {
		root = &Logger{
			view:    view,
			dev:     dev,
			logChan: make(chan entry, 100),
		}
		if logPath != "" {
			fileName := fmt.Sprintf("llamagate_%s.log", time.Now().Format("20060102_150405"))
			file, err := os.OpenFile(filepath.Join(logPath, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				log.Fatalf("Failed to open log file: %s", err)
			}
			root.logFile = file
		}

		go root.processEntries()
	})
}

// NewLogger derives a tagged logger sharing the root sinks.
func NewLogger(tag string) *Logger {
	return &Logger{
		view:    root.view,
		tag:     tag,
		dev:     root.dev,
		logFile: root.logFile,
		logChan: root.logChan,
	}
}

func (l *Logger) processEntries() {
	for e := range l.logChan {
		line := fmt.Sprintf("%s [%s] %s: %s\n",
			e.timestamp.Format("2006-01-02 15:04:05"), e.tag, e.level, e.message)
		if l.logFile != nil {
			l.logFile.WriteString(line)
		}
	}
}

func (l *Logger) log(level Level, v ...interface{}) {
	message := fmt.Sprint(v...)
	if l.dev {
		if l.view != nil {
			var color string
			switch level {
			case Info:
				color = "green"
			case Warn:
				color = "yellow"
			default:
				color = "red"
			}
			fmt.Fprintf(l.view, "[%s]%s (%s): %s[-]\n", color, level, l.tag, message)
		} else {
			switch level {
			case Fatal:
				log.Fatal(v...)
			default:
				log.Println(v...)
			}
		}
	}

	if l.logFile != nil {
		l.logChan <- entry{
			timestamp: time.Now(),
			tag:       l.tag,
			level:     level,
			message:   message,
		}
	}
}

func (l *Logger) Info(v ...interface{})  { l.log(Info, v...) }
func (l *Logger) Warn(v ...interface{})  { l.log(Warn, v...) }
func (l *Logger) Error(v ...interface{}) { l.log(Error, v...) }

func (l *Logger) Fatal(v ...interface{}) {
	l.log(Fatal, v...)
	os.Exit(1)
}

// Close stops the background writer and closes the log file.
func (l *Logger) Close() {
	close(l.logChan)
	if l.logFile != nil {
		l.logFile.Close()
	}
}

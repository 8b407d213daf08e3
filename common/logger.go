// Copyright © 2024 Crestflow <dev@crestflow.io>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/JeffreyRichter/enum/enum"
)

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

var ELogLevel = LogLevel(0)

// LogLevel ranks message severities. Lower values are more severe; a logger
// emits every message whose level is <= its minimum level.
type LogLevel uint8

func (LogLevel) None() LogLevel    { return LogLevel(0) }
func (LogLevel) Error() LogLevel   { return LogLevel(1) }
func (LogLevel) Warning() LogLevel { return LogLevel(2) }
func (LogLevel) Report() LogLevel  { return LogLevel(3) } // per-job progress lines, always prefixed with the process pk
func (LogLevel) Info() LogLevel    { return LogLevel(4) }
func (LogLevel) Debug() LogLevel   { return LogLevel(5) }

func (ll LogLevel) String() string {
	return strings.ToUpper(enum.StringInt(ll, reflect.TypeOf(ll)))
}

func (ll *LogLevel) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(ll), s, true)
	if err == nil {
		*ll = val.(LogLevel)
	}
	return err
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type ILogger interface {
	ShouldLog(level LogLevel) bool
	Log(level LogLevel, msg string)
	Panic(err error)
}

type ILoggerCloser interface {
	ILogger
	CloseLog()
}

// Report emits the per-job progress line for the given process pk. These are
// the lines operators grep for, so the prefix is fixed.
func Report(logger ILogger, pk int64, format string, a ...interface{}) {
	if logger == nil {
		return
	}
	logger.Log(ELogLevel.Report(), fmt.Sprintf("PK-%d: ", pk)+fmt.Sprintf(format, a...))
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

type runLogger struct {
	minimumLevelToLog LogLevel
	file              io.WriteCloser // nil when logging to a caller-supplied writer
	logger            *log.Logger
}

// NewRunLogger returns a logger writing to the given writer, typically
// os.Stderr. Levels above minimumLevelToLog are dropped.
func NewRunLogger(minimumLevelToLog LogLevel, writer io.Writer) ILoggerCloser {
	return &runLogger{
		minimumLevelToLog: minimumLevelToLog,
		logger:            log.New(writer, "", log.LstdFlags|log.LUTC),
	}
}

// NewRunLogFile opens a log file named prefix-<timestamp>.log inside
// logFileFolder and returns a logger writing to it. The folder defaults to
// the working directory and may be overridden with CRESTFLOW_LOG_LOCATION.
func NewRunLogFile(minimumLevelToLog LogLevel, logFileFolder string, prefix string) (ILoggerCloser, error) {
	if override := GetEnvironmentVariable(EEnvironmentVariable.LogLocation()); override != "" {
		logFileFolder = override
	}
	name := fmt.Sprintf("%s-%s.log", prefix, time.Now().UTC().Format("20060102-150405"))
	file, err := os.OpenFile(path.Join(logFileFolder, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	jl := &runLogger{
		minimumLevelToLog: minimumLevelToLog,
		file:              file,
		logger:            log.New(file, "", log.LstdFlags|log.LUTC),
	}
	jl.logger.Println("CrestflowVersion ", CrestflowVersion)
	jl.logger.Println("OS-Environment ", runtime.GOOS)
	jl.logger.Println("OS-Architecture ", runtime.GOARCH)
	return jl, nil
}

func (rl *runLogger) ShouldLog(level LogLevel) bool {
	if level == ELogLevel.None() {
		return false
	}
	return level <= rl.minimumLevelToLog
}

func (rl *runLogger) Log(level LogLevel, msg string) {
	if !rl.ShouldLog(level) {
		return
	}
	prefix := ""
	if level <= ELogLevel.Warning() {
		prefix = fmt.Sprintf("%s: ", level) // so readers can find serious ones, but informational ones still look uncluttered
	}
	rl.logger.Println(prefix + msg)
}

func (rl *runLogger) Panic(err error) {
	rl.logger.Println(err) // We do NOT panic here as the app would terminate; we just log it
	panic(err)
	// We should never reach this line of code!
}

func (rl *runLogger) CloseLog() {
	if rl.file == nil {
		return
	}
	rl.logger.Println("Closing Log")
	_ = rl.file.Close() // If it was already closed, that's alright. We wanted to close it, anyway.
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

func PanicIfErr(err error) {
	if err != nil {
		panic(err)
	}
}

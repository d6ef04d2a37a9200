/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package logger provides the leveled, closure-gated logging frontend used
// by engine, websocket, httpparse and httpserver. The message is only
// built when the level is enabled, so hot paths can log liberally without
// paying the formatting cost when a level is muted.
package logger

import (
	"github.com/sirupsen/logrus"
)

type Level uint8

const (
	TraceLevel Level = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// FuncMessage builds a log message lazily; it is only invoked if the
// level is enabled on the logger.
type FuncMessage func() string

// Logger is the frontend every package in this module logs through. A
// host application supplies its own implementation (or the default
// logrus-backed one) at server construction.
type Logger interface {
	Trace(fields map[string]interface{}, msg FuncMessage)
	Debug(fields map[string]interface{}, msg FuncMessage)
	Info(fields map[string]interface{}, msg FuncMessage)
	Warn(fields map[string]interface{}, msg FuncMessage)
	Error(fields map[string]interface{}, msg FuncMessage)
	SetLevel(lvl Level)
}

// logrusLogger is the default Logger: a thin wrapper keeping a
// *logrus.Logger and gating every call with IsLevelEnabled before the
// closure is invoked.
type logrusLogger struct {
	entry *logrus.Logger
}

// New returns a Logger backed by logrus, writing text-formatted entries.
func New() Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{entry: l}
}

// NewFrom wraps an already-configured *logrus.Logger, letting a host
// application share its own logrus instance with the server.
func NewFrom(l *logrus.Logger) Logger {
	if l == nil {
		return New()
	}
	return &logrusLogger{entry: l}
}

func toLogrus(lvl Level) logrus.Level {
	switch lvl {
	case TraceLevel:
		return logrus.TraceLevel
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *logrusLogger) SetLevel(lvl Level) {
	l.entry.SetLevel(toLogrus(lvl))
}

func (l *logrusLogger) log(lvl logrus.Level, fields map[string]interface{}, msg FuncMessage) {
	if !l.entry.IsLevelEnabled(lvl) || msg == nil {
		return
	}
	e := l.entry.WithFields(fields)
	e.Log(lvl, msg())
}

func (l *logrusLogger) Trace(fields map[string]interface{}, msg FuncMessage) {
	l.log(logrus.TraceLevel, fields, msg)
}

func (l *logrusLogger) Debug(fields map[string]interface{}, msg FuncMessage) {
	l.log(logrus.DebugLevel, fields, msg)
}

func (l *logrusLogger) Info(fields map[string]interface{}, msg FuncMessage) {
	l.log(logrus.InfoLevel, fields, msg)
}

func (l *logrusLogger) Warn(fields map[string]interface{}, msg FuncMessage) {
	l.log(logrus.WarnLevel, fields, msg)
}

func (l *logrusLogger) Error(fields map[string]interface{}, msg FuncMessage) {
	l.log(logrus.ErrorLevel, fields, msg)
}

// Noop is a Logger that discards everything; useful for embedding
// contexts or tests that don't want output.
type noop struct{}

func Noop() Logger { return noop{} }

func (noop) Trace(map[string]interface{}, FuncMessage) {}
func (noop) Debug(map[string]interface{}, FuncMessage) {}
func (noop) Info(map[string]interface{}, FuncMessage)  {}
func (noop) Warn(map[string]interface{}, FuncMessage)  {}
func (noop) Error(map[string]interface{}, FuncMessage) {}
func (noop) SetLevel(Level)                            {}

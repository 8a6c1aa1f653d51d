// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectToBuffer(buf *bytes.Buffer, format, severity string) {
	f := &factory{format: format, level: new(slog.LevelVar)}
	setSeverity(severity, f.level)
	defaultFactory = f
	defaultLogger = slog.New(f.handler(buf))
}

func runAllLevels() []func() {
	return []func(){
		func() { Tracef("trace-%d", 1) },
		func() { Debugf("debug-%d", 1) },
		func() { Infof("info-%d", 1) },
		func() { Warnf("warn-%d", 1) },
		func() { Errorf("error-%d", 1) },
	}
}

func (t *LoggerTest) TestSeverityFiltersLowerLevels() {
	var buf bytes.Buffer
	redirectToBuffer(&buf, "text", Warning)

	outputs := make([]string, 0, 5)
	for _, fn := range runAllLevels() {
		fn()
		outputs = append(outputs, buf.String())
		buf.Reset()
	}

	assert.Empty(t.T(), outputs[0], "trace suppressed")
	assert.Empty(t.T(), outputs[1], "debug suppressed")
	assert.Empty(t.T(), outputs[2], "info suppressed")
	assert.Regexp(t.T(), regexp.MustCompile(`severity=WARNING`), outputs[3])
	assert.Regexp(t.T(), regexp.MustCompile(`severity=ERROR`), outputs[4])
}

func (t *LoggerTest) TestOffSuppressesEverything() {
	var buf bytes.Buffer
	redirectToBuffer(&buf, "json", Off)

	for _, fn := range runAllLevels() {
		fn()
	}

	assert.Empty(t.T(), buf.String())
}

func (t *LoggerTest) TestJSONFormat() {
	var buf bytes.Buffer
	redirectToBuffer(&buf, "json", Info)

	Infof("www.%s.com", "example")

	assert.Regexp(t.T(), regexp.MustCompile(`"severity":"INFO".*"message":"www\.example\.com"`), buf.String())
}

func (t *LoggerTest) TestHandlerSwitchesFormat() {
	var buf bytes.Buffer
	redirectToBuffer(&buf, "text", Info)
	Infof("hello")
	assert.Regexp(t.T(), regexp.MustCompile(`severity=INFO`), buf.String())

	buf.Reset()
	defaultFactory.format = "json"
	defaultLogger = slog.New(defaultFactory.handler(&buf))
	Infof("hello")
	assert.Contains(t.T(), buf.String(), `"message":"hello"`)
}

func TestSetSeverityLevels(t *testing.T) {
	cases := []struct {
		name     string
		expected slog.Level
	}{
		{Trace, LevelTrace},
		{Debug, LevelDebug},
		{Info, LevelInfo},
		{Warning, LevelWarn},
		{Error, LevelError},
		{Off, LevelOff},
	}
	for _, c := range cases {
		v := new(slog.LevelVar)
		setSeverity(c.name, v)
		assert.Equal(t, c.expected, v.Level())
	}
}

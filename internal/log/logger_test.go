// SPDX-License-Identifier: MIT
package log

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", LevelDebug, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{"Error", LevelError, true},
		{"fatal", LevelFatal, true},
		{"verbose", LevelInfo, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseLevel(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestComponentLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Options{Level: "info", Format: "console", Output: os.Stderr}) })

	WithComponent("writer").Infof("saved %s", "recording-0001.wav")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	if line["component"] != "writer" {
		t.Errorf("component = %v, want writer", line["component"])
	}
	if line["message"] != "saved recording-0001.wav" {
		t.Errorf("message = %v", line["message"])
	}
	if line["level"] != "info" {
		t.Errorf("level = %v, want info", line["level"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "warn", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Options{Level: "info", Format: "console", Output: os.Stderr}) })

	Debugf("hidden %d", 1)
	Infof("hidden %d", 2)
	Warnf("shown %d", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("messages below warn leaked: %q", out)
	}
	if !strings.Contains(out, "shown 3") {
		t.Errorf("warn message missing: %q", out)
	}
	if GetLevel() != LevelWarn {
		t.Errorf("GetLevel() = %v, want WARN", GetLevel())
	}
}

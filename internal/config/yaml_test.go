// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.Visualizer.Buckets != DefaultBuckets {
		t.Errorf("buckets = %d, want %d", cfg.Visualizer.Buckets, DefaultBuckets)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
audio:
  sample_rate: 48000
  sample_format: int16
recording:
  output_dir: /tmp/rec
  max_recordings: 4
visualizer:
  buckets: 32
  overlap: 0.25
  mode: waveform
transport:
  udp_send_interval: 50ms
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.SampleFormat != "int16" {
		t.Errorf("audio not loaded: %+v", cfg.Audio)
	}
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("unset field lost its default: frames_per_buffer = %d", cfg.Audio.FramesPerBuffer)
	}
	if cfg.Recording.MaxRecordings != 4 || cfg.Recording.OutputDir != "/tmp/rec" {
		t.Errorf("recording not loaded: %+v", cfg.Recording)
	}
	if cfg.Visualizer.Buckets != 32 || cfg.Visualizer.Overlap != 0.25 || cfg.Visualizer.Mode != "waveform" {
		t.Errorf("visualizer not loaded: %+v", cfg.Visualizer)
	}
	if cfg.Transport.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("udp interval = %s, want 50ms", cfg.Transport.UDPSendInterval)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"defaults", func(*Config) {}, ""},
		{"low sample rate", func(c *Config) { c.Audio.SampleRate = 4000 }, "audio.sample_rate"},
		{"frames not pow2", func(c *Config) { c.Audio.FramesPerBuffer = 500 }, "(try 512)"},
		{"frames too large", func(c *Config) { c.Audio.FramesPerBuffer = 16384 }, "frames_per_buffer"},
		{"too many channels", func(c *Config) { c.Audio.InputChannels = 6 }, "input_channels"},
		{"bad sample format", func(c *Config) { c.Audio.SampleFormat = "mp3" }, "sample_format"},
		{"bad backend", func(c *Config) { c.Audio.Backend = "alsa" }, "audio.backend"},
		{"few buckets", func(c *Config) { c.Visualizer.Buckets = 16 }, "visualizer.buckets"},
		{"overlap one", func(c *Config) { c.Visualizer.Overlap = 1 }, "visualizer.overlap"},
		{"bad mode", func(c *Config) { c.Visualizer.Mode = "sparkle" }, "visualizer.mode"},
		{"bad window", func(c *Config) { c.Visualizer.WindowFunc = "square" }, "window_func"},
		{"no recordings", func(c *Config) { c.Recording.MaxRecordings = 0 }, "max_recordings"},
		{"udp without address", func(c *Config) {
			c.Transport.UDPEnabled = true
			c.Transport.UDPTargetAddress = ""
		}, "udp_target_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "10ms")
	t.Setenv("ENV_RECORDING_DIR", "/var/tmp/scribe")
	t.Setenv("ENV_INPUT_DEVICE", "not-a-number")

	cfg := Default()
	cfg.applyEnvOverrides()

	if !cfg.Transport.UDPEnabled {
		t.Error("udp_enabled not overridden")
	}
	if cfg.Transport.UDPSendInterval != 10*time.Millisecond {
		t.Errorf("udp_send_interval = %s", cfg.Transport.UDPSendInterval)
	}
	if cfg.Recording.OutputDir != "/var/tmp/scribe" {
		t.Errorf("output_dir = %s", cfg.Recording.OutputDir)
	}
	if cfg.Audio.InputDevice != DefaultDeviceID {
		t.Errorf("malformed ENV_INPUT_DEVICE should be ignored, got %d", cfg.Audio.InputDevice)
	}
}

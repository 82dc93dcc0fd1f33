// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"scribe/internal/analysis"
	"scribe/internal/audio"
	applog "scribe/internal/log"
	"scribe/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return &cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks ranges and enumerations. It does not touch the file system.
func (c *Config) Validate() error {
	// Audio
	if c.Audio.Backend != "portaudio" && c.Audio.Backend != "fake" {
		return fmt.Errorf("audio.backend %q must be portaudio or fake", c.Audio.Backend)
	}
	if c.Audio.InputDevice < MinDeviceID {
		return fmt.Errorf("audio.input_device %d is invalid", c.Audio.InputDevice)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer < 1 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside [1, %d]", c.Audio.FramesPerBuffer, MaxBufferFrames)
	}
	if !bitint.IsPowerOfTwo(c.Audio.FramesPerBuffer) {
		return fmt.Errorf("audio.frames_per_buffer %d must be a power of 2 (try %d)",
			c.Audio.FramesPerBuffer, bitint.NextPowerOfTwo(c.Audio.FramesPerBuffer))
	}
	if c.Audio.InputChannels < 1 || c.Audio.InputChannels > 2 {
		return fmt.Errorf("audio.input_channels %d must be 1 or 2", c.Audio.InputChannels)
	}
	if _, err := audio.ParseSampleFormat(c.Audio.SampleFormat); err != nil {
		return fmt.Errorf("audio.sample_format: %w", err)
	}
	if c.Audio.SinkCapacity < 1 {
		return fmt.Errorf("audio.sink_capacity must be positive")
	}

	// Recording
	if c.Recording.OutputDir == "" {
		return fmt.Errorf("recording.output_dir must be set")
	}
	if c.Recording.FilePrefix == "" {
		return fmt.Errorf("recording.file_prefix must be set")
	}
	if c.Recording.MaxRecordings < 1 {
		return fmt.Errorf("recording.max_recordings must be at least 1")
	}
	if c.Recording.PoolSize < 1 {
		return fmt.Errorf("recording.pool_size must be at least 1")
	}
	if c.Recording.QueueCapacity < 1 {
		return fmt.Errorf("recording.queue_capacity must be positive")
	}

	// Visualizer
	if c.Visualizer.Buckets < MinBuckets || c.Visualizer.Buckets > MaxBuckets {
		return fmt.Errorf("visualizer.buckets %d outside [%d, %d]", c.Visualizer.Buckets, MinBuckets, MaxBuckets)
	}
	if c.Visualizer.Overlap < 0 || c.Visualizer.Overlap >= 1 {
		return fmt.Errorf("visualizer.overlap %.2f outside [0, 1)", c.Visualizer.Overlap)
	}
	if c.Visualizer.Gain <= 0 {
		return fmt.Errorf("visualizer.gain must be positive")
	}
	if _, err := analysis.ParseWindowFunc(c.Visualizer.WindowFunc); err != nil {
		return fmt.Errorf("visualizer.window_func: %w", err)
	}
	if _, err := analysis.ParseMode(c.Visualizer.Mode); err != nil {
		return fmt.Errorf("visualizer.mode: %w", err)
	}
	if c.Visualizer.QueueCapacity < 1 {
		return fmt.Errorf("visualizer.queue_capacity must be positive")
	}
	if c.Visualizer.GateThreshold < 0 || c.Visualizer.GateThreshold > 1 {
		return fmt.Errorf("visualizer.gate_threshold %.3f outside [0, 1]", c.Visualizer.GateThreshold)
	}

	// Transport
	if c.Transport.UDPEnabled {
		if c.Transport.UDPTargetAddress == "" {
			return fmt.Errorf("transport.udp_target_address must be set when UDP is enabled")
		}
		if c.Transport.UDPSendInterval <= 0 {
			return fmt.Errorf("transport.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if c.Transport.WebSocketEnabled && c.Transport.WebSocketInterval <= 0 {
		return fmt.Errorf("transport.websocket_interval must be positive when websocket is enabled")
	}

	if c.Progress.ReplyTimeout <= 0 {
		return fmt.Errorf("progress.reply_timeout must be positive")
	}
	if c.Progress.QueueCapacity < 1 {
		return fmt.Errorf("progress.queue_capacity must be positive")
	}

	return nil
}

// applyEnvOverrides reads ENV_* variables and overrides the matching fields.
// Malformed values are ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Debugf("configuration: overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Debugf("configuration: overriding log_level from env: %s", val)
	}

	// ENV_INPUT_DEVICE
	if val, ok := os.LookupEnv("ENV_INPUT_DEVICE"); ok {
		if iVal, err := strconv.Atoi(val); err == nil {
			cfg.Audio.InputDevice = iVal
			applog.Debugf("configuration: overriding audio.input_device from env: %d", iVal)
		}
	}
	// ENV_RECORDING_DIR
	if val, ok := os.LookupEnv("ENV_RECORDING_DIR"); ok {
		cfg.Recording.OutputDir = val
		applog.Debugf("configuration: overriding recording.output_dir from env: %s", val)
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Debugf("configuration: overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Debugf("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			applog.Debugf("configuration: overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}

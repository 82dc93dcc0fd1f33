// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the capture pipeline.
const (
	// Audio defaults
	DefaultChannels        = 1           // Mono audio
	DefaultDeviceID        = MinDeviceID // Default to system default device
	DefaultFramesPerBuffer = 512         // Balanced latency/performance
	DefaultLowLatency      = false       // Standard latency mode
	DefaultSampleRate      = 16000       // Speech models expect 16 kHz
	DefaultSampleFormat    = "float32"   // Passthrough format for recordings
	DefaultSinkCapacity    = 64          // Device chunks buffered before the callback drops
	DefaultBackend         = "portaudio"

	// Recording defaults
	DefaultOutputDir     = "./recordings"
	DefaultFilePrefix    = "recording"
	DefaultMaxRecordings = 32
	DefaultPoolSize      = 2
	DefaultWriterQueue   = 32
	DefaultCatalogPath   = "./recordings/catalog.db"

	// Visualizer defaults
	DefaultBuckets        = 48
	DefaultOverlap        = 0.5
	DefaultGain           = 1.0
	DefaultWindowFunc     = "hann"
	DefaultVisualizerMode = "spectrum-density"
	DefaultVisualizerQ    = 8

	// Hardware and processing limits
	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz)
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz)
	MaxBufferFrames = 8192   // Maximum frames per buffer (power of 2)
	MinBuckets      = 32
	MaxBuckets      = 64

	DefaultProgressTimeout = 250 * time.Millisecond
	DefaultProgressQueue   = 64
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug      bool             `yaml:"debug"`      // Enable debug mode (verbose logging).
	LogLevel   string           `yaml:"log_level"`  // Logging level (e.g., "debug", "info", "warn", "error").
	LogFormat  string           `yaml:"log_format"` // console or json.
	Audio      AudioConfig      `yaml:"audio"`      // Capture settings.
	Recording  RecordingConfig  `yaml:"recording"`  // Wave writer settings.
	Visualizer VisualizerConfig `yaml:"visualizer"` // Spectral visualizer settings.
	Transport  TransportConfig  `yaml:"transport"`  // Bucket frame transports.
	Progress   ProgressConfig   `yaml:"progress"`   // Progress sink settings.
}

// AudioConfig holds settings related to audio capture.
type AudioConfig struct {
	Backend         string  `yaml:"backend"`           // "portaudio" or "fake" (synthetic tone, no hardware).
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Requested sample rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per device callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels"`    // 1 for mono, 2 for stereo.
	SampleFormat    string  `yaml:"sample_format"`     // "int16" or "float32".
	SinkCapacity    int     `yaml:"sink_capacity"`     // Device chunks buffered between callback and session loop.
}

// RecordingConfig holds settings related to the streaming wave writer.
type RecordingConfig struct {
	OutputDir     string `yaml:"output_dir"`     // Directory holding recordings.
	FilePrefix    string `yaml:"file_prefix"`    // Prefix of <prefix>-<ticket>.wav names.
	MaxRecordings int    `yaml:"max_recordings"` // Bound of the completed recordings map.
	PoolSize      int    `yaml:"pool_size"`      // Concurrent write sessions.
	QueueCapacity int    `yaml:"queue_capacity"` // Buffers queued between capture and writer.
	CatalogPath   string `yaml:"catalog_path"`   // SQLite catalog; empty disables persistence.
}

// VisualizerConfig holds settings of the analysis engine.
type VisualizerConfig struct {
	Buckets       int     `yaml:"buckets"`        // Bucket count, 32..64.
	Overlap       float64 `yaml:"overlap"`        // Welch overlap ratio in [0,1).
	Gain          float64 `yaml:"gain"`           // Linear gain applied before analysis.
	Window        bool    `yaml:"window"`         // Apply the window function before spectral analyses.
	WindowFunc    string  `yaml:"window_func"`    // Window function name (e.g., "Hann", "Hamming").
	QueueCapacity int     `yaml:"queue_capacity"` // Packets buffered before Push drops.
	Mode          string  `yaml:"mode"`           // Initial analysis mode.
	GateThreshold float64 `yaml:"gate_threshold"` // Peak below which packets are not visualised (0 = open).
	Visible       bool    `yaml:"visible"`        // Accept packets from startup.
}

// TransportConfig holds settings related to sending bucket frames over the network.
type TransportConfig struct {
	UDPEnabled        bool          `yaml:"udp_enabled"`        // Enable sending bucket frames over UDP.
	UDPTargetAddress  string        `yaml:"udp_target_address"` // Target address and port (e.g., "127.0.0.1:9090").
	UDPSendInterval   time.Duration `yaml:"udp_send_interval"`  // Interval between sending UDP packets.
	WebSocketEnabled  bool          `yaml:"websocket_enabled"`  // Serve bucket frames on /buckets.
	WebSocketAddress  string        `yaml:"websocket_address"`  // Listen address (e.g., ":8080").
	WebSocketInterval time.Duration `yaml:"websocket_interval"` // Interval between broadcasts.
}

// ProgressConfig holds settings of the progress sink.
type ProgressConfig struct {
	ReplyTimeout  time.Duration `yaml:"reply_timeout"`  // How long Begin waits for an id.
	QueueCapacity int           `yaml:"queue_capacity"` // Pending progress commands.
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Debug:     false,
		LogLevel:  "info",
		LogFormat: "console",
		Audio: AudioConfig{
			Backend:         DefaultBackend,
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			InputChannels:   DefaultChannels,
			SampleFormat:    DefaultSampleFormat,
			SinkCapacity:    DefaultSinkCapacity,
		},
		Recording: RecordingConfig{
			OutputDir:     DefaultOutputDir,
			FilePrefix:    DefaultFilePrefix,
			MaxRecordings: DefaultMaxRecordings,
			PoolSize:      DefaultPoolSize,
			QueueCapacity: DefaultWriterQueue,
			CatalogPath:   DefaultCatalogPath,
		},
		Visualizer: VisualizerConfig{
			Buckets:       DefaultBuckets,
			Overlap:       DefaultOverlap,
			Gain:          DefaultGain,
			Window:        true,
			WindowFunc:    DefaultWindowFunc,
			QueueCapacity: DefaultVisualizerQ,
			Mode:          DefaultVisualizerMode,
			GateThreshold: 0,
			Visible:       false,
		},
		Transport: TransportConfig{
			UDPEnabled:        false,
			UDPTargetAddress:  "127.0.0.1:9090",
			UDPSendInterval:   33 * time.Millisecond, // ~30Hz.
			WebSocketEnabled:  false,
			WebSocketAddress:  ":8080",
			WebSocketInterval: 33 * time.Millisecond,
		},
		Progress: ProgressConfig{
			ReplyTimeout:  DefaultProgressTimeout,
			QueueCapacity: DefaultProgressQueue,
		},
	}
}

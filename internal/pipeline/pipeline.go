// SPDX-License-Identifier: MIT
/*
Package pipeline builds the capture pipeline from configuration and tears
it down in reverse dependency order.

	backend -> arbiter -> controller -+-> wave writer -> catalog
	                                  +-> visualizer -> publishers

Every component reports background outcomes through one router.
*/
package pipeline

import (
	"errors"
	"fmt"
	"time"

	"scribe/internal/analysis"
	"scribe/internal/audio"
	"scribe/internal/catalog"
	"scribe/internal/config"
	applog "scribe/internal/log"
	"scribe/internal/progress"
	"scribe/internal/router"
	"scribe/internal/transport"
	"scribe/internal/transport/udp"
	"scribe/internal/wave"
)

type Pipeline struct {
	Config     config.Config
	Router     *router.Router
	Progress   *progress.Tracker
	Writer     *wave.Writer
	Visualizer *analysis.Engine
	Controller *audio.Controller
	Settings   *audio.Settings

	arbiter    *audio.Arbiter
	catalog    *catalog.Store
	publishers []*transport.Publisher
	log        *applog.Logger
}

type options struct {
	backend audio.Backend
}

// Option customises New.
type Option func(*options)

// WithBackend replaces the backend selected by the configuration.
func WithBackend(b audio.Backend) Option {
	return func(o *options) { o.backend = b }
}

// AudioSpec converts the audio and recording sections into a capture spec.
func AudioSpec(cfg config.Config) (audio.Spec, error) {
	format, err := audio.ParseSampleFormat(cfg.Audio.SampleFormat)
	if err != nil {
		return audio.Spec{}, err
	}
	return audio.Spec{
		DeviceID:        cfg.Audio.InputDevice,
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        cfg.Audio.InputChannels,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		Format:          format,
		LowLatency:      cfg.Audio.LowLatency,
		SinkCapacity:    cfg.Audio.SinkCapacity,
		WriterCapacity:  cfg.Recording.QueueCapacity,
	}, nil
}

// AnalysisConfig converts the visualizer section into an engine config.
func AnalysisConfig(vc config.VisualizerConfig) (analysis.Config, error) {
	windowFunc, err := analysis.ParseWindowFunc(vc.WindowFunc)
	if err != nil {
		return analysis.Config{}, err
	}
	mode, err := analysis.ParseMode(vc.Mode)
	if err != nil {
		return analysis.Config{}, err
	}
	return analysis.Config{
		Buckets:       vc.Buckets,
		Overlap:       vc.Overlap,
		Gain:          vc.Gain,
		Window:        vc.Window,
		WindowFunc:    windowFunc,
		QueueCapacity: vc.QueueCapacity,
		Mode:          mode,
	}, nil
}

// Backend returns the capture backend named by the audio section.
func Backend(ac config.AudioConfig) audio.Backend {
	if ac.Backend == "fake" {
		interval := time.Duration(0)
		if rate := time.Duration(ac.SampleRate); rate > 0 {
			interval = time.Duration(ac.FramesPerBuffer) * time.Second / rate
		}
		return &audio.FakeBackend{Interval: interval}
	}
	return audio.PortAudioBackend{}
}

// OpenWriter opens the catalog, if one is configured, and the wave writer
// restored from it. The caller closes the returned store.
func OpenWriter(rc config.RecordingConfig, r *router.Router) (*wave.Writer, *catalog.Store, error) {
	var (
		store *catalog.Store
		cat   wave.Catalog
		err   error
	)
	if rc.CatalogPath != "" {
		if store, err = catalog.Open(rc.CatalogPath); err != nil {
			return nil, nil, err
		}
		cat = store
	}

	w, err := wave.NewWriter(wave.Config{
		Dir:           rc.OutputDir,
		Prefix:        rc.FilePrefix,
		MaxRecordings: rc.MaxRecordings,
		PoolSize:      rc.PoolSize,
	}, r, cat)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, nil, err
	}
	return w, store, nil
}

// New builds every component. Nothing captures until Start is called.
func New(cfg config.Config, opts ...Option) (p *Pipeline, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.backend == nil {
		o.backend = Backend(cfg.Audio)
	}

	spec, err := AudioSpec(cfg)
	if err != nil {
		return nil, err
	}
	analysisCfg, err := AnalysisConfig(cfg.Visualizer)
	if err != nil {
		return nil, err
	}

	p = &Pipeline{
		Config:   cfg,
		Router:   router.New(),
		Progress: progress.NewTracker(cfg.Progress.QueueCapacity, cfg.Progress.ReplyTimeout),
		Settings: audio.NewSettings(spec),
		log:      applog.WithComponent("pipeline"),
	}
	built := p
	defer func() {
		if err != nil {
			built.Close()
		}
	}()

	if p.Writer, p.catalog, err = OpenWriter(cfg.Recording, p.Router); err != nil {
		return nil, err
	}

	if p.Visualizer, err = analysis.NewEngine(analysisCfg); err != nil {
		return nil, err
	}
	p.Visualizer.SetVisible(cfg.Visualizer.Visible)

	p.arbiter = audio.NewArbiter(o.backend)
	p.Controller = audio.NewController(p.Router, p.Writer, p.Visualizer, p.Progress, p.Settings)
	if cfg.Visualizer.GateThreshold > 0 {
		p.Controller.Gate().SetThreshold(cfg.Visualizer.GateThreshold)
		p.Controller.Gate().Enable()
	}

	if err := p.startPublishers(); err != nil {
		return nil, err
	}
	p.log.Infof("Ready: %.0f Hz, %d ch, %s, device %d, recordings in %s",
		spec.SampleRate, spec.Channels, spec.Format, spec.DeviceID, cfg.Recording.OutputDir)
	return p, nil
}

func (p *Pipeline) startPublishers() error {
	tc := p.Config.Transport
	if p.Config.Debug {
		if err := p.addPublisher("log", tc.UDPSendInterval, transport.NewLoggingTransport()); err != nil {
			return err
		}
	}
	if tc.UDPEnabled {
		sender, err := udp.NewSender(tc.UDPTargetAddress)
		if err != nil {
			return err
		}
		if err := p.addPublisher("udp", tc.UDPSendInterval, sender); err != nil {
			return err
		}
	}
	if tc.WebSocketEnabled {
		ws, err := transport.NewWebSocketTransport(tc.WebSocketAddress)
		if err != nil {
			return err
		}
		if err := p.addPublisher("websocket", tc.WebSocketInterval, ws); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) addPublisher(name string, interval time.Duration, t transport.Transport) error {
	pub, err := transport.NewPublisher(name, interval, p.Visualizer, t)
	if err != nil {
		t.Close()
		return err
	}
	pub.Start()
	p.publishers = append(p.publishers, pub)
	return nil
}

// Start opens the capture device and begins a recording session.
func (p *Pipeline) Start() error {
	return p.Controller.Start(p.arbiter)
}

// Toggle starts a session if none is running and stops it otherwise.
func (p *Pipeline) Toggle() error {
	if p.Controller.IsRunning() {
		p.Stop()
		return nil
	}
	return p.Start()
}

// Stop ends the running session. The recording is finalised in the
// background.
func (p *Pipeline) Stop() {
	p.Controller.Stop()
}

// Close stops capture and waits for every component to finish, closing them
// in reverse dependency order.
func (p *Pipeline) Close() error {
	var errs []error
	if p.Controller != nil {
		p.Controller.Stop()
		p.Controller.Wait()
	}
	for _, pub := range p.publishers {
		if err := pub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.publishers = nil
	if p.Visualizer != nil {
		p.Visualizer.Close()
	}
	if p.Writer != nil {
		p.Writer.Wait()
	}
	p.Router.Shutdown()
	p.Progress.Close()
	if p.arbiter != nil {
		p.arbiter.Shutdown()
	}
	if p.catalog != nil {
		if err := p.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
	}
	p.log.Debugf("Closed")
	return errors.Join(errs...)
}

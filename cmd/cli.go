// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scribe/internal/audio"
	"scribe/internal/config"
	applog "scribe/internal/log"
	"scribe/internal/pipeline"
	"scribe/internal/router"
	"scribe/internal/tui"
	"scribe/internal/wave"
	"scribe/pkg/build"
)

const logFileName = "scribe.log"

// runStatePoll is how often a headless recording checks whether the
// session ended on its own.
const runStatePoll = 50 * time.Millisecond

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

type options struct {
	configPath string
	deviceID   int
	sampleRate float64
	channels   int
	verbose    bool
	fake       bool
	pick       bool
	duration   time.Duration
	format     string
}

// Execute runs the command line with args, excluding the program name.
func Execute(args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.Execute()
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	buildInfo := build.GetBuildFlags()
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(cmd, opts)
		},
	}
	rootCmd.SetVersionTemplate(buildInfo.String() + "\n")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Flags().BoolVarP(&opts.pick, "pick", "p", false,
		"Choose the input device and sample rate interactively before starting")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()
			return audio.ListDevices(cmd.OutOrStdout())
		},
	}

	recordCmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the input device until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd, opts)
		},
	}
	recordCmd.Flags().DurationVarP(&opts.duration, "duration", "t", 0,
		"Stop after this long (e.g. 30s); 0 records until interrupted")

	recordingsCmd := &cobra.Command{
		Use:   "recordings",
		Short: "List completed recordings, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWriter(cmd, opts, func(w *wave.Writer) error {
				return printRecordings(cmd.OutOrStdout(), w.ListCompleted())
			})
		},
	}

	exportCmd := &cobra.Command{
		Use:   "export <file-name> <output>",
		Short: "Export a recording, converting its sample format if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := wave.ParseExportFormat(opts.format)
			if err != nil {
				return err
			}
			return withWriter(cmd, opts, func(w *wave.Writer) error {
				job, err := w.Export(args[1], args[0], format)
				if err != nil {
					return err
				}
				return report(cmd.OutOrStdout(), job.Wait())
			})
		},
	}
	exportCmd.Flags().StringVarP(&opts.format, "format", "f", "f32",
		"Output sample format: f32, s16 or s24")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every recording in the recordings directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWriter(cmd, opts, func(w *wave.Writer) error {
				job, err := w.ClearCache()
				if err != nil {
					return err
				}
				return report(cmd.OutOrStdout(), job.Wait())
			})
		},
	}

	rootCmd.AddCommand(listCmd, recordCmd, recordingsCmd, exportCmd, clearCmd)

	// Audio Device Configuration
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"Path to a YAML configuration file (default: ./config.yaml if present)")
	rootCmd.PersistentFlags().IntVarP(&opts.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	rootCmd.PersistentFlags().Float64VarP(&opts.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	rootCmd.PersistentFlags().IntVarP(&opts.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to record (1=mono, 2=stereo)")
	rootCmd.PersistentFlags().BoolVar(&opts.fake, "fake", false,
		"Capture a synthetic tone instead of a real device")

	// Debug Configuration
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false,
		"Show verbose output")

	return rootCmd
}

// loadConfig reads the configuration file and applies the flags the user set
// explicitly, then validates the result again.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("device") {
		cfg.Audio.InputDevice = opts.deviceID
	}
	if flags.Changed("sample-rate") {
		cfg.Audio.SampleRate = opts.sampleRate
	}
	if flags.Changed("channels") {
		cfg.Audio.InputChannels = opts.channels
	}
	if opts.fake {
		cfg.Audio.Backend = "fake"
	}
	if opts.verbose {
		cfg.LogLevel = applog.LevelDebug.String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogging routes log output to w, or to a file in the recordings
// directory when w is nil. The returned function closes that file.
func initLogging(cfg *config.Config, w io.Writer) (func(), error) {
	closeFn := func() {}
	if w == nil {
		if err := os.MkdirAll(cfg.Recording.OutputDir, 0o755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(filepath.Join(cfg.Recording.OutputDir, logFileName),
			os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		w, closeFn = f, func() { f.Close() }
	}
	applog.Init(applog.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: w})
	return closeFn, nil
}

func runLive(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	if opts.pick {
		sel, err := tui.PickDevice()
		if err != nil {
			return err
		}
		if sel == nil {
			return nil
		}
		cfg.Audio.InputDevice = sel.DeviceID
		cfg.Audio.SampleRate = sel.SampleRate
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s at %.0f Hz: %w", sel.Name, sel.SampleRate, err)
		}
	}

	// The terminal belongs to the UI; logs go to a file.
	closeLog, err := initLogging(cfg, nil)
	if err != nil {
		return err
	}
	defer closeLog()

	p, err := pipeline.New(*cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	return tui.RunLive(p)
}

func runRecord(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if _, err := initLogging(cfg, cmd.ErrOrStderr()); err != nil {
		return err
	}

	p, err := pipeline.New(*cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := make(chan error, 1)
	p.Router.SetObserver(router.KindConsole, func(o router.Outcome) {
		fmt.Fprintln(out, o.Message.Text)
	})
	p.Router.SetObserver(router.KindError, func(o router.Outcome) {
		select {
		case failed <- fmt.Errorf("%s: %w", o.Job, o.Err):
		default:
		}
	})

	if err := p.Start(); err != nil {
		p.Close()
		return err
	}
	fmt.Fprintf(out, "Recording to %s, press Ctrl+C to stop\n", cfg.Recording.OutputDir)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	waitForSession(ctx, p)

	p.Stop()
	closeErr := p.Close()

	select {
	case err := <-failed:
		return errors.Join(err, closeErr)
	default:
		return closeErr
	}
}

// waitForSession blocks until ctx ends or the session stops by itself.
func waitForSession(ctx context.Context, p *pipeline.Pipeline) {
	ticker := time.NewTicker(runStatePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.Controller.IsRunning() {
				return
			}
		}
	}
}

// withWriter opens the recordings directory and its catalog without starting
// capture.
func withWriter(cmd *cobra.Command, opts *options, fn func(*wave.Writer) error) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	if _, err := initLogging(cfg, cmd.ErrOrStderr()); err != nil {
		return err
	}

	r := router.New()
	defer r.Shutdown()
	w, store, err := pipeline.OpenWriter(cfg.Recording, r)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}
	defer w.Wait()
	return fn(w)
}

func report(out io.Writer, o router.Outcome) error {
	if o.Err != nil {
		return o.Err
	}
	fmt.Fprintln(out, o.Message.Text)
	return nil
}

func printRecordings(out io.Writer, recs []wave.Recording) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(out, "No recordings.")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("#", "FILE", "DURATION", "SIZE", "FORMAT", "CREATED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, rec := range recs {
		t.Row(
			strconv.FormatUint(rec.Ticket, 10),
			rec.FileName,
			rec.Duration.Round(time.Millisecond).String(),
			humanize.IBytes(uint64(rec.Size)),
			fmt.Sprintf("%s %d Hz %dch", rec.SampleFormat, rec.SampleRate, rec.Channels),
			humanize.Time(rec.CreatedAt),
		)
	}
	_, err := fmt.Fprintln(out, t.Render())
	return err
}

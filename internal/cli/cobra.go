package cli

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"imgdiff/internal/config"
	"imgdiff/internal/imgio"
	"imgdiff/internal/pipeline"
	"imgdiff/internal/render"
	"imgdiff/internal/watch"
)

const version = "1.0.0"

// NewRootCmd builds the imgdiff command tree. The root command itself runs
// a single comparison.
func NewRootCmd(cfg *config.Config, logger *slog.Logger) *cobra.Command {
	return newRootCmd(NewRoot(cfg, logger))
}

func newRootCmd(root *Root) *cobra.Command {
	cfg := root.cfg

	var (
		output    string
		viewerCmd string
		eog       bool
		grace     float64
		fast      bool
		thorough  bool
		auto      bool
		lr        bool
		tb        bool
		spacing   int
		border    int
		bg        color.NRGBA
		sep       color.NRGBA
		floor     int
		timeout   float64
	)

	rootCmd := &cobra.Command{
		Use:   "imgdiff <image1> <image2>",
		Short: "Compare two images side by side",
		Long: `imgdiff renders two images into one composite for eyeball comparison,
optionally highlighting the areas where they differ.

If one argument is a directory, the other file's name is looked up in it.
Without -o the composite opens in an image viewer.

Configuration is read from ~/.config/imgdiff/config.json, or from the file
named by $IMGDIFF_CONFIG.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			orientation, err := pickOrientation(root.cfg.Render.Orientation, auto, lr, tb)
			if err != nil {
				return err
			}
			mode := root.cfg.Highlight.Mode
			if fast {
				mode = "fast"
			}
			if thorough {
				mode = "thorough"
			}
			if eog {
				viewerCmd = "eog"
			}
			if floor < 0 || floor > 255 {
				return fmt.Errorf("opacity floor %d out of range 0..255", floor)
			}

			cs := compareSettings{
				output:  output,
				viewer:  viewerCmd,
				grace:   time.Duration(grace * float64(time.Second)),
				mode:    mode,
				floor:   uint8(floor),
				timeout: time.Duration(timeout * float64(time.Second)),
				render: render.Options{
					Orientation: orientation,
					Spacing:     spacing,
					Border:      border,
					Background:  bg,
					Separator:   sep,
				},
			}
			return root.runCompare(cmd.Context(), args[0], args[1], cs)
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&output, "output", "o", "", "write the composite to this file instead of opening a viewer")
	f.StringVar(&viewerCmd, "viewer", cfg.Viewer.Command, `image viewer command ("builtin" is the platform opener)`)
	f.BoolVar(&eog, "eog", false, "same as --viewer eog")
	f.Float64Var(&grace, "grace", cfg.Viewer.GraceSec, "seconds to keep the temp file around for a forking viewer")
	f.BoolVarP(&fast, "highlight", "H", false, "highlight differences (fast)")
	f.BoolVarP(&thorough, "smart-highlight", "S", false, "highlight differences (thorough, tolerates inserted rows or columns)")
	f.BoolVar(&auto, "auto", false, "pick orientation automatically (default)")
	f.BoolVar(&lr, "lr", false, "tile the images left and right")
	f.BoolVar(&tb, "tb", false, "tile the images top and bottom")
	f.IntVar(&spacing, "spacing", cfg.Render.Spacing, "pixels between the images")
	f.IntVar(&border, "border", cfg.Render.Border, "border width in pixels")
	f.Var(newColorValue(cfg.Render.BGColor, &bg), "bgcolor", "background color (rgb or rrggbb)")
	f.Var(newColorValue(cfg.Render.SepColor, &sep), "sepcolor", "separator color (rgb or rrggbb)")
	f.IntVar(&floor, "opacity-floor", cfg.Highlight.OpacityFloor, "minimum highlight opacity, 0..255")
	f.Float64Var(&timeout, "timeout", cfg.Highlight.TimeoutSec, "highlight time budget in seconds, 0 to disable")

	rootCmd.AddCommand(newWatchCmd(root))
	rootCmd.AddCommand(newServeCmd(root))
	rootCmd.AddCommand(newHistoryCmd(root))
	rootCmd.AddCommand(newConfigCmd(root))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func pickOrientation(fallback string, auto, lr, tb bool) (string, error) {
	set := 0
	for _, b := range []bool{auto, lr, tb} {
		if b {
			set++
		}
	}
	if set > 1 {
		return "", errors.New("only one of --auto, --lr and --tb may be given")
	}
	switch {
	case lr:
		return render.LeftRight, nil
	case tb:
		return render.TopBottom, nil
	case auto:
		return render.Auto, nil
	}
	return fallback, nil
}

// colorValue parses rgb/rrggbb hex flags through render.ParseColor.
type colorValue struct {
	c *color.NRGBA
}

var _ pflag.Value = (*colorValue)(nil)

func newColorValue(def string, p *color.NRGBA) *colorValue {
	if c, err := render.ParseColor(def); err == nil {
		*p = c
	}
	return &colorValue{c: p}
}

func (v *colorValue) String() string {
	if v.c.A != 0xff {
		return fmt.Sprintf("%02x%02x%02x%02x", v.c.R, v.c.G, v.c.B, v.c.A)
	}
	return fmt.Sprintf("%02x%02x%02x", v.c.R, v.c.G, v.c.B)
}

func (v *colorValue) Set(s string) error {
	c, err := render.ParseColor(s)
	if err != nil {
		return err
	}
	*v.c = c
	return nil
}

func (v *colorValue) Type() string { return "color" }

func newWatchCmd(root *Root) *cobra.Command {
	var (
		output    string
		outputDir string
		fast      bool
		thorough  bool
		debounce  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch <left> <right>",
		Short: "Recompare on file changes",
		Long: `Watch two files, or two directory trees pairing files by name, and
redo the comparison whenever either side changes.`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			left, right := args[0], args[1]
			dirMode := isDir(left) && isDir(right)
			if !dirMode {
				var err error
				left, right, err = imgio.ResolvePair(left, right)
				if err != nil {
					return err
				}
			}

			mode := root.cfg.Highlight.Mode
			if fast {
				mode = "fast"
			}
			if thorough {
				mode = "thorough"
			}

			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rc := pipeline.RunnerConfig{
				Render:       root.renderOptions(),
				Mode:         mode,
				OpacityFloor: uint8(root.cfg.Highlight.OpacityFloor),
				Timeout:      root.cfg.Highlight.Timeout(),
				ReportDelay:  root.cfg.Highlight.ReportDelay(),
				Loader:       imgio.Loader{Magick: root.cfg.Magick.Enabled},
			}
			req := pipeline.Request{Mode: mode}
			if dirMode {
				rc.OutputDir = outputDir
			} else {
				req.OutputPath = output
			}

			ctx := cmd.Context()
			pipe := pipeline.New(ctx, 1, pipeline.NewRunner(rc), root.log, store)
			defer pipe.Stop()

			events, unsubscribe := pipe.Subscribe()
			defer unsubscribe()
			go func() {
				out := cmd.OutOrStdout()
				for ev := range events {
					switch ev.Type {
					case pipeline.EventFinished:
						fmt.Fprintf(out, "%s rewritten (badness %d)\n", ev.Result.OutputPath, ev.Result.Badness)
					case pipeline.EventFailed:
						fmt.Fprintf(out, "compare failed: %v\n", ev.Err)
					}
				}
			}()

			watcher, err := watch.New(left, right, debounce, pipe, req, root.log)
			if err != nil {
				return err
			}
			if err := watcher.Start(); err != nil {
				return err
			}
			defer watcher.Stop()

			fmt.Fprintln(cmd.OutOrStdout(), "watching for changes, interrupt to stop")
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "imgdiff-watch.png", "composite file to rewrite on each change")
	cmd.Flags().StringVar(&outputDir, "output-dir", "imgdiff-watch", "composite directory when watching directories")
	cmd.Flags().BoolVarP(&fast, "highlight", "H", false, "highlight differences (fast)")
	cmd.Flags().BoolVarP(&thorough, "smart-highlight", "S", false, "highlight differences (thorough)")
	cmd.Flags().DurationVar(&debounce, "debounce", root.cfg.Watch.Debounce(), "settle time before recomparing")

	return cmd
}

func newServeCmd(root *Root) *cobra.Command {
	var (
		addr      string
		workers   int
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve comparisons over HTTP",
		Long: `Start an HTTP server exposing the compare pipeline, the comparison
history and a WebSocket feed of live job events.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rc := pipeline.RunnerConfig{
				Render:       root.renderOptions(),
				Mode:         root.cfg.Highlight.Mode,
				OpacityFloor: uint8(root.cfg.Highlight.OpacityFloor),
				Timeout:      root.cfg.Highlight.Timeout(),
				ReportDelay:  root.cfg.Highlight.ReportDelay(),
				Loader:       imgio.Loader{Magick: root.cfg.Magick.Enabled},
				OutputDir:    outputDir,
			}
			ctx := cmd.Context()
			pipe := pipeline.New(ctx, workers, pipeline.NewRunner(rc), root.log, store)
			defer pipe.Stop()

			return root.serveFn(ctx, addr, store, pipe, root.log)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", root.cfg.Server.Addr(), "listen address (host:port)")
	cmd.Flags().IntVar(&workers, "workers", 2, "concurrent comparisons")
	cmd.Flags().StringVar(&outputDir, "output-dir", root.defaultOutputDir(), "directory for rendered composites")

	return cmd
}

func newHistoryCmd(root *Root) *cobra.Command {
	var (
		limit int
		stats bool
	)

	cmd := &cobra.Command{
		Use:          "history",
		Short:        "Show recent comparisons",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := root.openStore()
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("history is disabled in the configuration")
			}
			defer store.Close()

			if stats {
				return root.printStats(cmd.OutOrStdout(), store)
			}
			return root.printHistory(cmd.OutOrStdout(), store, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().BoolVar(&stats, "stats", false, "show aggregate statistics instead")

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("imgdiff v%s\n", version)
			cmd.Printf("built with %s\n", runtime.Version())
		},
	}
}

// defaultOutputDir puts server composites next to the history database.
func (r *Root) defaultOutputDir() string {
	path, err := config.ExpandUser(r.cfg.Storage.Path)
	if err != nil {
		return "imgdiff-output"
	}
	return filepath.Join(filepath.Dir(path), "output")
}

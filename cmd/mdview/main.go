package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go-mdview/internal/app"
	"go-mdview/internal/config"
	mderrors "go-mdview/internal/errors"
	"go-mdview/internal/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for setup failures (bad configuration, an unwatchable file)
// and 1 for anything else.
func exitCode(err error) int {
	if mderrors.Fatal(err) {
		return 2
	}
	return 1
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "mdview [flags] <file>",
		Short: "Live preview of a markdown file in the browser",
		Long: `mdview renders a markdown file to HTML, serves it on a local port and
pushes a fresh render to every open browser tab whenever the file changes.

Use --refresh N (or --mode poll) when websockets are not available; the page
then polls every N seconds instead.`,
		Version:       version,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), cfgFile, args[0])
			if err != nil {
				return err
			}

			logger := logging.New(logging.Options{
				Level:  cfg.LogLevel,
				Format: cfg.LogFormat,
				Output: cmd.ErrOrStderr(),
			})

			lp, err := app.NewLivePreview(cfg, logger)
			if err != nil {
				return err
			}
			if err := lp.Listen(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s at %s\n", cfg.Path, lp.URL())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return lp.Run(ctx)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default .mdview.yaml in the working directory)")
	config.AddFlags(rootCmd.Flags())

	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(configCmd(&cfgFile))

	return rootCmd
}

// loadConfig merges defaults, the config file, MDVIEW_ variables and the
// flags in fs, then validates the result for path.
func loadConfig(fs *pflag.FlagSet, cfgFile, path string) (*config.Config, error) {
	v := config.NewViper()
	if err := config.BindFlags(v, fs); err != nil {
		return nil, err
	}
	if err := config.ReadFile(v, cfgFile); err != nil {
		return nil, err
	}
	v.Set("path", path)
	return config.Load(v)
}

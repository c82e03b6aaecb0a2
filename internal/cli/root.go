package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/next-trace/scg-port-bridge/internal/config"
)

type ctxKey string

const appKey ctxKey = "app"

// App carries the resolved configuration into subcommands.
type App struct {
	Viper    *viper.Viper
	Settings config.Settings
	Logger   *slog.Logger
}

// Execute builds the root command and runs it.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd constructs the root command and wires its subcommands.
func NewRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "portbridge",
		Short:         "Turn one input into one engine output over a port pair",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			if cfgPath != "" {
				v.SetConfigFile(cfgPath)
			}

			flags := cmd.Flags()
			for key, name := range map[string]string{
				"transport":        "transport",
				"timeout":          "timeout",
				"correlation.mode": "correlation",
			} {
				if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
					return fmt.Errorf("bind flag %s: %w", name, err)
				}
			}

			if err := config.Load(cmd.Context(), v); err != nil {
				return err
			}
			if err := config.CheckConfigValidity(v); err != nil {
				return err
			}

			s := config.Resolve(v)
			app := &App{
				Viper:    v,
				Settings: s,
				Logger:   newLogger(cmd.ErrOrStderr(), s.LogLevel, s.LogFormat),
			}

			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (yaml|toml|json)")
	pf.String("transport", "inmemory", "engine transport: "+strings.Join(config.Transports, "|"))
	pf.Duration("timeout", 0, "per-invocation bound; 0 waits for the engine")
	pf.String("correlation", "fifo", "output pairing: "+strings.Join(config.CorrelationModes, "|"))

	cmd.AddCommand(newInvokeCmd())
	cmd.AddCommand(newStreamCmd())
	cmd.AddCommand(newConfigCmd())

	cmd.Run = func(cmd *cobra.Command, args []string) { _ = cmd.Help() }

	return cmd
}

func getApp(cmd *cobra.Command) *App {
	v := cmd.Context().Value(appKey)
	if v == nil {
		fmt.Fprintln(os.Stderr, "internal error: app not initialized")
		os.Exit(1)
	}

	return v.(*App)
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}

	return slog.New(slog.NewTextHandler(w, opts))
}

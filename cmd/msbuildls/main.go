package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	findnode "github.com/walteh/msbuildls/cmd/msbuildls/find-node"
	getdiagnostics "github.com/walteh/msbuildls/cmd/msbuildls/get-diagnostics"
	serve_lsp "github.com/walteh/msbuildls/cmd/msbuildls/serve-lsp"
	"github.com/walteh/msbuildls/pkg/config"
	logging "github.com/walteh/msbuildls/pkg/debug"
)

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var debugLogging bool

	rootCmd := &cobra.Command{
		Use:   "msbuildls",
		Short: "A language server for MSBuild project files",
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML or HCL configuration file")
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false, "enable debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(afero.NewOsFs(), configPath)
			if err != nil {
				return errors.Errorf("loading configuration: %w", err)
			}
			cfg = loaded
		}

		level := cfg.LogLevel()
		if debugLogging {
			level = zerolog.DebugLevel
		}

		// stdout belongs to the protocol; logs always go to stderr
		logger := logging.NewLogger(os.Stderr, level, true, cfg.Logging.Color)

		ctx := logger.WithContext(cmd.Context())
		cmd.SetContext(cfg.WithContext(ctx))
		return nil
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		rootCmd.Version = "unknown"
	} else {
		rootCmd.Version = info.Main.Version
	}

	cmdVersion := &cobra.Command{
		Use: "raw-version",
		Run: func(cmdz *cobra.Command, args []string) {
			cmdz.Println(rootCmd.Version)
		},
		Hidden: true,
	}

	rootCmd.AddCommand(cmdVersion)
	rootCmd.AddCommand(serve_lsp.NewServeLSPCommand())
	rootCmd.AddCommand(getdiagnostics.NewGetDiagnosticsCommand())
	rootCmd.AddCommand(findnode.NewFindNodeCommand())

	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		return errors.Errorf("failed to execute command: %w", err)
	}

	return nil
}

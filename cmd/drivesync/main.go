package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/openmined/drivesync/internal/client"
	"github.com/openmined/drivesync/internal/client/config"
	"github.com/openmined/drivesync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const banner = `
 ____       _           ____
|  _ \ _ __(_)_   _____/ ___| _   _ _ __   ___
| | | | '__| \ \ / / _ \___ \| | | | '_ \ / __|
| |_| | |  | |\ V /  __/___) | |_| | | | | (__
|____/|_|  |_| \_/ \___|____/ \__, |_| |_|\___|
                              |___/`

var cyan = color.New(color.FgHiCyan).SprintFunc()

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "drivesync",
		Short:   "Mirror a remote folder tree into a local directory",
		Version: version.Detailed(),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}

			// all good now, show header
			cmd.SilenceUsage = true
			showHeader(cmd)

			logger, closeLog, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer closeLog()
			slog.SetDefault(logger)

			if cfg.Path != "" {
				logger.Info("config loaded", "path", cfg.Path)
			}

			c, err := client.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			defer logger.Info("Bye!")
			if once, _ := cmd.Flags().GetBool("once"); once {
				return c.RunOnce(cmd.Context())
			}
			return c.Start(cmd.Context())
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("config", "c", "", "config file (yaml, json or toml)")
	cmd.Flags().String("env-file", ".env", "dotenv file loaded before the environment is read")
	cmd.Flags().String("backend", config.BackendDrive, "remote backend: drive or s3")
	cmd.Flags().StringP("source", "s", "", "remote folder id to mirror")
	cmd.Flags().String("staging", "", "staging directory merged into the output after each cycle")
	cmd.Flags().StringP("output", "o", "", "output directory")
	cmd.Flags().IntP("interval", "i", config.DefaultPollIntervalSeconds, "seconds between sync cycles")
	cmd.Flags().String("log-level", "info", "log level: debug, info, warn or error")
	cmd.Flags().Bool("once", false, "run a single sync cycle and exit")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func main() {
	// console only until the config names a log file
	slog.SetDefault(slog.New(consoleHandler(slog.LevelInfo)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var flagKeys = map[string]string{
	"backend":   "backend",
	"source":    "source_folder_id",
	"staging":   "staging_dir",
	"output":    "output_dir",
	"interval":  "poll_interval_seconds",
	"log-level": "log_level",
}

func loadConfig(cmd *cobra.Command, v *viper.Viper) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("env file '%s': %w", envFile, err)
	}

	config.SetDefaults(v)
	if err := config.BindEnv(v); err != nil {
		return err
	}

	if cmd.Flag("config").Changed {
		path, _ := cmd.Flags().GetString("config")
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/drivesync")
		v.SetConfigName("drivesync")
	}

	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", v.ConfigFileUsed(), err)
		}
	}

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func showHeader(cmd *cobra.Command) {
	fmt.Fprintln(cmd.OutOrStdout(), cyan(banner))
	fmt.Fprintln(cmd.OutOrStdout(), version.DetailedWithApp())
}

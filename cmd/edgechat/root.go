package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/OnslaughtSnail/edgechat/internal/config"
	"github.com/OnslaughtSnail/edgechat/internal/envload"
	"github.com/OnslaughtSnail/edgechat/internal/logging"
)

func execute() error {
	return newRootCmd().Execute()
}

// rootOptions carries persistent flags. Flags are bound to viper keys so
// they take precedence over the file and the environment.
type rootOptions struct {
	configPath string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}
	rootCmd := &cobra.Command{
		Use:           "edgechat",
		Short:         "Conversational chat service with per-session memory",
		Long:          "edgechat serves a streaming chat API backed by per-session conversational memory, and ships a terminal client for it.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default: ./edgechat.toml or <user config dir>/edgechat/edgechat.toml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json or console)")
	_ = opts.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = opts.v.BindPFlag("log.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(opts),
		newChatCmd(),
		newMemoryCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// load seeds the environment from the nearest .env, reads configuration
// and builds the process logger.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	envPath, err := envload.LoadNearest("")
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(o.v, o.configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("build logger: %w", err)
	}
	if envPath != "" {
		log.Debug("loaded environment file", zap.String("path", envPath))
	}
	return cfg, log, nil
}

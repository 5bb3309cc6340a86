// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/kwdriver/internal/config"
	"github.com/xkilldash9x/kwdriver/internal/observability"
)

type contextKey string

// configKey stores the loaded *config.Config in the command context.
const configKey contextKey = "config"

var cfgFile string

// flagKeys maps command flags onto the configuration keys they override.
var flagKeys = map[string]string{
	"driver":       "browser.driver",
	"headless":     "browser.headless",
	"concurrency":  "runner.concurrency",
	"data":         "data.path",
	"sheet":        "data.sheet",
	"report":       "runner.report_path",
	"metrics-file": "runner.metrics_file",
	"store-url":    "store.url",
}

// NewRootCommand builds a fresh command tree. Every call returns independent flag state.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "kwdriver",
		Short:         "kwdriver runs keyword-driven browser test scripts.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := newViper()
			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// The resolver warns through the bootstrap logger until the real one exists.
			bootstrap, _ := zap.NewDevelopment()
			cfg, err := config.NewConfigFromViper(v, bootstrap)
			_ = bootstrap.Sync()
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "kwdriver"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting kwdriver", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./kwdriver.yaml)")
	cmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newKeywordsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newViper() *viper.Viper {
	v := viper.New()
	config.SetDefaults(v)
	return v
}

// Execute runs the command tree with ctx, logging a failure before returning it.
func Execute(ctx context.Context) error {
	defer observability.Sync()
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// initializeConfig reads the config file, the KWDRIVER_ environment and the flags of the
// executing command into v. Flags win over the environment, which wins over the file.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home + "/.kwdriver")
		}
		v.SetConfigName("kwdriver")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("KWDRIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// configFrom returns the configuration loaded by PersistentPreRunE.
func configFrom(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

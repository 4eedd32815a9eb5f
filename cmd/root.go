// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/devicesweep/internal/browser"
	"github.com/xkilldash9x/devicesweep/internal/config"
	"github.com/xkilldash9x/devicesweep/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// skipValidation marks commands that work without a complete sweep
// configuration (no target, no scenarios).
const skipValidation = "devicesweep/skip-validation"

// configKeyAnnotation names the config key a flag overrides. Flags without it
// are command options only.
const configKeyAnnotation = "devicesweep/config-key"

// ExitError carries a process exit code other than 1 up to main.
type ExitError struct {
	Code int
	Msg  string
}

func (e *ExitError) Error() string { return e.Msg }

// NewRootCommand builds a fresh command tree with the production dependencies.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

// newRootCmd builds the command tree. The returned pointer is filled with the
// loaded configuration once PersistentPreRunE has run.
func newRootCmd() (*cobra.Command, *config.Interface) {
	var cfgFile string
	var appConfig config.Interface

	rootCmd := &cobra.Command{
		Use:   "devicesweep",
		Short: "Sweeps a web form across emulated devices and input scenarios.",
		// Version is set at build time. See cmd/version.go.
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, cfgFile)
			if err != nil {
				// Errors still need somewhere to go.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "devicesweep"})
				return err
			}
			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting devicesweep", zap.String("version", Version))

			appConfig = cfg
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, appConfig))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./devicesweep.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "override logger.level (debug, info, warn, error)")
	bindsTo(rootCmd.PersistentFlags(), "log-level", "logger.level")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	stores := NewStoreProvider()
	rootCmd.AddCommand(
		newRunCmd(browser.NewDriver, stores),
		newProbeCmd(browser.NewDriver),
		newDevicesCmd(),
		newValidateCmd(),
		newReportCmd(stores),
		newVersionCmd(),
	)
	return rootCmd, &appConfig
}

// Execute runs the command tree with a signal-aware context from main.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) && !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
		}
		return err
	}
	return nil
}

// loadConfig layers defaults, the config file, DEVICESWEEP_* environment
// variables and command flags, in increasing precedence.
func loadConfig(cmd *cobra.Command, cfgFile string) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	if err := initializeConfig(v, cfgFile); err != nil {
		return nil, err
	}
	if err := bindFlags(cmd, v); err != nil {
		return nil, err
	}

	cfg, err := config.Decode(v)
	if err != nil {
		return nil, err
	}
	if f := cmd.Flags().Lookup("headful"); f != nil && f.Changed {
		cfg.SetBrowserHeadless(f.Value.String() != "true")
	}
	if cmd.Annotations[skipValidation] == "" {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	return cfg, nil
}

// initializeConfig reads in the config file and ENV variables if set.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("devicesweep")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DEVICESWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars
	}
	return nil
}

// bindsTo marks the flag name in fs as an override of the config key.
func bindsTo(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, configKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

// bindFlags binds every annotated flag of cmd, inherited ones included, into v.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		keys := f.Annotations[configKeyAnnotation]
		if len(keys) == 0 || bindErr != nil {
			return
		}
		if err := v.BindPFlag(keys[0], f); err != nil {
			bindErr = fmt.Errorf("failed to bind --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

// getConfigFromContext returns the configuration stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in context")
	}
	return cfg, nil
}

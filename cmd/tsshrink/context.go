package main

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/gwlsn/tsshrink/internal/config"
	"github.com/gwlsn/tsshrink/internal/logger"
)

// configEnv names the config file when --config is not given
const configEnv = "TSSHRINK_CONFIG"

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath  string
	logLevel    string
	historyPath string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// configFile returns the config path by precedence: flag, env, none
func (c *commandContext) configFile() string {
	if path := strings.TrimSpace(c.flags.configPath); path != "" {
		return path
	}
	return strings.TrimSpace(os.Getenv(configEnv))
}

// ensureConfig loads the config once and applies the global flag
// overrides. The logger is initialized from the result.
func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg := config.DefaultConfig()
		if path := c.configFile(); path != "" {
			loaded, err := config.Load(path)
			if err != nil {
				c.configErr = err
				return
			}
			cfg = loaded
		}

		flags := cmd.Flags()
		if flags.Changed("log-level") {
			cfg.LogLevel = c.flags.logLevel
		}
		if flags.Changed("history") {
			cfg.HistoryPath = c.flags.historyPath
		}

		logger.InitWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		c.config = cfg
	})
	return c.config, c.configErr
}

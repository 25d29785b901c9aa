package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cognicore/libris/internal/logging"
	"github.com/cognicore/libris/pkg/libris"
	"github.com/cognicore/libris/pkg/libris/config"
)

type globalFlags struct {
	config    string
	logLevel  string
	logFormat string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	componentsOnce sync.Once
	components     *config.Components
	componentsErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

// ensureConfig loads --config once. Without the flag the defaults apply:
// books.json in the working directory and the builtin rule tables.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		path := strings.TrimSpace(c.flags.config)
		if path == "" {
			c.config = config.Default()
			return
		}
		c.config, c.configErr = config.Load(path)
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		level, format := cfg.Logging.Level, cfg.Logging.Format
		if c.flags.logLevel != "" {
			level = c.flags.logLevel
		}
		if c.flags.logFormat != "" {
			format = c.flags.logFormat
		}
		c.logger, c.loggerErr = logging.New(logging.Options{Level: level, Format: format})
	})
	return c.logger, c.loggerErr
}

// ensureComponents compiles the configured rule tables without opening a store.
func (c *commandContext) ensureComponents() (*config.Components, error) {
	c.componentsOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.componentsErr = err
			return
		}
		c.components, c.componentsErr = (&config.Loader{Config: cfg}).Load()
	})
	return c.components, c.componentsErr
}

func (c *commandContext) withEngine(ctx context.Context, fn func(*libris.Libris) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	engine, err := libris.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer engine.Close()
	return fn(engine)
}

// resolveTables returns the requested table, or every configured table
// when name is empty.
func (c *commandContext) resolveTables(name string) ([]string, error) {
	comp, err := c.ensureComponents()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return comp.Tables, nil
	}
	if _, ok := comp.Classifiers[name]; !ok {
		return nil, fmt.Errorf("unknown table %q (configured: %s)", name, strings.Join(comp.Tables, ", "))
	}
	return []string{name}, nil
}

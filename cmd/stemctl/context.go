package main

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/stemline/api/internal/bootstrap"
	"github.com/stemline/api/internal/config"
	"github.com/stemline/api/internal/logging"
)

type commandContext struct {
	logLevel *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	componentsOnce sync.Once
	components     *bootstrap.Components
	componentsErr  error
}

func newCommandContext(logLevel *string) *commandContext {
	return &commandContext{logLevel: logLevel}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() zerolog.Logger {
	level := "warn"
	if c.logLevel != nil && *c.logLevel != "" {
		level = *c.logLevel
	}
	// Logs go to stderr so command output stays pipeable
	return logging.NewWithWriter(os.Stderr, "development", level)
}

// ensureComponents connects to every configured collaborator on first use
func (c *commandContext) ensureComponents(ctx context.Context) (*bootstrap.Components, error) {
	c.componentsOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.componentsErr = err
			return
		}
		c.components, c.componentsErr = bootstrap.Build(ctx, cfg, c.logger())
	})
	return c.components, c.componentsErr
}

func (c *commandContext) close() {
	if c.components != nil {
		c.components.Close()
	}
}

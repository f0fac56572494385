package main

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/okian/blindpair/internal/adapters/repository"
	service "github.com/okian/blindpair/internal/app"
	"github.com/okian/blindpair/internal/config"
	"github.com/okian/blindpair/pkg/logger"
)

var errNoDatabase = errors.New("no database: pass --db or set BLINDPAIR_DB_PATH")

type commandContext struct {
	dbFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(dbFlag *string) *commandContext {
	return &commandContext{dbFlag: dbFlag}
}

// ensureConfig loads .env, the layered config and a text logger on stderr.
func (c *commandContext) ensureConfig(logOut io.Writer) (*config.Config, error) {
	c.configOnce.Do(func() {
		_ = godotenv.Load()
		cfg, err := config.Load(context.Background())
		if err != nil {
			c.configErr = err
			return
		}
		if err := logger.Init(logger.WithFormat(logger.FormatText), logger.WithWriter(logOut)); err != nil {
			c.configErr = err
			return
		}
		if err := logger.SetLevelString(cfg.LogLevel); err != nil {
			_ = logger.SetLevelString("info")
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) dbPath() string {
	if c.dbFlag != nil && strings.TrimSpace(*c.dbFlag) != "" {
		return strings.TrimSpace(*c.dbFlag)
	}
	if c.config != nil {
		return c.config.DBPath
	}
	return ""
}

// withService opens the store and hands a service over it to fn. An empty
// database path is an error unless allowMemory is set.
func (c *commandContext) withService(ctx context.Context, allowMemory bool, fn func(*service.Service) error) error {
	path := c.dbPath()
	if path == "" && !allowMemory {
		return errNoDatabase
	}
	store, err := repository.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := append(service.FromConfig(c.config), service.WithStore(store), service.WithLogger(logger.Named("cli")))
	return fn(service.New(opts...))
}

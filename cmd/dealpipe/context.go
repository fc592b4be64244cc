package main

import (
	"strings"
	"sync"

	"dealpipe/internal/api"
	"dealpipe/internal/config"
	"dealpipe/internal/deal"
	"dealpipe/internal/logging"
	"dealpipe/internal/store"
	"dealpipe/internal/workflow"
)

// commandContext carries lazily-initialized dependencies shared by commands.
// The CLI works against the embedded database directly; only the health
// command talks to a running daemon over HTTP.
type commandContext struct {
	configFlag string
	jsonFlag   bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	storeOnce sync.Once
	store     *store.Store
	service   *api.DealService
	storeErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureService() (*api.DealService, error) {
	c.storeOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.storeErr = err
			return
		}
		st, err := store.Open(cfg)
		if err != nil {
			c.storeErr = err
			return
		}
		graph := deal.DefaultStageGraph()
		engine := workflow.NewEngine(graph, st, nil, st, logging.NewNop())
		c.store = st
		c.service = api.NewDealService(st, engine, graph)
	})
	return c.service, c.storeErr
}

func (c *commandContext) close() {
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
}

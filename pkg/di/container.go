// Package di provides dependency injection container
package di

import (
	"sync"

	"github.com/go-kit/log"

	"github.com/ssargent/dbcache/pkg/codec"
	"github.com/ssargent/dbcache/pkg/config"
	"github.com/ssargent/dbcache/pkg/decoder"
	"github.com/ssargent/dbcache/pkg/digest"
	"github.com/ssargent/dbcache/pkg/drift"
	"github.com/ssargent/dbcache/pkg/metrics"
	"github.com/ssargent/dbcache/pkg/schema"
)

// Container holds all the dependencies for the application
type Container struct {
	config *config.Config
	logger log.Logger

	mu       sync.Mutex
	source   schema.Source
	registry *schema.Registry
	metrics  *metrics.Metrics
	decoder  *decoder.Decoder
	store    *digest.Store
}

// NewContainer creates a new dependency injection container. The config must
// have been validated.
func NewContainer(cfg *config.Config, logger log.Logger) *Container {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Container{config: cfg, logger: logger}
}

// GetConfig returns the configuration
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// GetLogger returns the root logger
func (c *Container) GetLogger() log.Logger {
	return c.logger
}

// GetSchemaSource returns the schema source, a YAML directory unless overridden
func (c *Container) GetSchemaSource() schema.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		c.source = schema.NewYAMLSource(c.config.SchemaDir)
	}
	return c.source
}

// SetSchemaSource allows overriding the schema source (for testing)
func (c *Container) SetSchemaSource(src schema.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.source = src
	c.registry = nil
	c.decoder = nil
}

// GetRegistry returns the schema registry
func (c *Container) GetRegistry() *schema.Registry {
	src := c.GetSchemaSource()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registry == nil {
		c.registry = schema.NewRegistry(schema.RegistryConfig{
			Source:   src,
			TieBreak: c.config.TieBreakRule(),
			Logger:   log.With(c.logger, "component", "registry"),
		})
	}
	return c.registry
}

// GetMetrics returns the metrics
func (c *Container) GetMetrics() *metrics.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metrics == nil {
		c.metrics = metrics.NewMetrics(nil)
	}
	return c.metrics
}

// GetDecoder returns the decoder
func (c *Container) GetDecoder() (*decoder.Decoder, error) {
	registry := c.GetRegistry()
	m := c.GetMetrics()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.decoder != nil {
		return c.decoder, nil
	}

	ambiguous, err := c.config.Ambiguous()
	if err != nil {
		return nil, err
	}

	engine := codec.NewEngine()
	c.decoder = decoder.New(decoder.Config{
		Registry: registry,
		Engine:   engine,
		Detector: drift.NewDetector(drift.DetectorConfig{
			Engine:     engine,
			Logger:     log.With(c.logger, "component", "drift"),
			LogUnknown: c.config.Drift.LogUnknownTrailing,
		}),
		Workers:   c.config.Workers,
		Logger:    log.With(c.logger, "component", "decoder"),
		Metrics:   m,
		Ambiguous: ambiguous,
	})
	return c.decoder, nil
}

// GetDigestStore opens the digest store on first use
func (c *Container) GetDigestStore() (*digest.Store, error) {
	m := c.GetMetrics()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		return c.store, nil
	}

	store, err := digest.Open(digest.StoreConfig{
		Dir:     c.config.DigestDir,
		Logger:  log.With(c.logger, "component", "digest"),
		Metrics: m,
	})
	if err != nil {
		return nil, err
	}
	c.store = store
	return c.store, nil
}

// Close releases the resources the container opened
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

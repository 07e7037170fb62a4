package eureka

import (
	"crypto/tls"

	"go.uber.org/zap"
)

const (
	defaultWorkerCount     = 4
	defaultConnCountOption = 3
	defaultMaxConnCount    = 1000
)

// AgentConfig holds every tunable the Agent needs at construction time. It
// is built up by Option funcs passed to NewAgent and never mutated
// afterwards.
type AgentConfig struct {
	Endpoints        []string
	DefaultConnCount int
	MaxConnCount     int
	TLS              *tls.Config
	RetryFn          RetryFunc
	Logger           *zap.SugaredLogger
	WorkerCount      int
	DNSDiscovery     DNSDiscoveryConfig
}

func defaultAgentConfig() AgentConfig {
	return AgentConfig{
		DefaultConnCount: defaultConnCountOption,
		MaxConnCount:     defaultMaxConnCount,
		WorkerCount:      defaultWorkerCount,
	}
}

// Validate checks that a config built from Options is usable.
func (c *AgentConfig) Validate() error {
	if len(c.Endpoints) == 0 && !c.DNSDiscovery.Enabled {
		return NewParamError("endpoints must not be empty unless DNS discovery is enabled")
	}
	if c.WorkerCount <= 0 {
		return NewParamError("worker count must be positive")
	}
	return nil
}

// Option configures an AgentConfig. Options are applied in the order given
// to NewAgent.
type Option func(*AgentConfig)

// WithEndpoints sets the initial ordered list of registry endpoints.
func WithEndpoints(endpoints ...string) Option {
	return func(c *AgentConfig) { c.Endpoints = endpoints }
}

// WithTLS sets the TLS client configuration used for every pooled client.
func WithTLS(cfg *tls.Config) Option {
	return func(c *AgentConfig) { c.TLS = cfg }
}

// WithRetryFunc overrides the endpoint controller's retry policy.
func WithRetryFunc(f RetryFunc) Option {
	return func(c *AgentConfig) { c.RetryFn = f }
}

// WithLogger sets the logger used throughout the agent. A nil logger
// falls back to a production zap logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *AgentConfig) { c.Logger = l }
}

// WithWorkerCount sets the size of the heartbeat worker pool.
func WithWorkerCount(n int) Option {
	return func(c *AgentConfig) { c.WorkerCount = n }
}

// WithConnCounts overrides the default and max per-pool connection counts.
func WithConnCounts(def, max int) Option {
	return func(c *AgentConfig) { c.DefaultConnCount = def; c.MaxConnCount = max }
}

// WithDNSDiscovery enables resolving registry endpoints from DNS TXT
// records instead of (or in addition to) a static endpoint list.
func WithDNSDiscovery(cfg DNSDiscoveryConfig) Option {
	return func(c *AgentConfig) { c.DNSDiscovery = cfg }
}

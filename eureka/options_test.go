package eureka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentConfig_ValidateRequiresEndpoints(t *testing.T) {
	cfg := defaultAgentConfig()
	err := cfg.Validate()
	require.Error(t, err)
	var pe *ParamError
	assert.ErrorAs(t, err, &pe)
}

func TestAgentConfig_ValidatePassesWithEndpoints(t *testing.T) {
	cfg := defaultAgentConfig()
	WithEndpoints("http://127.0.0.1:8761/eureka")(&cfg)
	assert.NoError(t, cfg.Validate())
}

func TestAgentConfig_ValidatePassesWithDNSDiscoveryOnly(t *testing.T) {
	cfg := defaultAgentConfig()
	WithDNSDiscovery(DNSDiscoveryConfig{Enabled: true, Resolver: "127.0.0.1:53"})(&cfg)
	assert.NoError(t, cfg.Validate())
}

func TestWithConnCounts_OverridesDefaults(t *testing.T) {
	cfg := defaultAgentConfig()
	WithConnCounts(5, 50)(&cfg)
	assert.Equal(t, 5, cfg.DefaultConnCount)
	assert.Equal(t, 50, cfg.MaxConnCount)
}

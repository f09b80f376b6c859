package client

import (
	"testing"

	"github.com/ValentinKolb/dTree/rpc/serializer"
	"github.com/ValentinKolb/dTree/rpc/transport/memory"
	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return DefaultConfig(memory.NewNetwork().NewClientTransport(), serializer.NewBinarySerializer())
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no transport", func(c *Config) { c.RPCTransport = nil }, true},
		{"no serializer", func(c *Config) { c.Serializer = nil }, true},
		{"zero pool", func(c *Config) { c.PoolSize = 0 }, true},
		{"zero pool with executor", func(c *Config) { c.PoolSize = 0; c.Executor = NewPoolExecutor(1) }, false},
		{"zero timeout", func(c *Config) { c.TimeoutSecond = 0 }, true},
		{"negative retries", func(c *Config) { c.RetryCount = -1 }, true},
		{"no retries", func(c *Config) { c.RetryCount = 0 }, false},
		{"no keep alive", func(c *Config) { c.SessionTimeoutSecond = 0 }, false},
		{"zero stream buffer", func(c *Config) { c.StreamBufferSize = 0 }, true},
		{"unknown strategy", func(c *Config) { c.Strategy = CommunicationStrategy(9) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultPoolSize(t *testing.T) {
	size := DefaultPoolSize()
	assert.GreaterOrEqual(t, size, 4)
	assert.LessOrEqual(t, size, 16)
}

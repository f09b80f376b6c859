package util

import (
	"strings"
	"testing"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/rpc/client"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 40)
	for _, line := range strings.Split(WrapString(text), "\n") {
		assert.LessOrEqual(t, len(line), Wrap)
	}
	assert.Equal(t, "short text", WrapString("  short   text "))
}

func TestGetClientConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("serializer", "binary")
	viper.Set("transport", "tcp")
	viper.Set("endpoints", "node-1:8700, node-2:8700,,")
	viper.Set("timeout", 3)
	viper.Set("retries", 2)
	viper.Set("session-timeout", 10)
	viper.Set("shard", 200)
	viper.Set("strategy", "followers")
	viper.Set("pool-size", 8)
	viper.Set("consistency", "lease")

	config, err := GetClientConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"node-1:8700", "node-2:8700"}, config.Endpoints)
	assert.Equal(t, 3, config.TimeoutSecond)
	assert.Equal(t, 2, config.RetryCount)
	assert.Equal(t, 10, config.SessionTimeoutSecond)
	assert.Equal(t, uint64(200), config.ShardID)
	assert.Equal(t, client.StrategyFollowers, config.Strategy)
	assert.Equal(t, 8, config.PoolSize)

	consistency, err := GetConsistency()
	require.NoError(t, err)
	assert.Equal(t, store.LinearizableLease, consistency)

	viper.Set("transport", "carrier-pigeon")
	_, err = GetClientConfig()
	assert.Error(t, err)
}

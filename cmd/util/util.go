package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/rpc/client"
	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/ValentinKolb/dTree/rpc/serializer"
	"github.com/ValentinKolb/dTree/rpc/transport"
	"github.com/ValentinKolb/dTree/rpc/transport/http"
	"github.com/ValentinKolb/dTree/rpc/transport/tcp"
	"github.com/ValentinKolb/dTree/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (e.g. DTREE_TIMEOUT)
	EnvPrefix = "dtree"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read DTREE_* environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds the session and connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 5, WrapString("Timeout of a single request attempt in seconds"))

	key = "endpoints"
	cmd.PersistentFlags().String(key, client.DefaultEndpoint, WrapString("Comma-separated client endpoints of the cluster members. They are the seeds of the session, the client learns the other members from the cluster"))

	key = "shard"
	cmd.PersistentFlags().Uint64(key, client.DefaultShardID, WrapString("ID of the shard to open the session with"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 5, WrapString("How many redirects and retries a request may use"))

	key = "session-timeout"
	cmd.PersistentFlags().Int(key, 30, WrapString("Session timeout in seconds, keep alives are sent every half of it. 0 disables keep alives"))

	key = "strategy"
	cmd.PersistentFlags().String(key, "leader", WrapString("Members that serve sequential reads (leader, followers, any)"))

	key = "consistency"
	cmd.PersistentFlags().String(key, "linearizable", WrapString("Consistency of reads (sequential, linearizable-lease, linearizable)"))

	key = "pool-size"
	cmd.PersistentFlags().Int(key, client.DefaultPoolSize(), WrapString("Number of requests executed in parallel"))

	key = "conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint, for transports that support this feature"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer of the transport (in KB, ignored for http)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer of the transport (in KB, ignored for http)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval of connections in seconds (only for tcp)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time of connections in seconds, negative keeps the OS default (only for tcp)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel of the client (debug, info, warn, error)"))
}

// GetClientConfig reads the session configuration from viper
func GetClientConfig() (client.Config, error) {
	s, err := GetSerializer()
	if err != nil {
		return client.Config{}, err
	}
	t, err := GetClientTransport()
	if err != nil {
		return client.Config{}, err
	}
	strategy, err := client.ParseStrategy(viper.GetString("strategy"))
	if err != nil {
		return client.Config{}, err
	}

	config := client.DefaultConfig(t, s)
	config.ClientConfig = common.ClientConfig{
		Endpoints:            GetEndpoints(),
		TimeoutSecond:        viper.GetInt("timeout"),
		RetryCount:           viper.GetInt("retries"),
		SessionTimeoutSecond: viper.GetInt("session-timeout"),
		Transport: common.ClientTransportConf{
			ConnectionsPerEndpoint: viper.GetInt("conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
				TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("tcp-linger"),
				TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			},
		},
	}
	config.ShardID = viper.GetUint64("shard")
	config.Strategy = strategy
	config.PoolSize = viper.GetInt("pool-size")
	return config, config.Validate()
}

// GetEndpoints returns the configured endpoints without empty entries
func GetEndpoints() []string {
	var endpoints []string
	for _, e := range strings.Split(viper.GetString("endpoints"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	return endpoints
}

// GetConsistency returns the configured read consistency
func GetConsistency() (store.ReadConsistency, error) {
	return store.ParseReadConsistency(viper.GetString("consistency"))
}

// --------------------------------------------------------------------------
// Serializer and transports
// --------------------------------------------------------------------------

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetClientTransport creates the client transport based on configuration
func GetClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerTransport creates the server transport based on configuration
func GetServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(), nil
	case "unix":
		return unix.NewUnixServerTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

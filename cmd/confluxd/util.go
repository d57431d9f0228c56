package confluxd

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conflux-sh/conflux/rpc/common"
	"github.com/conflux-sh/conflux/rpc/serializer"
	"github.com/conflux-sh/conflux/rpc/transport"
	"github.com/conflux-sh/conflux/rpc/transport/http"
	"github.com/conflux-sh/conflux/rpc/transport/tcp"
	"github.com/conflux-sh/conflux/rpc/transport/unix"
)

// wrapWidth is the column flag help text wraps at.
const wrapWidth = 60

// wrapString word-wraps long flag descriptions at wrapWidth characters.
func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	width := 0
	for _, word := range strings.Fields(text) {
		w := len(word)
		if width > 0 && width+1+w > wrapWidth {
			lines = append(lines, line.String())
			line.Reset()
			width = 0
		}
		if width > 0 {
			line.WriteString(" ")
			width++
		}
		line.WriteString(word)
		width += w
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}

// setupClientFlags adds the RPC connection flags shared by every client
// subcommand.
func setupClientFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().Int("timeout", 10, wrapString("client timeout in seconds"))
	cmd.PersistentFlags().String("endpoints", "http://localhost:8080", wrapString("comma-separated list of node endpoints"))
	cmd.PersistentFlags().Int("conn-per-endpoint", 1, wrapString("connections to open per endpoint"))
	cmd.PersistentFlags().Int("retries", 3, wrapString("how many times to retry a failed request"))
	cmd.PersistentFlags().String("subject", "", wrapString("subject id passed to the server's authorization hook"))
	cmd.PersistentFlags().String("consistency", "linearizable", wrapString("read consistency: stale, leader-lease, or linearizable"))
}

// initConfig loads .env files and binds viper to the CONFLUX_-prefixed
// environment.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("conflux")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlags exposes a command's own and inherited flags to viper, so every
// value is reachable as flag, CONFLUX_ env var, or .env entry alike.
func bindFlags(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return viper.BindPFlags(cmd.InheritedFlags())
}

func getClientConfig() common.ClientConfig {
	return common.ClientConfig{
		TimeoutSecond:          viper.GetInt("timeout"),
		Endpoints:              strings.Split(viper.GetString("endpoints"), ","),
		RetryCount:             viper.GetInt("retries"),
		ConnectionsPerEndpoint: viper.GetInt("conn-per-endpoint"),
	}
}

func getSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json", "":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

func getClientTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http", "":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

func getServerTransport() (transport.IRPCServerTransport, error) {
	switch viper.GetString("transport") {
	case "http", "":
		return http.NewHttpServerTransport(), nil
	case "tcp":
		return tcp.NewTCPServerTransport(64 * 1024), nil
	case "unix":
		return unix.NewUnixServerTransport(64 * 1024), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

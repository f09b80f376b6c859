package tree

import (
	"context"
	"time"

	"github.com/ValentinKolb/dTree/cmd/util"
	"github.com/ValentinKolb/dTree/rpc/client"
	"github.com/ValentinKolb/dTree/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cli")

var (
	rpcClient *client.RaftClient
	treeMap   *client.TreeMap[string]

	// TreeCommands represents the map command group
	TreeCommands = &cobra.Command{
		Use:                "tree",
		Short:              "Perform operations on the replicated ordered map",
		Long:               "Perform operations on the replicated ordered map of a shard. Keys are strings and ordered bytewise. Every invocation opens a session and closes it afterwards.",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	util.SetupRPCClientFlags(TreeCommands)

	TreeCommands.AddCommand(putCmd)
	TreeCommands.AddCommand(putIfAbsentCmd)
	TreeCommands.AddCommand(replaceCmd)
	TreeCommands.AddCommand(getCmd)
	TreeCommands.AddCommand(hasCmd)
	TreeCommands.AddCommand(removeCmd)
	TreeCommands.AddCommand(removeIfCmd)
	TreeCommands.AddCommand(firstCmd)
	TreeCommands.AddCommand(lastCmd)
	TreeCommands.AddCommand(floorCmd)
	TreeCommands.AddCommand(ceilingCmd)
	TreeCommands.AddCommand(higherCmd)
	TreeCommands.AddCommand(lowerCmd)
	TreeCommands.AddCommand(pollFirstCmd)
	TreeCommands.AddCommand(pollLastCmd)
	TreeCommands.AddCommand(sizeCmd)
	TreeCommands.AddCommand(clearCmd)
	TreeCommands.AddCommand(scanCmd)
	TreeCommands.AddCommand(iterateCmd)
	TreeCommands.AddCommand(infoCmd)
	TreeCommands.AddCommand(perfTestCmd)
}

// setupClient opens the session used by the sub command
func setupClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}
	consistency, err := util.GetConsistency()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(config.RetryCount+1)*config.Timeout())
	defer cancel()

	rpcClient, err = client.Connect(ctx, config)
	if err != nil {
		return err
	}
	treeMap = client.NewTreeMap[string](rpcClient, client.StringKeys{}, consistency)
	return nil
}

// closeClient unregisters the session
func closeClient(cmd *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close(cmd.Context())
}

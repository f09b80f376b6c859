package tree

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ValentinKolb/dTree/rpc/client"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Stores the value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := treeMap.Put(cmd.Context(), args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, version=%d\n", args[0], version)
			return nil
		},
	}
	putIfAbsentCmd = &cobra.Command{
		Use:   "put-if-absent [key] [value]",
		Short: "Stores the value if the key is not present",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, existed, err := treeMap.PutIfAbsent(cmd.Context(), args[0], []byte(args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, existed=%t, value=%s, version=%d\n", args[0], existed, v.Value, v.Version)
			return nil
		},
	}
	replaceCmd = &cobra.Command{
		Use:   "replace [key] [value] [version]",
		Short: "Stores the value if the key is stored with the expected version",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			expected, err := parseVersion(args[2])
			if err != nil {
				return err
			}
			version, err := treeMap.Replace(cmd.Context(), args[0], []byte(args[1]), expected)
			if client.IsVersionMismatch(err) {
				fmt.Printf("key=%s, version mismatch (expected %d)\n", args[0], expected)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, version=%d\n", args[0], version)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok, err := treeMap.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t, value=%s, version=%d\n", args[0], ok, v.Value, v.Version)
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := treeMap.ContainsKey(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%t\n", args[0], found)
			return nil
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [key]",
		Short: "Removes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, ok, err := treeMap.Remove(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, removed=%t, value=%s, version=%d\n", args[0], ok, v.Value, v.Version)
			return nil
		},
	}
	removeIfCmd = &cobra.Command{
		Use:   "remove-if [key] [version]",
		Short: "Removes a key if it is stored with the expected version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expected, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			err = treeMap.RemoveIfVersion(cmd.Context(), args[0], expected)
			if client.IsVersionMismatch(err) {
				fmt.Printf("key=%s, version mismatch (expected %d)\n", args[0], expected)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, removed=true\n", args[0])
			return nil
		},
	}

	// navigation

	firstCmd = &cobra.Command{
		Use:   "first",
		Short: "Prints the entry with the lowest key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printEntry(treeMap.FirstEntry(cmd.Context()))
		},
	}
	lastCmd = &cobra.Command{
		Use:   "last",
		Short: "Prints the entry with the highest key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printEntry(treeMap.LastEntry(cmd.Context()))
		},
	}
	floorCmd   = navigationCmd("floor", "highest key <= key", (*client.TreeMap[string]).FloorEntry)
	ceilingCmd = navigationCmd("ceiling", "lowest key >= key", (*client.TreeMap[string]).CeilingEntry)
	higherCmd  = navigationCmd("higher", "lowest key > key", (*client.TreeMap[string]).HigherEntry)
	lowerCmd   = navigationCmd("lower", "highest key < key", (*client.TreeMap[string]).LowerEntry)

	pollFirstCmd = &cobra.Command{
		Use:   "poll-first",
		Short: "Removes and prints the entry with the lowest key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printEntry(treeMap.PollFirstEntry(cmd.Context()))
		},
	}
	pollLastCmd = &cobra.Command{
		Use:   "poll-last",
		Short: "Removes and prints the entry with the highest key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printEntry(treeMap.PollLastEntry(cmd.Context()))
		},
	}

	// ranges

	sizeCmd = &cobra.Command{
		Use:   "size",
		Short: "Counts the entries in a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := treeMap.Size(cmd.Context(), keyRange(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("size=%d\n", size)
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes the entries in a range and invalidates the cursors over it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := treeMap.Clear(cmd.Context(), keyRange(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("removed=%d\n", removed)
			return nil
		},
	}
	scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Streams the entries of a range in key order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descending, _ := cmd.Flags().GetBool("desc")
			count := 0
			err := treeMap.ForEach(cmd.Context(), keyRange(cmd), descending, func(e client.Entry[string]) error {
				count++
				fmt.Printf("key=%s, value=%s, version=%d\n", e.Key, e.Value, e.Version)
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("entries=%d\n", count)
			return nil
		},
	}
	iterateCmd = &cobra.Command{
		Use:   "iterate",
		Short: "Reads a range through a server side cursor in batches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descending, _ := cmd.Flags().GetBool("desc")
			batch, _ := cmd.Flags().GetInt("batch")

			open := treeMap.Iterate
			if descending {
				open = treeMap.IterateDescending
			}
			cursor, err := open(cmd.Context(), keyRange(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("cursor=%d\n", cursor.ID())

			for e, err := range cursor.Iterator(cmd.Context(), batch) {
				if err != nil {
					return err
				}
				fmt.Printf("key=%s, value=%s, version=%d\n", e.Key, e.Value, e.Version)
			}
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints the session and the state of the map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := treeMap.Info(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("client=%s, session=%d, term=%d, leader=%s, members=%v\n",
				rpcClient.ClientID(), rpcClient.SessionID(), rpcClient.Term(), rpcClient.Leader(), rpcClient.Members())
			fmt.Printf("entries=%d, cursors=%d, index=%d\n", info.Entries, info.Cursors, info.Index)
			return nil
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{sizeCmd, clearCmd, scanCmd, iterateCmd} {
		cmd.Flags().String("from", "", "Lowest key of the range (inclusive), empty for unbounded")
		cmd.Flags().String("to", "", "Highest key of the range (exclusive), empty for unbounded")
		cmd.Flags().Bool("to-inclusive", false, "Include the highest key")
	}
	scanCmd.Flags().Bool("desc", false, "Descending key order")
	iterateCmd.Flags().Bool("desc", false, "Descending key order")
	iterateCmd.Flags().Int("batch", 100, "Number of entries fetched per command")
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// navigationQuery is a navigation method of the map as method expression
type navigationQuery func(m *client.TreeMap[string], ctx context.Context, key string) (client.Entry[string], bool, error)

// navigationCmd creates a command for a navigation query. The map is created by the pre run hook.
func navigationCmd(name, description string, query navigationQuery) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [key]",
		Short: "Prints the entry with the " + description,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printEntry(query(treeMap, cmd.Context(), args[0]))
		},
	}
}

func printEntry(e client.Entry[string], ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("found=false")
		return nil
	}
	fmt.Printf("found=true, key=%s, value=%s, version=%d\n", e.Key, e.Value, e.Version)
	return nil
}

func parseVersion(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("version must be a number: %w", err)
	}
	return v, nil
}

// keyRange builds the range of the --from, --to and --to-inclusive flags
func keyRange(cmd *cobra.Command) client.KeyRange[string] {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	toInclusive, _ := cmd.Flags().GetBool("to-inclusive")
	return client.KeyRange[string]{
		From:          from,
		To:            to,
		FromInclusive: true,
		ToInclusive:   toInclusive,
		FromUnbounded: from == "",
		ToUnbounded:   to == "",
	}
}

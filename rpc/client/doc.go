// Package client implements the client side of the dTree session protocol.
//
// A RaftClient holds one session with one shard. Commands carry the session id and a
// sequence number, so the shard applies a command at most once even if the client resends
// it to a new leader. Reads are routed by the configured CommunicationStrategy, reads that
// need the leader and all commands always go to the leader.
//
// Requests return a Future. Commands and linearizable reads of a session are executed in
// submission order, other reads run in parallel on a bounded executor.
//
// TreeMap is a typed view of the replicated ordered map on top of a RaftClient:
//
//	t := tcp.NewTCPClientTransport()
//	cfg := client.DefaultConfig(t, serializer.NewBinarySerializer())
//	c, err := client.Connect(ctx, cfg, "node-1:8700", "node-2:8700", "node-3:8700")
//	if err != nil {
//		return err
//	}
//	defer c.Close(ctx)
//
//	m := client.NewTreeMap[string](c, client.StringKeys{}, store.Linearizable)
//	version, err := m.Put(ctx, "a", []byte("1"))
//	_, err = m.Replace(ctx, "a", []byte("2"), version)
//	if client.IsVersionMismatch(err) {
//		// somebody else wrote "a"
//	}
//
// Cursors are part of the replicated state and are advanced by commands:
//
//	cur, err := m.Iterate(ctx, client.AtLeast("a"))
//	for e, err := range cur.Iterator(ctx, 100) {
//		...
//	}
package client

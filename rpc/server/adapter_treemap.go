package server

import (
	"fmt"

	"github.com/ValentinKolb/dTree/lib/store"
	"github.com/ValentinKolb/dTree/lib/store/protocol"
	"github.com/ValentinKolb/dTree/rpc/common"
)

// NewTreeMapServerAdapter creates the adapter for shards running the ordered map state machine.
func NewTreeMapServerAdapter() IRPCServerAdapter {
	return &treeMapServerAdapterImpl{}
}

type treeMapServerAdapterImpl struct{}

func (adapter *treeMapServerAdapterImpl) Validate(msgType common.MessageType, payload []byte) error {
	switch msgType {
	case common.MsgTCommand:
		var cmd protocol.Command
		if err := cmd.Deserialize(payload); err != nil {
			return store.NewError(store.RetCInvalidOperation, fmt.Sprintf("invalid command: %v", err))
		}
		if cmd.Type > protocol.CommandTClear {
			return store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("unsupported command: %s", cmd.Type))
		}
	case common.MsgTQuery:
		var query protocol.Query
		if err := query.Deserialize(payload); err != nil {
			return store.NewError(store.RetCInvalidOperation, fmt.Sprintf("invalid query: %v", err))
		}
		if query.Type > protocol.QueryTInfo {
			return store.NewError(store.RetCUnsupportedOperation, fmt.Sprintf("unsupported query: %s", query.Type))
		}
	}
	return nil
}

func (adapter *treeMapServerAdapterImpl) Records(payload []byte) ([][]byte, error) {
	return protocol.SplitRecords(payload)
}

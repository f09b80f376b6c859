// Package serializer encodes the common.Message of the session protocol.
//
// All implementations of IRPCSerializer are stateless and can be shared between goroutines:
//
//   - NewBinarySerializer: fixed header (type, status, consistency, field flags) followed by
//     the present fields only. The default of client and server.
//   - NewJSONSerializer: readable messages, message types and statuses are written as names.
//   - NewGOBSerializer: encoding/gob, kept for comparison in the benchmarks.
//
// Client and server must use the same serializer:
//
//	s := serializer.NewBinarySerializer()
//	data, err := s.Serialize(*common.NewQueryRequest(store.Linearizable, payload))
//	...
//	var resp common.Message
//	err = s.Deserialize(raw, &resp)
package serializer

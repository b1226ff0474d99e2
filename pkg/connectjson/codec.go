// Package connectjson lets Connect handlers and clients exchange plain Go
// structs as JSON, without generated protobuf messages.
//
// Register it on both ends:
//
//	connect.NewUnaryHandler(procedure, fn, connect.WithCodec(connectjson.Codec{}))
//	connect.NewClient[Req, Resp](httpClient, url, connect.WithCodec(connectjson.Codec{}))
package connectjson

import (
	"encoding/json"
	"fmt"
)

// Codec replaces Connect's protobuf-only "json" codec with encoding/json.
type Codec struct{}

// Name is the codec name Connect negotiates with ("application/json").
func (Codec) Name() string { return "json" }

func (Codec) Marshal(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", msg, err)
	}
	return data, nil
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", msg, err)
	}
	return nil
}

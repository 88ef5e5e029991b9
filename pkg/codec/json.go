// Package codec provides a Connect codec for plain Go structs.
package codec

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// JSON replaces Connect's protobuf-only JSON codec so handlers can use
// ordinary structs with json tags. It registers under the same name, so
// clients keep sending application/json.
type JSON struct{}

var _ connect.Codec = JSON{}

func (JSON) Name() string { return "json" }

func (JSON) Marshal(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// MarshalStable is required for HTTP GET requests; encoding/json already
// sorts map keys.
func (c JSON) MarshalStable(msg any) ([]byte, error) {
	return c.Marshal(msg)
}

func (JSON) IsBinary() bool { return false }

func (JSON) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal into %T: %w", msg, err)
	}
	return nil
}

package model

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// SchemaVersion is the current on-disk/wire encoding version. The first byte
// of every encoded value is this tag; decoding
// an unknown tag fails the operation rather than attempting to interpret
// bytes written by a newer, incompatible schema.
const SchemaVersion byte = 1

// Encode serializes v with a leading schema-version byte. gob already
// serves the RPC layer's structured values (rpc/serializer/gobimpl.go);
// reusing it for on-disk values avoids hand-rolling a binary layout for
// every nested domain type.
func Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(SchemaVersion)
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("model: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode deserializes into v, validating the leading schema-version byte.
func Decode(data []byte, v interface{}) error {
	if len(data) < 1 {
		return fmt.Errorf("model: decode: empty payload")
	}
	if data[0] != SchemaVersion {
		return fmt.Errorf("model: decode: unsupported schema version %d", data[0])
	}
	dec := gob.NewDecoder(bytes.NewReader(data[1:]))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("model: decode: %w", err)
	}
	return nil
}

package embedpy

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer encodes host values to bytes and back. The bridge uses it to
// fill host structs from guest dicts, and the command line tool to emit
// results.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// MsgpackSerializer is the default Serializer. Struct fields are matched by
// their msgpack tag, falling back to the json tag and then the field name.
// Integers decoded into interface values come back as int64 or uint64.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackSerializer) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	dec.UseLooseInterfaceDecoding(true)
	return dec.Decode(v)
}

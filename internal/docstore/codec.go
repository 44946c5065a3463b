package docstore

import (
	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ msgpack.CustomEncoder = D(nil)
	_ msgpack.CustomDecoder = (*D)(nil)
)

// EncodeMsgpack writes d as a msgpack map in element order.
func (d D) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(d)); err != nil {
		return err
	}
	for _, e := range d {
		if err := enc.EncodeString(e.Key); err != nil {
			return err
		}
		if err := enc.Encode(e.Value); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack reads a msgpack map into d, keeping element order. Nested
// maps decode as D; integers decode as int64 or uint64.
func (d *D) DecodeMsgpack(dec *msgpack.Decoder) error {
	dec.SetMapDecoder(decodeMap)
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}
	if n < 0 {
		*d = nil
		return nil
	}
	out := make(D, 0, n)
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		v, err := dec.DecodeInterfaceLoose()
		if err != nil {
			return err
		}
		out = append(out, E{Key: key, Value: v})
	}
	*d = out
	return nil
}

func decodeMap(dec *msgpack.Decoder) (any, error) {
	var d D
	if err := d.DecodeMsgpack(dec); err != nil {
		return nil, err
	}
	return d, nil
}

// Marshal encodes a command for a document backend.
func Marshal(cmd Command) ([]byte, error) {
	return msgpack.Marshal(&cmd)
}

// Unmarshal decodes a command produced by Marshal.
func Unmarshal(data []byte, cmd *Command) error {
	return msgpack.Unmarshal(data, cmd)
}

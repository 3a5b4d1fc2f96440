package protocol

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/ugorji/go/codec"
)

var handle = newHandle()

// newHandle returns the msgpack handle shared by Encode and Decode. Decoding
// into interface{} yields map[string]interface{}, string and int64 values, so
// that entities read back from the wire look like the ones that were sent.
func newHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.WriteExt = true
	mh.RawToString = true
	mh.SignedInteger = true
	mh.Canonical = true
	mh.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return mh
}

// Encode returns the wire representation of a message: its type byte followed
// by the msgpack encoding of its body.
func Encode(m Message) ([]byte, error) {
	b := new(bytes.Buffer)

	if err := b.WriteByte(byte(m.Type())); err != nil {
		return nil, err
	}

	enc := codec.NewEncoder(b, handle)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", m.Type(), err)
	}

	return b.Bytes(), nil
}

// Decode parses the wire representation of a message produced by Encode.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyMessage
	}

	t := Type(data[0])

	m, err := newMessage(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", err, data[0])
	}

	dec := codec.NewDecoderBytes(data[1:], handle)
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", t, err)
	}

	return m, nil
}

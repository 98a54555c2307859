package transport

import (
	"github.com/ugorji/go/codec"

	"github.com/hupe1980/swarmcoord/core"
)

// msgpackHandle decodes raw bytes as strings so opaque payload values round
// trip as their JSON-ish Go shapes (string/map/slice) rather than []byte.
var msgpackHandle = func() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.RawToString = true
	return h
}()

// Encode serializes a value to msgpack.
func Encode(v any) ([]byte, error) {
	var buf []byte
	enc := codec.NewEncoderBytes(&buf, msgpackHandle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf, nil
}

// Decode deserializes msgpack bytes into v.
func Decode(bs []byte, v any) error {
	dec := codec.NewDecoderBytes(bs, msgpackHandle)
	return dec.Decode(v)
}

// EncodeMessage serializes a coordination envelope.
func EncodeMessage(m core.Message) ([]byte, error) {
	return Encode(m)
}

// DecodeMessage deserializes a coordination envelope.
func DecodeMessage(bs []byte) (core.Message, error) {
	var m core.Message
	if err := Decode(bs, &m); err != nil {
		return core.Message{}, err
	}
	return m, nil
}

// EncodeVersion serializes a state version for persistence.
func EncodeVersion(v core.StateVersion) ([]byte, error) {
	return Encode(v)
}

// DecodeVersion deserializes a persisted state version.
func DecodeVersion(bs []byte) (core.StateVersion, error) {
	var v core.StateVersion
	if err := Decode(bs, &v); err != nil {
		return core.StateVersion{}, err
	}
	return v, nil
}

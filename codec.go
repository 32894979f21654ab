package muxwire

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"
)

// PayloadCodec converts between application values and payload bytes for
// one type tag. The core never touches the bytes in between; codecs are
// the only place that knows what they mean.
type PayloadCodec interface {
	// Encode serializes a value into payload bytes.
	Encode(v any) ([]byte, error)
	// Decode deserializes payload bytes back into a value.
	Decode(data []byte) (any, error)
}

// Registry maps type tags to payload codecs. Build it once during setup
// and hand it to the connection; Register is not safe to call while a
// connection is using the registry.
type Registry struct {
	codecs map[TypeTag]PayloadCodec
}

// NewRegistry returns a registry with the built-in binary, string and
// JSON codecs pre-registered.
func NewRegistry() *Registry {
	return &Registry{
		codecs: map[TypeTag]PayloadCodec{
			TagBinary: BinaryCodec{},
			TagString: StringCodec{},
			TagJSON:   JSONCodec{},
		},
	}
}

// Register adds a codec for a tag in the custom range. Built-in tags
// cannot be replaced.
func (r *Registry) Register(tag TypeTag, codec PayloadCodec) error {
	if tag < TagCustomBase {
		return errors.Errorf("tag 0x%04x is reserved, custom tags start at 0x%04x", uint16(tag), uint16(TagCustomBase))
	}
	if _, ok := r.codecs[tag]; ok {
		return errors.Errorf("tag 0x%04x already registered", uint16(tag))
	}
	r.codecs[tag] = codec
	return nil
}

// Lookup returns the codec registered for tag.
func (r *Registry) Lookup(tag TypeTag) (PayloadCodec, error) {
	codec, ok := r.codecs[tag]
	if !ok {
		return nil, errors.Wrapf(ErrCodecNotFound, "tag %s", tag)
	}
	return codec, nil
}

// Encode serializes v with the codec registered for tag.
func (r *Registry) Encode(tag TypeTag, v any) ([]byte, error) {
	codec, err := r.Lookup(tag)
	if err != nil {
		return nil, err
	}
	return codec.Encode(v)
}

// Decode deserializes a received message's payload with the codec
// registered for its tag.
func (r *Registry) Decode(m *Message) (any, error) {
	codec, err := r.Lookup(m.Tag)
	if err != nil {
		return nil, err
	}
	return codec.Decode(m.Payload)
}

// BinaryCodec passes []byte through unmodified.
type BinaryCodec struct{}

func (BinaryCodec) Encode(v any) ([]byte, error) {
	buf, ok := v.([]byte)
	if !ok {
		return nil, errors.Errorf("binary codec expects []byte, got %T", v)
	}
	return buf, nil
}

func (BinaryCodec) Decode(data []byte) (any, error) {
	return data, nil
}

// StringCodec exchanges UTF-8 text. Both directions reject byte
// sequences that are not valid UTF-8.
type StringCodec struct{}

func (StringCodec) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, errors.Errorf("string codec expects string, got %T", v)
	}
	if !utf8.ValidString(s) {
		return nil, errors.New("string codec: invalid UTF-8")
	}
	return []byte(s), nil
}

func (StringCodec) Decode(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, errors.New("string codec: invalid UTF-8")
	}
	return string(data), nil
}

// JSONCodec exchanges JSON documents. Decode returns the generic
// encoding/json representation (map[string]any, []any, ...).
type JSONCodec struct{}

func (JSONCodec) Encode(v any) ([]byte, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "json codec")
	}
	return buf, nil
}

func (JSONCodec) Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.Wrap(err, "json codec")
	}
	return v, nil
}

// ProtoCodec exchanges one concrete protobuf message type. The prototype
// supplies the type; Decode allocates a fresh message per call.
type ProtoCodec struct {
	prototype proto.Message
}

// NewProtoCodec returns a codec for prototype's message type, meant to
// be registered under a tag in the custom range.
func NewProtoCodec(prototype proto.Message) ProtoCodec {
	return ProtoCodec{prototype: prototype}
}

func (c ProtoCodec) Encode(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, errors.Errorf("proto codec expects proto.Message, got %T", v)
	}
	buf, err := proto.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "proto codec")
	}
	return buf, nil
}

func (c ProtoCodec) Decode(data []byte) (any, error) {
	m := c.prototype.ProtoReflect().New().Interface()
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "proto codec")
	}
	return m, nil
}

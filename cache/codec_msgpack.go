package cache

import "github.com/vmihailenco/msgpack/v5"

// MsgpackSerializer is a drop-in Config.Serializer that encodes entities
// with msgpack instead of the JSON marker codec. Payloads are smaller and
// faster to decode, at the cost of the embedded model-name check: msgpack
// payloads carry no type metadata, so cross-model contamination surfaces
// as garbled field values rather than ErrModelMismatch. Use it only when
// every writer and reader of the region agrees on the entity types.
func MsgpackSerializer(entity any) ([]byte, error) {
	return msgpack.Marshal(entity)
}

// MsgpackDeserializer is the read-side counterpart of MsgpackSerializer.
func MsgpackDeserializer(data []byte, dest any) error {
	return msgpack.Unmarshal(data, dest)
}

package session

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts sessions to and from the stored payload. The payload is
// opaque to the store; both codecs encode {id, expiry, max_age, values}.
type Codec interface {
	Encode(s *Session) ([]byte, error)
	Decode(data []byte) (*Session, error)
}

// JSONCodec is the default payload codec.
type JSONCodec struct{}

func (JSONCodec) Encode(s *Session) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("session: encode payload: %w", err)
	}
	return b, nil
}

func (JSONCodec) Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: decode payload: %w", err)
	}
	return &s, nil
}

// MsgpackCodec encodes payloads with MessagePack, for deployments that want
// smaller records than JSON produces.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(s *Session) ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("session: encode payload: %w", err)
	}
	return b, nil
}

func (MsgpackCodec) Decode(data []byte) (*Session, error) {
	var s Session
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: decode payload: %w", err)
	}
	return &s, nil
}

package history

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"go.klb.dev/clipwatch/internal/crypto"
)

// File layout:
//
//	[ "CWHS" ][ uint32 BE version ][ flags byte ][ payload ]
//
// The payload is the JSON container {"records":[...]}. With flagSealed set it
// is secretbox-sealed (nonce + ciphertext) instead.
const (
	magic          = "CWHS"
	currentVersion = uint32(1)
	headerSize     = len(magic) + 4 + 1

	flagSealed byte = 1 << 0
)

type container[T any] struct {
	Records []T `json:"records"`
}

func encode[T any](records []T, key *crypto.Key) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	payload, err := json.Marshal(container[T]{Records: records})
	if err != nil {
		return nil, &SerializationError{Op: "encode", Err: err}
	}

	var flags byte
	if key != nil {
		payload, err = crypto.Seal(payload, key)
		if err != nil {
			return nil, &SerializationError{Op: "seal", Err: err}
		}
		flags |= flagSealed
	}

	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(payload)))
	buf.WriteString(magic)
	_ = binary.Write(buf, binary.BigEndian, currentVersion)
	buf.WriteByte(flags)
	buf.Write(payload)
	return buf.Bytes(), nil
}

func decode[T any](data []byte, key *crypto.Key) ([]T, error) {
	if len(data) < headerSize || string(data[:len(magic)]) != magic {
		return nil, &SerializationError{Op: "decode", Err: ErrBadMagic}
	}
	version := binary.BigEndian.Uint32(data[len(magic):])
	if version != currentVersion {
		return nil, &SerializationError{
			Op:  "decode",
			Err: fmt.Errorf("%w: %d", ErrUnsupportedVersion, version),
		}
	}
	flags := data[headerSize-1]
	payload := data[headerSize:]

	if flags&flagSealed != 0 {
		if key == nil {
			return nil, &SerializationError{Op: "decode", Err: ErrSealed}
		}
		var err error
		payload, err = crypto.Open(payload, key)
		if err != nil {
			return nil, &SerializationError{Op: "open", Err: err}
		}
	}

	var c container[T]
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, &SerializationError{Op: "decode", Err: err}
	}
	return c.Records, nil
}

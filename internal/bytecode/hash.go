package bytecode

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR encoder: %v", err))
	}
}

// MarshalClass encodes a class in canonical CBOR. Equal classes always
// produce identical bytes.
func MarshalClass(c *Class) ([]byte, error) {
	data, err := encMode.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("bytecode: marshal class %s: %w", c.Name, err)
	}
	return data, nil
}

// UnmarshalClass decodes a class produced by MarshalClass.
func UnmarshalClass(data []byte) (*Class, error) {
	var c Class
	if err := cbor.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal class: %w", err)
	}
	return &c, nil
}

// ContentHash returns the SHA-256 of the canonical encoding of the class.
func ContentHash(c *Class) ([32]byte, error) {
	data, err := MarshalClass(c)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// ClassID is the leading 8 bytes of the content hash. Execution records
// are keyed by it so that records of a modified class are detected.
func ClassID(c *Class) (uint64, error) {
	sum, err := ContentHash(c)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(sum[:8]), nil
}

// FormatClassID renders an id as 16 hex digits.
func FormatClassID(id uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return hex.EncodeToString(b[:])
}

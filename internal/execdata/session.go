package execdata

import (
	"time"

	"github.com/google/uuid"
)

// SessionInfo identifies one collection run.
type SessionInfo struct {
	ID    string    `cbor:"id" msgpack:"id" json:"id" yaml:"id"`
	Start time.Time `cbor:"start" msgpack:"start" json:"start" yaml:"start"`
	Dump  time.Time `cbor:"dump" msgpack:"dump" json:"dump" yaml:"dump"`
}

// NewSession starts a session with a random id.
func NewSession() SessionInfo {
	return SessionInfo{ID: uuid.NewString(), Start: time.Now().UTC()}
}

// Finish stamps the dump time.
func (s *SessionInfo) Finish() {
	s.Dump = time.Now().UTC()
}

package execdata

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(ModeCount)
	a, err := s.Get(0xCAFE, "org/example/A", 3)
	require.NoError(t, err)
	a.Hit(0)
	a.Hit(2)
	a.Hit(2)
	_, err = s.Get(0xBEEF, "org/example/B", 1)
	require.NoError(t, err)
	return s
}

func TestEncodeDecode(t *testing.T) {
	session := SessionInfo{
		ID:    "5f0c8f0e-8a1e-4d57-9d5b-1f2a3b4c5d6e",
		Start: time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC),
		Dump:  time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC),
	}

	for _, format := range []Format{FormatCBOR, FormatMsgpack} {
		t.Run(format.String(), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, NewFile([]SessionInfo{session}, sampleStore(t)), format))
			assert.Equal(t, "PCOV", buf.String()[:4])
			assert.Equal(t, byte(format), buf.Bytes()[5])

			f, err := Decode(&buf)
			require.NoError(t, err)
			require.Len(t, f.Sessions, 1)
			assert.Equal(t, session.ID, f.Sessions[0].ID)
			assert.True(t, session.Start.Equal(f.Sessions[0].Start))
			assert.True(t, session.Dump.Equal(f.Sessions[0].Dump))

			s := NewStore(ModeCount)
			require.NoError(t, f.MergeInto(s))
			a, ok := s.Lookup(0xCAFE)
			require.True(t, ok)
			assert.Equal(t, "org/example/A", a.Name())
			assert.Equal(t, []uint32{1, 0, 2}, a.Counts())
			b, ok := s.Lookup(0xBEEF)
			require.True(t, ok)
			assert.Equal(t, 0, b.Covered())
		})
	}
}

func TestEncode_CanonicalCBOR(t *testing.T) {
	var a, b bytes.Buffer
	require.NoError(t, Encode(&a, NewFile(nil, sampleStore(t)), FormatCBOR))
	require.NoError(t, Encode(&b, NewFile(nil, sampleStore(t)), FormatCBOR))
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestDecode_BadHeader(t *testing.T) {
	tests := map[string][]byte{
		"empty":          nil,
		"wrong magic":    []byte("JCOV\x01c"),
		"wrong version":  []byte("PCOV\x09c"),
		"unknown format": []byte("PCOV\x01z"),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(bytes.NewReader(data))
			assert.True(t, errors.Is(err, ErrBadHeader), "got %v", err)
		})
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("msgpack")
	require.NoError(t, err)
	assert.Equal(t, FormatMsgpack, f)
	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCBOR, f)
	_, err = ParseFormat("xml")
	assert.Error(t, err)
}

func TestFileManager(t *testing.T) {
	t.Run("should start empty without a file", func(t *testing.T) {
		m := NewFileManager(filepath.Join(t.TempDir(), DefaultFileName), FormatCBOR, ModeBoolean)
		require.NoError(t, m.Load())
		assert.Equal(t, 0, m.Store().Len())
		assert.Empty(t, m.Sessions())
	})

	t.Run("should save and merge on load", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "out", "run.exec")
		m := NewFileManager(path, FormatMsgpack, ModeBoolean)
		require.NoError(t, m.Load())
		r, err := m.Store().Get(1, "a/A", 2)
		require.NoError(t, err)
		r.Hit(0)
		s := NewSession()
		s.Finish()
		m.AddSession(s)
		require.NoError(t, m.Save())

		_, err = os.Stat(path)
		require.NoError(t, err)
		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err))

		m2 := NewFileManager(path, FormatMsgpack, ModeBoolean)
		r2, err := m2.Store().Get(1, "a/A", 2)
		require.NoError(t, err)
		r2.Hit(1)
		require.NoError(t, m2.Load())
		assert.Equal(t, []bool{true, true}, r2.Probes())
		require.Len(t, m2.Sessions(), 1)
		assert.Equal(t, s.ID, m2.Sessions()[0].ID)
	})

	t.Run("should reject garbage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.exec")
		require.NoError(t, os.WriteFile(path, []byte("not a file"), 0644))
		m := NewFileManager(path, FormatCBOR, ModeBoolean)
		assert.True(t, errors.Is(m.Load(), ErrBadHeader))
		assert.Equal(t, path, m.GetFilePath())
	})
}

func TestNewSession(t *testing.T) {
	a, b := NewSession(), NewSession()
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
	assert.True(t, a.Dump.IsZero())
	a.Finish()
	assert.False(t, a.Dump.Before(a.Start))
}

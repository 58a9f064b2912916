package execdata

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Files start with the magic, a version byte and a format byte.
const (
	magic       = "PCOV"
	wireVersion = 1
)

// ErrBadHeader is returned when a stream is not an execution data file.
var ErrBadHeader = errors.New("not an execution data file")

// Format is the payload encoding of a file.
type Format byte

const (
	FormatCBOR    Format = 'c'
	FormatMsgpack Format = 'm'
)

func (f Format) String() string {
	switch f {
	case FormatCBOR:
		return "cbor"
	case FormatMsgpack:
		return "msgpack"
	default:
		return fmt.Sprintf("Format(%q)", byte(f))
	}
}

// ParseFormat parses "cbor" or "msgpack".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "cbor":
		return FormatCBOR, nil
	case "msgpack", "mp":
		return FormatMsgpack, nil
	default:
		return 0, fmt.Errorf("unknown execution data format %q", s)
	}
}

// RecordData is the serialized form of a Record.
type RecordData struct {
	ID     uint64   `cbor:"id" msgpack:"id"`
	Name   string   `cbor:"name" msgpack:"name"`
	Mode   Mode     `cbor:"mode" msgpack:"mode"`
	Probes []uint32 `cbor:"probes" msgpack:"probes"`
}

// File is the content of an execution data file.
type File struct {
	Sessions []SessionInfo `cbor:"sessions" msgpack:"sessions"`
	Records  []RecordData  `cbor:"records" msgpack:"records"`
}

// NewFile snapshots a store.
func NewFile(sessions []SessionInfo, s *Store) *File {
	f := &File{Sessions: append([]SessionInfo(nil), sessions...)}
	for _, r := range s.Records() {
		f.Records = append(f.Records, RecordData{ID: r.id, Name: r.name, Mode: r.mode, Probes: r.Counts()})
	}
	return f
}

// MergeInto adds every record of the file to s.
func (f *File) MergeInto(s *Store) error {
	for _, rd := range f.Records {
		r := NewRecord(rd.ID, rd.Name, len(rd.Probes), rd.Mode)
		r.load(rd.Probes)
		if err := s.Put(r); err != nil {
			return fmt.Errorf("failed to merge record %s: %w", rd.Name, err)
		}
	}
	return nil
}

var cborEncMode cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("execdata: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Encode writes f with the given payload format.
func Encode(w io.Writer, f *File, format Format) error {
	var payload []byte
	var err error
	switch format {
	case FormatCBOR:
		payload, err = cborEncMode.Marshal(f)
	case FormatMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.UseCompactInts(true)
		err = enc.Encode(f)
		payload = buf.Bytes()
	default:
		return fmt.Errorf("unsupported format %v", format)
	}
	if err != nil {
		return fmt.Errorf("failed to encode execution data: %w", err)
	}

	bw := bufio.NewWriter(w)
	bw.WriteString(magic)
	bw.WriteByte(wireVersion)
	bw.WriteByte(byte(format))
	bw.Write(payload)
	return bw.Flush()
}

// Decode reads a file written by Encode, detecting the payload format from
// the header.
func Decode(r io.Reader) (*File, error) {
	br := bufio.NewReader(r)
	head := make([]byte, len(magic)+2)
	if _, err := io.ReadFull(br, head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if string(head[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadHeader, head[:len(magic)])
	}
	if v := head[len(magic)]; v != wireVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadHeader, v)
	}

	var f File
	switch format := Format(head[len(magic)+1]); format {
	case FormatCBOR:
		if err := cbor.NewDecoder(br).Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode execution data: %w", err)
		}
	case FormatMsgpack:
		if err := msgpack.NewDecoder(br).Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode execution data: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrBadHeader, byte(format))
	}
	return &f, nil
}

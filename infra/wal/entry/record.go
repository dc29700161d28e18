package entry

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
	"time"
)

type RecordType uint8

const (
	RecordPlace RecordType = iota
	RecordCancel
)

func (t RecordType) String() string {
	switch t {
	case RecordPlace:
		return "place"
	case RecordCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Frame layout:
// [type:1][seq:8][time:8][len:4][payload][crc:4]
// The crc covers the header and the payload.
const (
	headerSize = 1 + 8 + 8 + 4
	crcSize    = 4
	maxPayload = 16 << 20
)

var (
	// ErrCorruptRecord is returned for a frame that fails its checksum or
	// breaks sequence order somewhere other than the tail of the log.
	ErrCorruptRecord = errors.New("entry wal: corrupt record")
	// ErrOutOfOrder is returned by Append for a sequence that does not
	// follow the last appended one.
	ErrOutOfOrder = errors.New("entry wal: sequence out of order")

	// ErrFailed is returned by every Append after a write that could not
	// be rolled back or a failed fsync. The log must be reopened.
	ErrFailed = errors.New("entry wal: log failed")

	errTornTail       = errors.New("entry wal: torn tail")
	errSegmentDamaged = errors.New("entry wal: partial frame not rolled back")
)

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}

func (r *Record) encode() []byte {
	n := uint32(len(r.Data))
	buf := make([]byte, headerSize+int(n)+crcSize)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], n)
	copy(buf[headerSize:], r.Data)

	crc := crc32.ChecksumIEEE(buf[:headerSize+int(n)])
	binary.BigEndian.PutUint32(buf[headerSize+int(n):], crc)
	return buf
}

// readRecord decodes one frame and returns it with its encoded size.
// A clean end of input is io.EOF; a frame cut short is
// io.ErrUnexpectedEOF.
func readRecord(r io.Reader, header []byte) (*Record, int64, error) {
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, 0, err
	}
	n := binary.BigEndian.Uint32(header[17:21])
	if n > maxPayload {
		return nil, 0, ErrCorruptRecord
	}

	body := make([]byte, int(n)+crcSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}

	sum := crc32.NewIEEE()
	sum.Write(header)
	sum.Write(body[:n])
	if sum.Sum32() != binary.BigEndian.Uint32(body[n:]) {
		return nil, 0, ErrCorruptRecord
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: body[:n:n],
	}, int64(headerSize + len(body)), nil
}

package frame

import (
	"bytes"
	"fmt"
	"io"

	"github.com/wippyai/opcore/errors"
)

const (
	magic   byte = 0x6f // 'o'
	version byte = 1
)

// Record is one async completion: the token returned by the dispatch call,
// whether the op succeeded, and the encoded result or error.
type Record struct {
	Payload []byte
	Token   uint32
	OK      bool
}

// EncodeBatch serializes records for delivery to the script side.
//
//	magic version count { token flags len payload }*
//
// token, count and len are unsigned LEB128; flags bit 0 is the ok flag.
func EncodeBatch(records []Record) []byte {
	size := 2 + 5
	for _, r := range records {
		size += 5 + 1 + 5 + len(r.Payload)
	}

	var buf bytes.Buffer
	buf.Grow(size)
	buf.WriteByte(magic)
	buf.WriteByte(version)
	writeLEB128u(&buf, uint32(len(records)))
	for _, r := range records {
		writeLEB128u(&buf, r.Token)
		var flags byte
		if r.OK {
			flags = 1
		}
		buf.WriteByte(flags)
		writeLEB128u(&buf, uint32(len(r.Payload)))
		buf.Write(r.Payload)
	}
	return buf.Bytes()
}

// DecodeBatch parses a batch produced by EncodeBatch. Any framing problem is
// a dispatch fault: the two sides disagree about the protocol.
func DecodeBatch(data []byte) ([]Record, error) {
	r := bytes.NewReader(data)

	m, err := r.ReadByte()
	if err != nil {
		return nil, corrupt("missing header", err)
	}
	v, err := r.ReadByte()
	if err != nil {
		return nil, corrupt("missing version", err)
	}
	if m != magic {
		return nil, corrupt(fmt.Sprintf("bad magic 0x%02x", m), nil)
	}
	if v != version {
		return nil, corrupt(fmt.Sprintf("unsupported version %d", v), nil)
	}

	count, err := readLEB128u(r)
	if err != nil {
		return nil, corrupt("record count", err)
	}
	// every record needs at least three bytes
	if int64(count)*3 > int64(r.Len()) {
		return nil, corrupt(fmt.Sprintf("count %d exceeds frame size", count), nil)
	}

	records := make([]Record, 0, count)
	for i := uint32(0); i < count; i++ {
		token, err := readLEB128u(r)
		if err != nil {
			return nil, corrupt(fmt.Sprintf("record %d token", i), err)
		}
		flags, err := r.ReadByte()
		if err != nil {
			return nil, corrupt(fmt.Sprintf("record %d flags", i), err)
		}
		if flags&^1 != 0 {
			return nil, corrupt(fmt.Sprintf("record %d has unknown flags 0x%02x", i, flags), nil)
		}
		n, err := readLEB128u(r)
		if err != nil {
			return nil, corrupt(fmt.Sprintf("record %d length", i), err)
		}
		if int64(n) > int64(r.Len()) {
			return nil, corrupt(fmt.Sprintf("record %d length %d exceeds frame", i, n), io.ErrUnexpectedEOF)
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, corrupt(fmt.Sprintf("record %d payload", i), err)
		}
		records = append(records, Record{Token: token, OK: flags&1 == 1, Payload: payload})
	}

	if r.Len() != 0 {
		return nil, corrupt(fmt.Sprintf("%d trailing bytes", r.Len()), nil)
	}
	return records, nil
}

func corrupt(detail string, cause error) error {
	e := errors.DispatchFault("", "corrupt frame: "+detail)
	e.Cause = cause
	return e
}

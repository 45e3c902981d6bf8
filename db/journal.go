package db

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// journalVersion is the only version this package writes or accepts.
const journalVersion uint16 = 1

// journalRecord is one decoded change record from the on-disk journal.
//
// The on-disk shape is fixed by spec.md §6 byte-for-byte:
//
//	u16 version
//	repeated {
//	  i32 total_len
//	  i32 cmd_len;   u8 cmd[cmd_len]    (NUL-terminated, len includes NUL)
//	  i32 model_len; u8 model[model_len] (NUL-terminated, len includes NUL)
//	  i32 value_len; u8 value[value_len] (NUL-terminated JSON, len includes NUL)
//	}
//
// This is the one format in this package that cannot diverge from the
// teacher's WAL framing idea in its specifics: it's a defined external
// interface, not an internal choice. Lengths are written with
// binary.LittleEndian rather than true host order — see DESIGN.md's Open
// Questions entry on this.
type journalRecord struct {
	Cmd   string // "create" | "update" | "upsert" | "remove"
	Model string
	Value []byte // raw JSON, nil for an empty value
}

func writeJournalHeader(w io.Writer) error {
	return binary.Write(w, binary.LittleEndian, journalVersion)
}

func readJournalHeader(r io.Reader) (uint16, error) {
	var v uint16
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}

	return v, nil
}

// encodeJournalRecord renders rec in the on-disk layout described above.
func encodeJournalRecord(rec journalRecord) []byte {
	cmdBytes := append([]byte(rec.Cmd), 0)
	modelBytes := append([]byte(rec.Model), 0)
	valueBytes := append(append([]byte{}, rec.Value...), 0)

	body := make([]byte, 0, 12+len(cmdBytes)+len(modelBytes)+len(valueBytes))
	body = appendI32Field(body, cmdBytes)
	body = appendI32Field(body, modelBytes)
	body = appendI32Field(body, valueBytes)

	out := make([]byte, 0, 4+len(body))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(body)))
	out = append(out, body...)

	return out
}

func appendI32Field(dst []byte, field []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(field)))
	return append(dst, field...)
}

// appendJournalRecord writes rec to w (one record per mutation, per
// spec.md §4.5) and returns the number of bytes written. It does not fsync;
// journalMutation syncs the file after the write.
func appendJournalRecord(w io.Writer, rec journalRecord) (int, error) {
	buf := encodeJournalRecord(rec)

	n, err := w.Write(buf)
	if err != nil {
		return n, wrap(KindCantWrite, fmt.Errorf("write journal record: %w", err))
	}

	return n, nil
}

// maxJournalRecordSize guards against an absurd length field in a corrupt
// record turning into a multi-gigabyte allocation attempt.
const maxJournalRecordSize = 8 * 1024 * 1024

// readJournalRecord reads and decodes one record from r. Returns io.EOF
// (unwrapped) when r is exhausted at a record boundary; any other error
// indicates a malformed record and should stop replay while preserving
// whatever was already applied, per spec.md §4.7.
func readJournalRecord(r io.Reader) (journalRecord, error) {
	var totalLen uint32
	if err := binary.Read(r, binary.LittleEndian, &totalLen); err != nil {
		if err == io.EOF {
			return journalRecord{}, io.EOF
		}

		return journalRecord{}, wrap(KindBadFormat, fmt.Errorf("read record length: %w", err))
	}

	if totalLen == 0 || totalLen > maxJournalRecordSize {
		return journalRecord{}, wrap(KindBadFormat, fmt.Errorf("implausible record length %d", totalLen))
	}

	body := make([]byte, totalLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return journalRecord{}, wrap(KindBadFormat, fmt.Errorf("read record body: %w", err))
	}

	br := bytes.NewReader(body)

	cmdBytes, err := readI32Field(br)
	if err != nil {
		return journalRecord{}, wrap(KindBadFormat, fmt.Errorf("read cmd field: %w", err))
	}

	modelBytes, err := readI32Field(br)
	if err != nil {
		return journalRecord{}, wrap(KindBadFormat, fmt.Errorf("read model field: %w", err))
	}

	valueBytes, err := readI32Field(br)
	if err != nil {
		return journalRecord{}, wrap(KindBadFormat, fmt.Errorf("read value field: %w", err))
	}

	cmd, err := stripNUL(cmdBytes)
	if err != nil {
		return journalRecord{}, wrap(KindBadFormat, fmt.Errorf("cmd field: %w", err))
	}

	model, err := stripNUL(modelBytes)
	if err != nil {
		return journalRecord{}, wrap(KindBadFormat, fmt.Errorf("model field: %w", err))
	}

	value, err := stripNUL(valueBytes)
	if err != nil {
		return journalRecord{}, wrap(KindBadFormat, fmt.Errorf("value field: %w", err))
	}

	return journalRecord{Cmd: cmd, Model: model, Value: []byte(value)}, nil
}

func readI32Field(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}

	if n == 0 || int(n) > r.Len() {
		return nil, fmt.Errorf("implausible field length %d", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	return buf, nil
}

func stripNUL(b []byte) (string, error) {
	if len(b) == 0 || b[len(b)-1] != 0 {
		return "", fmt.Errorf("missing NUL terminator")
	}

	return string(b[:len(b)-1]), nil
}

package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// CurrentSchemaVersion is the blob version written by [Encode].
const CurrentSchemaVersion uint8 = 1

// Encode serializes s using the current schema version.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}
	var buf bytes.Buffer
	buf.Grow(1 + 2 + len(s.UserID) + len(s.Email) + 1 + 16)

	buf.WriteByte(CurrentSchemaVersion)

	if err := writeShortString(&buf, "userID", s.UserID); err != nil {
		return nil, err
	}
	if err := writeShortString(&buf, "email", s.Email); err != nil {
		return nil, err
	}
	buf.WriteByte(s.Role)

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode]. SessionID is not part of the blob
// and is left empty.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != CurrentSchemaVersion {
		return nil, fmt.Errorf("unsupported session schema version %d", version)
	}

	s := &Session{SchemaVersion: version}

	if s.UserID, err = readShortString(reader); err != nil {
		return nil, err
	}
	if s.Email, err = readShortString(reader); err != nil {
		return nil, err
	}
	if s.Role, err = reader.ReadByte(); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session blob")
	}

	return s, nil
}

func writeShortString(buf *bytes.Buffer, field, v string) error {
	if len(v) > 255 {
		return fmt.Errorf("%s too long", field)
	}
	buf.WriteByte(byte(len(v)))
	buf.WriteString(v)
	return nil
}

func readShortString(r *bytes.Reader) (string, error) {
	n, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

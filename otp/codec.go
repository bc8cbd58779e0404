package otp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const recordVersionV1 = 1

// encodeRecord writes the v1 layout:
// version(1) attempts(2) expiresAt(8) lockedUntil(8) lastRequest(8) phoneLen(2) phone codeLen(1) code.
// Timestamps are big-endian unix milliseconds; 0 encodes the zero time.
func encodeRecord(rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, ErrInvalidRecord
	}
	if rec.Attempts < 0 || rec.Attempts > 0xFFFF {
		return nil, errors.New("otp record attempts out of range")
	}
	if len(rec.Phone) > 0xFFFF {
		return nil, errors.New("otp record phone too long")
	}
	if len(rec.Code) > 0xFF {
		return nil, errors.New("otp record code too long")
	}

	var buf bytes.Buffer
	buf.Grow(29 + len(rec.Phone) + len(rec.Code))

	buf.WriteByte(recordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, uint16(rec.Attempts)); err != nil {
		return nil, err
	}
	for _, ts := range []time.Time{rec.ExpiresAt, rec.LockedUntil, rec.LastRequestTime} {
		if err := binary.Write(&buf, binary.BigEndian, unixMilli(ts)); err != nil {
			return nil, err
		}
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(rec.Phone))); err != nil {
		return nil, err
	}
	buf.WriteString(rec.Phone)
	buf.WriteByte(byte(len(rec.Code)))
	buf.WriteString(rec.Code)

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid otp record version")
	}

	var attempts uint16
	if err := binary.Read(reader, binary.BigEndian, &attempts); err != nil {
		return nil, err
	}

	var stamps [3]int64
	for i := range stamps {
		if err := binary.Read(reader, binary.BigEndian, &stamps[i]); err != nil {
			return nil, err
		}
	}

	var phoneLen uint16
	if err := binary.Read(reader, binary.BigEndian, &phoneLen); err != nil {
		return nil, err
	}
	phone := make([]byte, phoneLen)
	if _, err := io.ReadFull(reader, phone); err != nil {
		return nil, err
	}

	codeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, code); err != nil {
		return nil, err
	}

	return &Record{
		Phone:           string(phone),
		Code:            string(code),
		Attempts:        int(attempts),
		ExpiresAt:       fromUnixMilli(stamps[0]),
		LockedUntil:     fromUnixMilli(stamps[1]),
		LastRequestTime: fromUnixMilli(stamps[2]),
	}, nil
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromUnixMilli(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

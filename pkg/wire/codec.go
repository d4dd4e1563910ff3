// Package wire implements the binary envelope carried by both transport
// channels: a compact tagged encoding of the request parameter bag, the
// framing header used on the persistent RPG channel, and the request
// signature computed immediately before serialization.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"socialsync/pkg/models"
)

// Value tag bytes. One tag per variant of models.Value, matched
// exhaustively on both sides.
const (
	tagString byte = 's'
	tagInt    byte = 'i'
	tagBool   byte = 'b'
	tagBytes  byte = 'r'
	tagList   byte = 'l'
	tagMap    byte = 'm'
)

// maxFieldLen bounds decoded strings, byte blobs and collection sizes so a
// corrupt length prefix cannot trigger a huge allocation.
const maxFieldLen = 1 << 22

// EncodeEnvelope serializes one outbound call: operation name, request ID
// and the parameter bag, in bag insertion order.
func EncodeEnvelope(operation string, requestID uint64, params *models.Bag) []byte {
	var buf bytes.Buffer
	writeString(&buf, operation)
	binary.Write(&buf, binary.BigEndian, requestID)
	writeBag(&buf, params)
	return buf.Bytes()
}

// DecodeEnvelope is the inverse of EncodeEnvelope.
func DecodeEnvelope(data []byte) (operation string, requestID uint64, params *models.Bag, err error) {
	r := bytes.NewReader(data)
	if operation, err = readString(r); err != nil {
		return "", 0, nil, fmt.Errorf("envelope operation: %w", err)
	}
	if err = binary.Read(r, binary.BigEndian, &requestID); err != nil {
		return "", 0, nil, fmt.Errorf("envelope request id: %w", err)
	}
	if params, err = readBag(r); err != nil {
		return "", 0, nil, fmt.Errorf("envelope params: %w", err)
	}
	return operation, requestID, params, nil
}

func writeBag(buf *bytes.Buffer, bag *models.Bag) {
	if bag == nil {
		binary.Write(buf, binary.BigEndian, uint32(0))
		return
	}
	binary.Write(buf, binary.BigEndian, uint32(bag.Len()))
	for _, key := range bag.Keys() {
		writeString(buf, key)
		v, _ := bag.Get(key)
		writeValue(buf, v)
	}
}

func writeValue(buf *bytes.Buffer, v models.Value) {
	switch v.Kind {
	case models.KindString:
		buf.WriteByte(tagString)
		writeString(buf, v.Str)
	case models.KindInt:
		buf.WriteByte(tagInt)
		binary.Write(buf, binary.BigEndian, v.Int)
	case models.KindBool:
		buf.WriteByte(tagBool)
		if v.Flag {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case models.KindBytes:
		buf.WriteByte(tagBytes)
		binary.Write(buf, binary.BigEndian, uint32(len(v.Bytes)))
		buf.Write(v.Bytes)
	case models.KindList:
		buf.WriteByte(tagList)
		binary.Write(buf, binary.BigEndian, uint32(len(v.List)))
		for _, item := range v.List {
			writeValue(buf, item)
		}
	case models.KindMap:
		buf.WriteByte(tagMap)
		writeBag(buf, v.Map)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.BigEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readBag(r *bytes.Reader) (*models.Bag, error) {
	count, err := readLen(r)
	if err != nil {
		return nil, err
	}
	bag := models.NewBag()
	for i := uint32(0); i < count; i++ {
		key, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		bag.Set(key, v)
	}
	return bag, nil
}

func readValue(r *bytes.Reader) (models.Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return models.Value{}, err
	}
	switch tag {
	case tagString:
		s, err := readString(r)
		return models.Str(s), err
	case tagInt:
		var i int64
		err := binary.Read(r, binary.BigEndian, &i)
		return models.Int(i), err
	case tagBool:
		b, err := r.ReadByte()
		return models.Bool(b != 0), err
	case tagBytes:
		n, err := readLen(r)
		if err != nil {
			return models.Value{}, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(r, raw); err != nil {
			return models.Value{}, err
		}
		return models.Raw(raw), nil
	case tagList:
		n, err := readLen(r)
		if err != nil {
			return models.Value{}, err
		}
		items := make([]models.Value, 0, n)
		for i := uint32(0); i < n; i++ {
			item, err := readValue(r)
			if err != nil {
				return models.Value{}, err
			}
			items = append(items, item)
		}
		return models.List(items...), nil
	case tagMap:
		bag, err := readBag(r)
		if err != nil {
			return models.Value{}, err
		}
		return models.Nested(bag), nil
	default:
		return models.Value{}, fmt.Errorf("unknown value tag 0x%02x", tag)
	}
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readLen(r)
	if err != nil {
		return "", err
	}
	raw := make([]byte, n)
	if _, err := io.ReadFull(r, raw); err != nil {
		return "", err
	}
	return string(raw), nil
}

func readLen(r *bytes.Reader) (uint32, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return 0, err
	}
	if n > maxFieldLen {
		return 0, fmt.Errorf("field length %d exceeds limit", n)
	}
	return n, nil
}

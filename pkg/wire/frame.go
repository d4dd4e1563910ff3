package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Message type codes for the RPG framing header.
const (
	MsgRequest   byte = 0x01
	MsgResponse  byte = 0x02
	MsgPush      byte = 0x03
	MsgHeartbeat byte = 0x04
)

// maxFrameLen bounds the payload length accepted from the stream.
const maxFrameLen = 1 << 24

// WriteFrame wraps a payload in the fixed RPG header: message type code,
// correlation ID and payload length, then the payload itself. The HTTP
// channel writes envelopes bare; only the streaming channel frames them.
func WriteFrame(w io.Writer, msgType byte, correlationID uint64, payload []byte) error {
	header := make([]byte, 13)
	header[0] = msgType
	binary.BigEndian.PutUint64(header[1:9], correlationID)
	binary.BigEndian.PutUint32(header[9:13], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one framed message from the stream.
func ReadFrame(r io.Reader) (msgType byte, correlationID uint64, payload []byte, err error) {
	header := make([]byte, 13)
	if _, err = io.ReadFull(r, header); err != nil {
		return 0, 0, nil, err
	}
	msgType = header[0]
	correlationID = binary.BigEndian.Uint64(header[1:9])
	length := binary.BigEndian.Uint32(header[9:13])
	if length > maxFrameLen {
		return 0, 0, nil, fmt.Errorf("frame length %d exceeds limit", length)
	}
	payload = make([]byte, length)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, 0, nil, err
	}
	return msgType, correlationID, payload, nil
}

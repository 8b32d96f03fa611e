// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/tochemey/bavarde/errors"
	"github.com/tochemey/bavarde/internal/bufferpool"
)

var crlf = []byte("\r\n")

// MarshalBinary encodes the header into its 17 bytes wire form
func (h *Header) MarshalBinary() ([]byte, error) {
	return h.appendTo(make([]byte, 0, HeaderSize)), nil
}

// UnmarshalBinary decodes a header from its wire form
func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return fmt.Errorf("%w: header is %d bytes, want %d", errors.ErrInvalidPacket, len(data), HeaderSize)
	}

	h.Type = PacketType(data[0])
	h.PayloadLength = binary.BigEndian.Uint32(data[1:5])
	h.MsgID = binary.BigEndian.Uint32(data[5:9])
	h.TimestampSec = binary.BigEndian.Uint32(data[9:13])
	h.TimestampNsec = binary.BigEndian.Uint32(data[13:17])
	return nil
}

func (h *Header) appendTo(out []byte) []byte {
	out = append(out, byte(h.Type))
	out = binary.BigEndian.AppendUint32(out, h.PayloadLength)
	out = binary.BigEndian.AppendUint32(out, h.MsgID)
	out = binary.BigEndian.AppendUint32(out, h.TimestampSec)
	return binary.BigEndian.AppendUint32(out, h.TimestampNsec)
}

// SendPacket writes a packet made of hdr and payload to w.
//
// A zero timestamp is stamped with the current time and a zero msgid is
// taken from the timestamp nanoseconds so that every packet a sender emits
// carries a distinct id. PayloadLength is always derived from payload.
// hdr is updated in place with the values written. Header and payload go
// out in a single Write call.
func SendPacket(w io.Writer, hdr *Header, payload []byte) error {
	if hdr == nil {
		return errors.ErrInvalidPacket
	}

	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", errors.ErrPayloadTooLarge, len(payload))
	}

	if hdr.TimestampSec == 0 && hdr.TimestampNsec == 0 {
		now := time.Now()
		hdr.TimestampSec = uint32(now.Unix())
		hdr.TimestampNsec = uint32(now.Nanosecond())
	}

	if hdr.MsgID == 0 {
		hdr.MsgID = hdr.TimestampNsec
		if hdr.MsgID == 0 {
			hdr.MsgID = 1
		}
	}

	hdr.PayloadLength = uint32(len(payload))

	var raw [HeaderSize]byte
	frame := bufferpool.Pool.Get()
	defer bufferpool.Pool.Put(frame)
	frame.Write(hdr.appendTo(raw[:0]))
	frame.Write(payload)

	if _, err := w.Write(frame.Bytes()); err != nil {
		return errors.NewProtocolError("send "+hdr.Type.String(), err)
	}
	return nil
}

// RecvPacket blocks until a complete packet has been read from r.
// Payloads announced above MaxPayloadSize are rejected before being read.
func RecvPacket(r io.Reader) (*Packet, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, errors.NewProtocolError("receive header", err)
	}

	packet := new(Packet)
	// raw always holds HeaderSize bytes
	_ = packet.Header.UnmarshalBinary(raw[:])

	size := packet.Header.PayloadLength
	if size > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes announced", errors.ErrPayloadTooLarge, size)
	}

	if size > 0 {
		packet.Payload = make([]byte, size)
		if _, err := io.ReadFull(r, packet.Payload); err != nil {
			return nil, errors.NewProtocolError("receive payload", err)
		}
	}

	return packet, nil
}

// Split cuts payload at its first CRLF boundary. The bytes before the
// boundary form the first part and the bytes after it the second. A payload
// without boundary is returned whole as the first part with an empty second
// part. Both parts alias payload.
func Split(payload []byte) (first, second []byte) {
	idx := bytes.Index(payload, crlf)
	if idx < 0 {
		return payload, payload[len(payload):]
	}
	return payload[:idx], payload[idx+len(crlf):]
}

// JoinLines builds a payload of two parts separated by CRLF
func JoinLines(first, second []byte) []byte {
	out := make([]byte, 0, len(first)+len(crlf)+len(second))
	out = append(out, first...)
	out = append(out, crlf...)
	return append(out, second...)
}

// List builds a payload where every item is followed by CRLF
func List(items ...string) []byte {
	size := 0
	for _, item := range items {
		size += len(item) + len(crlf)
	}

	out := make([]byte, 0, size)
	for _, item := range items {
		out = append(out, item...)
		out = append(out, crlf...)
	}
	return out
}

// ParseList is the inverse of List. Empty lines are skipped.
func ParseList(payload []byte) []string {
	var items []string
	for len(payload) > 0 {
		var line []byte
		line, payload = Split(payload)
		if len(line) > 0 {
			items = append(items, string(line))
		}
	}
	return items
}

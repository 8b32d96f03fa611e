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

import "fmt"

// PacketType identifies the kind of a packet
type PacketType uint8

const (
	// NoPacket is the zero packet type and is never sent
	NoPacket PacketType = iota
	// Login registers the payload as the client handle
	Login
	// Logout ends the session
	Logout
	// Users asks for the list of logged in handles
	Users
	// Send carries "recipient\r\nbody"
	Send
	// Ack acknowledges a request
	Ack
	// Nack rejects a request
	Nack
	// Message delivers "sender\r\nbody" to a recipient
	Message
	// Rcvd tells a sender its message was delivered
	Rcvd
	// Bounce tells a sender its message could not be delivered
	Bounce
)

// String returns the packet type name
func (t PacketType) String() string {
	switch t {
	case NoPacket:
		return "NO_PKT"
	case Login:
		return "LOGIN"
	case Logout:
		return "LOGOUT"
	case Users:
		return "USERS"
	case Send:
		return "SEND"
	case Ack:
		return "ACK"
	case Nack:
		return "NACK"
	case Message:
		return "MESSAGE"
	case Rcvd:
		return "RCVD"
	case Bounce:
		return "BOUNCE"
	default:
		return fmt.Sprintf("PacketType(%d)", uint8(t))
	}
}

// HeaderSize is the size in bytes of an encoded Header
const HeaderSize = 17

// MaxPayloadSize bounds the payload a peer may announce (1 MiB)
const MaxPayloadSize = 1 << 20

// Header is the fixed size packet header.
//
// Wire layout (packed, multi-byte fields big-endian):
//
//	┌──────┬────────────────┬───────┬───────────────┬────────────────┐
//	│ type │ payload_length │ msgid │ timestamp_sec │ timestamp_nsec │
//	│ 1    │ 4              │ 4     │ 4             │ 4              │
//	└──────┴────────────────┴───────┴───────────────┴────────────────┘
type Header struct {
	Type          PacketType
	PayloadLength uint32
	MsgID         uint32
	TimestampSec  uint32
	TimestampNsec uint32
}

// Packet is a decoded header along with its payload
type Packet struct {
	Header  Header
	Payload []byte
}

// Parts splits the payload at its first CRLF boundary
func (p *Packet) Parts() (first, second []byte) {
	return Split(p.Payload)
}

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

package mailbox

// Kind tells whether an Entry carries a message or a delivery notice
type Kind int

const (
	// MessageKind marks an entry addressed to the mailbox owner by another client
	MessageKind Kind = iota
	// NoticeKind marks a delivery status update about a previously sent message
	NoticeKind
)

// String returns the kind name
func (k Kind) String() string {
	switch k {
	case MessageKind:
		return "message"
	case NoticeKind:
		return "notice"
	default:
		return "unknown"
	}
}

// NoticeType is the delivery status carried by a notice
type NoticeType int

const (
	// NoNotice is the zero value and is never queued on purpose
	NoNotice NoticeType = iota
	// Bounced reports that a message could not be delivered
	Bounced
	// Delivered reports that a message reached its recipient
	Delivered
)

// String returns the notice type name
func (n NoticeType) String() string {
	switch n {
	case Bounced:
		return "bounced"
	case Delivered:
		return "delivered"
	default:
		return "none"
	}
}

// Entry is one unit of mailbox traffic.
//
// For a message entry From holds a reference to the sender's mailbox. Whoever
// removes the entry from a mailbox owns that reference and must release it
// with Unref once done with it.
type Entry struct {
	Kind   Kind
	MsgID  uint32
	From   *Mailbox
	Notice NoticeType
	Body   []byte
}

// IsMessage reports whether the entry is a message
func (e *Entry) IsMessage() bool {
	return e != nil && e.Kind == MessageKind
}

// IsNotice reports whether the entry is a notice
func (e *Entry) IsNotice() bool {
	return e != nil && e.Kind == NoticeKind
}

// Release drops the sender reference held by a message entry.
// It is safe to call on notices and more than once.
func (e *Entry) Release() {
	if e == nil || e.From == nil {
		return
	}
	from := e.From
	e.From = nil
	from.Unref()
}

// DiscardHook is invoked for every entry a mailbox drops unread at shutdown.
// The hook runs before the entry's sender reference is released, so it may
// still use From.
type DiscardHook func(entry *Entry)

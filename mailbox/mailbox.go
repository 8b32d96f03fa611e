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

import (
	"container/list"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/tochemey/bavarde/errors"
	"github.com/tochemey/bavarde/internal/xsync"
)

// Mailbox is the reference-counted FIFO queue of entries owned by one client handle.
//
// Lifecycle
//   - New returns a mailbox holding one reference, owned by the creator.
//   - Every holder that copies the pointer must call Ref, and Unref when it
//     drops the copy.
//   - Shutdown marks the mailbox defunct, waits for the reference count to
//     reach zero and then discards whatever is still queued. The mailbox must
//     not be touched once Shutdown returned.
//
// Concurrency and ordering
//   - AddMessage and AddNotice are safe for any number of concurrent producers.
//   - NextEntry blocks until an entry is available and may be called by
//     several consumers; each entry is handed to exactly one of them.
//   - Entries are delivered in arrival order. An entry whose msgid is already
//     queued updates the queued entry in place and keeps its position.
//
// Defunct state
//   - A defunct mailbox admits nothing new. Entries queued before the mailbox
//     became defunct are still handed out by NextEntry until the queue is
//     empty, after which NextEntry returns nil.
type Mailbox struct {
	handle string
	refs   *xsync.Counter

	mu      sync.Mutex
	cond    *sync.Cond
	queue   *list.List
	index   map[uint32]*list.Element
	defunct bool
	hook    DiscardHook

	finalized atomic.Bool
}

// New creates a mailbox for the given handle with a reference count of one.
func New(handle string) *Mailbox {
	m := &Mailbox{
		handle: handle,
		refs:   xsync.NewCounterFrom(1),
		queue:  list.New(),
		index:  make(map[uint32]*list.Element),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Handle returns the mailbox handle, or an empty string for a nil mailbox.
func (m *Mailbox) Handle() string {
	if m == nil {
		return ""
	}
	return m.handle
}

// Ref takes an additional reference on the mailbox.
//
// The reference count and the zero gate Shutdown waits on are mutated in a
// single critical section, so a Ref racing with the last Unref is ordered
// either entirely before or entirely after the gate transition.
func (m *Mailbox) Ref() {
	if m.finalized.Load() {
		panic(errors.ErrMailboxFinalized)
	}
	m.refs.Increment()
}

// Unref releases a reference on the mailbox. Releasing more references than
// were taken is a programming error and panics with ErrRefCountUnderflow.
func (m *Mailbox) Unref() {
	if _, ok := m.refs.TryDecrement(); !ok {
		panic(errors.ErrRefCountUnderflow)
	}
}

// RefCount returns a snapshot of the reference count
func (m *Mailbox) RefCount() int64 {
	return m.refs.Count()
}

// SetDiscardHook registers the hook invoked for every entry discarded unread
// at shutdown. A nil hook discards silently.
func (m *Mailbox) SetDiscardHook(hook DiscardHook) {
	m.mu.Lock()
	m.hook = hook
	m.mu.Unlock()
}

// AddMessage queues a message from the given sender and returns the msgid it
// was queued under. A zero msgid is replaced by one derived from the clock.
//
// The reference to from is transferred to the mailbox: the caller must not
// Unref it afterwards. When the mailbox is defunct the message is handed to
// the discard hook and dropped, and the reference is released on the
// caller's behalf.
func (m *Mailbox) AddMessage(msgid uint32, from *Mailbox, body []byte) uint32 {
	m.mu.Lock()
	if m.defunct {
		hook := m.hook
		m.mu.Unlock()
		discard([]*Entry{{Kind: MessageKind, MsgID: msgid, From: from, Body: body}}, hook)
		return msgid
	}

	if msgid == 0 {
		msgid = m.nextMsgID()
	}

	if elem, ok := m.index[msgid]; ok {
		entry := elem.Value.(*Entry)
		superseded := entry.From
		entry.Kind = MessageKind
		entry.From = from
		entry.Notice = NoNotice
		entry.Body = body
		m.mu.Unlock()
		release(superseded)
		return msgid
	}

	m.push(&Entry{
		Kind:  MessageKind,
		MsgID: msgid,
		From:  from,
		Body:  body,
	})
	m.mu.Unlock()
	return msgid
}

// AddNotice queues a delivery notice about msgid. When an entry with the same
// msgid is still queued, message or notice, it is turned into this notice in
// place; a superseded message releases its sender reference.
func (m *Mailbox) AddNotice(notice NoticeType, msgid uint32, body []byte) {
	m.mu.Lock()
	if m.defunct {
		m.mu.Unlock()
		return
	}

	if elem, ok := m.index[msgid]; ok {
		entry := elem.Value.(*Entry)
		superseded := entry.From
		entry.Kind = NoticeKind
		entry.From = nil
		entry.Notice = notice
		entry.Body = body
		m.mu.Unlock()
		release(superseded)
		return
	}

	m.push(&Entry{
		Kind:   NoticeKind,
		MsgID:  msgid,
		Notice: notice,
		Body:   body,
	})
	m.mu.Unlock()
}

// NextEntry removes and returns the head of the queue, blocking while the
// queue is empty. It returns nil once the mailbox is defunct and drained,
// which tells the consumer to stop servicing the mailbox.
//
// The caller owns the returned entry, including the sender reference of a
// message entry.
func (m *Mailbox) NextEntry() *Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.queue.Len() == 0 && !m.defunct {
		m.cond.Wait()
	}

	front := m.queue.Front()
	if front == nil {
		return nil
	}

	entry := m.queue.Remove(front).(*Entry)
	delete(m.index, entry.MsgID)
	return entry
}

// Len returns the number of queued entries
func (m *Mailbox) Len() int {
	m.mu.Lock()
	n := m.queue.Len()
	m.mu.Unlock()
	return n
}

// IsDefunct reports whether the mailbox stopped admitting entries
func (m *Mailbox) IsDefunct() bool {
	m.mu.Lock()
	defunct := m.defunct
	m.mu.Unlock()
	return defunct
}

// Purge marks the mailbox defunct and discards every queued entry right away,
// running the discard hook on each. It returns the number of entries dropped.
// Purge is meant for teardown paths where no consumer is left to drain the queue.
func (m *Mailbox) Purge() int {
	m.mu.Lock()
	m.markDefunct()
	entries, hook := m.detach()
	m.mu.Unlock()

	discard(entries, hook)
	return len(entries)
}

// Shutdown marks the mailbox defunct, waits until every reference has been
// released and then discards the entries left in the queue.
//
// Consumers blocked in NextEntry are woken so they can drain the queue and
// drop their reference. After Shutdown returns the mailbox must not be used.
func (m *Mailbox) Shutdown() {
	m.mu.Lock()
	m.markDefunct()
	m.mu.Unlock()

	m.refs.Wait()

	m.mu.Lock()
	entries, hook := m.detach()
	m.mu.Unlock()

	discard(entries, hook)
	m.finalized.Store(true)
}

// push appends the entry and wakes one consumer. The caller holds the lock.
func (m *Mailbox) push(entry *Entry) {
	m.index[entry.MsgID] = m.queue.PushBack(entry)
	m.cond.Signal()
}

// markDefunct flips the defunct flag and wakes every consumer. The caller holds the lock.
func (m *Mailbox) markDefunct() {
	if !m.defunct {
		m.defunct = true
		m.cond.Broadcast()
	}
}

// detach empties the queue and returns its entries. The caller holds the lock.
func (m *Mailbox) detach() ([]*Entry, DiscardHook) {
	entries := make([]*Entry, 0, m.queue.Len())
	for elem := m.queue.Front(); elem != nil; elem = elem.Next() {
		entries = append(entries, elem.Value.(*Entry))
	}
	m.queue.Init()
	clear(m.index)
	return entries, m.hook
}

// nextMsgID derives a msgid from the clock that is not already queued.
// The caller holds the lock.
func (m *Mailbox) nextMsgID() uint32 {
	msgid := uint32(time.Now().Nanosecond())
	for {
		if msgid == 0 {
			msgid = 1
		}
		if _, taken := m.index[msgid]; !taken {
			return msgid
		}
		msgid++
	}
}

func discard(entries []*Entry, hook DiscardHook) {
	for _, entry := range entries {
		if hook != nil {
			hook(entry)
		}
		entry.Body = nil
		entry.Release()
	}
}

func release(mb *Mailbox) {
	if mb != nil {
		mb.Unref()
	}
}

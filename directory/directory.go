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

package directory

import (
	"io"
	"slices"
	"sync"

	"github.com/tochemey/bavarde/log"
	"github.com/tochemey/bavarde/mailbox"
)

// entry is one registered client
type entry struct {
	handle  string
	mailbox *mailbox.Mailbox
	conn    io.Closer
	defunct bool
}

// Directory maps client handles to their mailbox and connection.
//
// The directory owns one reference on every mailbox it lists, the
// registration reference, and hands out additional references through
// Register and Lookup. All mutations of the handle map happen under a single
// registry-wide lock, which makes Register, Unregister and Lookup
// linearizable with respect to each other. The lock is never held while a
// mailbox shutdown waits for its references to drain.
type Directory struct {
	mu      sync.RWMutex
	entries map[string]*entry
	defunct bool
	logger  log.Logger
}

// New creates an empty Directory
func New(opts ...Option) *Directory {
	d := &Directory{
		entries: make(map[string]*entry),
		logger:  log.DiscardLogger,
	}

	for _, opt := range opts {
		opt.Apply(d)
	}
	return d
}

// Register adds handle to the directory along with its client connection and
// returns a caller-owned reference to the newly created mailbox. The mailbox
// then carries two references: the directory's and the caller's.
//
// It returns false, and does nothing, when the handle is already registered
// or when the directory has been shut down.
func (d *Directory) Register(handle string, conn io.Closer) (*mailbox.Mailbox, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.defunct {
		d.logger.Debugf("directory is shut down, rejecting registration of %s", handle)
		return nil, false
	}

	if _, ok := d.entries[handle]; ok {
		d.logger.Debugf("handle %s is already registered", handle)
		return nil, false
	}

	mb := mailbox.New(handle)
	mb.Ref()
	d.entries[handle] = &entry{
		handle:  handle,
		mailbox: mb,
		conn:    conn,
	}

	d.logger.Debugf("handle %s registered", handle)
	return mb, true
}

// Unregister removes handle from the directory, releases the registration
// reference and shuts the mailbox down. The call blocks until every other
// reference to the mailbox has been released. Unknown handles are ignored.
func (d *Directory) Unregister(handle string) {
	d.mu.Lock()
	ent, ok := d.entries[handle]
	if ok {
		delete(d.entries, handle)
	}
	d.mu.Unlock()

	if !ok {
		return
	}

	ent.mailbox.Unref()
	ent.mailbox.Shutdown()
	d.logger.Debugf("handle %s unregistered", handle)
}

// Lookup returns a new reference to the mailbox registered under handle.
// The caller must Unref it once done.
func (d *Directory) Lookup(handle string) (*mailbox.Mailbox, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ent, ok := d.entries[handle]
	if !ok {
		return nil, false
	}

	ent.mailbox.Ref()
	return ent.mailbox, true
}

// AllHandles returns a sorted snapshot of the registered handles
func (d *Directory) AllHandles() []string {
	d.mu.RLock()
	handles := make([]string, 0, len(d.entries))
	for handle := range d.entries {
		handles = append(handles, handle)
	}
	d.mu.RUnlock()

	slices.Sort(handles)
	return handles
}

// Len returns the number of registered handles
func (d *Directory) Len() int {
	d.mu.RLock()
	n := len(d.entries)
	d.mu.RUnlock()
	return n
}

// IsDefunct reports whether the directory has been shut down
func (d *Directory) IsDefunct() bool {
	d.mu.RLock()
	defunct := d.defunct
	d.mu.RUnlock()
	return defunct
}

// Shutdown marks the directory and every entry defunct and forcibly closes
// every client connection, which makes the goroutines servicing them fail
// their pending I/O and unwind. Entries and mailboxes are left in place.
// Calling Shutdown more than once is harmless.
func (d *Directory) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.defunct = true
	for _, ent := range d.entries {
		if ent.defunct {
			continue
		}

		ent.defunct = true
		if ent.conn == nil {
			continue
		}

		if err := ent.conn.Close(); err != nil {
			d.logger.Debugf("closing connection of %s: %v", ent.handle, err)
		}
	}

	d.logger.Infof("directory shut down with %d registered handle(s)", len(d.entries))
}

// Finalize tears down every entry still registered: each registration
// reference is released and each mailbox is shut down. Shutdown must have
// been called and the goroutines servicing the connections must have exited.
//
// Entries are detached from the map under the lock and torn down outside of
// it. Queued entries are purged first since no consumer is left to drain
// them; this also releases the sender references that unread messages hold
// on other mailboxes, so two mailboxes holding messages from each other do
// not wait on one another.
func (d *Directory) Finalize() {
	d.mu.Lock()
	d.defunct = true
	remaining := make([]*entry, 0, len(d.entries))
	for _, ent := range d.entries {
		remaining = append(remaining, ent)
	}
	clear(d.entries)
	d.mu.Unlock()

	for _, ent := range remaining {
		if dropped := ent.mailbox.Purge(); dropped > 0 {
			d.logger.Debugf("discarded %d undelivered entry(ies) for %s", dropped, ent.handle)
		}
		ent.mailbox.Unref()
	}

	for _, ent := range remaining {
		ent.mailbox.Shutdown()
	}

	d.logger.Infof("directory finalized, %d mailbox(es) released", len(remaining))
}

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

package tcp

// ListenConfig holds the socket options applied to the listening socket
type ListenConfig struct {
	// SocketReusePort enables SO_REUSEPORT (Linux only)
	SocketReusePort bool
	// SocketFastOpen enables TCP_FASTOPEN (Linux only)
	SocketFastOpen bool
	// SocketFastOpenQueueLen is the TCP_FASTOPEN queue length (default 256)
	SocketFastOpenQueueLen int
	// SocketDeferAccept enables TCP_DEFER_ACCEPT (Linux only). Connections
	// are only reported once the client has sent data, which a chat client
	// always does with its LOGIN packet.
	SocketDeferAccept bool
}

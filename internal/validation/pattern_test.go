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

package validation

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternValidator(t *testing.T) {
	pattern := regexp.MustCompile(`^[a-z]+$`)
	errCustom := errors.New("lowercase only")

	assert.NoError(t, NewPatternValidator(pattern, "alice", nil).Validate())
	assert.ErrorIs(t, NewPatternValidator(pattern, "Alice", errCustom).Validate(), errCustom)
	assert.EqualError(t, NewPatternValidator(pattern, "42", nil).Validate(), `"42" does not match ^[a-z]+$`)
}

func TestHandleValidator(t *testing.T) {
	testCases := []struct {
		name   string
		handle string
		valid  bool
	}{
		{name: "simple handle", handle: "alice", valid: true},
		{name: "handle with spaces", handle: "alice smith", valid: true},
		{name: "unicode handle", handle: "élodie", valid: true},
		{name: "empty handle", handle: "", valid: false},
		{name: "blank handle", handle: "   ", valid: false},
		{name: "handle with CRLF", handle: "alice\r\nbob", valid: false},
		{name: "handle with NUL", handle: "alice\x00", valid: false},
		{name: "longest handle", handle: strings.Repeat("a", MaxHandleLength), valid: true},
		{name: "handle too long", handle: strings.Repeat("a", MaxHandleLength+1), valid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := NewHandleValidator(tc.handle).Validate()
			if tc.valid {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}

	t.Run("control characters report ErrInvalidHandle", func(t *testing.T) {
		err := NewHandleValidator("alice\tbob").Validate()
		assert.ErrorIs(t, err, ErrInvalidHandle)
	})
}

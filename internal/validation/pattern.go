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
	"fmt"
	"regexp"
)

// MaxHandleLength is the longest handle a client may log in with
const MaxHandleLength = 64

// handlePattern rejects control characters, which includes the CRLF
// boundary used to frame payloads
var handlePattern = regexp.MustCompile(`^[^\x00-\x1f\x7f]+$`)

// ErrInvalidHandle is returned when a client handle cannot be registered
var ErrInvalidHandle = errors.New("invalid handle")

type patternValidator struct {
	pattern   *regexp.Regexp
	value     string
	customErr error
}

var _ Validator = (*patternValidator)(nil)

// NewPatternValidator returns a Validator failing with customErr when value
// does not match pattern
func NewPatternValidator(pattern *regexp.Regexp, value string, customErr error) Validator {
	return &patternValidator{
		pattern:   pattern,
		value:     value,
		customErr: customErr,
	}
}

// Validate executes the validation
func (x *patternValidator) Validate() error {
	if !x.pattern.MatchString(x.value) {
		if x.customErr != nil {
			return x.customErr
		}
		return fmt.Errorf("%q does not match %s", x.value, x.pattern)
	}
	return nil
}

// NewHandleValidator returns a Validator checking that handle is a
// printable name of at most MaxHandleLength bytes
func NewHandleValidator(handle string) Validator {
	return New(FailFast()).
		AddValidator(NewEmptyStringValidator("handle", handle)).
		AddAssertion(len(handle) <= MaxHandleLength, fmt.Sprintf("handle is longer than %d bytes", MaxHandleLength)).
		AddValidator(NewPatternValidator(handlePattern, handle, fmt.Errorf("%w: %q", ErrInvalidHandle, handle)))
}

// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package crypto

import "fmt"

// Error is a crypto failure with an optional detail that never includes key material.
type Error struct {
	msg     string
	details string
}

func newError(msg string) *Error {
	return &Error{msg: msg}
}

func (e *Error) Error() string {
	if e.details == "" {
		return e.msg
	}
	return fmt.Sprintf("%s: %s", e.msg, e.details)
}

func (e *Error) WithDetails(details string) *Error {
	return &Error{msg: e.msg, details: details}
}

// Is lets a detailed copy match its base error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.msg == e.msg
}

var (
	ErrKeyGeneration  = newError("key generation failed")
	ErrBadKey         = newError("invalid key provided")
	ErrSealFailed     = newError("seal failed")
	ErrOpenFailed     = newError("open failed")
	ErrChainLink      = newError("chain link derivation failed")
	ErrMalformedInput = newError("ciphertext too short")
)

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

package errors

var (
	// ErrNotFound is the single answer for unknown conversations, unknown
	// memberships and revoked memberships alike.
	ErrNotFound             = NotFound("conversation not found")
	ErrStaleEpoch           = New(CodeStaleEpoch, "expected epoch is no longer current")
	ErrPrivilege            = Forbidden("insufficient privilege")
	ErrOwnerImmutable       = Forbidden("the owner cannot be removed or demoted")
	ErrPlaceholderKey       = InvalidArg("current epoch key is not available locally")
	ErrNoMembers            = InvalidArg("rotation has no member wraps")
	ErrMissingMemberWrap    = New(CodeStaleMembers, "rotation does not wrap every active member")
	ErrUnknownMemberWrap    = New(CodeStaleMembers, "rotation wraps a key that is not an active member")
	ErrInvalidEpoch         = InvalidArg("epoch number out of range")
	ErrInvalidPrivilege     = InvalidArg("unknown privilege")
	ErrAlreadyMember        = InvalidArg("member already belongs to the conversation")
	ErrConfirmationMismatch = CryptoFailure("confirmation hash mismatch", nil)
	ErrMissingEpochKey      = MissingKey("no reachable key for epoch")
)

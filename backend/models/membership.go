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

package models

import (
	"time"
)

type Privilege string

const (
	PrivilegeRead  Privilege = "read"
	PrivilegeWrite Privilege = "write"
	PrivilegeAdmin Privilege = "admin"
	PrivilegeOwner Privilege = "owner"
)

var privilegeRank = map[Privilege]int{
	PrivilegeRead:  1,
	PrivilegeWrite: 2,
	PrivilegeAdmin: 3,
	PrivilegeOwner: 4,
}

func (p Privilege) Valid() bool {
	_, ok := privilegeRank[p]
	return ok
}

// AtLeast reports whether p grants everything min grants.
func (p Privilege) AtLeast(min Privilege) bool {
	return p.Valid() && privilegeRank[p] >= privilegeRank[min]
}

type MemberKind string

const (
	MemberKindUser MemberKind = "user"
	MemberKindLink MemberKind = "link"
)

// HistoryGrant decides the visibility floor of a newly added member.
type HistoryGrant string

const (
	HistoryFull HistoryGrant = "full"
	HistoryNone HistoryGrant = "none"
)

// Membership ties a user or share link to a conversation. A membership with
// LeftAt set is revoked for good.
type Membership struct {
	ConversationID   string     `json:"conversation_id" db:"conversation_id"`
	MemberID         string     `json:"member_id" db:"member_id"`
	Kind             MemberKind `json:"kind" db:"kind"`
	PublicKey        []byte     `json:"public_key" db:"public_key"`
	Privilege        Privilege  `json:"privilege" db:"privilege"`
	VisibleFromEpoch int        `json:"visible_from_epoch" db:"visible_from_epoch"`
	JoinedAt         time.Time  `json:"joined_at" db:"joined_at"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	LeftAt           *time.Time `json:"left_at,omitempty" db:"left_at"`
}

func (m *Membership) Active() bool {
	return m != nil && m.LeftAt == nil
}

// MemberKey is the slice of a membership a rotation needs.
type MemberKey struct {
	MemberID         string     `json:"member_id"`
	Kind             MemberKind `json:"kind"`
	PublicKey        []byte     `json:"public_key"`
	Privilege        Privilege  `json:"privilege"`
	VisibleFromEpoch int        `json:"visible_from_epoch"`
}

type AddMemberRequest struct {
	MemberID  string       `json:"member_id"`
	PublicKey []byte       `json:"public_key"`
	Privilege Privilege    `json:"privilege"`
	History   HistoryGrant `json:"history"`
}

type CreateLinkRequest struct {
	PublicKey []byte       `json:"public_key"`
	Privilege Privilege    `json:"privilege"`
	History   HistoryGrant `json:"history"`
}

type ChangePrivilegeRequest struct {
	Privilege Privilege `json:"privilege"`
}

type MemberKeysResponse struct {
	Members []MemberKey `json:"members"`
}

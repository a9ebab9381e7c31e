package models

import (
	"fmt"
	"strings"
)

// PermissionLevel is a user's authority within a sphere. Levels are ordered;
// authorization compares with >= rather than set membership.
type PermissionLevel int16

const (
	PermissionNone     PermissionLevel = 0
	PermissionModerate PermissionLevel = 1
	PermissionBan      PermissionLevel = 2
	PermissionManage   PermissionLevel = 3
	PermissionLead     PermissionLevel = 4
)

var permissionNames = map[PermissionLevel]string{
	PermissionNone:     "None",
	PermissionModerate: "Moderate",
	PermissionBan:      "Ban",
	PermissionManage:   "Manage",
	PermissionLead:     "Lead",
}

func (p PermissionLevel) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PermissionLevel(%d)", int16(p))
}

// Valid reports whether p is one of the defined levels
func (p PermissionLevel) Valid() bool {
	_, ok := permissionNames[p]
	return ok
}

// AtLeast reports whether p grants the authority of level
func (p PermissionLevel) AtLeast(level PermissionLevel) bool {
	return p >= level
}

func (p PermissionLevel) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PermissionLevel) UnmarshalText(text []byte) error {
	for level, name := range permissionNames {
		if strings.EqualFold(name, string(text)) {
			*p = level
			return nil
		}
	}
	return fmt.Errorf("unknown permission level %q", text)
}

// AdminRole is a platform-wide role, independent of sphere grants
type AdminRole int16

const (
	AdminRoleNone      AdminRole = 0
	AdminRoleModerator AdminRole = 1
	AdminRoleAdmin     AdminRole = 2
)

var adminRoleNames = map[AdminRole]string{
	AdminRoleNone:      "None",
	AdminRoleModerator: "Moderator",
	AdminRoleAdmin:     "Admin",
}

func (r AdminRole) String() string {
	if name, ok := adminRoleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("AdminRole(%d)", int16(r))
}

// Valid reports whether r is one of the defined roles
func (r AdminRole) Valid() bool {
	_, ok := adminRoleNames[r]
	return ok
}

// Permission is the sphere authority implied by the admin role in every sphere
func (r AdminRole) Permission() PermissionLevel {
	switch r {
	case AdminRoleAdmin:
		return PermissionLead
	case AdminRoleModerator:
		return PermissionBan
	default:
		return PermissionNone
	}
}

func (r AdminRole) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *AdminRole) UnmarshalText(text []byte) error {
	for role, name := range adminRoleNames {
		if strings.EqualFold(name, string(text)) {
			*r = role
			return nil
		}
	}
	return fmt.Errorf("unknown admin role %q", text)
}

// NotificationType identifies the event that produced a notification
type NotificationType int16

const (
	NotifyReply      NotificationType = 1
	NotifyVote       NotificationType = 2
	NotifyModeration NotificationType = 3
)

func (t NotificationType) String() string {
	switch t {
	case NotifyReply:
		return "reply"
	case NotifyVote:
		return "vote"
	case NotifyModeration:
		return "moderation"
	}
	return fmt.Sprintf("NotificationType(%d)", int16(t))
}

func (t NotificationType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// LinkType is the kind of an optional post link
type LinkType int16

const (
	LinkNone  LinkType = 0
	LinkURL   LinkType = 1
	LinkImage LinkType = 2
	LinkVideo LinkType = 3
	LinkRich  LinkType = 4
)

var linkTypeNames = map[LinkType]string{
	LinkNone:  "none",
	LinkURL:   "link",
	LinkImage: "image",
	LinkVideo: "video",
	LinkRich:  "rich",
}

func (l LinkType) String() string {
	if name, ok := linkTypeNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LinkType(%d)", int16(l))
}

// Valid reports whether l is one of the defined link kinds
func (l LinkType) Valid() bool {
	_, ok := linkTypeNames[l]
	return ok
}

func (l LinkType) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText keeps unknown names as an out-of-range value so validation can reject them
func (l *LinkType) UnmarshalText(text []byte) error {
	for kind, name := range linkTypeNames {
		if strings.EqualFold(name, string(text)) {
			*l = kind
			return nil
		}
	}
	*l = LinkType(-1)
	return nil
}

// SortOrder selects the ranking of a listing
type SortOrder string

const (
	SortHot      SortOrder = "hot"
	SortTrending SortOrder = "trending"
	SortBest     SortOrder = "best"
	SortRecent   SortOrder = "recent"
)

// Valid reports whether o is a known order
func (o SortOrder) Valid() bool {
	switch o {
	case SortHot, SortTrending, SortBest, SortRecent:
		return true
	}
	return false
}

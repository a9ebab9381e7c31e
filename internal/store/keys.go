package store

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// LockKey names a row or uniqueness partition a transaction needs exclusive access to
type LockKey string

// UserKey guards a user row
func UserKey(userID int64) LockKey { return LockKey(fmt.Sprintf("user:%d", userID)) }

// NameKey guards a name partition such as usernames or sphere names
func NameKey(kind, name string) LockKey {
	return LockKey(fmt.Sprintf("name:%s:%s", kind, strings.ToLower(name)))
}

// SphereKey guards a sphere row and its counters
func SphereKey(sphereID int64) LockKey { return LockKey(fmt.Sprintf("sphere:%d", sphereID)) }

// SatelliteKey guards a satellite row and its post counter
func SatelliteKey(satelliteID int64) LockKey {
	return LockKey(fmt.Sprintf("satellite:%d", satelliteID))
}

// CategoryKey guards a category row
func CategoryKey(categoryID int64) LockKey { return LockKey(fmt.Sprintf("category:%d", categoryID)) }

// SubscriptionKey guards the (user, sphere) membership pair
func SubscriptionKey(userID, sphereID int64) LockKey {
	return LockKey(fmt.Sprintf("subscription:%d:%d", userID, sphereID))
}

// RoleKey guards the (user, sphere) role partition
func RoleKey(userID, sphereID int64) LockKey {
	return LockKey(fmt.Sprintf("role:%d:%d", userID, sphereID))
}

// LeadKey guards the single-leader partition of a sphere
func LeadKey(sphereID int64) LockKey { return LockKey(fmt.Sprintf("lead:%d", sphereID)) }

// RuleSlotKey guards a (sphere, priority) rule slot; a null sphere is the site-wide scope
func RuleSlotKey(sphereID sql.NullInt64, priority int16) LockKey {
	if !sphereID.Valid {
		return LockKey(fmt.Sprintf("rule-slot:site:%d", priority))
	}
	return LockKey(fmt.Sprintf("rule-slot:%d:%d", sphereID.Int64, priority))
}

// RuleVersionKey guards the versions of one rule
func RuleVersionKey(ruleKey string) LockKey { return LockKey("rule:" + ruleKey) }

// PostKey guards a post row and its aggregate
func PostKey(postID int64) LockKey { return LockKey(fmt.Sprintf("post:%d", postID)) }

// CommentKey guards a comment row and its aggregate
func CommentKey(commentID int64) LockKey { return LockKey(fmt.Sprintf("comment:%d", commentID)) }

// ContentKey guards the aggregate row a vote targets
func ContentKey(postID int64, commentID sql.NullInt64) LockKey {
	if commentID.Valid {
		return CommentKey(commentID.Int64)
	}
	return PostKey(postID)
}

// VoteKey guards the (post, comment, user) vote slot
func VoteKey(postID int64, commentID sql.NullInt64, userID int64) LockKey {
	return LockKey(fmt.Sprintf("vote:%d:%d:%d", postID, commentID.Int64, userID))
}

// BanKey guards the bans of a user
func BanKey(userID int64) LockKey { return LockKey(fmt.Sprintf("ban:%d", userID)) }

// InboxKey guards the read flags of a user's notifications
func InboxKey(userID int64) LockKey { return LockKey(fmt.Sprintf("inbox:%d", userID)) }

// Keys returns keys sorted and without duplicates, the order in which they must be acquired
func Keys(keys ...LockKey) []LockKey {
	out := make([]LockKey, 0, len(keys))
	seen := make(map[LockKey]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

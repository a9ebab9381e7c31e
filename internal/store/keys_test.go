package store

import (
	"database/sql"
	"testing"
)

func TestKeys(t *testing.T) {
	got := Keys(PostKey(2), UserKey(1), PostKey(2), LeadKey(3))
	want := []LockKey{"lead:3", "post:2", "user:1"}
	if len(got) != len(want) {
		t.Fatalf("Keys() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestKeyNames(t *testing.T) {
	tests := []struct {
		name string
		key  LockKey
		want LockKey
	}{
		{"name is case-insensitive", NameKey("sphere", "GoLang"), "name:sphere:golang"},
		{"site-wide rule slot", RuleSlotKey(sql.NullInt64{}, 3), "rule-slot:site:3"},
		{"sphere rule slot", RuleSlotKey(sql.NullInt64{Int64: 7, Valid: true}, 3), "rule-slot:7:3"},
		{"post content", ContentKey(5, sql.NullInt64{}), "post:5"},
		{"comment content", ContentKey(5, sql.NullInt64{Int64: 9, Valid: true}), "comment:9"},
		{"post vote", VoteKey(5, sql.NullInt64{}, 1), "vote:5:0:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.key != tt.want {
				t.Errorf("got %q, want %q", tt.key, tt.want)
			}
		})
	}
}

package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/sharesphere/spherecore/internal/engine"
)

func TestPrintReport(t *testing.T) {
	report := &engine.Report{
		Posts:    3,
		Comments: 5,
		Mismatches: []engine.Mismatch{
			{PostID: 7, StoredScore: 2, LiveScore: 3, Repaired: true},
			{PostID: 7, CommentID: sql.NullInt64{Int64: 11, Valid: true}, StoredMinus: 1, ScoreDrift: true},
		},
	}

	tests := []struct {
		name     string
		json     bool
		contains []string
	}{
		{
			name:     "text",
			contains: []string{"Checked 3 posts and 5 comments", "2 mismatches", "post 7", "comment 11 on post 7", "repaired=true", "drift=true"},
		},
		{
			name:     "json",
			json:     true,
			contains: []string{`"posts": 3`, `"stored_score": 2`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&out)
			if err := printReport(cmd, report, tt.json); err != nil {
				t.Fatalf("printReport() error = %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
			if tt.json {
				var decoded engine.Report
				if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
					t.Errorf("output is not JSON: %v", err)
				}
			}
		})
	}
}

func TestPrintReportClean(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	if err := printReport(cmd, &engine.Report{Posts: 1}, false); err != nil {
		t.Fatalf("printReport() error = %v", err)
	}
	if !strings.Contains(out.String(), "No mismatches") {
		t.Errorf("output = %q", out.String())
	}
}

func TestTokenRejectsBadUserID(t *testing.T) {
	for _, arg := range []string{"abc", "0", "-4"} {
		t.Run(arg, func(t *testing.T) {
			cmd := rootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"token", "--", arg})
			err := cmd.Execute()
			if err == nil || !strings.Contains(err.Error(), "invalid user id") {
				t.Errorf("Execute() error = %v, want invalid user id", err)
			}
		})
	}
}

func TestSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"reconcile", "rescore", "promote", "token"} {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestRescoreRejectsBadWindow(t *testing.T) {
	for _, arg := range []string{"0s", "-1h"} {
		t.Run(arg, func(t *testing.T) {
			cmd := rootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"rescore", "--window=" + arg})
			err := cmd.Execute()
			if err == nil || !strings.Contains(err.Error(), "invalid window") {
				t.Errorf("Execute() error = %v, want invalid window", err)
			}
		})
	}
}

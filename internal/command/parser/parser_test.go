package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/clarketm/prbot/internal/command"
	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/errs"
)

func TestParseIgnoresNonCommandLines(t *testing.T) {
	body := "just a regular comment\nour prbot is a good bot\nnot-prbot merge"
	if got := Parse("prbot", body); len(got) != 0 {
		t.Errorf("Parse() = %#v, want no results", got)
	}
}

func TestParseMultipleCommandsInOneComment(t *testing.T) {
	body := "prbot qa+\nsome other text\nprbot merge squash"
	results := Parse("prbot", body)
	if len(results) != 2 {
		t.Fatalf("Parse() returned %d results, want 2", len(results))
	}
	if results[0].Err != nil || results[0].Command.Verb != command.VerbQaPlus {
		t.Errorf("first result = %#v, want qa+", results[0])
	}
	if results[1].Err != nil || results[1].Command.Verb != command.VerbMerge || results[1].Command.Strategy != domain.StrategySquash {
		t.Errorf("second result = %#v, want merge squash", results[1])
	}
}

func TestParseLineUsernames(t *testing.T) {
	testCases := []struct {
		name     string
		verb     command.Verb
		args     []string
		wantErr  bool
		wantUser []string
	}{
		{name: "required+ with one user", verb: command.VerbRequiredAdd, args: []string{"@alice"}, wantUser: []string{"alice"}},
		{name: "required+ with no args fails", verb: command.VerbRequiredAdd, args: nil, wantErr: true},
		{name: "r+ with too many users fails", verb: command.VerbReviewersAdd, args: make([]string, 17), wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := parseLine(string(tc.verb), tc.args)
			if tc.wantErr {
				if res.Err == nil {
					t.Fatalf("parseLine() = %#v, want an error", res)
				}
				return
			}
			if res.Err != nil {
				t.Fatalf("parseLine() returned unexpected error: %v", res.Err)
			}
			if diff := cmp.Diff(tc.wantUser, res.Command.Usernames); diff != "" {
				t.Errorf("Usernames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseMergeVariants(t *testing.T) {
	testCases := []struct {
		name         string
		args         []string
		wantErr      bool
		wantStrategy domain.MergeStrategy
	}{
		{name: "bare merge has no strategy override", args: nil, wantStrategy: ""},
		{name: "merge with a valid strategy", args: []string{"rebase"}, wantStrategy: domain.StrategyRebase},
		{name: "merge with an unknown strategy fails", args: []string{"bogus"}, wantErr: true},
		{name: "merge with too many args fails", args: []string{"merge", "squash"}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := parseMerge(tc.args)
			if tc.wantErr {
				if res.Err == nil {
					t.Fatalf("parseMerge() = %#v, want an error", res)
				}
				return
			}
			if res.Err != nil {
				t.Fatalf("parseMerge() returned unexpected error: %v", res.Err)
			}
			if res.Command.Strategy != tc.wantStrategy {
				t.Errorf("Strategy = %q, want %q", res.Command.Strategy, tc.wantStrategy)
			}
		})
	}
}

func TestParseUnknownVerb(t *testing.T) {
	res := parseLine("not-a-real-verb", nil)
	if res.Err == nil {
		t.Fatal("parseLine() with an unknown verb should fail")
	}
	if _, ok := res.Err.(*errs.UnknownCommand); !ok {
		t.Errorf("parseLine() error = %T, want *errs.UnknownCommand", res.Err)
	}
}

func TestParseAddMergeRule(t *testing.T) {
	res := parseAddMergeRule([]string{"main", "feature/*", "squash"})
	if res.Err != nil {
		t.Fatalf("parseAddMergeRule() returned unexpected error: %v", res.Err)
	}
	if res.Command.BaseBranch != "main" || res.Command.HeadBranch != "feature/*" || res.Command.Strategy != domain.StrategySquash {
		t.Errorf("parseAddMergeRule() = %#v", res.Command)
	}
}

package status

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/forge"
	memorystore "github.com/clarketm/prbot/internal/store/memory"
)

func TestFoldChecksStatus(t *testing.T) {
	now := time.Unix(1700000000, 0)
	testCases := []struct {
		name     string
		runs     []forge.CheckRun
		expected domain.ChecksStatus
	}{
		{
			name:     "no runs at all",
			runs:     nil,
			expected: domain.ChecksWaiting,
		},
		{
			name: "foreign app slug is ignored entirely",
			runs: []forge.CheckRun{
				{Name: "build", Conclusion: "failure", AppSlug: "some-other-ci", StartedAt: now},
			},
			expected: domain.ChecksWaiting,
		},
		{
			name: "single passing run",
			runs: []forge.CheckRun{
				{Name: "build", Conclusion: "success", AppSlug: "github-actions", StartedAt: now},
			},
			expected: domain.ChecksPass,
		},
		{
			name: "any failing run fails the fold",
			runs: []forge.CheckRun{
				{Name: "build", Conclusion: "success", AppSlug: "github-actions", StartedAt: now},
				{Name: "lint", Conclusion: "failure", AppSlug: "github-actions", StartedAt: now},
			},
			expected: domain.ChecksFail,
		},
		{
			name: "a still-running run waits even if others passed",
			runs: []forge.CheckRun{
				{Name: "build", Conclusion: "success", AppSlug: "github-actions", StartedAt: now},
				{Name: "lint", Conclusion: "", AppSlug: "github-actions", StartedAt: now},
			},
			expected: domain.ChecksWaiting,
		},
		{
			name: "duplicate run name keeps only the most recently started",
			runs: []forge.CheckRun{
				{Name: "build", Conclusion: "failure", AppSlug: "github-actions", StartedAt: now},
				{Name: "build", Conclusion: "success", AppSlug: "github-actions", StartedAt: now.Add(time.Minute)},
			},
			expected: domain.ChecksPass,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := FoldChecksStatus(tc.runs)
			if got != tc.expected {
				t.Errorf("FoldChecksStatus() = %s, want %s", got, tc.expected)
			}
		})
	}
}

func TestChooseStepLabel(t *testing.T) {
	base := PullRequestStatus{
		ChecksStatus:         domain.ChecksPass,
		QaStatus:             domain.QaPass,
		NeededReviewersCount: 1,
		ApprovedReviewers:    []string{"alice"},
		ValidPRTitle:         true,
	}

	testCases := []struct {
		name     string
		mutate   func(s PullRequestStatus) PullRequestStatus
		expected domain.StepLabel
	}{
		{
			name:     "clean pass goes to awaiting merge",
			mutate:   func(s PullRequestStatus) PullRequestStatus { return s },
			expected: domain.StepAwaitingMerge,
		},
		{
			name:     "draft wins over everything else",
			mutate:   func(s PullRequestStatus) PullRequestStatus { s.Wip = true; s.ValidPRTitle = false; return s },
			expected: domain.StepWip,
		},
		{
			name:     "invalid title",
			mutate:   func(s PullRequestStatus) PullRequestStatus { s.ValidPRTitle = false; return s },
			expected: domain.StepAwaitingChanges,
		},
		{
			name:     "checks waiting",
			mutate:   func(s PullRequestStatus) PullRequestStatus { s.ChecksStatus = domain.ChecksWaiting; return s },
			expected: domain.StepAwaitingChecks,
		},
		{
			name:     "checks failed",
			mutate:   func(s PullRequestStatus) PullRequestStatus { s.ChecksStatus = domain.ChecksFail; return s },
			expected: domain.StepAwaitingChanges,
		},
		{
			name:     "changes requested",
			mutate:   func(s PullRequestStatus) PullRequestStatus { s.ChangesRequiredReviewers = []string{"bob"}; return s },
			expected: domain.StepAwaitingChanges,
		},
		{
			name:     "missing reviews",
			mutate:   func(s PullRequestStatus) PullRequestStatus { s.NeededReviewersCount = 2; return s },
			expected: domain.StepAwaitingReview,
		},
		{
			name:     "qa waiting",
			mutate:   func(s PullRequestStatus) PullRequestStatus { s.QaStatus = domain.QaWaiting; return s },
			expected: domain.StepAwaitingQa,
		},
		{
			name:     "qa failed",
			mutate:   func(s PullRequestStatus) PullRequestStatus { s.QaStatus = domain.QaFail; return s },
			expected: domain.StepAwaitingChanges,
		},
		{
			name:     "locked",
			mutate:   func(s PullRequestStatus) PullRequestStatus { s.Locked = true; return s },
			expected: domain.StepLocked,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := chooseStepLabel(tc.mutate(base))
			if got != tc.expected {
				t.Errorf("chooseStepLabel() = %s, want %s", got, tc.expected)
			}
		})
	}
}

func TestCombinedStatus(t *testing.T) {
	pass := PullRequestStatus{ChecksStatus: domain.ChecksPass, QaStatus: domain.QaPass, ValidPRTitle: true}

	testCases := []struct {
		name          string
		status        PullRequestStatus
		expectedState forge.CommitStatusState
	}{
		{name: "all good", status: pass, expectedState: forge.StatusSuccess},
		{name: "locked takes priority", status: func() PullRequestStatus { s := pass; s.Locked = true; return s }(), expectedState: forge.StatusPending},
		{name: "invalid title fails", status: func() PullRequestStatus { s := pass; s.ValidPRTitle = false; return s }(), expectedState: forge.StatusFailure},
		{name: "waiting on checks is pending", status: func() PullRequestStatus { s := pass; s.ChecksStatus = domain.ChecksWaiting; return s }(), expectedState: forge.StatusPending},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			state, _ := combinedStatus(tc.status)
			if state != tc.expectedState {
				t.Errorf("combinedStatus() state = %s, want %s", state, tc.expectedState)
			}
		})
	}
}

func TestResolveMergeStrategy(t *testing.T) {
	ctx := context.Background()

	newRepo := func(t *testing.T, st *memorystore.Store) *domain.Repository {
		t.Helper()
		repo, err := st.RepositoryCreate(ctx, &domain.Repository{Owner: "o", Name: "n", DefaultStrategy: domain.StrategyMerge})
		if err != nil {
			t.Fatalf("RepositoryCreate: %v", err)
		}
		return repo
	}

	t.Run("pull request override wins over every rule", func(t *testing.T) {
		st := memorystore.New()
		repo := newRepo(t, st)
		pr := &domain.PullRequest{RepositoryID: repo.ID, StrategyOverride: domain.StrategyRebase}
		if got := ResolveMergeStrategy(ctx, st, repo, pr, "main", "feature"); got != domain.StrategyRebase {
			t.Errorf("ResolveMergeStrategy() = %s, want %s", got, domain.StrategyRebase)
		}
	})

	t.Run("exact branch rule beats wildcard rules", func(t *testing.T) {
		st := memorystore.New()
		repo := newRepo(t, st)
		if err := st.MergeRuleUpsert(ctx, &domain.MergeRule{RepositoryID: repo.ID, BaseBranch: domain.Wildcard, HeadBranch: domain.Wildcard, Strategy: domain.StrategySquash}); err != nil {
			t.Fatalf("MergeRuleUpsert: %v", err)
		}
		if err := st.MergeRuleUpsert(ctx, &domain.MergeRule{RepositoryID: repo.ID, BaseBranch: "main", HeadBranch: "feature", Strategy: domain.StrategyRebase}); err != nil {
			t.Fatalf("MergeRuleUpsert: %v", err)
		}
		pr := &domain.PullRequest{RepositoryID: repo.ID}
		if got := ResolveMergeStrategy(ctx, st, repo, pr, "main", "feature"); got != domain.StrategyRebase {
			t.Errorf("ResolveMergeStrategy() = %s, want %s", got, domain.StrategyRebase)
		}
	})

	t.Run("falls back to repository default with no matching rule", func(t *testing.T) {
		st := memorystore.New()
		repo := newRepo(t, st)
		pr := &domain.PullRequest{RepositoryID: repo.ID}
		if got := ResolveMergeStrategy(ctx, st, repo, pr, "main", "feature"); got != domain.StrategyMerge {
			t.Errorf("ResolveMergeStrategy() = %s, want %s", got, domain.StrategyMerge)
		}
	})
}

func TestRenderSummaryMentionsChosenStep(t *testing.T) {
	handle := domain.PullRequestHandle{Owner: "o", Name: "n", Number: 42}
	repo := &domain.Repository{Owner: "o", Name: "n"}
	pr := &domain.PullRequest{Automerge: true}
	s := PullRequestStatus{ChecksStatus: domain.ChecksPass, QaStatus: domain.QaPass, MergeStrategy: domain.StrategySquash}

	body := RenderSummary(handle, repo, pr, s, domain.StepAwaitingMerge)
	if !contains(body, domain.StepAwaitingMerge.Kebab()) {
		t.Errorf("RenderSummary() body missing chosen step label, got:\n%s", body)
	}
}

func TestBuildStatusMissingRequiredReviewer(t *testing.T) {
	repo := &domain.Repository{}
	pr := &domain.PullRequest{NeededReviewersCount: 1}
	upstream := &forge.UpstreamPullRequest{Title: "add widget"}
	reviews := []forge.Review{{Username: "alice", State: forge.ReviewApproved}}
	required := []*domain.RequiredReviewer{{Username: "alice"}, {Username: "bob"}}

	got := buildStatus(repo, pr, upstream, reviews, required, domain.ChecksPass, domain.StrategyMerge)
	want := PullRequestStatus{
		ChecksStatus:             domain.ChecksPass,
		ApprovedReviewers:        []string{"alice"},
		MissingRequiredReviewers: []string{"bob"},
		NeededReviewersCount:     1,
		ValidPRTitle:             true,
		MergeStrategy:            domain.StrategyMerge,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("buildStatus() mismatch (-want +got):\n%s", diff)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

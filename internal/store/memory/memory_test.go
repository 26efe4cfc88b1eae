package memory

import (
	"context"
	"sort"
	"testing"

	"github.com/go-test/deep"

	"github.com/clarketm/prbot/internal/domain"
)

func TestRepositoryCreateUpsertPreservesID(t *testing.T) {
	ctx := context.Background()
	s := New()

	first, err := s.RepositoryCreate(ctx, &domain.Repository{Owner: "o", Name: "n", DefaultAutomerge: false})
	if err != nil {
		t.Fatalf("RepositoryCreate: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("RepositoryCreate did not assign an ID")
	}

	second, err := s.RepositoryCreate(ctx, &domain.Repository{Owner: "o", Name: "n", DefaultAutomerge: true})
	if err != nil {
		t.Fatalf("RepositoryCreate (upsert): %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("upserting an existing repository changed its ID: got %d, want %d", second.ID, first.ID)
	}
	if !second.DefaultAutomerge {
		t.Errorf("upsert did not apply the new field values")
	}

	byID, err := s.RepositoryGetFromID(ctx, first.ID)
	if err != nil {
		t.Fatalf("RepositoryGetFromID: %v", err)
	}
	if byID == nil || byID.ID != first.ID {
		t.Errorf("RepositoryGetFromID(%d) = %#v, want a row with that ID", first.ID, byID)
	}
}

func TestRepositoryDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := New()

	repo, err := s.RepositoryCreate(ctx, &domain.Repository{Owner: "o", Name: "n"})
	if err != nil {
		t.Fatalf("RepositoryCreate: %v", err)
	}
	pr, err := s.PullRequestCreate(ctx, &domain.PullRequest{RepositoryID: repo.ID, Number: 1})
	if err != nil {
		t.Fatalf("PullRequestCreate: %v", err)
	}
	if err := s.RequiredReviewerAdd(ctx, &domain.RequiredReviewer{PullRequestID: pr.ID, Username: "alice"}); err != nil {
		t.Fatalf("RequiredReviewerAdd: %v", err)
	}
	if err := s.MergeRuleUpsert(ctx, &domain.MergeRule{RepositoryID: repo.ID, BaseBranch: domain.Wildcard, HeadBranch: domain.Wildcard, Strategy: domain.StrategyMerge}); err != nil {
		t.Fatalf("MergeRuleUpsert: %v", err)
	}

	if err := s.RepositoryDelete(ctx, "o", "n"); err != nil {
		t.Fatalf("RepositoryDelete: %v", err)
	}

	if got, err := s.RepositoryGet(ctx, "o", "n"); err != nil || got != nil {
		t.Errorf("RepositoryGet after delete = (%#v, %v), want (nil, nil)", got, err)
	}
	if got, err := s.PullRequestGet(ctx, repo.ID, 1); err != nil || got != nil {
		t.Errorf("PullRequestGet after repository delete = (%#v, %v), want (nil, nil)", got, err)
	}
	if got, err := s.RequiredReviewerListByPullRequest(ctx, pr.ID); err != nil || len(got) != 0 {
		t.Errorf("RequiredReviewerListByPullRequest after repository delete = (%#v, %v), want empty", got, err)
	}
	if got, err := s.MergeRuleGet(ctx, repo.ID, domain.Wildcard, domain.Wildcard); err != nil || got != nil {
		t.Errorf("MergeRuleGet after repository delete = (%#v, %v), want (nil, nil)", got, err)
	}
}

func TestPullRequestCreateIsKeyedByRepositoryAndNumber(t *testing.T) {
	ctx := context.Background()
	s := New()

	repo, err := s.RepositoryCreate(ctx, &domain.Repository{Owner: "o", Name: "n"})
	if err != nil {
		t.Fatalf("RepositoryCreate: %v", err)
	}
	if _, err := s.PullRequestCreate(ctx, &domain.PullRequest{RepositoryID: repo.ID, Number: 1}); err != nil {
		t.Fatalf("PullRequestCreate: %v", err)
	}
	if _, err := s.PullRequestCreate(ctx, &domain.PullRequest{RepositoryID: repo.ID, Number: 2}); err != nil {
		t.Fatalf("PullRequestCreate: %v", err)
	}

	prs, err := s.PullRequestListByRepository(ctx, repo.ID)
	if err != nil {
		t.Fatalf("PullRequestListByRepository: %v", err)
	}
	if len(prs) != 2 {
		t.Fatalf("PullRequestListByRepository() returned %d rows, want 2", len(prs))
	}
	sort.Slice(prs, func(i, j int) bool { return prs[i].Number < prs[j].Number })

	want := []*domain.PullRequest{
		{RepositoryID: repo.ID, Number: 1, ID: prs[0].ID},
		{RepositoryID: repo.ID, Number: 2, ID: prs[1].ID},
	}
	if diff := deep.Equal(want, prs); diff != nil {
		t.Errorf("PullRequestListByRepository() diff: %v", diff)
	}
}

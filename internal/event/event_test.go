package event

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/clarketm/prbot/internal/command/executor"
	"github.com/clarketm/prbot/internal/command/handlers"
	"github.com/clarketm/prbot/internal/config"
	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/forge"
	"github.com/clarketm/prbot/internal/forge/fake"
	"github.com/clarketm/prbot/internal/gif"
	lockmemory "github.com/clarketm/prbot/internal/lock/memory"
	"github.com/clarketm/prbot/internal/status"
	memorystore "github.com/clarketm/prbot/internal/store/memory"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *memorystore.Store, *fake.Client) {
	t.Helper()
	st := memorystore.New()
	fc := fake.New()
	logger := logrus.NewEntry(logrus.New())
	cfg := config.Config{BotName: "prbot"}

	statusEngine := &status.Engine{
		Store:  st,
		Forge:  fc,
		Locks:  lockmemory.New(),
		Config: cfg,
		Logger: logger,
	}
	exec := &executor.Executor{
		Store: st,
		Forge: fc,
		Handler: handlers.Deps{
			Store:  st,
			Forge:  fc,
			Gif:    gif.FromClient(fc, ""),
			Config: cfg,
			Logger: logger,
		},
		Status: statusEngine.Run,
		Logger: logger,
	}
	return &Dispatcher{
		Store:    st,
		Forge:    fc,
		Status:   statusEngine,
		Executor: exec,
		Config:   cfg,
		Logger:   logger,
	}, st, fc
}

func TestHandleOpenedSkipsPullRequestCreationWhenManualInteractionIsSet(t *testing.T) {
	d, st, fc := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := st.RepositoryCreate(ctx, &domain.Repository{Owner: "o", Name: "n", ManualInteraction: true}); err != nil {
		t.Fatalf("RepositoryCreate: %v", err)
	}
	fc.PullRequests["o/n#1"] = &forge.UpstreamPullRequest{Title: "add widget", Number: 1}

	ev := PullRequestEvent{
		Action: "opened",
		Handle: domain.PullRequestHandle{Owner: "o", Name: "n", Number: 1},
		Author: "alice",
		Body:   "just a regular PR description, no bot commands here",
	}
	if err := d.HandlePullRequest(ctx, ev); err != nil {
		t.Fatalf("HandlePullRequest: %v", err)
	}

	repo, err := st.RepositoryGet(ctx, "o", "n")
	if err != nil {
		t.Fatalf("RepositoryGet: %v", err)
	}
	if !repo.ManualInteraction {
		t.Error("ManualInteraction was reset by the pull_request.opened upsert, want it preserved")
	}
	if pr, err := st.PullRequestGet(ctx, repo.ID, 1); err != nil || pr != nil {
		t.Errorf("PullRequestGet after opened with manual_interaction and no admin-enable = (%#v, %v), want (nil, nil)", pr, err)
	}
	if len(fc.Comments) != 0 {
		t.Errorf("HandlePullRequest posted %d comments, want 0 for a gated repository", len(fc.Comments))
	}
}

func TestHandleOpenedCreatesPullRequestWhenManualInteractionBodyHasAdminEnable(t *testing.T) {
	d, st, fc := newTestDispatcher(t)
	ctx := context.Background()

	if _, err := st.RepositoryCreate(ctx, &domain.Repository{Owner: "o", Name: "n", ManualInteraction: true}); err != nil {
		t.Fatalf("RepositoryCreate: %v", err)
	}
	fc.PullRequests["o/n#1"] = &forge.UpstreamPullRequest{Title: "add widget", Number: 1}

	ev := PullRequestEvent{
		Action:   "opened",
		Handle:   domain.PullRequestHandle{Owner: "o", Name: "n", Number: 1},
		Author:   "alice",
		Body:     "prbot admin-enable",
		Upstream: fc.PullRequests["o/n#1"],
	}
	if err := d.HandlePullRequest(ctx, ev); err != nil {
		t.Fatalf("HandlePullRequest: %v", err)
	}

	repo, err := st.RepositoryGet(ctx, "o", "n")
	if err != nil {
		t.Fatalf("RepositoryGet: %v", err)
	}
	pr, err := st.PullRequestGet(ctx, repo.ID, 1)
	if err != nil {
		t.Fatalf("PullRequestGet: %v", err)
	}
	if pr == nil {
		t.Fatal("HandlePullRequest did not create a pull request row despite the admin-enable escape hatch")
	}
}

func TestHandleIssueCommentAdminEnablesAnUntrackedPullRequest(t *testing.T) {
	d, st, fc := newTestDispatcher(t)
	ctx := context.Background()

	fc.PullRequests["o/n#1"] = &forge.UpstreamPullRequest{Title: "add widget", Number: 1}

	ev := IssueCommentEvent{
		Action:   "created",
		Handle:   domain.PullRequestHandle{Owner: "o", Name: "n", Number: 1},
		Username: "alice",
		Body:     "prbot admin-enable",
	}
	if err := d.HandleIssueComment(ctx, ev); err != nil {
		t.Fatalf("HandleIssueComment: %v", err)
	}

	repo, err := st.RepositoryGet(ctx, "o", "n")
	if err != nil {
		t.Fatalf("RepositoryGet: %v", err)
	}
	if repo == nil {
		t.Fatal("HandleIssueComment did not upsert a repository row via the admin-enable escape hatch")
	}
	pr, err := st.PullRequestGet(ctx, repo.ID, 1)
	if err != nil {
		t.Fatalf("PullRequestGet: %v", err)
	}
	if pr == nil {
		t.Fatal("HandleIssueComment did not create a pull request row via the admin-enable escape hatch")
	}
}

func TestHandleIssueCommentDropsCommentOnUntrackedPullRequestWithoutAdminEnable(t *testing.T) {
	d, st, _ := newTestDispatcher(t)
	ctx := context.Background()

	ev := IssueCommentEvent{
		Action:   "created",
		Handle:   domain.PullRequestHandle{Owner: "o", Name: "n", Number: 1},
		Username: "alice",
		Body:     "prbot qa+",
	}
	if err := d.HandleIssueComment(ctx, ev); err != nil {
		t.Fatalf("HandleIssueComment: %v", err)
	}

	if repo, err := st.RepositoryGet(ctx, "o", "n"); err != nil || repo != nil {
		t.Errorf("RepositoryGet after a dropped comment = (%#v, %v), want (nil, nil)", repo, err)
	}
}

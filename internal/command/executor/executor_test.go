package executor

import (
	"context"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/clarketm/prbot/internal/command"
	"github.com/clarketm/prbot/internal/command/handlers"
	"github.com/clarketm/prbot/internal/config"
	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/forge"
	"github.com/clarketm/prbot/internal/forge/fake"
	"github.com/clarketm/prbot/internal/gif"
	memorystore "github.com/clarketm/prbot/internal/store/memory"
)

func newTestExecutor(t *testing.T) (*Executor, *fake.Client) {
	t.Helper()
	st := memorystore.New()
	fc := fake.New()
	dep := handlers.Deps{
		Store:  st,
		Forge:  fc,
		Gif:    gif.FromClient(fc, ""),
		Config: config.Config{BotName: "prbot"},
		Logger: logrus.NewEntry(logrus.New()),
	}
	return &Executor{
		Store:   st,
		Forge:   fc,
		Handler: dep,
		Status:  func(ctx context.Context, h domain.PullRequestHandle) error { return nil },
		Logger:  logrus.NewEntry(logrus.New()),
	}, fc
}

func TestRunDeniesAdminVerbForNonAdmin(t *testing.T) {
	exec, fc := newTestExecutor(t)
	handle := domain.PullRequestHandle{Owner: "o", Name: "n", Number: 1}

	req := Request{
		Handle:     handle,
		Username:   "mallory",
		Permission: domain.PermissionWrite,
		IsBotAdmin: false,
		Result:     command.Command{Verb: command.VerbAdminDisable},
	}

	if err := exec.Run(context.Background(), "prbot", nil, nil, []Request{req}); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}

	if len(fc.Comments) != 0 {
		t.Errorf("Run() posted a comment for a denied admin verb, want none: %v", fc.Comments)
	}
}

func TestRunAlwaysAllowsPing(t *testing.T) {
	exec, fc := newTestExecutor(t)
	handle := domain.PullRequestHandle{Owner: "o", Name: "n", Number: 1}

	req := Request{
		Handle:     handle,
		Username:   "anyone",
		Permission: domain.PermissionNone,
		IsBotAdmin: false,
		Result:     command.Command{Verb: command.VerbPing},
	}

	if err := exec.Run(context.Background(), "prbot", nil, nil, []Request{req}); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}
	if len(fc.Comments) != 1 {
		t.Fatalf("Run() posted %d comments, want 1", len(fc.Comments))
	}
}

func TestRunCoalescesMultipleCommentsWithRecapPrefix(t *testing.T) {
	exec, fc := newTestExecutor(t)
	handle := domain.PullRequestHandle{Owner: "o", Name: "n", Number: 7}
	repo, err := exec.Store.RepositoryCreate(context.Background(), &domain.Repository{Owner: "o", Name: "n"})
	if err != nil {
		t.Fatalf("RepositoryCreate: %v", err)
	}
	pr, err := exec.Store.PullRequestCreate(context.Background(), &domain.PullRequest{RepositoryID: repo.ID, Number: 7})
	if err != nil {
		t.Fatalf("PullRequestCreate: %v", err)
	}

	reqs := []Request{
		{Handle: handle, Username: "alice", Permission: domain.PermissionWrite, Result: command.Command{Verb: command.VerbQaPlus}},
		{Handle: handle, Username: "alice", Permission: domain.PermissionWrite, Result: command.Command{Verb: command.VerbNochecksOn}},
	}

	if err := exec.Run(context.Background(), "prbot", repo, pr, reqs); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}

	if len(fc.Comments) != 1 {
		t.Fatalf("Run() posted %d comments, want the two acks coalesced into 1", len(fc.Comments))
	}
	var body string
	for _, c := range fc.Comments {
		body = c
	}
	if !strings.Contains(body, "qa+") || !strings.Contains(body, "nochecks+") {
		t.Errorf("coalesced comment missing a recap prefix, got:\n%s", body)
	}
	if !strings.Contains(body, "\n\n---\n\n") {
		t.Errorf("coalesced comment missing the separator between bodies, got:\n%s", body)
	}
}

func TestRunParseErrorIsDeniedAndThumbsDown(t *testing.T) {
	exec, fc := newTestExecutor(t)
	handle := domain.PullRequestHandle{Owner: "o", Name: "n", Number: 1}

	req := Request{
		Handle:     handle,
		Username:   "alice",
		Permission: domain.PermissionWrite,
		ParseErr:   &parseErrStub{},
	}

	if err := exec.Run(context.Background(), "prbot", nil, nil, []Request{req}); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}
	if len(fc.Comments) != 1 {
		t.Fatalf("Run() posted %d comments for a parse error, want 1", len(fc.Comments))
	}
	if got := fc.Reactions[0]; len(got) != 1 || got[0] != forge.ReactionThumbsDown {
		t.Errorf("reactions = %v, want a single thumbs-down", got)
	}
}

type parseErrStub struct{}

func (e *parseErrStub) Error() string { return "bad command" }

// TestRunBatchCommandDenialFoldsToHandledWithBothReactions exercises the
// "a non-admin comments {bot} admin-enable\n{bot} qa+" scenario: the
// denied admin-enable and the handled qa+ fold to Handled overall, with
// exactly one thumbs-down and one eyes reaction and a comment that
// recaps qa+ but not admin-enable.
func TestRunBatchCommandDenialFoldsToHandledWithBothReactions(t *testing.T) {
	exec, fc := newTestExecutor(t)
	handle := domain.PullRequestHandle{Owner: "o", Name: "n", Number: 3}
	repo, err := exec.Store.RepositoryCreate(context.Background(), &domain.Repository{Owner: "o", Name: "n"})
	if err != nil {
		t.Fatalf("RepositoryCreate: %v", err)
	}
	pr, err := exec.Store.PullRequestCreate(context.Background(), &domain.PullRequest{RepositoryID: repo.ID, Number: 3})
	if err != nil {
		t.Fatalf("PullRequestCreate: %v", err)
	}

	const commentID = int64(42)
	reqs := []Request{
		{Handle: handle, CommentID: commentID, Username: "mallory", Permission: domain.PermissionWrite, IsBotAdmin: false, Result: command.Command{Verb: command.VerbAdminEnable}},
		{Handle: handle, CommentID: commentID, Username: "mallory", Permission: domain.PermissionWrite, IsBotAdmin: false, Result: command.Command{Verb: command.VerbQaPlus}},
	}

	if err := exec.Run(context.Background(), "prbot", repo, pr, reqs); err != nil {
		t.Fatalf("Run() returned an unexpected error: %v", err)
	}

	reactions := fc.Reactions[commentID]
	if len(reactions) != 2 {
		t.Fatalf("Run() recorded %d reactions, want 2: %v", len(reactions), reactions)
	}
	var sawThumbsDown, sawEyes bool
	for _, r := range reactions {
		switch r {
		case forge.ReactionThumbsDown:
			sawThumbsDown = true
		case forge.ReactionEyes:
			sawEyes = true
		}
	}
	if !sawThumbsDown {
		t.Errorf("reactions = %v, want a thumbs-down reaction", reactions)
	}
	if !sawEyes {
		t.Errorf("reactions = %v, want an eyes reaction", reactions)
	}

	if len(fc.Comments) != 1 {
		t.Fatalf("Run() posted %d comments, want 1", len(fc.Comments))
	}
	var body string
	for _, c := range fc.Comments {
		body = c
	}
	if !strings.Contains(body, "qa+") {
		t.Errorf("comment missing the qa+ recap, got:\n%s", body)
	}
	if strings.Contains(body, "admin-enable") {
		t.Errorf("comment should not recap the denied admin-enable command, got:\n%s", body)
	}
}

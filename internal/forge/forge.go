// Package forge defines the typed surface the core consumes against the
// hosted Git forge (§6.2). The concrete HTTP-backed implementation is an
// out-of-scope adapter (§1); this package only carries the interface
// and the data shapes the core needs, grounded on the shape of
// k8s.io/test-infra/prow/github's hand-rolled client.
package forge

import (
	"context"
	"time"

	"github.com/clarketm/prbot/internal/domain"
)

// ReviewState is the upstream review state on a pull request.
type ReviewState string

const (
	ReviewApproved         ReviewState = "approved"
	ReviewChangesRequested ReviewState = "changes_requested"
	ReviewCommented        ReviewState = "commented"
	ReviewPending          ReviewState = "pending"
	ReviewDismissed        ReviewState = "dismissed"
)

// ReactionKind is a comment reaction emoji (§6.2).
type ReactionKind string

const (
	ReactionThumbsUp   ReactionKind = "+1"
	ReactionThumbsDown ReactionKind = "-1"
	ReactionEyes       ReactionKind = "eyes"
	ReactionConfused   ReactionKind = "confused"
	ReactionHeart      ReactionKind = "heart"
	ReactionHooray     ReactionKind = "hooray"
	ReactionLaugh      ReactionKind = "laugh"
	ReactionRocket     ReactionKind = "rocket"
)

// CommitStatusState is the state of the combined-status line (§6.2, §6.3).
type CommitStatusState string

const (
	StatusSuccess CommitStatusState = "success"
	StatusFailure CommitStatusState = "failure"
	StatusPending CommitStatusState = "pending"
	StatusError   CommitStatusState = "error"
)

// PullRequestBranch is one end of a pull request (base or head).
type PullRequestBranch struct {
	Reference string
	Sha       string
}

// UpstreamPullRequest is the forge's live view of a pull request (§6.2).
type UpstreamPullRequest struct {
	Number    int
	Title     string
	Draft     bool
	Mergeable *bool
	Merged    *bool
	Head      PullRequestBranch
	Base      PullRequestBranch
}

// Review is a single upstream pull-request review.
type Review struct {
	Username string
	State    ReviewState
}

// CheckRun is a single upstream check run (§4.6 step 2).
type CheckRun struct {
	Name       string
	Status     string
	Conclusion string
	StartedAt  time.Time
	AppSlug    string
}

// Label is an issue/pull-request label.
type Label struct {
	Name string
}

// GifResult is a single entry returned by the GIF provider (§6.2).
type GifResult struct {
	URL  string
	Mime string
	Dims [2]int
}

// MergeDetails is the payload of a merge attempt (§4.7).
type MergeDetails struct {
	CommitTitle string
	CommitBody  string
	Strategy    domain.MergeStrategy
}

// Client is the typed forge operation surface the core depends on
// (§6.2). Every method may return an *Error; callers treat 4xx as
// terminal and transport failures as retryable, but retrying is the
// concrete client's job, not the core's (design note §9).
type Client interface {
	PullsGet(ctx context.Context, owner, name string, number int) (*UpstreamPullRequest, error)
	PullsMerge(ctx context.Context, owner, name string, number int, details MergeDetails) error

	PullReviewsList(ctx context.Context, owner, name string, number int) ([]Review, error)
	PullReviewerRequestsAdd(ctx context.Context, owner, name string, number int, usernames []string) error
	PullReviewerRequestsRemove(ctx context.Context, owner, name string, number int, usernames []string) error

	CheckRunsList(ctx context.Context, owner, name, sha string) ([]CheckRun, error)

	IssueLabelsList(ctx context.Context, owner, name string, number int) ([]Label, error)
	IssueLabelsAdd(ctx context.Context, owner, name string, number int, labels []string) error
	IssueLabelsReplaceAll(ctx context.Context, owner, name string, number int, labels []string) error

	CommentsPost(ctx context.Context, owner, name string, number int, body string) (int64, error)
	CommentsUpdate(ctx context.Context, owner, name string, commentID int64, body string) error
	CommentsDelete(ctx context.Context, owner, name string, commentID int64) error

	CommentReactionsAdd(ctx context.Context, owner, name string, commentID int64, kind ReactionKind) error

	CommitStatusesUpdate(ctx context.Context, owner, name, sha string, state CommitStatusState, title, description string) error

	UserPermissionsGet(ctx context.Context, owner, name, username string) (domain.ForgePermission, error)

	GifSearch(ctx context.Context, apiKey, terms string) ([]GifResult, error)

	InstallationsCreateToken(ctx context.Context, jwt string, installationID int64) (string, error)
}

// Error is the *ForgeError of §7: transport, status, or rate-limit.
type Error struct {
	Kind       string // "transport" | "status" | "rate-limit"
	StatusCode int
	Message    string
}

func (e *Error) Error() string { return e.Message }

// Terminal reports whether the error should not be retried (a 4xx status).
func (e *Error) Terminal() bool {
	return e.Kind == "status" && e.StatusCode >= 400 && e.StatusCode < 500
}

// Package fake is an in-memory forge.Client for tests, the same role
// k8s.io/test-infra/prow/github.NewFakeClient plays for prow's plugins.
package fake

import (
	"context"
	"strconv"
	"sync"

	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/forge"
)

// Client is a scriptable, in-memory forge.Client.
type Client struct {
	mu sync.Mutex

	PullRequests map[string]*forge.UpstreamPullRequest // "owner/name#number"
	Reviews      map[string][]forge.Review
	CheckRuns    map[string][]forge.CheckRun // keyed by sha
	Labels       map[string][]forge.Label
	Permissions  map[string]domain.ForgePermission // "owner/name:username"
	Gifs         map[string][]forge.GifResult

	Comments       map[int64]string
	nextCommentID  int64
	CommitStatuses map[string]forge.CommitStatusState // "owner/name@sha"

	MergeErr error
	Merged   []forge.MergeDetails

	ReviewerRequests map[string][]string // "owner/name#number" -> usernames
	Reactions        map[int64][]forge.ReactionKind
}

// New returns an empty fake client.
func New() *Client {
	return &Client{
		PullRequests:     make(map[string]*forge.UpstreamPullRequest),
		Reviews:          make(map[string][]forge.Review),
		CheckRuns:        make(map[string][]forge.CheckRun),
		Labels:           make(map[string][]forge.Label),
		Permissions:      make(map[string]domain.ForgePermission),
		Gifs:             make(map[string][]forge.GifResult),
		Comments:         make(map[int64]string),
		CommitStatuses:   make(map[string]forge.CommitStatusState),
		ReviewerRequests: make(map[string][]string),
		Reactions:        make(map[int64][]forge.ReactionKind),
	}
}

var _ forge.Client = (*Client)(nil)

func prKey(owner, name string, number int) string {
	return owner + "/" + name + "#" + strconv.Itoa(number)
}

func (c *Client) PullsGet(ctx context.Context, owner, name string, number int) (*forge.UpstreamPullRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pr, ok := c.PullRequests[prKey(owner, name, number)]
	if !ok {
		return nil, &forge.Error{Kind: "status", StatusCode: 404, Message: "pull request not found"}
	}
	cp := *pr
	return &cp, nil
}

func (c *Client) PullsMerge(ctx context.Context, owner, name string, number int, details forge.MergeDetails) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.MergeErr != nil {
		return c.MergeErr
	}
	c.Merged = append(c.Merged, details)
	if pr, ok := c.PullRequests[prKey(owner, name, number)]; ok {
		merged := true
		pr.Merged = &merged
	}
	return nil
}

func (c *Client) PullReviewsList(ctx context.Context, owner, name string, number int) ([]forge.Review, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]forge.Review(nil), c.Reviews[prKey(owner, name, number)]...), nil
}

func (c *Client) PullReviewerRequestsAdd(ctx context.Context, owner, name string, number int, usernames []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := prKey(owner, name, number)
	c.ReviewerRequests[key] = append(c.ReviewerRequests[key], usernames...)
	return nil
}

func (c *Client) PullReviewerRequestsRemove(ctx context.Context, owner, name string, number int, usernames []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := prKey(owner, name, number)
	remove := make(map[string]bool, len(usernames))
	for _, u := range usernames {
		remove[u] = true
	}
	var kept []string
	for _, u := range c.ReviewerRequests[key] {
		if !remove[u] {
			kept = append(kept, u)
		}
	}
	c.ReviewerRequests[key] = kept
	return nil
}

func (c *Client) CheckRunsList(ctx context.Context, owner, name, sha string) ([]forge.CheckRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]forge.CheckRun(nil), c.CheckRuns[sha]...), nil
}

func (c *Client) IssueLabelsList(ctx context.Context, owner, name string, number int) ([]forge.Label, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]forge.Label(nil), c.Labels[prKey(owner, name, number)]...), nil
}

func (c *Client) IssueLabelsAdd(ctx context.Context, owner, name string, number int, labels []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := prKey(owner, name, number)
	for _, l := range labels {
		c.Labels[key] = append(c.Labels[key], forge.Label{Name: l})
	}
	return nil
}

func (c *Client) IssueLabelsReplaceAll(ctx context.Context, owner, name string, number int, labels []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := prKey(owner, name, number)
	out := make([]forge.Label, len(labels))
	for i, l := range labels {
		out[i] = forge.Label{Name: l}
	}
	c.Labels[key] = out
	return nil
}

func (c *Client) CommentsPost(ctx context.Context, owner, name string, number int, body string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextCommentID++
	c.Comments[c.nextCommentID] = body
	return c.nextCommentID, nil
}

func (c *Client) CommentsUpdate(ctx context.Context, owner, name string, commentID int64, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.Comments[commentID]; !ok {
		return &forge.Error{Kind: "status", StatusCode: 404, Message: "comment not found"}
	}
	c.Comments[commentID] = body
	return nil
}

func (c *Client) CommentsDelete(ctx context.Context, owner, name string, commentID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.Comments, commentID)
	return nil
}

func (c *Client) CommentReactionsAdd(ctx context.Context, owner, name string, commentID int64, kind forge.ReactionKind) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Reactions[commentID] = append(c.Reactions[commentID], kind)
	return nil
}

func (c *Client) CommitStatusesUpdate(ctx context.Context, owner, name, sha string, state forge.CommitStatusState, title, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CommitStatuses[owner+"/"+name+"@"+sha] = state
	return nil
}

func (c *Client) UserPermissionsGet(ctx context.Context, owner, name, username string) (domain.ForgePermission, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.Permissions[owner+"/"+name+":"+username]
	if !ok {
		return domain.PermissionNone, nil
	}
	return p, nil
}

func (c *Client) GifSearch(ctx context.Context, apiKey, terms string) ([]forge.GifResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]forge.GifResult(nil), c.Gifs[terms]...), nil
}

func (c *Client) InstallationsCreateToken(ctx context.Context, jwt string, installationID int64) (string, error) {
	return "fake-installation-token", nil
}

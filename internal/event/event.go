// Package event implements the L9 event dispatcher of §4.9: one entry
// point per webhook event kind, routing to the status engine and/or
// the command executor. Grounded on hook.Server's event-to-plugin
// dispatch, generalized from a plugin-name lookup table to the bot's
// fixed status/executor pipeline.
package event

import (
	"context"
	"fmt"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/clarketm/prbot/internal/command"
	"github.com/clarketm/prbot/internal/command/executor"
	"github.com/clarketm/prbot/internal/command/parser"
	"github.com/clarketm/prbot/internal/config"
	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/errs"
	"github.com/clarketm/prbot/internal/forge"
	"github.com/clarketm/prbot/internal/metrics"
	"github.com/clarketm/prbot/internal/status"
	"github.com/clarketm/prbot/internal/store"
)

// Dispatcher is the L9 component: it owns no HTTP surface (the
// concrete webhook receiver and signature verification are an
// out-of-scope adapter, §1) and only consumes already-decoded events.
type Dispatcher struct {
	Store    store.Store
	Forge    forge.Client
	Status   *status.Engine
	Executor *executor.Executor
	Config   config.Config
	Metrics  *metrics.Metrics
	Logger   *logrus.Entry
}

// PullRequestEvent is the decoded payload of a `pull_request.*` webhook.
type PullRequestEvent struct {
	Action   string
	Handle   domain.PullRequestHandle
	Author   string
	Body     string
	Upstream *forge.UpstreamPullRequest
}

// IssueCommentEvent is the decoded payload of an `issue_comment.*` webhook.
type IssueCommentEvent struct {
	Action     string
	Handle     domain.PullRequestHandle
	CommentID  int64
	Username   string
	Permission domain.ForgePermission
	IsBotAdmin bool
	Body       string
}

// CheckSuiteEvent is the decoded payload of a `check_suite.completed` webhook.
type CheckSuiteEvent struct {
	PullRequests []domain.PullRequestHandle
}

// PullRequestReviewEvent is the decoded payload of a
// `pull_request_review.submitted` webhook.
type PullRequestReviewEvent struct {
	PullRequest domain.PullRequestHandle
}

// containsAdminEnable reports whether body has a line invoking
// admin-enable addressed to botName (§4.9).
func containsAdminEnable(botName, body string) bool {
	re := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(botName) + `\s+admin-enable\s*$`)
	return re.MatchString(body)
}

// HandlePullRequest routes a `pull_request.*` event (§4.9).
func (d *Dispatcher) HandlePullRequest(ctx context.Context, ev PullRequestEvent) error {
	d.countEvent("pull_request." + ev.Action)

	switch ev.Action {
	case "opened":
		return d.handleOpened(ctx, ev)
	case "synchronize", "reopened", "ready_for_review", "converted_to_draft",
		"closed", "review_requested", "review_request_removed", "edited":
		return d.runIfTracked(ctx, ev.Handle, ev.Upstream)
	default:
		return nil
	}
}

func (d *Dispatcher) handleOpened(ctx context.Context, ev PullRequestEvent) error {
	defaults := d.Config.RepositoryDefaults(ev.Handle.Owner, ev.Handle.Name)

	// manual_interaction is an operator-set flag, not one of the
	// repository defaults (§3); preserve it across the upsert instead
	// of letting every pull_request.opened silently reset it to false.
	if existingRepo, err := d.Store.RepositoryGet(ctx, ev.Handle.Owner, ev.Handle.Name); err != nil {
		return errs.Wrap(errs.KindStoreError, err, "lookup repository before upsert on pull_request.opened")
	} else if existingRepo != nil {
		defaults.ManualInteraction = existingRepo.ManualInteraction
	}

	repo, err := d.Store.RepositoryCreate(ctx, &defaults)
	if err != nil {
		return errs.Wrap(errs.KindStoreError, err, "upsert repository on pull_request.opened")
	}

	existing, err := d.Store.PullRequestGet(ctx, repo.ID, ev.Handle.Number)
	if err != nil {
		return errs.Wrap(errs.KindStoreError, err, "lookup pull request on pull_request.opened")
	}

	if existing == nil {
		if repo.ManualInteraction && !containsAdminEnable(d.Config.BotName, ev.Body) {
			return nil
		}
		created, err := d.Store.PullRequestCreate(ctx, &domain.PullRequest{
			RepositoryID:         repo.ID,
			Number:               ev.Handle.Number,
			QaStatus:             qaSeed(repo.DefaultEnableQa),
			NeededReviewersCount: repo.DefaultNeededReviewersCount,
			ChecksEnabled:        repo.DefaultEnableChecks,
			Automerge:            repo.DefaultAutomerge,
		})
		if err != nil {
			return errs.Wrap(errs.KindStoreError, err, "create pull request on pull_request.opened")
		}
		existing = created

		if err := d.Status.RunWithUpstream(ctx, ev.Handle, ev.Upstream); err != nil {
			return err
		}

		if d.Config.Server.EnableWelcomeComments {
			body := fmt.Sprintf(":tada: Welcome, _%s_ ! :tada:\nThanks for your pull request, it will be reviewed soon. :clock2:", ev.Author)
			if _, err := d.Forge.CommentsPost(ctx, ev.Handle.Owner, ev.Handle.Name, ev.Handle.Number, body); err != nil {
				d.Logger.WithError(err).Warn("failed to post welcome comment")
			}
		}
	}

	return d.feedCommands(ctx, ev.Handle, repo.ID, ev.Body, ev.Author, 0)
}

func qaSeed(enableQa bool) domain.QaStatus {
	if enableQa {
		return domain.QaWaiting
	}
	return domain.QaSkipped
}

func (d *Dispatcher) runIfTracked(ctx context.Context, handle domain.PullRequestHandle, upstream *forge.UpstreamPullRequest) error {
	repo, err := d.Store.RepositoryGet(ctx, handle.Owner, handle.Name)
	if err != nil || repo == nil {
		return err
	}
	pr, err := d.Store.PullRequestGet(ctx, repo.ID, handle.Number)
	if err != nil || pr == nil {
		return err
	}
	if upstream != nil {
		return d.Status.RunWithUpstream(ctx, handle, upstream)
	}
	return d.Status.Run(ctx, handle)
}

// HandleIssueComment routes an `issue_comment.*` event (§4.9).
func (d *Dispatcher) HandleIssueComment(ctx context.Context, ev IssueCommentEvent) error {
	d.countEvent("issue_comment." + ev.Action)

	if ev.Action != "created" {
		return nil
	}

	repo, err := d.Store.RepositoryGet(ctx, ev.Handle.Owner, ev.Handle.Name)
	if err != nil {
		return errs.Wrap(errs.KindStoreError, err, "lookup repository on issue_comment.created")
	}

	if repo != nil {
		pr, err := d.Store.PullRequestGet(ctx, repo.ID, ev.Handle.Number)
		if err != nil {
			return errs.Wrap(errs.KindStoreError, err, "lookup pull request on issue_comment.created")
		}
		if pr != nil {
			return d.feedCommands(ctx, ev.Handle, repo.ID, ev.Body, ev.Username, ev.CommentID)
		}
	}

	if containsAdminEnable(d.Config.BotName, ev.Body) {
		upstream, err := d.Forge.PullsGet(ctx, ev.Handle.Owner, ev.Handle.Name, ev.Handle.Number)
		if err != nil {
			return err
		}
		if err := d.HandlePullRequest(ctx, PullRequestEvent{
			Action: "opened", Handle: ev.Handle, Author: ev.Username, Body: ev.Body, Upstream: upstream,
		}); err != nil {
			return err
		}
		return d.Status.RunWithUpstream(ctx, ev.Handle, upstream)
	}

	d.Logger.WithField("handle", ev.Handle).Debug("dropping comment: no tracked pull request and no admin-enable")
	return nil
}

// HandleCheckSuite routes a `check_suite.completed` event (§4.9).
func (d *Dispatcher) HandleCheckSuite(ctx context.Context, ev CheckSuiteEvent) error {
	d.countEvent("check_suite.completed")
	for _, h := range ev.PullRequests {
		if err := d.runIfTrackedByHandle(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

// HandlePullRequestReview routes a `pull_request_review.submitted` event (§4.9).
func (d *Dispatcher) HandlePullRequestReview(ctx context.Context, ev PullRequestReviewEvent) error {
	d.countEvent("pull_request_review.submitted")
	return d.runIfTrackedByHandle(ctx, ev.PullRequest)
}

func (d *Dispatcher) runIfTrackedByHandle(ctx context.Context, handle domain.PullRequestHandle) error {
	repo, err := d.Store.RepositoryGet(ctx, handle.Owner, handle.Name)
	if err != nil || repo == nil {
		return err
	}
	pr, err := d.Store.PullRequestGet(ctx, repo.ID, handle.Number)
	if err != nil || pr == nil {
		return err
	}
	return d.Status.Run(ctx, handle)
}

// feedCommands parses body and runs the resulting batch through the executor.
func (d *Dispatcher) feedCommands(ctx context.Context, handle domain.PullRequestHandle, repositoryID int64, body, username string, commentID int64) error {
	results := parser.Parse(d.Config.BotName, body)
	if len(results) == 0 {
		return nil
	}

	repo, err := d.Store.RepositoryGetFromIDExpect(ctx, repositoryID)
	if err != nil {
		return err
	}
	pr, err := d.Store.PullRequestGet(ctx, repositoryID, handle.Number)
	if err != nil {
		return err
	}

	perm, err := d.Forge.UserPermissionsGet(ctx, handle.Owner, handle.Name, username)
	if err != nil {
		return err
	}
	account, err := d.Store.AccountGet(ctx, username)
	if err != nil {
		return err
	}
	isBotAdmin := account != nil && account.IsAdmin

	reqs := make([]executor.Request, 0, len(results))
	for _, r := range results {
		req := executor.Request{
			Handle:     handle,
			CommentID:  commentID,
			Username:   username,
			Permission: perm,
			IsBotAdmin: isBotAdmin,
			ParseErr:   r.Err,
		}
		if r.Err == nil {
			req.Result = r.Command
		}
		reqs = append(reqs, req)
		if r.Err == nil {
			d.countCommand(r.Command.Verb)
		}
	}

	return d.Executor.Run(ctx, d.Config.BotName, repo, pr, reqs)
}

func (d *Dispatcher) countEvent(kind string) {
	if d.Metrics != nil {
		d.Metrics.EventsTotal.WithLabelValues(kind).Inc()
	}
}

func (d *Dispatcher) countCommand(v command.Verb) {
	if d.Metrics != nil {
		d.Metrics.CommandsTotal.WithLabelValues(string(v), "dispatched").Inc()
	}
}

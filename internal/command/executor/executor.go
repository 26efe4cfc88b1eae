// Package executor implements the command executor of §4.4: it
// authorizes each parsed command (§4.2), dispatches to the matching
// internal/command/handlers.Handler, folds the batch's results, then
// applies the folded side effects against the forge. Grounded on the
// toggle-then-publish shape of prow/plugins/hold.go, generalized from
// a single plugin to a batch executor.
package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/clarketm/prbot/internal/command"
	"github.com/clarketm/prbot/internal/command/handlers"
	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/errs"
	"github.com/clarketm/prbot/internal/forge"
	"github.com/clarketm/prbot/internal/store"
)

// StatusRunner re-runs the status engine (§4.6) for a pull request. The
// executor takes it as a plain function so it does not import
// internal/status; the caller that builds the Executor (the server, or
// a test) wires in the status engine's Run method.
type StatusRunner func(ctx context.Context, handle domain.PullRequestHandle) error

// Executor wires the collaborators every handler needs plus the
// status-engine callback invoked when a fold asks for a recompute.
type Executor struct {
	Store   store.Store
	Forge   forge.Client
	Handler handlers.Deps
	Status  StatusRunner
	Logger  *logrus.Entry
}

// Request is one parsed comment line plus the context needed to
// authorize and execute it.
type Request struct {
	Handle      domain.PullRequestHandle
	CommentID   int64
	Username    string
	Permission  domain.ForgePermission
	IsBotAdmin  bool
	Result      command.Command // already-parsed command
	ParseErr    error           // set instead of Result when parsing failed
}

// Run authorizes and dispatches every request, folds the results per
// §4.4, and applies the folded side effects. repo/pr may be nil only
// for admin-enable on a not-yet-tracked pull request.
func (e *Executor) Run(ctx context.Context, botName string, repo *domain.Repository, pr *domain.PullRequest, reqs []Request) error {
	fold := command.ExecutionResult{HandlingStatus: command.Ignored}

	for _, r := range reqs {
		res := e.runOne(ctx, repo, pr, r)
		fold = merge(fold, res, botName, r)
	}

	return e.apply(ctx, reqs, repo, pr, fold)
}

func (e *Executor) runOne(ctx context.Context, repo *domain.Repository, pr *domain.PullRequest, r Request) command.ExecutionResult {
	if r.ParseErr != nil {
		return command.ExecutionResult{
			HandlingStatus: command.Denied,
			ResultActions: []command.Action{
				command.AddReaction(command.ReactionThumbsDown),
				command.PostComment(r.ParseErr.Error()),
			},
		}
	}

	if !authorized(r.Result.Verb, r.Permission, r.IsBotAdmin) {
		return command.DeniedResult()
	}

	h, ok := handlers.Dispatch(r.Result.Verb)
	if !ok {
		return command.ExecutionResult{HandlingStatus: command.Ignored}
	}

	res, err := h(ctx, e.Handler, handlers.Input{
		Handle:      r.Handle,
		Repository:  repo,
		PullRequest: pr,
		Username:    r.Username,
		Command:     r.Result,
	})
	if err != nil {
		e.Logger.WithError(err).WithField("verb", r.Result.Verb).Error("command handler failed")
		return command.ExecutionResult{
			HandlingStatus: command.Denied,
			ResultActions:  []command.Action{command.PostComment("Internal error handling this command.")},
		}
	}
	return res
}

// authorized implements §4.2.
func authorized(v command.Verb, perm domain.ForgePermission, isBotAdmin bool) bool {
	if command.IsAlwaysAllowed(v) {
		return true
	}
	if command.IsAdminVerb(v) {
		return isBotAdmin
	}
	return perm.CanWrite() || isBotAdmin
}

// merge folds one more result into the running fold, prefixing its
// PostComment bodies per §4.4 before the caller later coalesces them.
func merge(fold command.ExecutionResult, res command.ExecutionResult, botName string, r Request) command.ExecutionResult {
	fold.HandlingStatus = command.FoldHandlingStatus(fold.HandlingStatus, res.HandlingStatus)
	fold.ShouldUpdateStatus = fold.ShouldUpdateStatus || res.ShouldUpdateStatus

	prefix := recapPrefix(botName, r)
	for _, a := range res.ResultActions {
		if a.Kind == command.ActionPostComment && res.HandlingStatus != command.Denied {
			a.Body = prefix + a.Body
		}
		fold.ResultActions = append(fold.ResultActions, a)
	}
	return fold
}

func recapPrefix(botName string, r Request) string {
	verb := "?"
	args := ""
	if r.ParseErr == nil {
		verb = string(r.Result.Verb)
		args = strings.Join(r.Result.Args, " ")
	}
	if args != "" {
		return fmt.Sprintf("> %s %s %s\n\n", botName, verb, args)
	}
	return fmt.Sprintf("> %s %s\n\n", botName, verb)
}

// apply performs the §4.4 "side-effect application" step: status
// recompute, then deduplicated reactions and a single coalesced
// comment, against the forge.
func (e *Executor) apply(ctx context.Context, reqs []Request, repo *domain.Repository, pr *domain.PullRequest, fold command.ExecutionResult) error {
	if fold.ShouldUpdateStatus && e.Status != nil && len(reqs) > 0 {
		if err := e.Status(ctx, reqs[0].Handle); err != nil {
			return errs.Wrap(errs.KindStoreError, err, "status recompute after command batch")
		}
	}

	if len(reqs) == 0 {
		return nil
	}
	handle := reqs[0].Handle
	commentID := reqs[0].CommentID

	seen := map[command.ReactionKind]bool{}
	var bodies []string
	for _, a := range fold.ResultActions {
		switch a.Kind {
		case command.ActionAddReaction:
			if seen[a.Reaction] {
				continue
			}
			seen[a.Reaction] = true
			if err := e.Forge.CommentReactionsAdd(ctx, handle.Owner, handle.Name, commentID, mapReaction(a.Reaction)); err != nil {
				return err
			}
		case command.ActionPostComment:
			bodies = append(bodies, a.Body)
		}
	}

	if len(bodies) > 0 {
		coalesced := strings.Join(bodies, "\n\n---\n\n")
		if _, err := e.Forge.CommentsPost(ctx, handle.Owner, handle.Name, handle.Number, coalesced); err != nil {
			return err
		}
	}
	return nil
}

func mapReaction(k command.ReactionKind) forge.ReactionKind {
	switch k {
	case command.ReactionThumbsUp:
		return forge.ReactionThumbsUp
	case command.ReactionThumbsDown:
		return forge.ReactionThumbsDown
	case command.ReactionEyes:
		return forge.ReactionEyes
	default:
		return forge.ReactionEyes
	}
}

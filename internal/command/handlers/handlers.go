// Package handlers implements the one-handler-per-verb contracts of
// §4.3. Every handler returns a command.ExecutionResult and performs at
// most one logical store mutation. Handlers never post comments or
// reactions themselves; the executor applies their ResultActions. The
// reviewer, label and merge handlers do call the forge directly for
// their own operation.
package handlers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/clarketm/prbot/internal/command"
	"github.com/clarketm/prbot/internal/config"
	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/forge"
	"github.com/clarketm/prbot/internal/gif"
	"github.com/clarketm/prbot/internal/store"
)

// Deps are the collaborators every handler may need.
type Deps struct {
	Store  store.Store
	Forge  forge.Client
	Gif    gif.Provider
	Config config.Config
	Logger *logrus.Entry
}

// Input is the per-invocation context: the pull request the command
// targets and who issued it.
type Input struct {
	Handle      domain.PullRequestHandle
	Repository  *domain.Repository
	PullRequest *domain.PullRequest
	Username    string
	Command     command.Command
}

// Handler is the signature every verb implementation satisfies.
type Handler func(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error)

// Dispatch resolves a verb to its Handler. A verb absent from the
// table (shouldn't happen once the parser has validated it) is
// treated as ignored by the caller.
func Dispatch(v command.Verb) (Handler, bool) {
	h, ok := table[v]
	return h, ok
}

var table = map[command.Verb]Handler{
	command.VerbNoqaPlus:    handleNoqaPlus,
	command.VerbNoqaMinus:   handleNoqaMinus,
	command.VerbQaPlus:      handleQaPlus,
	command.VerbQaMinus:     handleQaMinus,
	command.VerbQaReset:     handleQaReset,
	command.VerbNochecksOn:  handleNochecksOn,
	command.VerbNochecksOff: handleNochecksOff,
	command.VerbAutomergeOn:  handleAutomergeOn,
	command.VerbAutomergeOff: handleAutomergeOff,
	command.VerbLockOn:  handleLockOn,
	command.VerbLockOff: handleLockOff,
	command.VerbReviewersAdd:    handleReviewersAdd,
	command.VerbReviewersRemove: handleReviewersRemove,
	command.VerbRequiredAdd:     handleRequiredAdd,
	command.VerbRequiredRemove:  handleRequiredRemove,
	command.VerbStrategySet:   handleStrategySet,
	command.VerbStrategyClear: handleStrategyClear,
	command.VerbLabelsAdd:    handleLabelsAdd,
	command.VerbLabelsRemove: handleLabelsRemove,
	command.VerbMerge: handleMerge,
	command.VerbGif:   handleGif,
	command.VerbPing:  handlePing,
	command.VerbIsAdmin: handleIsAdmin,
	command.VerbHelp:    handleHelp,

	command.VerbAdminHelp:         handleAdminHelp,
	command.VerbAdminSync:         handleAdminSync,
	command.VerbAdminEnable:       handleAdminEnable,
	command.VerbAdminDisable:      handleAdminDisable,
	command.VerbAdminResetSummary: handleAdminResetSummary,
	command.VerbAdminAddMergeRule: handleAdminAddMergeRule,
	command.VerbAdminSetDefaultNeededReviewers: handleAdminSetDefaultNeededReviewers,
	command.VerbAdminSetDefaultMergeStrategy:   handleAdminSetDefaultMergeStrategy,
	command.VerbAdminSetDefaultPRTitleRegex:    handleAdminSetDefaultPRTitleRegex,
	command.VerbAdminSetDefaultQaStatusOn:      handleAdminSetDefaultQaStatusOn,
	command.VerbAdminSetDefaultQaStatusOff:     handleAdminSetDefaultQaStatusOff,
	command.VerbAdminSetDefaultChecksStatusOn:  handleAdminSetDefaultChecksStatusOn,
	command.VerbAdminSetDefaultChecksStatusOff: handleAdminSetDefaultChecksStatusOff,
	command.VerbAdminSetDefaultAutomergeOn:     handleAdminSetDefaultAutomergeOn,
	command.VerbAdminSetDefaultAutomergeOff:    handleAdminSetDefaultAutomergeOff,
	command.VerbAdminSetNeededReviewers:        handleAdminSetNeededReviewers,
}

func ack(verb command.Verb, detail string) command.ExecutionResult {
	return command.HandledComment(fmt.Sprintf("%s: %s", verb, detail), true)
}

// --- state toggles (§4.3) ------------------------------------------------

func handleNoqaPlus(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetQaStatus(ctx, in.PullRequest.ID, domain.QaSkipped); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbNoqaPlus, "QA skipped."), nil
}

func handleNoqaMinus(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetQaStatus(ctx, in.PullRequest.ID, domain.QaWaiting); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbNoqaMinus, "QA re-enabled."), nil
}

func handleQaPlus(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetQaStatus(ctx, in.PullRequest.ID, domain.QaPass); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbQaPlus, "QA marked as passing."), nil
}

func handleQaMinus(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetQaStatus(ctx, in.PullRequest.ID, domain.QaFail); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbQaMinus, "QA marked as failing."), nil
}

func handleQaReset(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetQaStatus(ctx, in.PullRequest.ID, domain.QaWaiting); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbQaReset, "QA status reset."), nil
}

func handleNochecksOn(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetChecksEnabled(ctx, in.PullRequest.ID, false); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbNochecksOn, "checks disabled."), nil
}

func handleNochecksOff(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetChecksEnabled(ctx, in.PullRequest.ID, true); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbNochecksOff, "checks re-enabled."), nil
}

func handleAutomergeOn(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetAutomerge(ctx, in.PullRequest.ID, true); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbAutomergeOn, "automerge enabled."), nil
}

func handleAutomergeOff(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetAutomerge(ctx, in.PullRequest.ID, false); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbAutomergeOff, "automerge disabled."), nil
}

func handleLockOn(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetLocked(ctx, in.PullRequest.ID, true); err != nil {
		return command.ExecutionResult{}, err
	}
	detail := "pull request locked."
	if in.Command.Reason != "" {
		detail = fmt.Sprintf("pull request locked: %s", in.Command.Reason)
	}
	return ack(command.VerbLockOn, detail), nil
}

func handleLockOff(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetLocked(ctx, in.PullRequest.ID, false); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbLockOff, "pull request unlocked."), nil
}

func handleStrategySet(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetStrategyOverride(ctx, in.PullRequest.ID, in.Command.Strategy); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbStrategySet, fmt.Sprintf("merge strategy pinned to %s.", in.Command.Strategy)), nil
}

func handleStrategyClear(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetStrategyOverride(ctx, in.PullRequest.ID, ""); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbStrategyClear, "merge strategy override cleared."), nil
}

// --- reviewer assignment (§4.3) ------------------------------------------

func handleRequiredAdd(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	for _, u := range in.Command.Usernames {
		if err := d.Store.RequiredReviewerAdd(ctx, &domain.RequiredReviewer{
			PullRequestID: in.PullRequest.ID, Username: u,
		}); err != nil {
			return command.ExecutionResult{}, err
		}
	}
	if err := d.Forge.PullReviewerRequestsAdd(ctx, in.Handle.Owner, in.Handle.Name, in.Handle.Number, in.Command.Usernames); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbRequiredAdd, fmt.Sprintf("required reviewers added: %v.", in.Command.Usernames)), nil
}

func handleRequiredRemove(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	for _, u := range in.Command.Usernames {
		if err := d.Store.RequiredReviewerRemove(ctx, in.PullRequest.ID, u); err != nil {
			return command.ExecutionResult{}, err
		}
	}
	if err := d.Forge.PullReviewerRequestsRemove(ctx, in.Handle.Owner, in.Handle.Name, in.Handle.Number, in.Command.Usernames); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbRequiredRemove, fmt.Sprintf("required reviewers removed: %v.", in.Command.Usernames)), nil
}

// handleReviewersAdd implements r+: forge-only, no store row (design
// note §9(b) settles the legacy disagreement in favor of this).
func handleReviewersAdd(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Forge.PullReviewerRequestsAdd(ctx, in.Handle.Owner, in.Handle.Name, in.Handle.Number, in.Command.Usernames); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbReviewersAdd, fmt.Sprintf("reviewers added: %v.", in.Command.Usernames)), nil
}

func handleReviewersRemove(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Forge.PullReviewerRequestsRemove(ctx, in.Handle.Owner, in.Handle.Name, in.Handle.Number, in.Command.Usernames); err != nil {
		return command.ExecutionResult{}, err
	}
	return ack(command.VerbReviewersRemove, fmt.Sprintf("reviewers removed: %v.", in.Command.Usernames)), nil
}

// --- labels (§4.3: forge-only, does not trigger a status recompute) ------

func handleLabelsAdd(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Forge.IssueLabelsAdd(ctx, in.Handle.Owner, in.Handle.Name, in.Handle.Number, in.Command.Args); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.ExecutionResult{
		HandlingStatus: command.Handled,
		ResultActions: []command.Action{
			command.AddReaction(command.ReactionEyes),
			command.PostComment(fmt.Sprintf("labels+: added %v.", in.Command.Args)),
		},
	}, nil
}

func handleLabelsRemove(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	existing, err := d.Forge.IssueLabelsList(ctx, in.Handle.Owner, in.Handle.Name, in.Handle.Number)
	if err != nil {
		return command.ExecutionResult{}, err
	}
	remove := make(map[string]bool, len(in.Command.Args))
	for _, l := range in.Command.Args {
		remove[l] = true
	}
	var keep []string
	for _, l := range existing {
		if !remove[l.Name] {
			keep = append(keep, l.Name)
		}
	}
	if err := d.Forge.IssueLabelsReplaceAll(ctx, in.Handle.Owner, in.Handle.Name, in.Handle.Number, keep); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.ExecutionResult{
		HandlingStatus: command.Handled,
		ResultActions: []command.Action{
			command.AddReaction(command.ReactionEyes),
			command.PostComment(fmt.Sprintf("labels-: removed %v.", in.Command.Args)),
		},
	}, nil
}

// --- merge, gif, informational (§4.3) ------------------------------------

func handleMerge(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	strategy := in.Command.Strategy
	if strategy == "" {
		strategy = in.PullRequest.StrategyOverride
	}
	if strategy == "" {
		strategy = in.Repository.DefaultStrategy
	}

	upstream, err := d.Forge.PullsGet(ctx, in.Handle.Owner, in.Handle.Name, in.Handle.Number)
	if err != nil {
		return command.ExecutionResult{}, err
	}

	mergeErr := d.Forge.PullsMerge(ctx, in.Handle.Owner, in.Handle.Name, in.Handle.Number, forge.MergeDetails{
		CommitTitle: fmt.Sprintf("%s (#%d)", upstream.Title, upstream.Number),
		CommitBody:  "",
		Strategy:    strategy,
	})
	if mergeErr != nil {
		return command.ExecutionResult{
			ShouldUpdateStatus: true,
			HandlingStatus:     command.Handled,
			ResultActions: []command.Action{
				command.AddReaction(command.ReactionEyes),
				command.PostComment(fmt.Sprintf("Could not merge this pull request: _%s_", mergeErr.Error())),
			},
		}, nil
	}

	return command.ExecutionResult{
		ShouldUpdateStatus: true,
		HandlingStatus:     command.Handled,
		ResultActions: []command.Action{
			command.AddReaction(command.ReactionEyes),
			command.PostComment(fmt.Sprintf("Pull request successfully merged! (strategy: '%s')", strategy)),
		},
	}, nil
}

func handleGif(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	results, err := d.Gif.Search(ctx, d.Config.GifProviderAPIKey, in.Command.Terms)
	if err != nil {
		return command.ExecutionResult{}, err
	}
	if len(results) == 0 {
		return command.ExecutionResult{
			HandlingStatus: command.Handled,
			ResultActions: []command.Action{
				command.AddReaction(command.ReactionEyes),
				command.PostComment("No gif found for: " + in.Command.Terms),
			},
		}, nil
	}
	return command.ExecutionResult{
		HandlingStatus: command.Handled,
		ResultActions: []command.Action{
			command.AddReaction(command.ReactionEyes),
			command.PostComment(results[0].URL),
		},
	}, nil
}

func handlePing(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	return command.HandledComment("pong", false), nil
}

func handleIsAdmin(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	account, err := d.Store.AccountGet(ctx, in.Username)
	if err != nil {
		return command.ExecutionResult{}, err
	}
	isAdmin := account != nil && account.IsAdmin
	return command.HandledComment(fmt.Sprintf("@%s is-admin: %t", in.Username, isAdmin), false), nil
}

func handleHelp(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	return command.HandledComment(helpText, false), nil
}

const helpText = `Available commands: noqa+/-, qa+/-/?, nochecks+/-, automerge+/-, lock+/-, r+/-, req+/-, strategy+/-, labels+/-, merge [strategy], gif, ping, is-admin, help.`

// --- admin verbs (§4.3) ---------------------------------------------------

func handleAdminHelp(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	return command.HandledComment(adminHelpText, false), nil
}

const adminHelpText = `Admin commands: admin-help, admin-sync, admin-enable, admin-disable, admin-reset-summary, admin-add-merge-rule, admin-set-default-needed-reviewers, admin-set-default-merge-strategy, admin-set-default-pr-title-regex, admin-set-default-qa-status+/-, admin-set-default-checks-status+/-, admin-set-default-automerge+/-, admin-set-needed-reviewers.`

func handleAdminSync(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	return command.HandledComment("resynchronizing pull request status.", true), nil
}

func handleAdminEnable(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if in.PullRequest == nil {
		pr := &domain.PullRequest{
			RepositoryID:         in.Repository.ID,
			Number:               in.Handle.Number,
			QaStatus:             qaStatusFromDefault(in.Repository.DefaultEnableQa),
			NeededReviewersCount: in.Repository.DefaultNeededReviewersCount,
			ChecksEnabled:        in.Repository.DefaultEnableChecks,
			Automerge:            in.Repository.DefaultAutomerge,
		}
		created, err := d.Store.PullRequestCreate(ctx, pr)
		if err != nil {
			return command.ExecutionResult{}, err
		}
		in.PullRequest = created
	}
	return command.HandledComment("bot enabled on this pull request.", true), nil
}

func qaStatusFromDefault(enableQa bool) domain.QaStatus {
	if enableQa {
		return domain.QaWaiting
	}
	return domain.QaSkipped
}

func handleAdminDisable(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if in.PullRequest == nil {
		return command.HandledComment("bot was not enabled on this pull request.", false), nil
	}
	if err := d.Store.PullRequestDelete(ctx, in.Repository.ID, in.Handle.Number); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment("bot disabled on this pull request.", false), nil
}

func handleAdminResetSummary(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetStatusCommentID(ctx, in.PullRequest.ID, 0); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment("summary comment will be recreated on the next status update.", true), nil
}

func handleAdminAddMergeRule(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	err := d.Store.MergeRuleUpsert(ctx, &domain.MergeRule{
		RepositoryID: in.Repository.ID,
		BaseBranch:   domain.RuleBranch(in.Command.BaseBranch),
		HeadBranch:   domain.RuleBranch(in.Command.HeadBranch),
		Strategy:     in.Command.Strategy,
	})
	if err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment(fmt.Sprintf(
		"merge rule added: %s -> %s uses %s.", in.Command.HeadBranch, in.Command.BaseBranch, in.Command.Strategy,
	), false), nil
}

func handleAdminSetDefaultNeededReviewers(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.RepositorySetDefaultNeededReviewersCount(ctx, in.Repository.ID, in.Command.N); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment(fmt.Sprintf("default needed reviewers set to %d.", in.Command.N), false), nil
}

func handleAdminSetDefaultMergeStrategy(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.RepositorySetDefaultStrategy(ctx, in.Repository.ID, in.Command.Strategy); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment(fmt.Sprintf("default merge strategy set to %s.", in.Command.Strategy), false), nil
}

func handleAdminSetDefaultPRTitleRegex(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.RepositorySetPRTitleValidationRegex(ctx, in.Repository.ID, in.Command.Regex); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment("default PR title regex updated.", false), nil
}

func handleAdminSetDefaultQaStatusOn(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.RepositorySetDefaultEnableQa(ctx, in.Repository.ID, true); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment("default QA gate enabled.", false), nil
}

func handleAdminSetDefaultQaStatusOff(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.RepositorySetDefaultEnableQa(ctx, in.Repository.ID, false); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment("default QA gate disabled.", false), nil
}

func handleAdminSetDefaultChecksStatusOn(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.RepositorySetDefaultEnableChecks(ctx, in.Repository.ID, true); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment("default checks gate enabled.", false), nil
}

func handleAdminSetDefaultChecksStatusOff(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.RepositorySetDefaultEnableChecks(ctx, in.Repository.ID, false); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment("default checks gate disabled.", false), nil
}

func handleAdminSetDefaultAutomergeOn(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.RepositorySetDefaultAutomerge(ctx, in.Repository.ID, true); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment("default automerge enabled.", false), nil
}

func handleAdminSetDefaultAutomergeOff(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.RepositorySetDefaultAutomerge(ctx, in.Repository.ID, false); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment("default automerge disabled.", false), nil
}

func handleAdminSetNeededReviewers(ctx context.Context, d Deps, in Input) (command.ExecutionResult, error) {
	if err := d.Store.SetNeededReviewersCount(ctx, in.PullRequest.ID, in.Command.N); err != nil {
		return command.ExecutionResult{}, err
	}
	return command.HandledComment(fmt.Sprintf("needed reviewers set to %d.", in.Command.N), true), nil
}

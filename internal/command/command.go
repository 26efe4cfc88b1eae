// Package command defines the verb grammar shared by the parser,
// handlers, and executor (§4.1).
package command

import "github.com/clarketm/prbot/internal/domain"

// Verb is one of the closed set of recognized command verbs (§4.1).
type Verb string

const (
	VerbNoqaPlus    Verb = "noqa+"
	VerbNoqaMinus   Verb = "noqa-"
	VerbQaPlus      Verb = "qa+"
	VerbQaMinus     Verb = "qa-"
	VerbQaReset     Verb = "qa?"
	VerbNochecksOn  Verb = "nochecks+"
	VerbNochecksOff Verb = "nochecks-"
	VerbAutomergeOn  Verb = "automerge+"
	VerbAutomergeOff Verb = "automerge-"
	VerbLockOn       Verb = "lock+"
	VerbLockOff      Verb = "lock-"
	VerbReviewersAdd    Verb = "r+"
	VerbReviewersRemove Verb = "r-"
	VerbRequiredAdd     Verb = "req+"
	VerbRequiredRemove  Verb = "req-"
	VerbStrategySet   Verb = "strategy+"
	VerbStrategyClear Verb = "strategy-"
	VerbLabelsAdd    Verb = "labels+"
	VerbLabelsRemove Verb = "labels-"
	VerbMerge Verb = "merge"
	VerbGif   Verb = "gif"
	VerbPing  Verb = "ping"
	VerbIsAdmin Verb = "is-admin"
	VerbHelp    Verb = "help"

	VerbAdminHelp                      Verb = "admin-help"
	VerbAdminSync                      Verb = "admin-sync"
	VerbAdminEnable                    Verb = "admin-enable"
	VerbAdminDisable                   Verb = "admin-disable"
	VerbAdminResetSummary              Verb = "admin-reset-summary"
	VerbAdminAddMergeRule              Verb = "admin-add-merge-rule"
	VerbAdminSetDefaultNeededReviewers Verb = "admin-set-default-needed-reviewers"
	VerbAdminSetDefaultMergeStrategy   Verb = "admin-set-default-merge-strategy"
	VerbAdminSetDefaultPRTitleRegex    Verb = "admin-set-default-pr-title-regex"
	VerbAdminSetDefaultQaStatusOn      Verb = "admin-set-default-qa-status+"
	VerbAdminSetDefaultQaStatusOff     Verb = "admin-set-default-qa-status-"
	VerbAdminSetDefaultChecksStatusOn  Verb = "admin-set-default-checks-status+"
	VerbAdminSetDefaultChecksStatusOff Verb = "admin-set-default-checks-status-"
	VerbAdminSetDefaultAutomergeOn     Verb = "admin-set-default-automerge+"
	VerbAdminSetDefaultAutomergeOff    Verb = "admin-set-default-automerge-"
	VerbAdminSetNeededReviewers        Verb = "admin-set-needed-reviewers"
)

// adminVerbs is the set of verbs requiring bot-admin privilege (§4.2).
var adminVerbs = map[Verb]bool{
	VerbAdminHelp: true, VerbAdminSync: true, VerbAdminEnable: true, VerbAdminDisable: true,
	VerbAdminResetSummary: true, VerbAdminAddMergeRule: true,
	VerbAdminSetDefaultNeededReviewers: true, VerbAdminSetDefaultMergeStrategy: true,
	VerbAdminSetDefaultPRTitleRegex: true, VerbAdminSetDefaultQaStatusOn: true,
	VerbAdminSetDefaultQaStatusOff: true, VerbAdminSetDefaultChecksStatusOn: true,
	VerbAdminSetDefaultChecksStatusOff: true, VerbAdminSetDefaultAutomergeOn: true,
	VerbAdminSetDefaultAutomergeOff: true, VerbAdminSetNeededReviewers: true,
}

// IsAdminVerb reports whether verb requires bot-admin privilege (§4.2).
func IsAdminVerb(v Verb) bool { return adminVerbs[v] }

// alwaysAllowed is the set of verbs every user, including unauthorized
// ones, may run (§4.2).
var alwaysAllowed = map[Verb]bool{
	VerbPing: true, VerbHelp: true, VerbGif: true,
}

// IsAlwaysAllowed reports whether verb bypasses the Write-permission check.
func IsAlwaysAllowed(v Verb) bool { return alwaysAllowed[v] }

// Command is a single parsed line of the comment body (§4.1).
type Command struct {
	Verb Verb
	Args []string

	// Usernames, Reason, Strategy, N, Regex, Terms are convenience
	// views over Args, populated by the parser for verbs that use them.
	Usernames []string
	Reason    string
	Strategy  domain.MergeStrategy
	N         int
	Regex     string
	Terms     string
	BaseBranch, HeadBranch string
}

// HandlingStatus is the per-command outcome folded by the executor (§4.4).
type HandlingStatus string

const (
	Handled HandlingStatus = "handled"
	Denied  HandlingStatus = "denied"
	Ignored HandlingStatus = "ignored"
)

// FoldHandlingStatus implements the §4.4 transition table: any Handled
// wins; otherwise any Denied wins; otherwise Ignored.
func FoldHandlingStatus(current, incoming HandlingStatus) HandlingStatus {
	if current == Handled || incoming == Handled {
		return Handled
	}
	if current == Denied || incoming == Denied {
		return Denied
	}
	return Ignored
}

// ActionKind distinguishes the two side-effect actions a handler may emit (§4.3).
type ActionKind string

const (
	ActionPostComment ActionKind = "post_comment"
	ActionAddReaction ActionKind = "add_reaction"
)

// Action is one entry of a CommandExecutionResult's ResultActions (§4.3).
// For ActionPostComment, Body is set; for ActionAddReaction, Reaction is set.
type Action struct {
	Kind     ActionKind
	Body     string
	Reaction ReactionKind
}

// ReactionKind mirrors forge.ReactionKind without importing the forge
// package from command, keeping the dependency direction handlers -> forge.
type ReactionKind string

const (
	ReactionThumbsUp   ReactionKind = "+1"
	ReactionThumbsDown ReactionKind = "-1"
	ReactionEyes       ReactionKind = "eyes"
)

func PostComment(body string) Action { return Action{Kind: ActionPostComment, Body: body} }
func AddReaction(kind ReactionKind) Action {
	return Action{Kind: ActionAddReaction, Reaction: kind}
}

// ExecutionResult is a single handler's outcome (§4.3). Handlers never
// publish; the executor applies ResultActions after folding a batch.
type ExecutionResult struct {
	ShouldUpdateStatus bool
	HandlingStatus     HandlingStatus
	ResultActions      []Action
}

// DeniedResult is the standard outcome for an unauthorized command (§4.2).
func DeniedResult() ExecutionResult {
	return ExecutionResult{
		HandlingStatus: Denied,
		ResultActions:  []Action{AddReaction(ReactionThumbsDown)},
	}
}

// HandledComment is the common shape for a toggle handler: acknowledge
// with an eyes reaction and a comment, and ask for a status recompute (§4.3).
func HandledComment(body string, updateStatus bool) ExecutionResult {
	return ExecutionResult{
		HandlingStatus:     Handled,
		ShouldUpdateStatus: updateStatus,
		ResultActions:      []Action{AddReaction(ReactionEyes), PostComment(body)},
	}
}

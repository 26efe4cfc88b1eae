// Package domain defines the persisted entity model (§3 of the spec):
// repositories, pull requests, merge rules, required reviewers, and the
// two kinds of bot accounts. Nothing in this package talks to the forge
// or to storage; it only carries data and the small set of enums the
// rest of the core switches on.
package domain

// QaStatus is the manual QA gate carried on a PullRequest row.
type QaStatus string

const (
	QaWaiting QaStatus = "waiting"
	QaPass    QaStatus = "pass"
	QaFail    QaStatus = "fail"
	QaSkipped QaStatus = "skipped"
)

// ChecksStatus is the folded state of a pull request's CI check runs.
type ChecksStatus string

const (
	ChecksWaiting ChecksStatus = "waiting"
	ChecksPass    ChecksStatus = "pass"
	ChecksFail    ChecksStatus = "fail"
	ChecksSkipped ChecksStatus = "skipped"
)

// MergeStrategy is one of the three forge-supported merge methods.
type MergeStrategy string

const (
	StrategyMerge  MergeStrategy = "merge"
	StrategySquash MergeStrategy = "squash"
	StrategyRebase MergeStrategy = "rebase"
)

// ParseMergeStrategy validates a user-supplied strategy token.
func ParseMergeStrategy(s string) (MergeStrategy, bool) {
	switch MergeStrategy(s) {
	case StrategyMerge, StrategySquash, StrategyRebase:
		return MergeStrategy(s), true
	default:
		return "", false
	}
}

// StepLabel is the life-cycle position of a pull request, rendered on
// the forge as "step/<kebab-name>".
type StepLabel string

const (
	StepWip             StepLabel = "Wip"
	StepAwaitingChecks  StepLabel = "AwaitingChecks"
	StepAwaitingReview  StepLabel = "AwaitingReview"
	StepAwaitingQa      StepLabel = "AwaitingQa"
	StepAwaitingChanges StepLabel = "AwaitingChanges"
	StepAwaitingMerge   StepLabel = "AwaitingMerge"
	StepLocked          StepLabel = "Locked"
)

// Kebab renders the label the way it is attached to the pull request,
// e.g. StepAwaitingMerge -> "step/awaiting-merge".
func (s StepLabel) Kebab() string {
	kebab, ok := stepKebab[s]
	if !ok {
		return "step/unknown"
	}
	return kebab
}

var stepKebab = map[StepLabel]string{
	StepWip:             "step/wip",
	StepAwaitingChecks:  "step/awaiting-checks",
	StepAwaitingReview:  "step/awaiting-review",
	StepAwaitingQa:      "step/awaiting-qa",
	StepAwaitingChanges: "step/awaiting-changes",
	StepAwaitingMerge:   "step/awaiting-merge",
	StepLocked:          "step/locked",
}

// AllStepLabels lists every step/* label the bot may attach, used to
// compute which labels must be removed before the chosen one is added.
func AllStepLabels() []StepLabel {
	return []StepLabel{
		StepWip, StepAwaitingChecks, StepAwaitingReview, StepAwaitingQa,
		StepAwaitingChanges, StepAwaitingMerge, StepLocked,
	}
}

// ForgePermission is a user's permission level on a repository.
type ForgePermission string

const (
	PermissionNone     ForgePermission = "none"
	PermissionRead     ForgePermission = "read"
	PermissionWrite    ForgePermission = "write"
	PermissionMaintain ForgePermission = "maintain"
	PermissionAdmin    ForgePermission = "admin"
)

// CanWrite reports whether the permission is at least Write.
func (p ForgePermission) CanWrite() bool {
	switch p {
	case PermissionWrite, PermissionMaintain, PermissionAdmin:
		return true
	default:
		return false
	}
}

// RuleBranch is a merge-rule branch specifier: a literal branch name or
// the wildcard token "*".
type RuleBranch string

const Wildcard RuleBranch = "*"

func (b RuleBranch) IsWildcard() bool { return b == Wildcard }

// Repository is the tracked-repo row (§3).
type Repository struct {
	ID                         int64
	Owner                      string
	Name                       string
	ManualInteraction          bool
	PRTitleValidationRegex     string
	DefaultStrategy            MergeStrategy
	DefaultNeededReviewersCount int
	DefaultAutomerge           bool
	DefaultEnableQa            bool
	DefaultEnableChecks        bool
}

// PullRequest is the tracked-PR row (§3). StatusCommentID == 0 and
// StrategyOverride == "" both mean "absent" (design note §9(c)).
type PullRequest struct {
	ID                   int64
	RepositoryID         int64
	Number               int
	QaStatus             QaStatus
	NeededReviewersCount int
	StatusCommentID      int64
	ChecksEnabled        bool
	Automerge            bool
	Locked               bool
	StrategyOverride     MergeStrategy
}

// HasStrategyOverride reports whether the PR pins its own merge strategy.
func (p *PullRequest) HasStrategyOverride() bool { return p.StrategyOverride != "" }

// HasStatusComment reports whether a sticky summary comment already exists.
func (p *PullRequest) HasStatusComment() bool { return p.StatusCommentID != 0 }

// MergeRule is a (repository, base-branch-rule, head-branch-rule) ->
// strategy row (§3, §4.7). The pair (Wildcard, Wildcard) is the
// repository-level override and is matched last, deliberately distinct
// from Repository.DefaultStrategy (design note §9(d)).
type MergeRule struct {
	RepositoryID int64
	BaseBranch   RuleBranch
	HeadBranch   RuleBranch
	Strategy     MergeStrategy
}

// RequiredReviewer is a (pull_request, username) row (§3).
type RequiredReviewer struct {
	PullRequestID int64
	Username      string
}

// Account is a bot administrator, not a forge administrator.
type Account struct {
	Username string
	IsAdmin  bool
}

// ExternalAccount signs bearer tokens used by the external-account API (§4.10, §4.12).
type ExternalAccount struct {
	Username   string
	PublicKey  string
	PrivateKey string
}

// ExternalAccountRight grants an ExternalAccount command-injection
// rights on a single repository.
type ExternalAccountRight struct {
	Username     string
	RepositoryID int64
}

// PullRequestHandle uniquely identifies a pull request on the forge,
// independent of any store id.
type PullRequestHandle struct {
	Owner  string
	Name   string
	Number int
}

// Package store defines the domain store contract (§6.1): a
// transactional, key-indexed repository for every entity in
// internal/domain, with cascading deletes (§3 invariant 6). The only
// implementation shipped with the core is internal/store/memory; a
// relational backend is an out-of-scope adapter (design note §9(a)).
package store

import (
	"context"

	"github.com/clarketm/prbot/internal/domain"
)

// Store is the full domain store contract consumed by the command and
// status layers.
type Store interface {
	Repositories
	PullRequests
	MergeRules
	RequiredReviewers
	Accounts
	ExternalAccounts

	// HealthCheck reports whether the store is reachable (§6.1).
	HealthCheck(ctx context.Context) error
}

// Repositories is the Repository slice of the store contract.
type Repositories interface {
	RepositoryCreate(ctx context.Context, r *domain.Repository) (*domain.Repository, error)
	RepositoryUpdate(ctx context.Context, r *domain.Repository) error
	RepositoryGet(ctx context.Context, owner, name string) (*domain.Repository, error)
	RepositoryGetExpect(ctx context.Context, owner, name string) (*domain.Repository, error)
	RepositoryGetFromID(ctx context.Context, id int64) (*domain.Repository, error)
	RepositoryGetFromIDExpect(ctx context.Context, id int64) (*domain.Repository, error)
	RepositoryList(ctx context.Context) ([]*domain.Repository, error)
	RepositoryDelete(ctx context.Context, owner, name string) error

	RepositorySetDefaultStrategy(ctx context.Context, id int64, s domain.MergeStrategy) error
	RepositorySetDefaultNeededReviewersCount(ctx context.Context, id int64, n int) error
	RepositorySetDefaultAutomerge(ctx context.Context, id int64, v bool) error
	RepositorySetDefaultEnableQa(ctx context.Context, id int64, v bool) error
	RepositorySetDefaultEnableChecks(ctx context.Context, id int64, v bool) error
	RepositorySetPRTitleValidationRegex(ctx context.Context, id int64, re string) error
}

// PullRequests is the PullRequest slice of the store contract.
type PullRequests interface {
	PullRequestCreate(ctx context.Context, p *domain.PullRequest) (*domain.PullRequest, error)
	PullRequestUpdate(ctx context.Context, p *domain.PullRequest) error
	PullRequestGet(ctx context.Context, repositoryID int64, number int) (*domain.PullRequest, error)
	PullRequestGetExpect(ctx context.Context, repositoryID int64, number int) (*domain.PullRequest, error)
	PullRequestGetFromID(ctx context.Context, id int64) (*domain.PullRequest, error)
	PullRequestListByRepository(ctx context.Context, repositoryID int64) ([]*domain.PullRequest, error)
	PullRequestDelete(ctx context.Context, repositoryID int64, number int) error

	SetQaStatus(ctx context.Context, id int64, s domain.QaStatus) error
	SetNeededReviewersCount(ctx context.Context, id int64, n int) error
	SetStatusCommentID(ctx context.Context, id int64, commentID int64) error
	SetChecksEnabled(ctx context.Context, id int64, v bool) error
	SetAutomerge(ctx context.Context, id int64, v bool) error
	SetLocked(ctx context.Context, id int64, v bool) error
	SetStrategyOverride(ctx context.Context, id int64, s domain.MergeStrategy) error
}

// MergeRules is the MergeRule slice of the store contract.
type MergeRules interface {
	MergeRuleUpsert(ctx context.Context, r *domain.MergeRule) error
	MergeRuleGet(ctx context.Context, repositoryID int64, base, head domain.RuleBranch) (*domain.MergeRule, error)
	MergeRuleGetExpect(ctx context.Context, repositoryID int64, base, head domain.RuleBranch) (*domain.MergeRule, error)
	MergeRuleListByRepository(ctx context.Context, repositoryID int64) ([]*domain.MergeRule, error)
	MergeRuleDelete(ctx context.Context, repositoryID int64, base, head domain.RuleBranch) error
}

// RequiredReviewers is the RequiredReviewer slice of the store contract.
type RequiredReviewers interface {
	RequiredReviewerAdd(ctx context.Context, r *domain.RequiredReviewer) error
	RequiredReviewerRemove(ctx context.Context, pullRequestID int64, username string) error
	RequiredReviewerListByPullRequest(ctx context.Context, pullRequestID int64) ([]*domain.RequiredReviewer, error)
}

// Accounts is the bot-admin Account slice of the store contract.
type Accounts interface {
	AccountCreate(ctx context.Context, a *domain.Account) error
	AccountGet(ctx context.Context, username string) (*domain.Account, error)
	AccountList(ctx context.Context) ([]*domain.Account, error)
	AccountDelete(ctx context.Context, username string) error
}

// ExternalAccounts is the ExternalAccount and ExternalAccountRight slice
// of the store contract.
type ExternalAccounts interface {
	ExternalAccountCreate(ctx context.Context, a *domain.ExternalAccount) error
	ExternalAccountGet(ctx context.Context, username string) (*domain.ExternalAccount, error)
	ExternalAccountGetExpect(ctx context.Context, username string) (*domain.ExternalAccount, error)
	ExternalAccountDelete(ctx context.Context, username string) error

	ExternalAccountRightAdd(ctx context.Context, r *domain.ExternalAccountRight) error
	ExternalAccountRightRemove(ctx context.Context, username string, repositoryID int64) error
	ExternalAccountRightListByRepository(ctx context.Context, repositoryID int64) ([]*domain.ExternalAccountRight, error)
	ExternalAccountRightGet(ctx context.Context, username string, repositoryID int64) (*domain.ExternalAccountRight, error)
}

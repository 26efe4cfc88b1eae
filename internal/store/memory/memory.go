// Package memory is the in-memory Store implementation (§9 design
// note: "tests use the in-memory one verbatim"). It is also suitable
// as the production backend for single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"

	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/errs"
	"github.com/clarketm/prbot/internal/store"
)

type repoKey struct{ owner, name string }

type prKey struct {
	repositoryID int64
	number       int
}

type ruleKey struct {
	repositoryID int64
	base, head   domain.RuleBranch
}

// Store is a mutex-protected, map-backed implementation of store.Store.
type Store struct {
	mu   sync.Mutex
	node *snowflake.Node

	repos     map[repoKey]*domain.Repository
	reposByID map[int64]*domain.Repository

	prs     map[prKey]*domain.PullRequest
	prsByID map[int64]*domain.PullRequest

	rules map[ruleKey]*domain.MergeRule

	requiredReviewers map[int64][]*domain.RequiredReviewer

	accounts map[string]*domain.Account

	externalAccounts map[string]*domain.ExternalAccount
	externalRights   map[string]map[int64]*domain.ExternalAccountRight
}

// New returns an empty in-memory store. IDs are minted by a
// snowflake.Node rather than a bare counter so that ID values stay
// consistent in shape with a store backed by multiple processes.
func New() *Store {
	node, err := snowflake.NewNode(1)
	if err != nil {
		// Only impossible node values (outside 0-1023) make NewNode
		// fail; the literal above is always in range.
		panic(err)
	}
	return &Store{
		node:              node,
		repos:             make(map[repoKey]*domain.Repository),
		reposByID:         make(map[int64]*domain.Repository),
		prs:               make(map[prKey]*domain.PullRequest),
		prsByID:           make(map[int64]*domain.PullRequest),
		rules:             make(map[ruleKey]*domain.MergeRule),
		requiredReviewers: make(map[int64][]*domain.RequiredReviewer),
		accounts:          make(map[string]*domain.Account),
		externalAccounts:  make(map[string]*domain.ExternalAccount),
		externalRights:    make(map[string]map[int64]*domain.ExternalAccountRight),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) HealthCheck(ctx context.Context) error { return nil }

// --- Repositories -----------------------------------------------------

func (s *Store) RepositoryCreate(ctx context.Context, r *domain.Repository) (*domain.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := repoKey{r.Owner, r.Name}
	if existing, ok := s.repos[key]; ok {
		id := existing.ID
		*existing = *r
		existing.ID = id
		return existing, nil
	}

	cp := *r
	cp.ID = s.node.Generate().Int64()
	s.repos[key] = &cp
	s.reposByID[cp.ID] = &cp
	return &cp, nil
}

func (s *Store) RepositoryUpdate(ctx context.Context, r *domain.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.reposByID[r.ID]
	if !ok {
		return errs.UnknownRepositoryID(r.ID)
	}
	*existing = *r
	return nil
}

func (s *Store) RepositoryGet(ctx context.Context, owner, name string) (*domain.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[repoKey{owner, name}]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *Store) RepositoryGetExpect(ctx context.Context, owner, name string) (*domain.Repository, error) {
	r, err := s.RepositoryGet(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errs.UnknownRepository(owner, name)
	}
	return r, nil
}

func (s *Store) RepositoryGetFromID(ctx context.Context, id int64) (*domain.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reposByID[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *Store) RepositoryGetFromIDExpect(ctx context.Context, id int64) (*domain.Repository, error) {
	r, err := s.RepositoryGetFromID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errs.UnknownRepositoryID(id)
	}
	return r, nil
}

func (s *Store) RepositoryList(ctx context.Context) ([]*domain.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Repository, 0, len(s.reposByID))
	for _, r := range s.reposByID {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

// RepositoryDelete removes the repository and cascades to every
// dependent row (§3 invariant 6): pull requests (and their required
// reviewers), merge rules, and external-account rights.
func (s *Store) RepositoryDelete(ctx context.Context, owner, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := repoKey{owner, name}
	r, ok := s.repos[key]
	if !ok {
		return errs.UnknownRepository(owner, name)
	}

	for pk, pr := range s.prs {
		if pk.repositoryID == r.ID {
			delete(s.prs, pk)
			delete(s.prsByID, pr.ID)
			delete(s.requiredReviewers, pr.ID)
		}
	}
	for rk := range s.rules {
		if rk.repositoryID == r.ID {
			delete(s.rules, rk)
		}
	}
	for user, byRepo := range s.externalRights {
		delete(byRepo, r.ID)
		if len(byRepo) == 0 {
			delete(s.externalRights, user)
		}
	}

	delete(s.repos, key)
	delete(s.reposByID, r.ID)
	return nil
}

func (s *Store) RepositorySetDefaultStrategy(ctx context.Context, id int64, v domain.MergeStrategy) error {
	return s.mutateRepo(id, func(r *domain.Repository) { r.DefaultStrategy = v })
}

func (s *Store) RepositorySetDefaultNeededReviewersCount(ctx context.Context, id int64, n int) error {
	return s.mutateRepo(id, func(r *domain.Repository) { r.DefaultNeededReviewersCount = n })
}

func (s *Store) RepositorySetDefaultAutomerge(ctx context.Context, id int64, v bool) error {
	return s.mutateRepo(id, func(r *domain.Repository) { r.DefaultAutomerge = v })
}

func (s *Store) RepositorySetDefaultEnableQa(ctx context.Context, id int64, v bool) error {
	return s.mutateRepo(id, func(r *domain.Repository) { r.DefaultEnableQa = v })
}

func (s *Store) RepositorySetDefaultEnableChecks(ctx context.Context, id int64, v bool) error {
	return s.mutateRepo(id, func(r *domain.Repository) { r.DefaultEnableChecks = v })
}

func (s *Store) RepositorySetPRTitleValidationRegex(ctx context.Context, id int64, re string) error {
	return s.mutateRepo(id, func(r *domain.Repository) { r.PRTitleValidationRegex = re })
}

func (s *Store) mutateRepo(id int64, f func(*domain.Repository)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reposByID[id]
	if !ok {
		return errs.UnknownRepositoryID(id)
	}
	f(r)
	return nil
}

// --- PullRequests -------------------------------------------------------

func (s *Store) PullRequestCreate(ctx context.Context, p *domain.PullRequest) (*domain.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reposByID[p.RepositoryID]; !ok {
		return nil, errs.UnknownRepositoryID(p.RepositoryID)
	}

	key := prKey{p.RepositoryID, p.Number}
	if existing, ok := s.prs[key]; ok {
		*existing = *p
		return existing, nil
	}

	cp := *p
	cp.ID = s.node.Generate().Int64()
	s.prs[key] = &cp
	s.prsByID[cp.ID] = &cp
	return &cp, nil
}

func (s *Store) PullRequestUpdate(ctx context.Context, p *domain.PullRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.prsByID[p.ID]
	if !ok {
		return errs.UnknownPullRequest("", "", p.Number)
	}
	*existing = *p
	return nil
}

func (s *Store) PullRequestGet(ctx context.Context, repositoryID int64, number int) (*domain.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prs[prKey{repositoryID, number}]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) PullRequestGetExpect(ctx context.Context, repositoryID int64, number int) (*domain.PullRequest, error) {
	p, err := s.PullRequestGet(ctx, repositoryID, number)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errs.UnknownPullRequest("", "", number)
	}
	return p, nil
}

func (s *Store) PullRequestGetFromID(ctx context.Context, id int64) (*domain.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prsByID[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *Store) PullRequestListByRepository(ctx context.Context, repositoryID int64) ([]*domain.PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.PullRequest
	for k, p := range s.prs {
		if k.repositoryID == repositoryID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

// PullRequestDelete removes the pull request and cascades to its
// required reviewers (§3 invariant 6).
func (s *Store) PullRequestDelete(ctx context.Context, repositoryID int64, number int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := prKey{repositoryID, number}
	p, ok := s.prs[key]
	if !ok {
		return errs.UnknownPullRequest("", "", number)
	}
	delete(s.prs, key)
	delete(s.prsByID, p.ID)
	delete(s.requiredReviewers, p.ID)
	return nil
}

func (s *Store) SetQaStatus(ctx context.Context, id int64, v domain.QaStatus) error {
	return s.mutatePR(id, func(p *domain.PullRequest) { p.QaStatus = v })
}

func (s *Store) SetNeededReviewersCount(ctx context.Context, id int64, n int) error {
	return s.mutatePR(id, func(p *domain.PullRequest) { p.NeededReviewersCount = n })
}

func (s *Store) SetStatusCommentID(ctx context.Context, id int64, commentID int64) error {
	return s.mutatePR(id, func(p *domain.PullRequest) { p.StatusCommentID = commentID })
}

func (s *Store) SetChecksEnabled(ctx context.Context, id int64, v bool) error {
	return s.mutatePR(id, func(p *domain.PullRequest) { p.ChecksEnabled = v })
}

func (s *Store) SetAutomerge(ctx context.Context, id int64, v bool) error {
	return s.mutatePR(id, func(p *domain.PullRequest) { p.Automerge = v })
}

func (s *Store) SetLocked(ctx context.Context, id int64, v bool) error {
	return s.mutatePR(id, func(p *domain.PullRequest) { p.Locked = v })
}

func (s *Store) SetStrategyOverride(ctx context.Context, id int64, v domain.MergeStrategy) error {
	return s.mutatePR(id, func(p *domain.PullRequest) { p.StrategyOverride = v })
}

func (s *Store) mutatePR(id int64, f func(*domain.PullRequest)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prsByID[id]
	if !ok {
		return errs.UnknownPullRequest("", "", 0)
	}
	f(p)
	return nil
}

// --- MergeRules ---------------------------------------------------------

func (s *Store) MergeRuleUpsert(ctx context.Context, r *domain.MergeRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reposByID[r.RepositoryID]; !ok {
		return errs.UnknownRepositoryID(r.RepositoryID)
	}
	cp := *r
	s.rules[ruleKey{r.RepositoryID, r.BaseBranch, r.HeadBranch}] = &cp
	return nil
}

func (s *Store) MergeRuleGet(ctx context.Context, repositoryID int64, base, head domain.RuleBranch) (*domain.MergeRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleKey{repositoryID, base, head}]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (s *Store) MergeRuleGetExpect(ctx context.Context, repositoryID int64, base, head domain.RuleBranch) (*domain.MergeRule, error) {
	r, err := s.MergeRuleGet(ctx, repositoryID, base, head)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errs.UnknownMergeRule(repositoryID, string(base), string(head))
	}
	return r, nil
}

func (s *Store) MergeRuleListByRepository(ctx context.Context, repositoryID int64) ([]*domain.MergeRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.MergeRule
	for k, r := range s.rules {
		if k.repositoryID == repositoryID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) MergeRuleDelete(ctx context.Context, repositoryID int64, base, head domain.RuleBranch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ruleKey{repositoryID, base, head}
	if _, ok := s.rules[key]; !ok {
		return errs.UnknownMergeRule(repositoryID, string(base), string(head))
	}
	delete(s.rules, key)
	return nil
}

// --- RequiredReviewers ----------------------------------------------------

func (s *Store) RequiredReviewerAdd(ctx context.Context, r *domain.RequiredReviewer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.prsByID[r.PullRequestID]; !ok {
		return errs.UnknownPullRequest("", "", 0)
	}
	for _, existing := range s.requiredReviewers[r.PullRequestID] {
		if existing.Username == r.Username {
			return nil
		}
	}
	cp := *r
	s.requiredReviewers[r.PullRequestID] = append(s.requiredReviewers[r.PullRequestID], &cp)
	return nil
}

func (s *Store) RequiredReviewerRemove(ctx context.Context, pullRequestID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.requiredReviewers[pullRequestID]
	for i, r := range list {
		if r.Username == username {
			s.requiredReviewers[pullRequestID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) RequiredReviewerListByPullRequest(ctx context.Context, pullRequestID int64) ([]*domain.RequiredReviewer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.requiredReviewers[pullRequestID]
	out := make([]*domain.RequiredReviewer, len(list))
	for i, r := range list {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// --- Accounts -------------------------------------------------------------

func (s *Store) AccountCreate(ctx context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.accounts[a.Username] = &cp
	return nil
}

func (s *Store) AccountGet(ctx context.Context, username string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[username]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *Store) AccountList(ctx context.Context) ([]*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) AccountDelete(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, username)
	return nil
}

// --- ExternalAccounts ------------------------------------------------------

func (s *Store) ExternalAccountCreate(ctx context.Context, a *domain.ExternalAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.externalAccounts[a.Username] = &cp
	return nil
}

func (s *Store) ExternalAccountGet(ctx context.Context, username string) (*domain.ExternalAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.externalAccounts[username]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ExternalAccountGetExpect(ctx context.Context, username string) (*domain.ExternalAccount, error) {
	a, err := s.ExternalAccountGet(ctx, username)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, errs.UnknownExternalAccount(username)
	}
	return a, nil
}

func (s *Store) ExternalAccountDelete(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.externalAccounts, username)
	delete(s.externalRights, username)
	return nil
}

func (s *Store) ExternalAccountRightAdd(ctx context.Context, r *domain.ExternalAccountRight) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.externalAccounts[r.Username]; !ok {
		return errs.UnknownExternalAccount(r.Username)
	}
	if _, ok := s.reposByID[r.RepositoryID]; !ok {
		return errs.UnknownRepositoryID(r.RepositoryID)
	}
	byRepo, ok := s.externalRights[r.Username]
	if !ok {
		byRepo = make(map[int64]*domain.ExternalAccountRight)
		s.externalRights[r.Username] = byRepo
	}
	cp := *r
	byRepo[r.RepositoryID] = &cp
	return nil
}

func (s *Store) ExternalAccountRightRemove(ctx context.Context, username string, repositoryID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if byRepo, ok := s.externalRights[username]; ok {
		delete(byRepo, repositoryID)
	}
	return nil
}

func (s *Store) ExternalAccountRightListByRepository(ctx context.Context, repositoryID int64) ([]*domain.ExternalAccountRight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ExternalAccountRight
	for _, byRepo := range s.externalRights {
		if r, ok := byRepo[repositoryID]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ExternalAccountRightGet(ctx context.Context, username string, repositoryID int64) (*domain.ExternalAccountRight, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byRepo, ok := s.externalRights[username]
	if !ok {
		return nil, nil
	}
	r, ok := byRepo[repositoryID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

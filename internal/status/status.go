// Package status implements the status engine of §4.5-§4.8: it derives
// a PullRequestStatus from the forge's live view plus the tracked
// store rows, chooses a StepLabel, republishes the sticky summary
// comment and combined-status line, and drives auto-merge. Grounded on
// tide.Controller's sync loop (concurrent fetch, label replacement,
// status-context publish, merge-pool auto-merge), generalized from a
// batch pool sync to a single-PR recompute triggered per event.
package status

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/clarketm/prbot/internal/config"
	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/forge"
	"github.com/clarketm/prbot/internal/lock"
	"github.com/clarketm/prbot/internal/metrics"
	"github.com/clarketm/prbot/internal/store"
)

const (
	summaryLockTTL     = 15 * time.Second
	summaryWaitTimeout = 10 * time.Second
	mergeLockTTL       = 30 * time.Second
	checkRunAppSlug    = "github-actions"
	statusTitle        = "Validation"
	maxDescriptionLen  = 139
)

// Engine is the L7 status engine. One Engine instance is shared across
// every repository the bot tracks.
type Engine struct {
	Store   store.Store
	Forge   forge.Client
	Locks   lock.Service
	Metrics *metrics.Metrics
	Config  config.Config
	Logger  *logrus.Entry
}

// PullRequestStatus is the pure value of §4.5.
type PullRequestStatus struct {
	ChecksStatus              domain.ChecksStatus
	QaStatus                  domain.QaStatus
	ApprovedReviewers         []string
	ChangesRequiredReviewers  []string
	MissingRequiredReviewers  []string
	NeededReviewersCount      int
	ValidPRTitle              bool
	Locked                    bool
	Wip                       bool
	Mergeable                 *bool
	Merged                    *bool
	MergeStrategy             domain.MergeStrategy
}

// MissingReviews implements the §4.5 helper predicate.
func (s PullRequestStatus) MissingReviews() bool {
	return len(s.MissingRequiredReviewers) > 0 || len(s.ApprovedReviewers) < s.NeededReviewersCount
}

// ChangesRequired implements the §4.5 helper predicate.
func (s PullRequestStatus) ChangesRequired() bool {
	return len(s.ChangesRequiredReviewers) > 0
}

// Run fetches the upstream pull request and performs a full §4.6
// recompute for it.
func (e *Engine) Run(ctx context.Context, handle domain.PullRequestHandle) error {
	upstream, err := e.Forge.PullsGet(ctx, handle.Owner, handle.Name, handle.Number)
	if err != nil {
		return err
	}
	return e.RunWithUpstream(ctx, handle, upstream)
}

// RunWithUpstream is Run for a caller that already holds a fresh
// upstream view (the event dispatcher, after an opened/synchronize
// webhook, already has one).
func (e *Engine) RunWithUpstream(ctx context.Context, handle domain.PullRequestHandle, upstream *forge.UpstreamPullRequest) error {
	start := time.Now()
	defer func() {
		if e.Metrics != nil {
			e.Metrics.StatusDurationSeconds.Observe(time.Since(start).Seconds())
		}
	}()

	repo, pr, reviews, required, err := e.fetchInputs(ctx, handle)
	if err != nil {
		return err
	}

	checksStatus, err := e.computeChecksStatus(ctx, handle, pr, upstream)
	if err != nil {
		return err
	}

	strategy := ResolveMergeStrategy(ctx, e.Store, repo, pr, upstream.Base.Reference, upstream.Head.Reference)

	prStatus := buildStatus(repo, pr, upstream, reviews, required, checksStatus, strategy)
	label := chooseStepLabel(prStatus)

	if err := e.replaceStepLabel(ctx, handle, label); err != nil {
		return err
	}

	if err := e.publishSummary(ctx, handle, pr, repo, prStatus, label); err != nil {
		return err
	}

	if err := e.publishCombinedStatus(ctx, handle, upstream.Head.Sha, prStatus); err != nil {
		return err
	}

	if e.Metrics != nil {
		e.Metrics.StatusUpdatesTotal.WithLabelValues(handle.Owner + "/" + handle.Name).Inc()
	}

	if label == domain.StepAwaitingMerge && (upstream.Merged == nil || !*upstream.Merged) && pr.Automerge {
		e.tryAutoMerge(ctx, handle, pr, repo, upstream, strategy, prStatus, label)
	}

	return nil
}

// fetchInputs implements §4.6 step 1. The repository row is resolved
// first since the store keys pull requests by repository_id, not
// (owner, name). The pull-request row and the review list are then read
// concurrently and joined. The required-reviewer list is read after that
// join, because it is keyed by the pull request's id; only those two
// reads run concurrently.
func (e *Engine) fetchInputs(ctx context.Context, handle domain.PullRequestHandle) (*domain.Repository, *domain.PullRequest, []forge.Review, []*domain.RequiredReviewer, error) {
	repo, err := e.Store.RepositoryGetExpect(ctx, handle.Owner, handle.Name)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var pr *domain.PullRequest
	var reviews []forge.Review
	var required []*domain.RequiredReviewer

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := e.Store.PullRequestGetExpect(gctx, repo.ID, handle.Number)
		pr = p
		return err
	})
	g.Go(func() error {
		rv, err := e.Forge.PullReviewsList(gctx, handle.Owner, handle.Name, handle.Number)
		reviews = rv
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, nil, err
	}

	required, err = e.Store.RequiredReviewerListByPullRequest(ctx, pr.ID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return repo, pr, reviews, required, nil
}

func (e *Engine) computeChecksStatus(ctx context.Context, handle domain.PullRequestHandle, pr *domain.PullRequest, upstream *forge.UpstreamPullRequest) (domain.ChecksStatus, error) {
	if !pr.ChecksEnabled {
		return domain.ChecksSkipped, nil
	}
	runs, err := e.Forge.CheckRunsList(ctx, handle.Owner, handle.Name, upstream.Head.Sha)
	if err != nil {
		return "", err
	}
	return FoldChecksStatus(runs), nil
}

// FoldChecksStatus implements §4.6 step 2: filter to the "github-actions"
// app slug, dedup by run name keeping the most recently started, then
// fold conclusions. It is a pure function of the runs, so tests
// exercise it directly.
func FoldChecksStatus(runs []forge.CheckRun) domain.ChecksStatus {
	latest := map[string]forge.CheckRun{}
	for _, r := range runs {
		if r.AppSlug != checkRunAppSlug {
			continue
		}
		if cur, ok := latest[r.Name]; !ok || r.StartedAt.After(cur.StartedAt) {
			latest[r.Name] = r
		}
	}

	status := domain.ChecksWaiting
	if len(latest) == 0 {
		return status
	}

	anyMissing := false
	for _, r := range latest {
		switch r.Conclusion {
		case "failure":
			return domain.ChecksFail
		case "":
			anyMissing = true
		}
	}
	if anyMissing {
		return domain.ChecksWaiting
	}
	return domain.ChecksPass
}

func buildStatus(repo *domain.Repository, pr *domain.PullRequest, upstream *forge.UpstreamPullRequest, reviews []forge.Review, required []*domain.RequiredReviewer, checksStatus domain.ChecksStatus, strategy domain.MergeStrategy) PullRequestStatus {
	requiredSet := map[string]bool{}
	for _, r := range required {
		requiredSet[r.Username] = true
	}

	var approved, changesRequired []string
	for _, rv := range reviews {
		switch rv.State {
		case forge.ReviewChangesRequested:
			changesRequired = append(changesRequired, rv.Username)
		case forge.ReviewApproved:
			approved = append(approved, rv.Username)
		}
	}

	// Required reviewers are missing unless the upstream list holds an
	// approving review from them, whatever the order of their reviews;
	// this also covers required reviewers absent from the upstream review
	// list entirely (§4.6 step 4).
	var missingRequired []string
	approvedSet := map[string]bool{}
	for _, u := range approved {
		approvedSet[u] = true
	}
	for _, r := range required {
		if !approvedSet[r.Username] {
			missingRequired = append(missingRequired, r.Username)
		}
	}
	sort.Strings(missingRequired)

	validTitle := true
	if repo.PRTitleValidationRegex != "" {
		validTitle = matchesTitle(repo.PRTitleValidationRegex, upstream.Title)
	}

	return PullRequestStatus{
		ChecksStatus:             checksStatus,
		QaStatus:                 pr.QaStatus,
		ApprovedReviewers:        approved,
		ChangesRequiredReviewers: changesRequired,
		MissingRequiredReviewers: missingRequired,
		NeededReviewersCount:     pr.NeededReviewersCount,
		ValidPRTitle:             validTitle,
		Locked:                   pr.Locked,
		Wip:                      upstream.Draft,
		Mergeable:                upstream.Mergeable,
		Merged:                   upstream.Merged,
		MergeStrategy:            strategy,
	}
}

func matchesTitle(pattern, title string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(title)
}

// chooseStepLabel implements the §4.6 step 5 decision table.
func chooseStepLabel(s PullRequestStatus) domain.StepLabel {
	switch {
	case s.Wip:
		return domain.StepWip
	case !s.ValidPRTitle:
		return domain.StepAwaitingChanges
	case s.ChecksStatus == domain.ChecksWaiting:
		return domain.StepAwaitingChecks
	case s.ChecksStatus == domain.ChecksFail:
		return domain.StepAwaitingChanges
	case s.ChangesRequired():
		return domain.StepAwaitingChanges
	case s.MissingReviews():
		return domain.StepAwaitingReview
	case s.QaStatus == domain.QaWaiting:
		return domain.StepAwaitingQa
	case s.QaStatus == domain.QaFail:
		return domain.StepAwaitingChanges
	case s.Locked:
		return domain.StepLocked
	default:
		return domain.StepAwaitingMerge
	}
}

func (e *Engine) replaceStepLabel(ctx context.Context, handle domain.PullRequestHandle, chosen domain.StepLabel) error {
	existing, err := e.Forge.IssueLabelsList(ctx, handle.Owner, handle.Name, handle.Number)
	if err != nil {
		return err
	}
	stepNames := map[string]bool{}
	for _, s := range domain.AllStepLabels() {
		stepNames[s.Kebab()] = true
	}

	var keep []string
	hasChosen := false
	for _, l := range existing {
		if !stepNames[l.Name] {
			keep = append(keep, l.Name)
			continue
		}
		if l.Name == chosen.Kebab() {
			hasChosen = true
			keep = append(keep, l.Name)
		}
	}
	if hasChosen {
		return nil
	}
	keep = append(keep, chosen.Kebab())
	return e.Forge.IssueLabelsReplaceAll(ctx, handle.Owner, handle.Name, handle.Number, keep)
}

func (e *Engine) publishSummary(ctx context.Context, handle domain.PullRequestHandle, pr *domain.PullRequest, repo *domain.Repository, s PullRequestStatus, label domain.StepLabel) error {
	name := fmt.Sprintf("summary-%s-%s-%d", handle.Owner, handle.Name, handle.Number)
	h, err := e.Locks.WaitLock(ctx, name, summaryLockTTL, summaryWaitTimeout)
	if err != nil {
		return err
	}
	defer h.Release(ctx)

	body := RenderSummary(handle, repo, pr, s, label)

	if pr.HasStatusComment() {
		if err := e.Forge.CommentsUpdate(ctx, handle.Owner, handle.Name, pr.StatusCommentID, body); err != nil {
			// A deleted sticky comment is treated as absent (§4.8).
			if fe, ok := err.(*forge.Error); !ok || !fe.Terminal() {
				return err
			}
		} else {
			return nil
		}
	}

	id, err := e.Forge.CommentsPost(ctx, handle.Owner, handle.Name, handle.Number, body)
	if err != nil {
		return err
	}
	return e.Store.SetStatusCommentID(ctx, pr.ID, id)
}

// RenderSummary renders the §6.3 sticky summary comment body.
func RenderSummary(handle domain.PullRequestHandle, repo *domain.Repository, pr *domain.PullRequest, s PullRequestStatus, label domain.StepLabel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Pull request status\n")
	fmt.Fprintf(&b, "_Current step: **%s**_\n\n", label.Kebab())

	fmt.Fprintf(&b, "### Rules\n")
	if repo.PRTitleValidationRegex == "" {
		b.WriteString("- Title: no validation configured\n\n")
	} else {
		fmt.Fprintf(&b, "- Title must match `%s`: %s\n\n", repo.PRTitleValidationRegex, glyph(s.ValidPRTitle))
	}

	fmt.Fprintf(&b, "### Status\n")
	fmt.Fprintf(&b, "- Checks: %s (%s)\n", glyphTri(s.ChecksStatus == domain.ChecksPass, s.ChecksStatus == domain.ChecksFail), s.ChecksStatus)
	fmt.Fprintf(&b, "- QA: %s (%s)\n", glyphTri(s.QaStatus == domain.QaPass, s.QaStatus == domain.QaFail), s.QaStatus)
	fmt.Fprintf(&b, "- Reviews: %s (%d/%d approved, %d changes requested)\n",
		glyph(!s.MissingReviews()), len(s.ApprovedReviewers), s.NeededReviewersCount, len(s.ChangesRequiredReviewers))
	fmt.Fprintf(&b, "- Locked: %s\n\n", glyph(!s.Locked))

	fmt.Fprintf(&b, "### Configuration\n")
	fmt.Fprintf(&b, "- automerge: `%t`\n", pr.Automerge)
	fmt.Fprintf(&b, "- strategy: `%s`\n\n", s.MergeStrategy)

	fmt.Fprintf(&b, "[Checks](https://github.com/%s/%s/pull/%d/checks)\n", handle.Owner, handle.Name, handle.Number)
	return b.String()
}

func glyph(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

func glyphTri(pass, fail bool) string {
	if pass {
		return "✅"
	}
	if fail {
		return "❌"
	}
	return "⏳"
}

func (e *Engine) publishCombinedStatus(ctx context.Context, handle domain.PullRequestHandle, sha string, s PullRequestStatus) error {
	state, desc := combinedStatus(s)
	if len(desc) > maxDescriptionLen {
		desc = desc[:maxDescriptionLen]
	}
	return e.Forge.CommitStatusesUpdate(ctx, handle.Owner, handle.Name, sha, state, statusTitle, desc)
}

// combinedStatus implements §4.6 step 7.
func combinedStatus(s PullRequestStatus) (forge.CommitStatusState, string) {
	switch {
	case s.Locked:
		return forge.StatusPending, "Pull request is locked"
	case s.Wip:
		return forge.StatusPending, "Work in progress"
	case !s.ValidPRTitle:
		return forge.StatusFailure, "Invalid PR title"
	case s.ChecksStatus == domain.ChecksFail:
		return forge.StatusFailure, "Checks failed"
	case s.ChecksStatus == domain.ChecksWaiting:
		return forge.StatusPending, "Waiting on checks"
	case s.ChangesRequired():
		return forge.StatusFailure, "Changes required"
	case s.MissingReviews():
		return forge.StatusPending, "Waiting on reviews"
	case s.QaStatus == domain.QaFail:
		return forge.StatusFailure, "QA failed"
	case s.QaStatus == domain.QaWaiting:
		return forge.StatusPending, "Waiting on QA"
	default:
		return forge.StatusSuccess, "All good."
	}
}

func (e *Engine) tryAutoMerge(ctx context.Context, handle domain.PullRequestHandle, pr *domain.PullRequest, repo *domain.Repository, upstream *forge.UpstreamPullRequest, strategy domain.MergeStrategy, s PullRequestStatus, label domain.StepLabel) {
	name := fmt.Sprintf("pr-merge_%s-%s_%d", handle.Owner, handle.Name, handle.Number)
	h, ok, err := e.Locks.TryLock(ctx, name, mergeLockTTL)
	if err != nil {
		e.Logger.WithError(err).Error("auto-merge lock acquisition failed")
		return
	}
	if !ok {
		return // busy: another task owns this pass (§4.8)
	}
	defer h.Release(ctx)

	result := "success"
	defer func() {
		if e.Metrics != nil {
			e.Metrics.AutomergeAttemptsTotal.WithLabelValues(result).Inc()
		}
	}()

	mergeErr := e.Forge.PullsMerge(ctx, handle.Owner, handle.Name, handle.Number, forge.MergeDetails{
		CommitTitle: fmt.Sprintf("%s (#%d)", upstream.Title, upstream.Number),
		Strategy:    strategy,
	})
	if mergeErr == nil {
		e.Forge.CommentsPost(ctx, handle.Owner, handle.Name, handle.Number, //nolint:errcheck
			fmt.Sprintf("Pull request successfully auto-merged! (strategy: '%s')", strategy))
		return
	}

	result = "refused"
	if err := e.Store.SetAutomerge(ctx, pr.ID, false); err != nil {
		e.Logger.WithError(err).Error("failed to disable automerge after merge refusal")
	}
	e.Forge.CommentsPost(ctx, handle.Owner, handle.Name, handle.Number, //nolint:errcheck
		fmt.Sprintf("Could not auto-merge this pull request: _%s_\nAuto-merge disabled", mergeErr.Error()))

	pr.Automerge = false
	if err := e.publishSummary(ctx, handle, pr, repo, s, label); err != nil {
		e.Logger.WithError(err).Error("failed to republish summary after merge refusal")
	}
}

// ResolveMergeStrategy implements §4.7.
func ResolveMergeStrategy(ctx context.Context, s store.Store, repo *domain.Repository, pr *domain.PullRequest, base, head string) domain.MergeStrategy {
	if pr.HasStrategyOverride() {
		return pr.StrategyOverride
	}
	candidates := []struct{ base, head domain.RuleBranch }{
		{domain.RuleBranch(base), domain.RuleBranch(head)},
		{domain.Wildcard, domain.RuleBranch(head)},
		{domain.RuleBranch(base), domain.Wildcard},
		{domain.Wildcard, domain.Wildcard},
	}
	for _, c := range candidates {
		if rule, err := s.MergeRuleGet(ctx, repo.ID, c.base, c.head); err == nil && rule != nil {
			return rule.Strategy
		}
	}
	return repo.DefaultStrategy
}

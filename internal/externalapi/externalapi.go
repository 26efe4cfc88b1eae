// Package externalapi implements the core logic of the L10
// external-account API (§4.10, §4.12): verify a bearer JWT against the
// claimed ExternalAccount's public key, check the matching
// ExternalAccountRight, then synthesize and inject a command exactly
// as if it had been posted in a pull-request comment. The HTTP
// transport (bearer extraction, rate limiting, routing) is an
// out-of-scope adapter (§1); this package only exposes Inject. JWT
// handling is grounded on cexll-swe-agent's golang-jwt/jwt/v5 usage,
// generalized from App-JWT issuance to per-account verification.
package externalapi

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/clarketm/prbot/internal/command/executor"
	"github.com/clarketm/prbot/internal/command/parser"
	"github.com/clarketm/prbot/internal/config"
	"github.com/clarketm/prbot/internal/domain"
	"github.com/clarketm/prbot/internal/errs"
	"github.com/clarketm/prbot/internal/forge"
	"github.com/clarketm/prbot/internal/store"
)

// Claims is the token payload of §4.12.
type Claims struct {
	jwt.RegisteredClaims
	RepositoryID      int64 `json:"repository_id"`
	PullRequestNumber int   `json:"pull_request_number"`
}

// API is the L10 component.
type API struct {
	Store    store.Store
	Forge    forge.Client
	Executor *executor.Executor
	Config   config.Config
}

// Inject verifies token, checks the matching ExternalAccountRight,
// synthesizes a comment body, and runs it through the ordinary
// comment-parsing and executor path — bypassing the forge-permission
// check but never the admin-verb restriction (§4.10).
func (a *API) Inject(ctx context.Context, token, verb string, args []string) error {
	claims, account, err := a.verify(ctx, token)
	if err != nil {
		return err
	}

	right, err := a.Store.ExternalAccountRightGet(ctx, account.Username, claims.RepositoryID)
	if err != nil {
		return err
	}
	if right == nil {
		return errs.New(errs.KindUnknownExternalAccount, fmt.Sprintf(
			"%s has no rights on repository %d", account.Username, claims.RepositoryID))
	}

	repo, err := a.Store.RepositoryGetFromIDExpect(ctx, claims.RepositoryID)
	if err != nil {
		return err
	}
	pr, err := a.Store.PullRequestGetExpect(ctx, claims.RepositoryID, claims.PullRequestNumber)
	if err != nil {
		return err
	}

	handle := domain.PullRequestHandle{Owner: repo.Owner, Name: repo.Name, Number: claims.PullRequestNumber}
	body := synthesize(a.Config.BotName, verb, args)

	results := parser.Parse(a.Config.BotName, body)
	reqs := make([]executor.Request, 0, len(results))
	for _, r := range results {
		reqs = append(reqs, executor.Request{
			Handle:     handle,
			Username:   account.Username,
			IsBotAdmin: false, // external accounts are never bot-admins (§4.10)
			Permission: domain.PermissionWrite,
			Result:     r.Command,
			ParseErr:   r.Err,
		})
	}
	return a.Executor.Run(ctx, a.Config.BotName, repo, pr, reqs)
}

func synthesize(botName, verb string, args []string) string {
	if len(args) == 0 {
		return fmt.Sprintf("%s %s", botName, verb)
	}
	return fmt.Sprintf("%s %s %s", botName, verb, strings.Join(args, " "))
}

func (a *API) verify(ctx context.Context, token string) (*Claims, *domain.ExternalAccount, error) {
	var account *domain.ExternalAccount

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		claims, ok := t.Claims.(*Claims)
		if !ok {
			return nil, fmt.Errorf("unexpected claims type")
		}
		acc, err := a.Store.ExternalAccountGetExpect(ctx, claims.Subject)
		if err != nil {
			return nil, err
		}
		account = acc
		return verificationKey(t, acc.PublicKey)
	})
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindInvalidUsage, err, "invalid external-account token")
	}
	if !parsed.Valid || account == nil {
		return nil, nil, errs.New(errs.KindInvalidUsage, "invalid external-account token")
	}
	return parsed.Claims.(*Claims), account, nil
}

// verificationKey selects HMAC or RSA verification per §4.12,
// mirroring golang-jwt/jwt/v5's Keyfunc pattern of branching on the
// token header's alg.
func verificationKey(t *jwt.Token, publicKey string) (interface{}, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodRSA:
		return jwt.ParseRSAPublicKeyFromPEM([]byte(publicKey))
	case *jwt.SigningMethodHMAC:
		if strings.HasPrefix(strings.TrimSpace(publicKey), "-----BEGIN") {
			return nil, fmt.Errorf("signing method %q does not match a PEM-encoded key", t.Method.Alg())
		}
		return []byte(publicKey), nil
	default:
		return nil, fmt.Errorf("unsupported signing method %q", t.Method.Alg())
	}
}

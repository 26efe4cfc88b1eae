// Package gif is the gif command's collaborator (§4.1, §4.3). The
// forge.Client already exposes GifSearch; this thin interface lets the
// gif handler depend on just the one method it needs.
package gif

import (
	"context"

	"github.com/clarketm/prbot/internal/forge"
)

// Provider searches a GIF provider for terms.
type Provider interface {
	Search(ctx context.Context, apiKey, terms string) ([]forge.GifResult, error)
}

// FromClient adapts a forge.Client to a Provider.
func FromClient(c forge.Client, apiKey string) Provider {
	return clientProvider{client: c, apiKey: apiKey}
}

type clientProvider struct {
	client forge.Client
	apiKey string
}

func (p clientProvider) Search(ctx context.Context, apiKey, terms string) ([]forge.GifResult, error) {
	return p.client.GifSearch(ctx, apiKey, terms)
}

// Package config is the minimal config surface consumed by the core
// (§6.4). Loading it from YAML/env/flags is the out-of-scope adapter's
// job (§1); the core only ever reads a populated Config value, the way
// prow's plugins consume a *config.Config without knowing how it was
// parsed from config.yaml.
package config

import "github.com/clarketm/prbot/internal/domain"

// Config is the full set of options the core's behavior branches on.
type Config struct {
	BotName string

	Server ServerConfig

	DefaultMergeStrategy            domain.MergeStrategy
	DefaultNeededReviewersCount     int
	DefaultPRTitleValidationRegex   string
	DefaultAutomerge                bool
	DefaultEnableQa                 bool
	DefaultEnableChecks             bool

	GifProviderAPIKey string

	ForgeAppID         int64
	ForgeAppPrivateKey string

	StoreDSN string
	LockDSN  string
}

// ServerConfig holds the toggles the event dispatcher branches on (§4.9).
type ServerConfig struct {
	EnableWelcomeComments bool
}

// RepositoryDefaults builds the seed values for a newly-upserted
// Repository row (§4.9 pull_request.opened).
func (c Config) RepositoryDefaults(owner, name string) domain.Repository {
	return domain.Repository{
		Owner:                       owner,
		Name:                        name,
		PRTitleValidationRegex:      c.DefaultPRTitleValidationRegex,
		DefaultStrategy:             c.DefaultMergeStrategy,
		DefaultNeededReviewersCount: c.DefaultNeededReviewersCount,
		DefaultAutomerge:            c.DefaultAutomerge,
		DefaultEnableQa:             c.DefaultEnableQa,
		DefaultEnableChecks:         c.DefaultEnableChecks,
	}
}

// Package credentials holds the single dynamically registered OAuth client of this process.
package credentials

import "github.com/jrsteele09/go-mcp-auth/oauthmodel"

// Repo persists one registration record. Load returns errors.ErrNotFound when nothing
// has been saved.
type Repo interface {
	Load() (oauthmodel.Registration, error)
	Save(reg oauthmodel.Registration) error
	Delete() error
}

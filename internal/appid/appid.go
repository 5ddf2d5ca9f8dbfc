// Package appid resolves the careerlens application identity.
package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/careerlens/careerlens/internal/assets/appidentity"
)

func init() {
	// An explicit FULMEN_APP_IDENTITY_PATH still wins over the embedded copy.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get loads the identity through gofulmen discovery.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// Default is the built-in identity.
func Default() *appidentity.Identity {
	return &appidentity.Identity{
		Vendor:      "careerlens",
		BinaryName:  "careerlens",
		ConfigName:  "careerlens",
		EnvPrefix:   "CAREERLENS_",
		Description: "Career document analysis API with per-caller admission control and bounded inference",
	}
}

// Resolve returns the discovered identity, or Default when discovery fails
// or leaves required fields empty.
func Resolve(ctx context.Context) *appidentity.Identity {
	identity, err := Get(ctx)
	if err != nil || identity == nil {
		return Default()
	}

	fallback := Default()
	if identity.BinaryName == "" {
		identity.BinaryName = fallback.BinaryName
	}
	if identity.ConfigName == "" {
		identity.ConfigName = fallback.ConfigName
	}
	if identity.EnvPrefix == "" {
		identity.EnvPrefix = fallback.EnvPrefix
	}
	return identity
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/biomonitor-labs/biomonitor-go/internal/platform/env"
)

type Mode string

const (
	ModeOIDC     Mode = "oidc"
	ModeDev      Mode = "dev"
	ModeDisabled Mode = "disabled"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the authenticated caller of a mutating orchestrator endpoint.
type Identity struct {
	Subject string
	Email   string
	Roles   []string
}

func (i Identity) Actor() string {
	if strings.TrimSpace(i.Email) != "" {
		return strings.TrimSpace(i.Email)
	}
	return strings.TrimSpace(i.Subject)
}

type Config struct {
	Mode Mode

	RolesClaim string
	EmailClaim string

	OIDCIssuerURL string
	OIDCClientID  string

	DevSubject string
	DevEmail   string
	DevRoles   []string
}

func ConfigFromEnv() (Config, error) {
	modeRaw := strings.ToLower(strings.TrimSpace(env.String("BIOMON_AUTH_MODE", string(ModeOIDC))))
	var mode Mode
	switch modeRaw {
	case string(ModeOIDC):
		mode = ModeOIDC
	case string(ModeDev):
		mode = ModeDev
	case string(ModeDisabled):
		mode = ModeDisabled
	default:
		return Config{}, fmt.Errorf("BIOMON_AUTH_MODE must be oidc, dev or disabled (got %q)", modeRaw)
	}

	cfg := Config{
		Mode:          mode,
		RolesClaim:    env.String("BIOMON_AUTH_ROLES_CLAIM", "roles"),
		EmailClaim:    env.String("BIOMON_AUTH_EMAIL_CLAIM", "email"),
		OIDCIssuerURL: env.String("BIOMON_AUTH_OIDC_ISSUER_URL", ""),
		OIDCClientID:  env.String("BIOMON_AUTH_OIDC_CLIENT_ID", ""),
		DevSubject:    env.String("BIOMON_AUTH_DEV_SUBJECT", "dev-operator"),
		DevEmail:      env.String("BIOMON_AUTH_DEV_EMAIL", "dev@localhost"),
		DevRoles:      env.Strings("BIOMON_AUTH_DEV_ROLES", []string{"operator"}),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("BIOMON_AUTH_OIDC_ISSUER_URL is required in oidc mode")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("BIOMON_AUTH_OIDC_CLIENT_ID is required in oidc mode")
		}
	case ModeDev, ModeDisabled:
	default:
		return fmt.Errorf("auth mode %q is not supported", c.Mode)
	}
	return nil
}

// Authenticator resolves the caller identity for a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

// DevAuthenticator returns a fixed identity; local development only.
type DevAuthenticator struct {
	cfg Config
}

func NewDevAuthenticator(cfg Config) *DevAuthenticator {
	return &DevAuthenticator{cfg: cfg}
}

func (a *DevAuthenticator) Authenticate(_ context.Context, _ *http.Request) (Identity, error) {
	return Identity{
		Subject: a.cfg.DevSubject,
		Email:   a.cfg.DevEmail,
		Roles:   append([]string(nil), a.cfg.DevRoles...),
	}, nil
}

func tokenFromHeader(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

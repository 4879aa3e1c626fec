// Package bootstrap seeds a fresh instance with a default tenant and an
// administrator account.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/micro-sensor/sitewhere/internal/lifecycle"
	"github.com/micro-sensor/sitewhere/internal/management"

	"github.com/containerd/errdefs"
)

const Name = "instance-bootstrapper"

// Settings keys read from the configuration engine.
const (
	KeyTenantToken   = "instance.bootstrap.tenant.token"
	KeyTenantName    = "instance.bootstrap.tenant.name"
	KeyTenantAuth    = "instance.bootstrap.tenant.authentication_token"
	KeyAdminUsername = "instance.bootstrap.admin.username"
)

// AdminAuthorities are granted to the seeded administrator.
var AdminAuthorities = []string{
	"ADMINISTER_USERS",
	"ADMINISTER_TENANTS",
	"VIEW_SERVER_INFO",
}

// Store is the subset of the management store the bootstrapper writes to.
type Store interface {
	CountTenants(ctx context.Context) (int, error)
	CreateTenant(ctx context.Context, t management.Tenant) (management.Tenant, error)
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, u management.User) (management.User, error)
}

// Settings resolves configuration values with defaults.
type Settings interface {
	String(key, def string) string
}

// Bootstrapper seeds defaults on start when the store is empty. Existing
// data is never modified.
type Bootstrapper struct {
	*lifecycle.Base

	store    Store
	settings Settings
}

func New(store Store, settings Settings) *Bootstrapper {
	b := &Bootstrapper{store: store, settings: settings}
	b.Base = lifecycle.NewBase(Name, lifecycle.Hooks{
		Initialize: b.initialize,
		Start:      b.start,
	})
	return b
}

func (b *Bootstrapper) initialize(context.Context, lifecycle.Monitor) error {
	if b.store == nil {
		return lifecycle.ConfigurationErrorf("bootstrapper requires a management store")
	}
	if b.settings == nil {
		return lifecycle.ConfigurationErrorf("bootstrapper requires configuration settings")
	}
	return nil
}

func (b *Bootstrapper) start(ctx context.Context, m lifecycle.Monitor) error {
	log := slog.With("component", Name)

	admin := b.settings.String(KeyAdminUsername, "admin")
	users, err := b.store.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if users == 0 {
		_, err := b.store.CreateUser(ctx, management.User{
			Username:    admin,
			FirstName:   "Admin",
			LastName:    "User",
			Authorities: AdminAuthorities,
		})
		if err != nil && !errdefs.IsAlreadyExists(err) {
			return fmt.Errorf("seed admin user: %w", err)
		}
		log.Info("seeded administrator", "username", admin)
		m.Notify("seeded administrator " + admin)
	}

	tenants, err := b.store.CountTenants(ctx)
	if err != nil {
		return fmt.Errorf("count tenants: %w", err)
	}
	if tenants == 0 {
		token := b.settings.String(KeyTenantToken, "default")
		_, err := b.store.CreateTenant(ctx, management.Tenant{
			Token:               token,
			Name:                b.settings.String(KeyTenantName, "Default Tenant"),
			AuthenticationToken: b.settings.String(KeyTenantAuth, "sitewhere1234567890"),
			AuthorizedUsers:     []string{admin},
			Template:            "default",
		})
		if err != nil && !errdefs.IsAlreadyExists(err) {
			return fmt.Errorf("seed default tenant: %w", err)
		}
		log.Info("seeded default tenant", "token", token)
		m.Notify("seeded tenant " + token)
	}
	return nil
}

package management

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/go-playground/validator/v10"
)

// User is a management user account.
type User struct {
	Username    string    `json:"username" validate:"required,max=64,excludesall=/"`
	FirstName   string    `json:"first_name,omitempty" validate:"max=128"`
	LastName    string    `json:"last_name,omitempty" validate:"max=128"`
	Authorities []string  `json:"authorities,omitempty" validate:"dive,required"`
	Status      string    `json:"status,omitempty" validate:"omitempty,oneof=active locked"`
	CreatedAt   time.Time `json:"created_at"`
}

// Tenant is one tenant hosted by the instance.
type Tenant struct {
	Token               string            `json:"token" validate:"required,max=64,excludesall=/"`
	Name                string            `json:"name" validate:"required,max=128"`
	AuthenticationToken string            `json:"authentication_token,omitempty"`
	AuthorizedUsers     []string          `json:"authorized_users,omitempty" validate:"dive,required"`
	Template            string            `json:"template,omitempty"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
}

const (
	StatusActive = "active"
	StatusLocked = "locked"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateEntity(kind string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate %s: %w", kind, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid %s: %s: %w", kind, strings.Join(msgs, ", "), errdefs.ErrInvalidArgument)
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
)

// Capability is a single permission granted to a role.
type Capability string

const (
	CapCaseCreate     Capability = "case_create"
	CapCaseEdit       Capability = "case_edit"
	CapTaskCreate     Capability = "task_create"
	CapTaskEdit       Capability = "task_edit"
	CapNoteAdd        Capability = "note_add"
	CapManageSettings Capability = "manage_settings"
)

// AllCapabilities lists every capability in display order.
var AllCapabilities = []Capability{
	CapCaseCreate, CapCaseEdit, CapTaskCreate, CapTaskEdit, CapNoteAdd, CapManageSettings,
}

// ValidCapability reports whether c is a known capability.
func ValidCapability(c Capability) bool {
	for _, known := range AllCapabilities {
		if c == known {
			return true
		}
	}
	return false
}

// ErrForbidden is returned when an actor lacks a required capability.
var ErrForbidden = errors.New("forbidden")

// CapabilitySet is an unordered set of capabilities.
type CapabilitySet map[Capability]bool

// NewCapabilitySet builds a set from caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = true
	}
	return s
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool { return s[c] }

// Merge adds every capability of other to s.
func (s CapabilitySet) Merge(other CapabilitySet) {
	for c, ok := range other {
		if ok {
			s[c] = true
		}
	}
}

// List returns the set sorted by name.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c, ok := range s {
		if ok {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Actor is the authenticated caller passed explicitly to services.
type Actor struct {
	ID           string
	Roles        []string
	Capabilities CapabilitySet
}

// Require returns ErrForbidden unless the actor holds c.
func (a Actor) Require(c Capability) error {
	if a.Capabilities.Has(c) {
		return nil
	}
	return fmt.Errorf("%w: %s requires %s", ErrForbidden, a.ID, c)
}

// SystemActor holds every capability. Used by CLI commands.
func SystemActor(id string) Actor {
	return Actor{ID: id, Roles: []string{"system"}, Capabilities: NewCapabilitySet(AllCapabilities...)}
}

// CapabilityResolver maps role names to the capabilities they grant.
type CapabilityResolver interface {
	CapabilitiesFor(ctx context.Context, roles []string) (CapabilitySet, error)
}

const actorKey contextKey = "actor"

// ActorMiddleware resolves the roles placed on the context by JWTMiddleware
// or DevAuthMiddleware into an Actor.
func ActorMiddleware(resolver CapabilityResolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) {
				return next(c)
			}
			ctx := c.Request().Context()
			roles := RolesFromContext(ctx)
			caps, err := resolver.CapabilitiesFor(ctx, roles)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, "resolve capabilities")
			}
			actor := Actor{ID: UserIDFromContext(ctx), Roles: roles, Capabilities: caps}
			c.SetRequest(c.Request().WithContext(WithActor(ctx, actor)))
			return next(c)
		}
	}
}

// WithActor returns a context carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext returns the actor on ctx. The zero Actor holds no capabilities.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey).(Actor)
	return a
}

// RequireCapability rejects requests whose actor lacks any of caps.
func RequireCapability(caps ...Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor := ActorFromContext(c.Request().Context())
			for _, cp := range caps {
				if err := actor.Require(cp); err != nil {
					return echo.NewHTTPError(http.StatusForbidden, fmt.Sprintf("required capability: %s", cp))
				}
			}
			return next(c)
		}
	}
}

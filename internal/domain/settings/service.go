package settings

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func validateSetting(rs *RoleSetting) error {
	rs.RoleName = strings.TrimSpace(rs.RoleName)
	if rs.RoleName == "" {
		return followup.Invalid("role_name", "role name is required")
	}
	if len(rs.RoleName) > 50 {
		return followup.Invalid("role_name", "role name is longer than 50 characters")
	}
	set := auth.CapabilitySet{}
	for _, c := range rs.Capabilities {
		if !auth.ValidCapability(c) {
			return followup.Invalid("capabilities", "unknown capability %q", c)
		}
		set[c] = true
	}
	if rs.RoleName == AdminRole && !set.Has(auth.CapManageSettings) {
		return followup.Invalid("capabilities", "the %s role must keep %s", AdminRole, auth.CapManageSettings)
	}
	rs.Capabilities = set.List()
	return nil
}

// EnsureDefaults creates any missing default role. Existing rows are left
// untouched so edits survive restarts.
func (s *Service) EnsureDefaults(ctx context.Context) error {
	for _, rs := range DefaultRoleSettings() {
		rs := rs
		created, err := s.repo.InsertIfMissing(ctx, &rs)
		if err != nil {
			return err
		}
		if created {
			s.logger.Info().Str("role", rs.RoleName).Msg("default role setting created")
		}
	}
	return nil
}

// CapabilitiesFor returns the union of capabilities granted to roles.
// Unknown roles grant nothing.
func (s *Service) CapabilitiesFor(ctx context.Context, roles []string) (auth.CapabilitySet, error) {
	set := auth.CapabilitySet{}
	if len(roles) == 0 {
		return set, nil
	}
	settings, err := s.repo.GetMany(ctx, roles)
	if err != nil {
		return nil, err
	}
	for _, rs := range settings {
		set.Merge(auth.NewCapabilitySet(rs.Capabilities...))
	}
	return set, nil
}

func (s *Service) List(ctx context.Context) ([]*RoleSetting, error) {
	return s.repo.List(ctx)
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, rs *RoleSetting) error {
	if err := actor.Require(auth.CapManageSettings); err != nil {
		return err
	}
	if err := validateSetting(rs); err != nil {
		return err
	}
	if err := s.repo.Upsert(ctx, rs); err != nil {
		return err
	}
	s.logger.Info().Str("role", rs.RoleName).Str("actor", actor.ID).
		Interface("capabilities", rs.Capabilities).Msg("role setting updated")
	return nil
}

// ApplySeed upserts every seeded role.
func (s *Service) ApplySeed(ctx context.Context, actor auth.Actor, seeds []RoleSetting) error {
	for i := range seeds {
		if err := s.Update(ctx, actor, &seeds[i]); err != nil {
			return err
		}
	}
	return nil
}

package patient

import (
	"context"
	"strings"

	"github.com/google/uuid"
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

// validPhone reports whether s is exactly ten digits.
func validPhone(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalize(p *Patient) {
	p.UHID = strings.TrimSpace(p.UHID)
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.Place = strings.TrimSpace(p.Place)
	if p.AlternatePhone != nil {
		alt := strings.TrimSpace(*p.AlternatePhone)
		if alt == "" {
			p.AlternatePhone = nil
		} else {
			p.AlternatePhone = &alt
		}
	}
	p.Gender = Gender(strings.ToUpper(string(p.Gender)))
	if p.Gender == "" {
		p.Gender = GenderUnknown
	}
	if p.DateOfBirth != nil {
		d := followup.Day(*p.DateOfBirth)
		p.DateOfBirth = &d
	}
}

func validate(p *Patient) error {
	if p.UHID == "" {
		return followup.Invalid("uhid", "UHID is required")
	}
	if p.FirstName == "" {
		return followup.Invalid("first_name", "first name is required")
	}
	if !validPhone(p.Phone) {
		return followup.Invalid("phone", "phone number must be exactly 10 digits")
	}
	if p.AlternatePhone != nil && !validPhone(*p.AlternatePhone) {
		return followup.Invalid("alternate_phone", "alternate phone number must be exactly 10 digits")
	}
	if !validGenders[p.Gender] {
		return followup.Invalid("gender", "unknown gender %q", p.Gender)
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, actor auth.Actor, p *Patient) error {
	if err := actor.Require(auth.CapCaseCreate); err != nil {
		return err
	}
	normalize(p)
	if err := validate(p); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Str("actor", actor.ID).Msg("patient registered")
	return nil
}

func (s *Service) UpdatePatient(ctx context.Context, actor auth.Actor, p *Patient) error {
	if err := actor.Require(auth.CapCaseEdit); err != nil {
		return err
	}
	normalize(p)
	if err := validate(p); err != nil {
		return err
	}
	return s.repo.Update(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetPatients(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Patient, error) {
	return s.repo.GetMany(ctx, ids)
}

func (s *Service) GetPatientByUHID(ctx context.Context, uhid string) (*Patient, error) {
	return s.repo.GetByUHID(ctx, strings.TrimSpace(uhid))
}

func (s *Service) SearchPatients(ctx context.Context, q string, limit, offset int) ([]*Patient, int, error) {
	return s.repo.Search(ctx, strings.TrimSpace(q), limit, offset)
}

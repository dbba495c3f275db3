package followup

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PathwayFields is the tagged union of per-pathway case fields. Only the
// variants in this package implement it.
type PathwayFields interface {
	Pathway() Pathway
	Validate() error
	pathwayFields()
}

// ANCFields carries antenatal care dates.
type ANCFields struct {
	LMP    time.Time
	EDD    *time.Time
	USGEDD *time.Time
}

func (ANCFields) Pathway() Pathway { return PathwayANC }
func (ANCFields) pathwayFields()   {}

func (f ANCFields) Validate() error {
	if f.LMP.IsZero() {
		return Invalid("lmp", "ANC cases require a last menstrual period date")
	}
	if f.EDD != nil && !Day(*f.EDD).After(Day(f.LMP)) {
		return Invalid("edd", "estimated due date must be after LMP")
	}
	if f.USGEDD != nil && !Day(*f.USGEDD).After(Day(f.LMP)) {
		return Invalid("usg_edd", "ultrasound due date must be after LMP")
	}
	return nil
}

// EffectiveEDD prefers the ultrasound date, then the recorded EDD, then LMP + 280 days.
func (f ANCFields) EffectiveEDD() time.Time {
	if f.USGEDD != nil {
		return Day(*f.USGEDD)
	}
	if f.EDD != nil {
		return Day(*f.EDD)
	}
	return EstimatedDueDate(f.LMP)
}

// Gestation is the progress of an ANC case as of one day.
type Gestation struct {
	Weeks     int    `json:"gestational_weeks"`
	Trimester int    `json:"trimester"`
	EDD       string `json:"edd"`
}

// GestationOf returns the gestation of an ANC case as of asOf, or nil for
// other pathways.
func GestationOf(f PathwayFields, asOf time.Time) *Gestation {
	anc, ok := f.(ANCFields)
	if !ok || anc.LMP.IsZero() {
		return nil
	}
	return &Gestation{
		Weeks:     GestationalWeeks(anc.LMP, asOf),
		Trimester: Trimester(anc.LMP, asOf),
		EDD:       formatDate(anc.EffectiveEDD()),
	}
}

// SurgeryMode selects between a single planned operation and recurring surveillance.
type SurgeryMode string

const (
	SurgeryPlanned      SurgeryMode = "PLANNED"
	SurgerySurveillance SurgeryMode = "SURVEILLANCE"
)

// SurgeryFields carries surgical pathway fields.
type SurgeryFields struct {
	Mode        SurgeryMode
	PlannedDate *time.Time
	ReviewDate  *time.Time
}

func (SurgeryFields) Pathway() Pathway { return PathwaySurgery }
func (SurgeryFields) pathwayFields()   {}

func (f SurgeryFields) Validate() error {
	switch f.Mode {
	case SurgeryPlanned:
		if f.PlannedDate == nil || f.PlannedDate.IsZero() {
			return Invalid("planned_date", "planned surgery cases require a surgery date")
		}
	case SurgerySurveillance:
	case "":
		return Invalid("mode", "choose surveillance or planned surgery")
	default:
		return Invalid("mode", "unknown surgery mode %q", f.Mode)
	}
	return nil
}

// NonSurgicalFields carries consultant review scheduling.
type NonSurgicalFields struct {
	ReviewFrequencyDays int
	FirstReviewDate     time.Time
}

func (NonSurgicalFields) Pathway() Pathway { return PathwayNonSurgical }
func (NonSurgicalFields) pathwayFields()   {}

func (f NonSurgicalFields) Validate() error {
	if f.ReviewFrequencyDays <= 0 {
		return Invalid("review_frequency_days", "must be a positive number of days")
	}
	if f.FirstReviewDate.IsZero() {
		return Invalid("first_review_date", "non-surgical cases require a review date")
	}
	return nil
}

// ValidateFields checks that f is present and internally consistent.
func ValidateFields(f PathwayFields) error {
	if f == nil {
		return Invalid("pathway", "pathway fields are required")
	}
	return f.Validate()
}

var reviewFrequencies = map[string]int{
	"MONTHLY":     30,
	"QUARTERLY":   90,
	"HALF_YEARLY": 180,
	"YEARLY":      365,
}

// FrequencyDays converts a named review frequency to days.
func FrequencyDays(label string) (int, bool) {
	d, ok := reviewFrequencies[strings.ToUpper(strings.TrimSpace(label))]
	return d, ok
}

// -- wire encoding --

// ANCWire is the JSON form of ANCFields.
type ANCWire struct {
	LMP    string  `json:"lmp" yaml:"lmp"`
	EDD    *string `json:"edd,omitempty" yaml:"edd,omitempty"`
	USGEDD *string `json:"usg_edd,omitempty" yaml:"usg_edd,omitempty"`
}

// SurgeryWire is the JSON form of SurgeryFields.
type SurgeryWire struct {
	Mode        string  `json:"mode" yaml:"mode"`
	PlannedDate *string `json:"planned_date,omitempty" yaml:"planned_date,omitempty"`
	ReviewDate  *string `json:"review_date,omitempty" yaml:"review_date,omitempty"`
}

// NonSurgicalWire is the JSON form of NonSurgicalFields. ReviewFrequency
// accepts a named frequency when days are not given.
type NonSurgicalWire struct {
	ReviewFrequencyDays int    `json:"review_frequency_days,omitempty" yaml:"review_frequency_days,omitempty"`
	ReviewFrequency     string `json:"review_frequency,omitempty" yaml:"review_frequency,omitempty"`
	FirstReviewDate     string `json:"first_review_date" yaml:"first_review_date"`
}

// Envelope carries a pathway tag and exactly one matching variant.
type Envelope struct {
	Pathway     Pathway          `json:"pathway" yaml:"pathway"`
	ANC         *ANCWire         `json:"anc,omitempty" yaml:"anc,omitempty"`
	Surgery     *SurgeryWire     `json:"surgery,omitempty" yaml:"surgery,omitempty"`
	NonSurgical *NonSurgicalWire `json:"non_surgical,omitempty" yaml:"non_surgical,omitempty"`
}

// Fields converts the envelope to the tagged union and validates it.
func (e Envelope) Fields() (PathwayFields, error) {
	populated := 0
	for _, set := range []bool{e.ANC != nil, e.Surgery != nil, e.NonSurgical != nil} {
		if set {
			populated++
		}
	}
	if populated != 1 {
		return nil, Invalid("pathway", "exactly one pathway variant must be provided, got %d", populated)
	}

	var (
		f   PathwayFields
		err error
	)
	switch e.Pathway {
	case PathwayANC:
		if e.ANC == nil {
			return nil, Invalid("anc", "ANC fields are required for pathway %s", e.Pathway)
		}
		f, err = e.ANC.fields()
	case PathwaySurgery:
		if e.Surgery == nil {
			return nil, Invalid("surgery", "surgery fields are required for pathway %s", e.Pathway)
		}
		f, err = e.Surgery.fields()
	case PathwayNonSurgical:
		if e.NonSurgical == nil {
			return nil, Invalid("non_surgical", "non-surgical fields are required for pathway %s", e.Pathway)
		}
		f, err = e.NonSurgical.fields()
	default:
		return nil, Invalid("pathway", "unknown pathway %q", e.Pathway)
	}
	if err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// EnvelopeOf converts fields back to their wire form.
func EnvelopeOf(f PathwayFields) Envelope {
	switch v := f.(type) {
	case ANCFields:
		return Envelope{Pathway: PathwayANC, ANC: &ANCWire{
			LMP: formatDate(v.LMP), EDD: formatDatePtr(v.EDD), USGEDD: formatDatePtr(v.USGEDD),
		}}
	case SurgeryFields:
		return Envelope{Pathway: PathwaySurgery, Surgery: &SurgeryWire{
			Mode: string(v.Mode), PlannedDate: formatDatePtr(v.PlannedDate), ReviewDate: formatDatePtr(v.ReviewDate),
		}}
	case NonSurgicalFields:
		return Envelope{Pathway: PathwayNonSurgical, NonSurgical: &NonSurgicalWire{
			ReviewFrequencyDays: v.ReviewFrequencyDays, FirstReviewDate: formatDate(v.FirstReviewDate),
		}}
	}
	return Envelope{}
}

// EncodeFields returns the JSON payload stored alongside the pathway tag.
func EncodeFields(f PathwayFields) ([]byte, error) {
	env := EnvelopeOf(f)
	switch env.Pathway {
	case PathwayANC:
		return json.Marshal(env.ANC)
	case PathwaySurgery:
		return json.Marshal(env.Surgery)
	case PathwayNonSurgical:
		return json.Marshal(env.NonSurgical)
	}
	return nil, fmt.Errorf("encode pathway fields: unsupported type %T", f)
}

// DecodeFields rebuilds the tagged union from a stored pathway tag and payload.
func DecodeFields(p Pathway, raw []byte) (PathwayFields, error) {
	env := Envelope{Pathway: p}
	var err error
	switch p {
	case PathwayANC:
		env.ANC = &ANCWire{}
		err = json.Unmarshal(raw, env.ANC)
	case PathwaySurgery:
		env.Surgery = &SurgeryWire{}
		err = json.Unmarshal(raw, env.Surgery)
	case PathwayNonSurgical:
		env.NonSurgical = &NonSurgicalWire{}
		err = json.Unmarshal(raw, env.NonSurgical)
	default:
		return nil, fmt.Errorf("decode pathway fields: unknown pathway %q", p)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s fields: %w", p, err)
	}
	return env.Fields()
}

func (w ANCWire) fields() (PathwayFields, error) {
	lmp, err := parseField("lmp", w.LMP)
	if err != nil {
		return nil, err
	}
	edd, err := parseFieldPtr("edd", w.EDD)
	if err != nil {
		return nil, err
	}
	usg, err := parseFieldPtr("usg_edd", w.USGEDD)
	if err != nil {
		return nil, err
	}
	return ANCFields{LMP: lmp, EDD: edd, USGEDD: usg}, nil
}

func (w SurgeryWire) fields() (PathwayFields, error) {
	planned, err := parseFieldPtr("planned_date", w.PlannedDate)
	if err != nil {
		return nil, err
	}
	review, err := parseFieldPtr("review_date", w.ReviewDate)
	if err != nil {
		return nil, err
	}
	return SurgeryFields{
		Mode:        SurgeryMode(strings.ToUpper(strings.TrimSpace(w.Mode))),
		PlannedDate: planned,
		ReviewDate:  review,
	}, nil
}

func (w NonSurgicalWire) fields() (PathwayFields, error) {
	days := w.ReviewFrequencyDays
	if days == 0 && w.ReviewFrequency != "" {
		d, ok := FrequencyDays(w.ReviewFrequency)
		if !ok {
			return nil, Invalid("review_frequency", "unknown review frequency %q", w.ReviewFrequency)
		}
		days = d
	}
	first, err := parseField("first_review_date", w.FirstReviewDate)
	if err != nil {
		return nil, err
	}
	return NonSurgicalFields{ReviewFrequencyDays: days, FirstReviewDate: first}, nil
}

func parseField(field, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}, Invalid(field, "invalid date %q, want YYYY-MM-DD", s)
	}
	return t, nil
}

func parseFieldPtr(field string, s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := parseField(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return Day(t).Format(DateLayout)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

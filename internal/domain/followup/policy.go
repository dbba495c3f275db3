package followup

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Milestone is a gestational-week checkpoint in the ANC pathway.
type Milestone struct {
	Week  int      `yaml:"week"`
	Items []string `yaml:"items,omitempty"`
}

// Kind is the task label generated for the milestone.
func (m Milestone) Kind() string {
	return fmt.Sprintf("ANC checklist week %d", m.Week)
}

// PreOpTask is an optional checklist item scheduled before a planned surgery.
type PreOpTask struct {
	Kind       string   `yaml:"kind"`
	DaysBefore int      `yaml:"days_before"`
	Type       TaskType `yaml:"type,omitempty"`
}

// Policy holds the tunable constants of derivation and classification.
type Policy struct {
	RedThresholdDays         int         `yaml:"red_threshold_days"`
	LookaheadDays            int         `yaml:"lookahead_days"`
	SurveillanceIntervalDays int         `yaml:"surveillance_interval_days"`
	ANCGraceDays             int         `yaml:"anc_grace_days"`
	ANCMilestones            []Milestone `yaml:"anc_milestones"`
	PreOpTasks               []PreOpTask `yaml:"pre_op_tasks,omitempty"`
}

// DefaultPolicy returns the stock constants.
func DefaultPolicy() Policy {
	return Policy{
		RedThresholdDays:         14,
		LookaheadDays:            7,
		SurveillanceIntervalDays: 90,
		ANCGraceDays:             7,
		ANCMilestones: []Milestone{
			{Week: 12, Items: []string{
				"Routine prenatal check up",
				"First trimester combined test",
				"NT ultrasound scan and double marker test",
			}},
			{Week: 20, Items: []string{
				"Routine prenatal check up",
				"Anomaly (level II) ultrasound scan",
			}},
			{Week: 28, Items: []string{
				"Routine prenatal check up",
				"Second dose of Tetanus Toxoid (TT) injection",
				"Growth and fetal wellbeing ultrasound scan",
				"Blood test (CBC/Urine R/OGCT)",
			}},
			{Week: 36, Items: []string{
				"Routine prenatal check up",
				"Growth ultrasound scan",
				"Nonstress test (NST)",
				"Blood test (CBC/HIV/HBsAg)",
			}},
		},
	}
}

// WithMilestoneWeeks replaces the milestone weeks, keeping checklist items for
// weeks that were already configured.
func (p Policy) WithMilestoneWeeks(weeks []int) Policy {
	items := make(map[int][]string, len(p.ANCMilestones))
	for _, m := range p.ANCMilestones {
		items[m.Week] = m.Items
	}
	out := make([]Milestone, 0, len(weeks))
	for _, w := range weeks {
		out = append(out, Milestone{Week: w, Items: items[w]})
	}
	p.ANCMilestones = out
	return p
}

// Validate rejects constants that would make classification or derivation meaningless.
func (p Policy) Validate() error {
	if p.RedThresholdDays <= 0 {
		return fmt.Errorf("policy: red_threshold_days must be positive, got %d", p.RedThresholdDays)
	}
	if p.LookaheadDays < 0 {
		return fmt.Errorf("policy: lookahead_days must not be negative, got %d", p.LookaheadDays)
	}
	if p.SurveillanceIntervalDays <= 0 {
		return fmt.Errorf("policy: surveillance_interval_days must be positive, got %d", p.SurveillanceIntervalDays)
	}
	if p.ANCGraceDays < 0 {
		return fmt.Errorf("policy: anc_grace_days must not be negative, got %d", p.ANCGraceDays)
	}
	if len(p.ANCMilestones) == 0 {
		return fmt.Errorf("policy: at least one ANC milestone is required")
	}
	seen := make(map[int]bool, len(p.ANCMilestones))
	for _, m := range p.ANCMilestones {
		if m.Week < 1 || m.Week > 42 {
			return fmt.Errorf("policy: ANC milestone week %d out of range 1-42", m.Week)
		}
		if seen[m.Week] {
			return fmt.Errorf("policy: duplicate ANC milestone week %d", m.Week)
		}
		seen[m.Week] = true
	}
	for _, t := range p.PreOpTasks {
		if strings.TrimSpace(t.Kind) == "" {
			return fmt.Errorf("policy: pre-op task kind is required")
		}
		if t.Kind == KindPlannedSurgery {
			return fmt.Errorf("policy: pre-op task kind %q collides with the surgery task", t.Kind)
		}
		if t.DaysBefore < 0 {
			return fmt.Errorf("policy: pre-op task %q has negative days_before", t.Kind)
		}
		if t.Type != "" && !ValidTaskType(t.Type) {
			return fmt.Errorf("policy: pre-op task %q has unknown type %q", t.Kind, t.Type)
		}
	}
	return nil
}

func (p Policy) sortedMilestones() []Milestone {
	ms := append([]Milestone(nil), p.ANCMilestones...)
	sort.Slice(ms, func(i, j int) bool { return ms[i].Week < ms[j].Week })
	return ms
}

// ParsePolicyYAML overlays YAML values on base. Keys absent from the document
// keep base's values.
func ParsePolicyYAML(data []byte, base Policy) (Policy, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Policy{}, fmt.Errorf("policy: document is empty")
	}
	p := base
	p.ANCMilestones = append([]Milestone(nil), base.ANCMilestones...)
	p.PreOpTasks = append([]PreOpTask(nil), base.PreOpTasks...)
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("policy: decode: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicyFile reads a YAML policy file and overlays it on base.
func LoadPolicyFile(path string, base Policy) (Policy, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: read %s: %w", path, err)
	}
	p, err := ParsePolicyYAML(content, base)
	if err != nil {
		return Policy{}, fmt.Errorf("policy: %s: %w", path, err)
	}
	return p, nil
}

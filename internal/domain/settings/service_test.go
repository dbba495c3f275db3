package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

type mockRepo struct {
	store map[string]*RoleSetting
}

func newMockRepo() *mockRepo {
	return &mockRepo{store: make(map[string]*RoleSetting)}
}

func (m *mockRepo) List(_ context.Context) ([]*RoleSetting, error) {
	var out []*RoleSetting
	for _, rs := range m.store {
		cp := *rs
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleName < out[j].RoleName })
	return out, nil
}

func (m *mockRepo) Get(_ context.Context, role string) (*RoleSetting, error) {
	rs, ok := m.store[role]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rs
	return &cp, nil
}

func (m *mockRepo) GetMany(_ context.Context, roles []string) ([]*RoleSetting, error) {
	var out []*RoleSetting
	for _, r := range roles {
		if rs, ok := m.store[r]; ok {
			cp := *rs
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockRepo) Upsert(_ context.Context, rs *RoleSetting) error {
	cp := *rs
	m.store[rs.RoleName] = &cp
	return nil
}

func (m *mockRepo) InsertIfMissing(_ context.Context, rs *RoleSetting) (bool, error) {
	if _, ok := m.store[rs.RoleName]; ok {
		return false, nil
	}
	cp := *rs
	m.store[rs.RoleName] = &cp
	return true, nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, zerolog.Nop()), repo
}

var admin = auth.SystemActor("admin-1")

func TestEnsureDefaults_CreatesAndPreserves(t *testing.T) {
	svc, repo := newTestService()
	repo.store["Nurse"] = &RoleSetting{RoleName: "Nurse", Capabilities: []auth.Capability{auth.CapNoteAdd}}

	if err := svc.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.store) != 5 {
		t.Fatalf("expected 5 roles, got %d", len(repo.store))
	}
	if caps := repo.store["Nurse"].Capabilities; len(caps) != 1 {
		t.Errorf("existing Nurse setting was overwritten: %v", caps)
	}
	if err := svc.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestCapabilitiesFor_Union(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.EnsureDefaults(context.Background()); err != nil {
		t.Fatal(err)
	}

	caps, err := svc.CapabilitiesFor(context.Background(), []string{"Nurse", "Caller", "Ghost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !caps.Has(auth.CapTaskEdit) || !caps.Has(auth.CapNoteAdd) {
		t.Errorf("expected task_edit and note_add, got %v", caps.List())
	}
	if caps.Has(auth.CapCaseCreate) {
		t.Error("nurse must not create cases")
	}

	none, err := svc.CapabilitiesFor(context.Background(), nil)
	if err != nil || len(none) != 0 {
		t.Errorf("expected empty set, got %v, %v", none, err)
	}
}

func TestCapabilitiesFor_DefaultDoctorLacksSettings(t *testing.T) {
	svc, _ := newTestService()
	_ = svc.EnsureDefaults(context.Background())
	caps, _ := svc.CapabilitiesFor(context.Background(), []string{"Doctor"})
	if caps.Has(auth.CapManageSettings) {
		t.Error("doctor should not manage settings by default")
	}
	if !caps.Has(auth.CapTaskCreate) {
		t.Error("doctor should create tasks")
	}
}

func TestUpdate_RequiresCapability(t *testing.T) {
	svc, _ := newTestService()
	nurse := auth.Actor{ID: "n1", Capabilities: auth.NewCapabilitySet(auth.CapTaskEdit)}
	err := svc.Update(context.Background(), nurse, &RoleSetting{RoleName: "Caller"})
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestUpdate_Validation(t *testing.T) {
	svc, _ := newTestService()
	tests := map[string]*RoleSetting{
		"empty name":    {RoleName: "  "},
		"unknown cap":   {RoleName: "Caller", Capabilities: []auth.Capability{"fly"}},
		"admin lockout": {RoleName: AdminRole, Capabilities: []auth.Capability{auth.CapNoteAdd}},
	}
	for name, rs := range tests {
		t.Run(name, func(t *testing.T) {
			if err := svc.Update(context.Background(), admin, rs); !followup.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUpdate_DedupesCapabilities(t *testing.T) {
	svc, repo := newTestService()
	rs := &RoleSetting{RoleName: " Caller ", Capabilities: []auth.Capability{auth.CapNoteAdd, auth.CapNoteAdd, auth.CapTaskEdit}}
	if err := svc.Update(context.Background(), admin, rs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := repo.store["Caller"]
	if got == nil || len(got.Capabilities) != 2 {
		t.Fatalf("expected 2 capabilities under Caller, got %+v", got)
	}
}

func TestParseSeedYAML(t *testing.T) {
	seeds, err := ParseSeedYAML([]byte(`
roles:
  - role: Pharmacist
    capabilities: [note_add, task_edit]
  - role: Admin
    capabilities: [case_create, manage_settings]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seeds) != 2 || seeds[0].RoleName != "Pharmacist" || len(seeds[0].Capabilities) != 2 {
		t.Errorf("unexpected seeds: %+v", seeds)
	}

	bad := []string{
		"",
		"roles: [",
		"roles: []",
		"roles:\n  - role: X\n    capabilities: [teleport]\n",
		"roles:\n  - role: X\n  - role: X\n",
	}
	for _, doc := range bad {
		if _, err := ParseSeedYAML([]byte(doc)); err == nil {
			t.Errorf("expected error for %q", doc)
		}
	}
}

func TestLoadSeedFile_Apply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	if err := os.WriteFile(path, []byte("roles:\n  - role: Caller\n    capabilities: [note_add, task_edit]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	seeds, err := LoadSeedFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc, repo := newTestService()
	if err := svc.ApplySeed(context.Background(), admin, seeds); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !auth.NewCapabilitySet(repo.store["Caller"].Capabilities...).Has(auth.CapTaskEdit) {
		t.Error("seeded capability missing")
	}

	if _, err := LoadSeedFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

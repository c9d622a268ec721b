package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/face-sync/internal/database"
)

var (
	_ database.TemplateStore = (*TemplateStore)(nil)
	_ database.SessionStore  = (*SessionStore)(nil)
	_ database.RosterReader  = (*Roster)(nil)
)

func TestTemplateStore_PutAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewTemplateStore()

	first, err := s.PutTemplate(ctx, "alice", []float64{1, 0})
	if err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}
	second, err := s.PutTemplate(ctx, "bob", []float64{0, 1})
	if err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}
	if first.ID >= second.ID {
		t.Errorf("IDs not ascending: %d then %d", first.ID, second.ID)
	}

	// Re-enrolling keeps the ID and replaces the vector.
	again, err := s.PutTemplate(ctx, "alice", []float64{0.5, 0.5})
	if err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("re-enroll changed ID from %d to %d", first.ID, again.ID)
	}

	all, err := s.GetAllTemplates(ctx)
	if err != nil {
		t.Fatalf("GetAllTemplates: %v", err)
	}
	if len(all) != 2 || all[0].OwnerID != "alice" || all[1].OwnerID != "bob" {
		t.Fatalf("unexpected templates: %+v", all)
	}
	if all[0].Vector[0] != 0.5 {
		t.Errorf("vector not replaced: %v", all[0].Vector)
	}

	// Returned slices are copies.
	all[1].Vector[0] = 42
	got, err := s.GetTemplate(ctx, "bob")
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if got.Vector[0] != 0 {
		t.Error("store shares vector memory with callers")
	}

	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestTemplateStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewTemplateStore()
	if _, err := s.PutTemplate(ctx, "alice", []float64{1, 0}); err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}

	if err := s.DeleteTemplate(ctx, "alice"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := s.GetTemplate(ctx, "alice"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteTemplate(ctx, "alice"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestSessionStore_CreateSupersedesOpen(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	now := time.Now()

	first := database.NewStoredSession("s1", "CSC 401", []string{"a"}, now)
	if err := s.CreateSession(ctx, first); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	second := database.NewStoredSession("s2", "CSC 401", []string{"a", "b"}, now.Add(time.Minute))
	if err := s.CreateSession(ctx, second); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	latest, err := s.LatestSession(ctx, "CSC 401")
	if err != nil {
		t.Fatalf("LatestSession: %v", err)
	}
	if latest.ID != "s2" || latest.State != database.SessionOpen {
		t.Errorf("latest = %s (%s), want s2 (open)", latest.ID, latest.State)
	}

	old, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if old.State != database.SessionSuperseded {
		t.Errorf("old session state = %s, want superseded", old.State)
	}

	list, err := s.ListSessions(ctx, "CSC 401", 0)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 || list[0].ID != "s2" || list[1].ID != "s1" {
		t.Errorf("ListSessions order wrong: %+v", list)
	}

	if _, err := s.LatestSession(ctx, "MTH 101"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown course, got %v", err)
	}
}

func TestSessionStore_UpdateVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore()
	if err := s.CreateSession(ctx, database.NewStoredSession("s1", "CSC 401", []string{"a", "b"}, time.Now())); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	stale, _ := s.GetSession(ctx, "s1")
	fresh, _ := s.GetSession(ctx, "s1")

	if _, err := fresh.MarkPresent("a", time.Now()); err != nil {
		t.Fatalf("MarkPresent: %v", err)
	}
	if err := s.UpdateSession(ctx, fresh, fresh.Version); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if fresh.Version != 1 {
		t.Errorf("version after update = %d, want 1", fresh.Version)
	}

	if _, err := stale.MarkPresent("b", time.Now()); err != nil {
		t.Fatalf("MarkPresent: %v", err)
	}
	err := s.UpdateSession(ctx, stale, stale.Version)
	if !errors.Is(err, database.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, _ := s.GetSession(ctx, "s1")
	if got.Students[0].Status != database.StatusPresent || got.Students[1].Status != database.StatusAbsent {
		t.Errorf("stale write leaked: %+v", got.Students)
	}
}

func TestRoster(t *testing.T) {
	ctx := context.Background()
	r := NewRoster(map[string][]string{"CSC 401": {"a", "b"}})

	ok, _ := r.CourseExists(ctx, "CSC 401")
	if !ok {
		t.Error("expected course to exist")
	}
	r.Enroll("csc-401", "c")
	r.Enroll("CSC 401", "a")
	students, err := r.GetRoster(ctx, "Csc_401")
	if err != nil {
		t.Fatalf("GetRoster: %v", err)
	}
	if len(students) != 3 {
		t.Errorf("roster = %v, want 3 students", students)
	}

	if _, err := r.GetRoster(ctx, "MTH 101"); !errors.Is(err, database.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

package attendance

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/database/mock"
	"github.com/kozaktomas/face-sync/internal/facematch"
)

func TestNewService_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
	}{
		{"dimension not multiple of components", func(o *Options) { o.Dim = 7 }},
		{"zero components", func(o *Options) { o.Components = 0 }},
		{"threshold above one", func(o *Options) { o.Threshold = 1.5 }},
		{"unknown strategy", func(o *Options) { o.Strategy = "ann" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.modify(&opts)
			backend, _, _, _ := mock.NewBackend(nil)
			if _, err := NewService(backend, opts, testLogger()); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("missing stores", func(t *testing.T) {
		if _, err := NewService(&database.Backend{}, testOptions(), testLogger()); err == nil {
			t.Error("expected error for empty backend")
		}
	})
}

func TestService_EnrollAndCheckIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), nil)

	alice, err := f.svc.Enroll(ctx, "alice", squareSample)
	if err != nil {
		t.Fatalf("Enroll(alice): %v", err)
	}
	if _, err := f.svc.Enroll(ctx, "bob", kiteSample); err != nil {
		t.Fatalf("Enroll(bob): %v", err)
	}
	if f.svc.TemplateCount() != 2 {
		t.Errorf("TemplateCount() = %d, want 2", f.svc.TemplateCount())
	}

	m, err := f.svc.CheckIn(ctx, squareShifted)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if !m.Matched || m.OwnerID != "alice" || m.TemplateID != alice.ID {
		t.Fatalf("CheckIn = %+v, want alice", m)
	}
	if math.Abs(m.Score-1) > 1e-9 {
		t.Errorf("score = %v, want 1 for the same shape", m.Score)
	}

	m, err = f.svc.CheckIn(ctx, kiteSample)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if m.OwnerID != "bob" {
		t.Errorf("CheckIn(kite) = %+v, want bob", m)
	}
}

func TestService_CheckInNoMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), nil)

	m, err := f.svc.CheckIn(ctx, squareSample)
	if err != nil {
		t.Fatalf("CheckIn on empty catalog: %v", err)
	}
	if m != facematch.NoMatch {
		t.Errorf("expected NoMatch on empty catalog, got %+v", m)
	}

	if _, err := f.svc.Enroll(ctx, "alice", squareSample); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	m, err = f.svc.CheckIn(ctx, squareRotated)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if m.Matched {
		t.Errorf("expected NoMatch for an opposite shape, got %+v", m)
	}
}

func TestService_InputValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), nil)

	tests := []struct {
		name    string
		call    func() error
		wantErr []error
	}{
		{
			name: "enroll without owner",
			call: func() error {
				_, err := f.svc.Enroll(ctx, " ", squareSample)
				return err
			},
			wantErr: []error{ErrValidation},
		},
		{
			name: "enroll wrong dimension",
			call: func() error {
				_, err := f.svc.Enroll(ctx, "alice", []float64{0, 0, 1, 1})
				return err
			},
			wantErr: []error{ErrValidation, facematch.ErrDimensionMismatch},
		},
		{
			name: "enroll degenerate sample",
			call: func() error {
				_, err := f.svc.Enroll(ctx, "alice", make([]float64, testDim))
				return err
			},
			wantErr: []error{ErrValidation, facematch.ErrDegenerateInput},
		},
		{
			name: "check-in wrong dimension",
			call: func() error {
				_, err := f.svc.CheckIn(ctx, append(squareSample, 1, 2))
				return err
			},
			wantErr: []error{ErrValidation, facematch.ErrDimensionMismatch},
		},
		{
			name: "delete without owner",
			call: func() error {
				return f.svc.DeleteTemplate(ctx, "")
			},
			wantErr: []error{ErrValidation},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			for _, want := range tt.wantErr {
				if !errors.Is(err, want) {
					t.Errorf("error %v is not %v", err, want)
				}
			}
		})
	}
}

func TestService_ReEnrollReplacesTemplate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), nil)

	first, err := f.svc.Enroll(ctx, "alice", squareSample)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	second, err := f.svc.Enroll(ctx, "alice", kiteSample)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("re-enroll changed template ID %d -> %d", first.ID, second.ID)
	}
	if f.svc.TemplateCount() != 1 {
		t.Errorf("TemplateCount() = %d, want 1", f.svc.TemplateCount())
	}

	m, err := f.svc.CheckIn(ctx, kiteSample)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if math.Abs(m.Score-1) > 1e-9 {
		t.Errorf("catalog still holds the old vector: score %v", m.Score)
	}
}

func TestService_StoreFailureLeavesCatalogUnchanged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), nil)
	f.templates.PutError = errors.New("disk full")

	if _, err := f.svc.Enroll(ctx, "alice", squareSample); err == nil {
		t.Fatal("expected error")
	}
	if f.svc.TemplateCount() != 0 {
		t.Errorf("failed enrollment became matchable")
	}
}

func TestService_DeleteTemplate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), nil)

	if _, err := f.svc.Enroll(ctx, "alice", squareSample); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if err := f.svc.DeleteTemplate(ctx, "alice"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}

	m, err := f.svc.CheckIn(ctx, squareSample)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if m.Matched {
		t.Errorf("deleted template still matches: %+v", m)
	}
	if err := f.svc.DeleteTemplate(ctx, "alice"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	list, err := f.svc.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListTemplates = %+v, want empty", list)
	}
}

func TestService_ReloadPicksUpStoreChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), nil)

	// Written by another process directly to the store.
	vector, err := f.svc.resolver.Prepare(squareSample)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, err := f.templates.PutTemplate(ctx, "alice", vector); err != nil {
		t.Fatalf("PutTemplate: %v", err)
	}
	if m, _ := f.svc.CheckIn(ctx, squareSample); m.Matched {
		t.Fatal("template visible before reload")
	}

	if err := f.svc.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	m, err := f.svc.CheckIn(ctx, squareSample)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if m.OwnerID != "alice" {
		t.Errorf("CheckIn after reload = %+v, want alice", m)
	}

	f.templates.GetAllError = errors.New("timeout")
	if err := f.svc.Reload(ctx); err == nil {
		t.Error("expected reload error")
	}
	if f.svc.TemplateCount() != 1 {
		t.Error("failed reload dropped the current snapshot")
	}
}

func TestService_Attend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), map[string][]string{"CSC 401": {"alice", "bob"}})

	if _, err := f.svc.Enroll(ctx, "alice", squareSample); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if _, err := f.svc.Enroll(ctx, "carol", kiteSample); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	if _, err := f.svc.Attend(ctx, "CSC 401", squareSample); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Attend without session: expected ErrNotFound, got %v", err)
	}
	if _, err := f.svc.OpenSession(ctx, "CSC 401"); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	res, err := f.svc.Attend(ctx, "csc-401", squareShifted)
	if err != nil {
		t.Fatalf("Attend: %v", err)
	}
	if res.Match.OwnerID != "alice" || res.Session == nil {
		t.Fatalf("Attend = %+v, want alice with session", res)
	}
	if got := statusOf(t, res.Session, "alice"); got != database.StatusPresent {
		t.Errorf("alice = %s, want Present", got)
	}

	// Matched, but not on this course's roster.
	res, err = f.svc.Attend(ctx, "CSC 401", kiteSample)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for carol, got %v", err)
	}
	if res.Match.OwnerID != "carol" {
		t.Errorf("match not reported alongside the error: %+v", res.Match)
	}

	res, err = f.svc.Attend(ctx, "CSC 401", squareRotated)
	if err != nil {
		t.Fatalf("Attend: %v", err)
	}
	if res.Match.Matched || res.Session != nil {
		t.Errorf("expected NoMatch without session, got %+v", res)
	}
}

func TestService_ConcurrentEnrollAndCheckIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), nil)
	if _, err := f.svc.Enroll(ctx, "alice", squareSample); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Enroll(ctx, "bob", kiteSample); err != nil {
				t.Errorf("Enroll: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			m, err := f.svc.CheckIn(ctx, squareSample)
			if err != nil {
				t.Errorf("CheckIn: %v", err)
				return
			}
			if m.OwnerID != "alice" {
				t.Errorf("CheckIn = %+v, want alice", m)
			}
		}()
	}
	wg.Wait()

	if f.svc.TemplateCount() != 2 {
		t.Errorf("TemplateCount() = %d, want 2", f.svc.TemplateCount())
	}
}

func TestService_SharedStoreSeenAfterRefresh(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), map[string][]string{"CSC 401": {"alice"}})
	server := f.svc
	if err := server.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	// A second engine over the same stores, as the enroll command would run.
	cli, err := NewService(f.backend, testOptions(), testLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if _, err := cli.Enroll(ctx, "alice", squareSample); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	reloaded, err := server.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !reloaded {
		t.Fatal("enrollment by another engine not detected")
	}
	m, err := server.CheckIn(ctx, squareShifted)
	if err != nil {
		t.Fatalf("CheckIn: %v", err)
	}
	if m.OwnerID != "alice" {
		t.Fatalf("CheckIn after refresh = %+v, want alice", m)
	}

	if _, err := server.OpenSession(ctx, "CSC 401"); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	if err := cli.DeleteTemplate(ctx, "alice"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, err := server.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	res, err := server.Attend(ctx, "CSC 401", squareShifted)
	if err != nil {
		t.Fatalf("Attend: %v", err)
	}
	if res.Match.Matched || res.Session != nil {
		t.Errorf("deleted owner still identified: %+v", res)
	}
	active, err := server.GetActiveSession(ctx, "CSC 401")
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if got := statusOf(t, active, "alice"); got != database.StatusAbsent {
		t.Errorf("alice = %s, want Absent", got)
	}
}

func TestService_EnrollLocksPerOwner(t *testing.T) {
	ctx := context.Background()
	opts := testOptions()
	opts.LockTimeout = 20 * time.Millisecond
	f := newFixture(t, opts, nil)

	unlock, err := f.svc.owners.Lock(ctx, "owner:alice", time.Second)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer unlock()

	// Other owners are not held up by a pending write for alice.
	if _, err := f.svc.Enroll(ctx, "bob", kiteSample); err != nil {
		t.Fatalf("Enroll(bob): %v", err)
	}
	if _, err := f.svc.Enroll(ctx, "alice", squareSample); !errors.Is(err, ErrConflict) {
		t.Errorf("Enroll(alice) while busy: expected ErrConflict, got %v", err)
	}
	if err := f.svc.DeleteTemplate(ctx, "alice"); !errors.Is(err, ErrConflict) {
		t.Errorf("DeleteTemplate(alice) while busy: expected ErrConflict, got %v", err)
	}
}

func TestService_EnrollAfterOpenDoesNotJoinSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testOptions(), map[string][]string{"CSC 401": {"alice"}})

	if _, err := f.svc.Enroll(ctx, "alice", squareSample); err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	opened, err := f.svc.OpenSession(ctx, "CSC 401")
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}

	if _, err := f.svc.Enroll(ctx, "dave", kiteSample); err != nil {
		t.Fatalf("Enroll(dave): %v", err)
	}
	res, err := f.svc.Attend(ctx, "CSC 401", kiteSample)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a student outside the session, got %v", err)
	}
	if res.Match.OwnerID != "dave" || res.Session != nil {
		t.Errorf("Attend = %+v, want dave matched without session", res)
	}

	active, err := f.svc.GetActiveSession(ctx, "CSC 401")
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if active.Version != opened.Version || len(active.Students) != 1 {
		t.Errorf("session changed: version %d -> %d, %d students", opened.Version, active.Version, len(active.Students))
	}
	if got := statusOf(t, active, "alice"); got != database.StatusAbsent {
		t.Errorf("alice = %s, want Absent", got)
	}
}

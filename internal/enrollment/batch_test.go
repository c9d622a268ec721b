package enrollment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kozaktomas/face-sync/internal/database"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		entries int
	}{
		{name: "valid", input: "templates:\n  - owner_id: a\n    landmarks: [0, 0, 1, 1]\n  - owner_id: b\n    landmarks: [1, 2]\n", entries: 2},
		{name: "empty", input: "", entries: 0},
		{name: "missing owner", input: "templates:\n  - landmarks: [1]\n", wantErr: true},
		{name: "blank owner", input: "templates:\n  - owner_id: '  '\n", wantErr: true},
		{name: "duplicate owner", input: "templates:\n  - owner_id: a\n  - owner_id: ' a'\n", wantErr: true},
		{name: "unknown field", input: "templates:\n  - owner: a\n", wantErr: true},
		{name: "not numbers", input: "templates:\n  - owner_id: a\n    landmarks: [x]\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Parse([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(b.Templates) != tt.entries {
				t.Errorf("got %d entries, want %d", len(b.Templates), tt.entries)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte("templates:\n  - owner_id: a\n    landmarks: [1, 2]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if b.Templates[0].OwnerID != "a" || len(b.Templates[0].Landmarks) != 2 {
		t.Errorf("unexpected entry: %+v", b.Templates[0])
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

type fakeEnroller struct {
	mu       sync.Mutex
	owners   []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

var errBadSample = errors.New("bad sample")

func (f *fakeEnroller) Enroll(ctx context.Context, ownerID string, sample []float64) (*database.StoredTemplate, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.maxSeen.Load()
		if n <= old || f.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}

	if len(sample) == 0 {
		return nil, errBadSample
	}
	f.mu.Lock()
	f.owners = append(f.owners, ownerID)
	f.mu.Unlock()
	return &database.StoredTemplate{OwnerID: ownerID, Vector: sample}, nil
}

func TestRun(t *testing.T) {
	batch := &Batch{Templates: []Entry{
		{OwnerID: "a", Landmarks: []float64{1}},
		{OwnerID: "b"},
		{OwnerID: "c", Landmarks: []float64{1}},
		{OwnerID: "d", Landmarks: []float64{1}},
	}}

	f := &fakeEnroller{}
	var progressed atomic.Int32
	result, err := Run(context.Background(), f, batch, 2, func() { progressed.Add(1) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Enrolled != 3 {
		t.Errorf("Enrolled = %d, want 3", result.Enrolled)
	}
	if len(result.Failed) != 1 || result.Failed[0].OwnerID != "b" {
		t.Errorf("Failed = %+v, want owner b", result.Failed)
	}
	if progressed.Load() != 4 {
		t.Errorf("progress called %d times, want 4", progressed.Load())
	}
	if f.maxSeen.Load() > 2 {
		t.Errorf("%d enrollments in flight, want at most 2", f.maxSeen.Load())
	}

	sort.Strings(f.owners)
	if len(f.owners) != 3 || f.owners[0] != "a" || f.owners[2] != "d" {
		t.Errorf("enrolled owners = %v", f.owners)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &fakeEnroller{}
	batch := &Batch{Templates: []Entry{{OwnerID: "a", Landmarks: []float64{1}}}}
	result, err := Run(ctx, f, batch, 0, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if result.Enrolled != 0 {
		t.Errorf("Enrolled = %d on canceled context", result.Enrolled)
	}
}

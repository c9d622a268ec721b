// Package enrollment loads batches of landmark samples and enrolls them
// concurrently.
//
// Batch file format:
//
//	templates:
//	  - owner_id: s-1001
//	    landmarks: [0.12, 0.33, ...]
package enrollment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kozaktomas/face-sync/internal/constants"
	"github.com/kozaktomas/face-sync/internal/database"
	"gopkg.in/yaml.v3"
)

// Entry is one sample to enroll.
type Entry struct {
	OwnerID   string    `yaml:"owner_id" json:"owner_id"`
	Landmarks []float64 `yaml:"landmarks" json:"landmarks"`
}

// Batch is the content of a batch file.
type Batch struct {
	Templates []Entry `yaml:"templates"`
}

// Parse decodes a batch document. Owners must be present and unique.
func Parse(data []byte) (*Batch, error) {
	var b Batch
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode batch: %w", err)
	}

	seen := make(map[string]int, len(b.Templates))
	for i := range b.Templates {
		owner := strings.TrimSpace(b.Templates[i].OwnerID)
		if owner == "" {
			return nil, fmt.Errorf("entry #%d: owner_id is required", i+1)
		}
		if prev, ok := seen[owner]; ok {
			return nil, fmt.Errorf("entry #%d: owner %q already listed in entry #%d", i+1, owner, prev+1)
		}
		seen[owner] = i
		b.Templates[i].OwnerID = owner
	}
	return &b, nil
}

// LoadFile reads and parses a batch file.
func LoadFile(path string) (*Batch, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	return Parse(data)
}

// Enroller stores one template. attendance.Service implements it.
type Enroller interface {
	Enroll(ctx context.Context, ownerID string, sample []float64) (*database.StoredTemplate, error)
}

// Failure is an entry that could not be enrolled.
type Failure struct {
	OwnerID string `json:"owner_id"`
	Error   string `json:"error"`
}

// Result summarizes a batch run.
type Result struct {
	Enrolled int       `json:"enrolled"`
	Failed   []Failure `json:"failed,omitempty"`
}

// Run enrolls every entry with at most concurrency enrollments in flight.
// Invalid samples are reported in the result and do not stop the batch.
// progress, if set, is called once per finished entry.
func Run(ctx context.Context, enroller Enroller, batch *Batch, concurrency int, progress func()) (Result, error) {
	if concurrency <= 0 {
		concurrency = constants.WorkerPoolSize
	}

	var (
		mu     sync.Mutex
		result Result
		wg     sync.WaitGroup
	)
	sem := make(chan struct{}, concurrency)

	for _, entry := range batch.Templates {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(e Entry) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			_, err := enroller.Enroll(ctx, e.OwnerID, e.Landmarks)

			mu.Lock()
			if err != nil {
				result.Failed = append(result.Failed, Failure{OwnerID: e.OwnerID, Error: err.Error()})
			} else {
				result.Enrolled++
			}
			mu.Unlock()

			if progress != nil {
				progress()
			}
		}(entry)
	}
	wg.Wait()

	return result, ctx.Err()
}

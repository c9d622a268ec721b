// Package roster reads course rosters from a YAML file and keeps them in
// sync with the file while it changes on disk.
//
// File format:
//
//	courses:
//	  - code: CSC 401
//	    name: Compilers
//	    students: [s-1001, s-1002]
package roster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/facematch"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultDebounce is how long the file must stay quiet before a reload.
const DefaultDebounce = 250 * time.Millisecond

// Course is one course entry of a roster file.
type Course struct {
	Code     string   `yaml:"code"`
	Name     string   `yaml:"name,omitempty"`
	Students []string `yaml:"students"`
}

// Document is the content of a roster file.
type Document struct {
	Courses []Course `yaml:"courses"`
}

// Parse decodes and validates a roster document. Course codes are
// canonicalized; a code that appears twice after canonicalization is an error.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode roster: %w", err)
	}

	seen := make(map[string]int, len(doc.Courses))
	for i := range doc.Courses {
		c := &doc.Courses[i]
		code := facematch.CanonicalCourseCode(c.Code)
		if code == "" {
			return nil, fmt.Errorf("course #%d: code is required", i+1)
		}
		if prev, ok := seen[code]; ok {
			return nil, fmt.Errorf("course #%d: code %q already defined by course #%d", i+1, code, prev+1)
		}
		seen[code] = i
		c.Code = code
	}
	return &doc, nil
}

// LoadFile reads and parses a roster file.
func LoadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return Parse(data)
}

// FileRoster is a database.RosterReader backed by a YAML file.
type FileRoster struct {
	path     string
	logger   logrus.FieldLogger
	debounce time.Duration

	courses atomic.Pointer[map[string][]string]
	reloads atomic.Int64
}

// Open loads the roster file. Call Watch to follow later changes.
func Open(path string, logger logrus.FieldLogger) (*FileRoster, error) {
	if path == "" {
		return nil, errors.New("roster file path is required")
	}
	r := &FileRoster{path: path, logger: logger, debounce: DefaultDebounce}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the file. On error the previous roster stays in place.
func (r *FileRoster) Reload() error {
	doc, err := LoadFile(r.path)
	if err != nil {
		return err
	}
	courses := make(map[string][]string, len(doc.Courses))
	for _, c := range doc.Courses {
		courses[c.Code] = slices.Clone(c.Students)
	}
	r.courses.Store(&courses)
	r.reloads.Add(1)
	r.logger.WithFields(logrus.Fields{"path": r.path, "courses": len(courses)}).Info("roster loaded")
	return nil
}

// CourseExists reports whether the course is known
func (r *FileRoster) CourseExists(ctx context.Context, courseID string) (bool, error) {
	_, ok := (*r.courses.Load())[facematch.CanonicalCourseCode(courseID)]
	return ok, nil
}

// GetRoster returns the students of a course in file order
func (r *FileRoster) GetRoster(ctx context.Context, courseID string) ([]string, error) {
	students, ok := (*r.courses.Load())[facematch.CanonicalCourseCode(courseID)]
	if !ok {
		return nil, fmt.Errorf("%w: course %s", database.ErrNotFound, courseID)
	}
	return slices.Clone(students), nil
}

// Watch reloads the roster whenever the file changes, until ctx is done.
// The parent directory is watched so that editors replacing the file by
// rename are picked up. Bursts of events are coalesced by the debounce delay.
func (r *FileRoster) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(r.path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	timer := time.NewTimer(r.debounce)
	timer.Stop()
	defer timer.Stop()

	log := r.logger.WithField("path", r.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(r.debounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("roster watcher error")
		case <-timer.C:
			if err := r.Reload(); err != nil {
				log.WithError(err).Warn("keeping previous roster")
			}
		}
	}
}

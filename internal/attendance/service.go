// Package attendance ties face matching to attendance sessions: it enrolls
// templates, resolves live samples against them and records check-ins.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-sync/internal/database"
	"github.com/kozaktomas/face-sync/internal/facematch"
	"github.com/sirupsen/logrus"
)

// DefaultShortlist is the number of HNSW candidates rescored exactly.
const DefaultShortlist = 16

// Options configures the engine.
type Options struct {
	Dim         int     // raw landmark vector length
	Components  int     // coordinates per landmark point
	Threshold   float64 // minimum accepted similarity, inclusive
	Strategy    Strategy
	Shortlist   int
	IndexPath   string // optional HNSW graph export path
	MaxAttempts int
	LockTimeout time.Duration
}

// DefaultOptions returns options for 68 two-dimensional landmarks.
func DefaultOptions() Options {
	return Options{
		Dim:         136,
		Components:  facematch.DefaultComponents,
		Threshold:   facematch.DefaultThreshold,
		Strategy:    StrategyExact,
		Shortlist:   DefaultShortlist,
		MaxAttempts: DefaultMaxAttempts,
		LockTimeout: DefaultLockTimeout,
	}
}

// Service is the attendance engine.
type Service struct {
	templates database.TemplateStore
	resolver  *facematch.Resolver
	catalog   *Catalog
	sessions  *SessionManager
	shortlist int
	logger    logrus.FieldLogger

	// owners serializes writes per owner so the catalog applies them in
	// store order. Different owners enroll in parallel.
	owners      *keyedLocks
	lockTimeout time.Duration
}

// AttendResult is the outcome of a combined check-in and confirmation.
// Session is nil when the sample matched nobody.
type AttendResult struct {
	Match   facematch.Match         `json:"match"`
	Session *database.StoredSession `json:"-"`
}

// NewService creates the engine on top of the backend stores. The template
// catalog starts empty; call Reload to load enrolled templates.
func NewService(backend *database.Backend, opts Options, logger logrus.FieldLogger) (*Service, error) {
	if err := backend.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backend: %w", err)
	}
	resolver, err := facematch.NewResolver(opts.Dim, opts.Components, opts.Threshold)
	if err != nil {
		return nil, err
	}
	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	shortlist := opts.Shortlist
	if shortlist <= 0 {
		shortlist = DefaultShortlist
	}
	lockTimeout := opts.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}

	return &Service{
		templates: backend.Templates,
		resolver:  resolver,
		catalog:   NewCatalog(backend.Templates, strategy, opts.IndexPath, logger),
		sessions:  NewSessionManager(backend.Sessions, backend.Roster, opts.MaxAttempts, opts.LockTimeout, logger),
		shortlist: shortlist,
		logger:    logger,

		owners:      newKeyedLocks(),
		lockTimeout: lockTimeout,
	}, nil
}

// Sessions returns the session manager.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Reload rebuilds the template catalog from the store.
func (s *Service) Reload(ctx context.Context) error {
	return s.catalog.Reload(ctx)
}

// Refresh reloads the template catalog if the store changed since it was
// loaded, for example by another process sharing the database.
func (s *Service) Refresh(ctx context.Context) (bool, error) {
	return s.catalog.Refresh(ctx)
}

// WatchTemplates refreshes the template catalog every interval until ctx is
// done.
func (s *Service) WatchTemplates(ctx context.Context, interval time.Duration) {
	s.catalog.Watch(ctx, interval)
}

// SaveIndex persists the HNSW graph when the shortlist strategy and an
// index path are configured.
func (s *Service) SaveIndex(ctx context.Context) error {
	return s.catalog.SaveIndex(ctx)
}

// TemplateCount returns the number of templates available for matching.
func (s *Service) TemplateCount() int {
	return s.catalog.Len()
}

func (s *Service) lockOwner(ctx context.Context, ownerID string) (func(), error) {
	unlock, err := s.owners.Lock(ctx, "owner:"+ownerID, s.lockTimeout)
	if errors.Is(err, errLockTimeout) {
		return nil, fmt.Errorf("%w: template of %s busy for %s", ErrConflict, ownerID, s.lockTimeout)
	}
	return unlock, err
}

func (s *Service) prepare(sample []float64) ([]float64, error) {
	probe, err := s.resolver.Prepare(sample)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return probe, nil
}

// Enroll normalizes a raw sample and stores it as the owner's template,
// replacing any previous one. The template is matchable once Enroll returns.
func (s *Service) Enroll(ctx context.Context, ownerID string, sample []float64) (*database.StoredTemplate, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrValidation)
	}
	vector, err := s.prepare(sample)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	stored, err := s.templates.PutTemplate(ctx, ownerID, vector)
	if err != nil {
		return nil, fmt.Errorf("storing template for %s: %w", ownerID, err)
	}
	s.catalog.Upsert(stored.Template())

	s.logger.WithFields(logrus.Fields{
		"owner_id":    ownerID,
		"template_id": stored.ID,
	}).Info("template enrolled")
	return stored, nil
}

// CheckIn resolves a raw sample to the best matching enrolled template.
// An unknown face is reported as facematch.NoMatch, not as an error.
func (s *Service) CheckIn(ctx context.Context, sample []float64) (facematch.Match, error) {
	probe, err := s.prepare(sample)
	if err != nil {
		return facematch.NoMatch, err
	}
	if err := ctx.Err(); err != nil {
		return facematch.NoMatch, err
	}

	match, err := s.resolver.Best(probe, s.catalog.Candidates(probe, s.shortlist))
	if err != nil {
		return facematch.NoMatch, fmt.Errorf("resolving sample: %w", err)
	}

	if match.Matched {
		s.logger.WithFields(logrus.Fields{
			"owner_id": match.OwnerID,
			"score":    match.Score,
		}).Debug("sample matched")
	} else {
		s.logger.Debug("sample matched no template")
	}
	return match, nil
}

// OpenSession starts a new attendance session for the course.
func (s *Service) OpenSession(ctx context.Context, courseID string) (*database.StoredSession, error) {
	return s.sessions.OpenSession(ctx, courseID)
}

// GetActiveSession returns the open session of the course.
func (s *Service) GetActiveSession(ctx context.Context, courseID string) (*database.StoredSession, error) {
	return s.sessions.GetActiveSession(ctx, courseID)
}

// ConfirmAttendance marks the student Present in the active session.
func (s *Service) ConfirmAttendance(ctx context.Context, courseID, studentID string) (*database.StoredSession, error) {
	return s.sessions.MarkPresent(ctx, courseID, studentID)
}

// CloseSession closes the active session of the course.
func (s *Service) CloseSession(ctx context.Context, courseID string) (*database.StoredSession, error) {
	return s.sessions.CloseSession(ctx, courseID)
}

// ListSessions returns the sessions of a course, newest first.
func (s *Service) ListSessions(ctx context.Context, courseID string, limit int) ([]database.StoredSession, error) {
	return s.sessions.ListSessions(ctx, courseID, limit)
}

// Attend checks the sample in and, on a match, confirms the matched owner's
// attendance in the course's active session.
func (s *Service) Attend(ctx context.Context, courseID string, sample []float64) (AttendResult, error) {
	match, err := s.CheckIn(ctx, sample)
	if err != nil {
		return AttendResult{Match: facematch.NoMatch}, err
	}
	if !match.Matched {
		return AttendResult{Match: match}, nil
	}

	session, err := s.ConfirmAttendance(ctx, courseID, match.OwnerID)
	if err != nil {
		return AttendResult{Match: match}, err
	}
	return AttendResult{Match: match, Session: session}, nil
}

// ListTemplates returns all enrolled templates in ascending ID order.
func (s *Service) ListTemplates(ctx context.Context) ([]database.StoredTemplate, error) {
	templates, err := s.templates.GetAllTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return templates, nil
}

// DeleteTemplate removes the owner's template so it no longer matches.
func (s *Service) DeleteTemplate(ctx context.Context, ownerID string) error {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return fmt.Errorf("%w: owner id is required", ErrValidation)
	}

	unlock, err := s.lockOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.templates.DeleteTemplate(ctx, ownerID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("%w: template for %s", ErrNotFound, ownerID)
		}
		return fmt.Errorf("deleting template for %s: %w", ownerID, err)
	}
	s.catalog.Remove(ownerID)
	s.logger.WithField("owner_id", ownerID).Info("template deleted")
	return nil
}

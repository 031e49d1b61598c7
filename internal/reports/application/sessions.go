package application

import (
	"errors"
	"sync"

	reports "building-monitor/internal/reports/domain"
)

// BuilderFactory creates a builder for a report definition.
type BuilderFactory func(def reports.Definition) (*Builder, error)

type sessionKey struct {
	subject string
	kind    reports.Kind
}

// Sessions keeps one builder per operator and report type.
type Sessions struct {
	factory BuilderFactory

	mu       sync.Mutex
	builders map[sessionKey]*Builder
}

// NewSessions constructs a session store.
func NewSessions(factory BuilderFactory) (*Sessions, error) {
	if factory == nil {
		return nil, errors.New("report sessions: nil factory")
	}
	return &Sessions{factory: factory, builders: make(map[sessionKey]*Builder)}, nil
}

// Get returns the builder of subject for kind, creating it on first use.
func (s *Sessions) Get(subject string, kind reports.Kind) (*Builder, error) {
	def, err := reports.Lookup(kind)
	if err != nil {
		return nil, err
	}
	key := sessionKey{subject: subject, kind: kind}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.builders[key]; ok {
		return b, nil
	}
	b, err := s.factory(def)
	if err != nil {
		return nil, err
	}
	s.builders[key] = b
	return b, nil
}

// Drop resets and forgets every builder of subject.
func (s *Sessions) Drop(subject string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, b := range s.builders {
		if key.subject == subject {
			b.Reset()
			delete(s.builders, key)
		}
	}
}

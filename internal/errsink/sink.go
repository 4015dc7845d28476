// Package errsink accumulates typed failures so components can report
// partial failures without returning errors across component boundaries.
//
// Sinks form a tree: a parent owns its children and Drain collects
// depth-first. Cycles are not detected; callers must not create them.
package errsink

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/mesh-intelligence/trajstore/internal/errors"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// Sink is an append-only list of error records plus child sinks.
type Sink struct {
	mu       sync.Mutex
	name     string
	records  []types.ErrorRecord
	children []*Sink
}

// New returns an empty sink. The name only appears in String.
func New(name string) *Sink {
	return &Sink{name: name}
}

func (s *Sink) String() string {
	return fmt.Sprintf("errsink(%s)", s.name)
}

// Record appends a record to this sink.
func (s *Sink) Record(kind types.ErrorKind, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, types.ErrorRecord{Kind: kind, Detail: detail})
}

// Recordf appends a record with a formatted detail.
func (s *Sink) Recordf(kind types.ErrorKind, format string, args ...any) {
	s.Record(kind, fmt.Sprintf(format, args...))
}

// RecordErr records err under the kind it carries, or under fallback when it
// carries none. A nil err records nothing.
func (s *Sink) RecordErr(err error, fallback types.ErrorKind) {
	if err == nil {
		return
	}
	s.Record(errors.KindOf(err, fallback), err.Error())
}

// AddChild registers child so that its records are collected by Drain.
// Adding the same child twice has no effect.
func (s *Sink) AddChild(child *Sink) {
	if child == nil || child == s {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.children {
		if c == child {
			return
		}
	}
	s.children = append(s.children, child)
}

// RemoveChild unregisters child. Its records stay with it.
func (s *Sink) RemoveChild(child *Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// Drain returns this sink's records followed by those of every child,
// de-duplicated by (kind, detail) in first-seen order, and clears this sink.
// Children are drained destructively when clearChildren is set and only read
// otherwise.
func (s *Sink) Drain(clearChildren bool) []types.ErrorRecord {
	var out []types.ErrorRecord
	seen := make(map[types.ErrorRecord]struct{})
	s.collect(&out, seen, true, clearChildren)
	return out
}

// HasErrors reports whether this sink or any descendant holds a record.
// Nothing is cleared.
func (s *Sink) HasErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) > 0 {
		return true
	}
	for _, c := range s.children {
		if c.HasErrors() {
			return true
		}
	}
	return false
}

func (s *Sink) collect(out *[]types.ErrorRecord, seen map[types.ErrorRecord]struct{}, clearSelf, clearChildren bool) {
	s.mu.Lock()
	records := s.records
	children := append([]*Sink(nil), s.children...)
	if clearSelf {
		s.records = nil
	}
	s.mu.Unlock()

	for _, r := range records {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		*out = append(*out, r)
	}
	for _, c := range children {
		c.collect(out, seen, clearChildren, clearChildren)
	}
}

// Err joins records into a single error, or returns nil for none.
func Err(records []types.ErrorRecord) error {
	if len(records) == 0 {
		return nil
	}
	errs := make([]error, 0, len(records))
	for _, r := range records {
		errs = append(errs, errors.New(r.Kind, r.String()))
	}
	return stderrors.Join(errs...)
}

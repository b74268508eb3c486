// Package models - Class vocabularies for open-vocabulary detection queries.
package models

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownClass is returned when a class index or name is not in the set.
var ErrUnknownClass = errors.New("unknown class")

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// ClassSet is the ordered list of class names a detection was queried with.
// Model labels are indices into this list.
type ClassSet struct {
	classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewClassSet builds a class set from query names, in order. Names are
// trimmed; empty and repeated names are rejected because labels could no
// longer be mapped back unambiguously.
//
// Arguments:
//   - names: The class names, index i becomes label i.
//
// Returns:
//   - *ClassSet: The class set.
//   - error: An error if the list is empty or has empty or repeated names.
//
// @example
// classes, err := NewClassSet("person", "chair", "table")
func NewClassSet(names ...string) (*ClassSet, error) {
	if len(names) == 0 {
		return nil, errors.New("class set must not be empty")
	}

	set := &ClassSet{
		classes:   make([]OutputClass, 0, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, errors.Errorf("class %d has an empty name", i)
		}
		if prev, ok := set.nameToIdx[name]; ok {
			return nil, errors.Errorf("class %q repeated at %d and %d", name, prev, i)
		}
		set.nameToIdx[name] = i
		set.classes = append(set.classes, OutputClass{Index: i, Name: name})
	}
	return set, nil
}

// Len returns the number of classes.
func (s *ClassSet) Len() int {
	return len(s.classes)
}

// Name returns the class name for a model label.
func (s *ClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.classes) {
		return "", errors.Wrapf(ErrUnknownClass, "index %d out of range [0, %d)", idx, len(s.classes))
	}
	return s.classes[idx].Name, nil
}

// Index returns the model label for a class name.
func (s *ClassSet) Index(name string) (int, error) {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1, errors.Wrapf(ErrUnknownClass, "name %q", name)
	}
	return idx, nil
}

// Names returns a copy of the class names in label order.
func (s *ClassSet) Names() []string {
	names := make([]string, len(s.classes))
	for i, c := range s.classes {
		names[i] = c.Name
	}
	return names
}

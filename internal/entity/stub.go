package entity

import "context"

// Stub is a model known only by class and id. It backs classes declared in a
// feed schema when the host application supplies no finder of its own.
type Stub struct {
	Class string
	ID    string
	Label string
}

func (s *Stub) EntityID() string    { return s.ID }
func (s *Stub) EntityClass() string { return s.Class }

func (s *Stub) String() string {
	if s.Label != "" {
		return s.Label
	}
	return s.ID
}

func (s *Stub) Attr(ctx context.Context, name string) (any, error) {
	switch name {
	case "id":
		return s.ID, nil
	case "name", "label":
		return s.String(), nil
	}
	return nil, ErrUnknownAttr
}

// StubClass returns a class whose finder fabricates a Stub for any id.
func StubClass(name string) *Class {
	return NewClass(name, func(ctx context.Context, id string) (Model, error) {
		return &Stub{Class: name, ID: id}, nil
	})
}

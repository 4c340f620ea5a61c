package es

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// note is a minimal aggregate used to exercise the kernel.
type note struct {
	root  Root
	Title string
	Body  Nullable[string]

	pending noteChanged
	base    noteCreated
}

type noteCreated struct {
	Title string           `json:"title"`
	Body  Nullable[string] `json:"body"`
}

func (*noteCreated) EventType() EventType { return "note.created" }

type noteChanged struct {
	Title *Change[string]           `json:"title,omitempty"`
	Body  *Change[Nullable[string]] `json:"body,omitempty"`
}

func (*noteChanged) EventType() EventType { return "note.changed" }

func (c noteChanged) empty() bool { return c.Title == nil && c.Body == nil }

func (n *note) Root() *Root { return &n.root }

func (n *note) Apply(env Envelope) error {
	switch e := env.Event.(type) {
	case *noteCreated:
		n.Title = e.Title
		n.Body = e.Body
	case *noteChanged:
		if e.Title != nil {
			n.Title = e.Title.Value
		}
		if e.Body != nil {
			n.Body = e.Body.Value
		}
	default:
		return fmt.Errorf("note: unhandled event %T", env.Event)
	}
	n.base = noteCreated{Title: n.Title, Body: n.Body}
	return nil
}

func newNote(id AggregateID, title string, stamp Stamp) (*note, error) {
	n := &note{}
	if err := Begin(n, id, "note"); err != nil {
		return nil, err
	}
	if err := Raise(n, &noteCreated{Title: title}, stamp); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *note) SetTitle(title string) (noteChanged, error) {
	if err := n.root.Guard(); err != nil {
		return noteChanged{}, err
	}
	Assign(&n.Title, title, n.base.Title, &n.pending.Title)
	return n.pending, nil
}

func (n *note) SetBody(body Nullable[string]) (noteChanged, error) {
	if err := n.root.Guard(); err != nil {
		return noteChanged{}, err
	}
	Assign(&n.Body, body, n.base.Body, &n.pending.Body)
	return n.pending, nil
}

func (n *note) Commit(stamp Stamp) error {
	if err := n.root.Guard(); err != nil {
		return err
	}
	if n.pending.empty() {
		return nil
	}
	changes := n.pending
	if err := Raise(n, &changes, stamp); err != nil {
		return err
	}
	n.pending = noteChanged{}
	return nil
}

func noteRegistry() *Registry {
	return NewRegistry("note").
		Register(func() Event { return &noteCreated{} }).
		Register(func() Event { return &noteChanged{} })
}

func newNoteRepo(log EventLog) *Repository[*note] {
	return NewRepository(log, noteRegistry(), func() *note { return &note{} },
		WithEventIDs(NewSequentialGenerator("events")))
}

var (
	testWorld = "world-1"
	testTime  = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func testStamp() Stamp { return NewStamp("actor-1", fixedClock{testTime}) }

func testID(n byte) AggregateID {
	return MustAggregateID(testWorld, uuid.UUID{15: n})
}

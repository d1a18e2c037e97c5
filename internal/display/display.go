// Package display holds the terminal board that stands in for a page of named text
// elements. Sensor values are written to elements by id; the board keeps them in
// declaration order and renders them as "label: text" lines.
package display

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrNoElement is returned by a strict board for an id it does not hold
var ErrNoElement = errors.New("no such display element")

// Display receives rendered values
type Display interface {
	SetText(id, text string) error
}

// Element is one named slot on the board
type Element struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// ChangeFunc is called after an element's text changes
type ChangeFunc func(e Element)

// Board is a concurrency-safe ordered set of elements
type Board struct {
	mu       sync.RWMutex
	elements *orderedmap.OrderedMap[string, *Element]
	strict   bool
	onChange ChangeFunc
}

type Option func(*Board)

// Strict makes SetText fail with ErrNoElement for undeclared ids.
// A lenient board appends unknown ids as new elements.
func Strict() Option {
	return func(b *Board) { b.strict = true }
}

// OnChange registers fn to run after every SetText
func OnChange(fn ChangeFunc) Option {
	return func(b *Board) { b.onChange = fn }
}

func NewBoard(opts ...Option) *Board {
	b := &Board{elements: orderedmap.New[string, *Element]()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Declare adds an element if it is not present yet; an existing element keeps its text
func (b *Board) Declare(id, label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if e, ok := b.elements.Get(id); ok {
		e.Label = label
		return
	}
	b.elements.Set(id, &Element{ID: id, Label: label})
}

func (b *Board) SetText(id, text string) error {
	b.mu.Lock()
	e, ok := b.elements.Get(id)
	if !ok {
		if b.strict {
			b.mu.Unlock()
			return fmt.Errorf("%w: %q", ErrNoElement, id)
		}
		e = &Element{ID: id, Label: id}
		b.elements.Set(id, e)
	}
	e.Text = text
	snapshot := *e
	cb := b.onChange
	b.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
	return nil
}

// Text returns the current text of id
func (b *Board) Text(id string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.elements.Get(id)
	if !ok {
		return "", false
	}
	return e.Text, true
}

// Elements returns a copy of all elements in order
func (b *Board) Elements() []Element {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Element, 0, b.elements.Len())
	for pair := b.elements.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, *pair.Value)
	}
	return out
}

// Render writes one "label: text" line per element. Elements without text show "-".
func (b *Board) Render(w io.Writer) error {
	label := color.New(color.FgCyan, color.Bold)
	for _, e := range b.Elements() {
		text := e.Text
		if text == "" {
			text = "-"
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", label.Sprint(e.Label), text); err != nil {
			return err
		}
	}
	return nil
}

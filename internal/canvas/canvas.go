// Package canvas models editable documents the agent creates and
// revises alongside a conversation. Edits are ordered regular
// expression substitutions applied to both title and content, with an
// undo/redo history of post-edit snapshots.
package canvas

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"github.com/google/uuid"
)

// Document types.
const (
	TypeText = "text"
	TypeCode = "code"
	TypeHTML = "html"
)

// Snapshot is one state in a canvas history.
type Snapshot struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Data is a canvas document.
//
// History holds snapshots taken after each edit and on save; Index is
// the cursor used by undo and redo. When History is non-empty,
// 0 <= Index < len(History). Content may differ from History[Index]
// until the next edit or save.
type Data struct {
	ID      string     `json:"id,omitempty"`
	Title   string     `json:"title"`
	Content string     `json:"content"`
	Type    string     `json:"type"`
	Saved   bool       `json:"saved"`
	History []Snapshot `json:"history,omitempty"`
	Index   int        `json:"index"`
}

// Rule is one substitution. Replacement may reference groups as $1 or
// ${name}.
type Rule struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

// matchTimeout bounds a single regex evaluation.
const matchTimeout = 2 * time.Second

// New creates an unsaved canvas with an empty history.
func New(title, content, typ string) *Data {
	return &Data{
		Title:   strings.TrimSpace(title),
		Content: content,
		Type:    NormalizeType(typ),
	}
}

// NormalizeType maps a requested type to a known one, defaulting to
// text.
func NormalizeType(typ string) string {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case TypeCode:
		return TypeCode
	case TypeHTML:
		return TypeHTML
	}
	return TypeText
}

// CompileError reports an invalid rule pattern.
type CompileError struct {
	Rule int
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("rule %d: invalid pattern: %v", e.Rule+1, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// ErrBadHistory reports a history cursor outside History.
var ErrBadHistory = errors.New("canvas history index out of range")

// Validate checks the history cursor. An empty History accepts any
// Index since the next snapshot resets it.
func (d *Data) Validate() error {
	if len(d.History) == 0 {
		return nil
	}
	if d.Index < 0 || d.Index >= len(d.History) {
		return fmt.Errorf("%w: index %d with %d snapshots", ErrBadHistory, d.Index, len(d.History))
	}
	return nil
}

// Edit applies rules in order to the title and the content. All
// patterns are compiled and the history cursor is checked before
// anything changes, so a failed edit leaves the canvas untouched. On success the redo tail is discarded
// and the new state is appended to History. Edit reports how many
// substitutions matched.
func (d *Data) Edit(rules []Rule) (int, error) {
	if len(rules) == 0 {
		return 0, fmt.Errorf("no edit rules given")
	}
	if err := d.Validate(); err != nil {
		return 0, err
	}
	compiled := make([]*regexp2.Regexp, len(rules))
	for i, r := range rules {
		re, err := regexp2.Compile(r.Pattern, regexp2.Multiline)
		if err != nil {
			return 0, &CompileError{Rule: i, Err: err}
		}
		re.MatchTimeout = matchTimeout
		compiled[i] = re
	}

	title, content := d.Title, d.Content
	matched := 0
	for i, re := range compiled {
		for _, target := range []*string{&title, &content} {
			ok, err := re.MatchString(*target)
			if err != nil {
				return 0, fmt.Errorf("rule %d: %w", i+1, err)
			}
			if !ok {
				continue
			}
			out, err := re.Replace(*target, rules[i].Replacement, -1, -1)
			if err != nil {
				return 0, fmt.Errorf("rule %d: %w", i+1, err)
			}
			*target = out
			matched++
		}
	}

	d.push(Snapshot{Title: title, Content: content})
	return matched, nil
}

// push truncates any redo tail, appends s and makes it current. The
// cursor must already be valid.
func (d *Data) push(s Snapshot) {
	if len(d.History) > 0 {
		d.History = d.History[:d.Index+1]
	}
	d.History = append(d.History, s)
	d.Index = len(d.History) - 1
	d.Title, d.Content = s.Title, s.Content
}

func (d *Data) snapshot() Snapshot {
	return Snapshot{Title: d.Title, Content: d.Content}
}

// CanUndo reports whether Undo would move the cursor.
func (d *Data) CanUndo() bool { return d.Validate() == nil && d.Index > 0 }

// CanRedo reports whether Redo would move the cursor.
func (d *Data) CanRedo() bool {
	return len(d.History) > 0 && d.Validate() == nil && d.Index < len(d.History)-1
}

// Undo moves the cursor back one snapshot and restores it.
func (d *Data) Undo() bool {
	if !d.CanUndo() {
		return false
	}
	d.Index--
	d.restore()
	return true
}

// Redo moves the cursor forward one snapshot and restores it.
func (d *Data) Redo() bool {
	if !d.CanRedo() {
		return false
	}
	d.Index++
	d.restore()
	return true
}

func (d *Data) restore() {
	s := d.History[d.Index]
	d.Title, d.Content = s.Title, s.Content
}

// Save marks the canvas persisted, assigning an ID on first save, and
// re-syncs History with the current state.
func (d *Data) Save() {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Saved = true
	if n := len(d.History); n == 0 || d.History[n-1] != d.snapshot() {
		d.History = append(d.History, d.snapshot())
	}
	d.Index = len(d.History) - 1
}

// Clone returns a deep copy.
func (d *Data) Clone() *Data {
	c := *d
	c.History = append([]Snapshot(nil), d.History...)
	return &c
}

// Package locate models an unstable DOM contract as ordered chains of
// lookup strategies, tried until one matches.
package locate

import (
	"errors"
	"fmt"
	"strings"

	"review_bot/internal/browser"
)

// Kind is how a strategy looks an element up.
type Kind int

// Supported lookup kinds.
const (
	KindCSS Kind = iota
	KindText
	KindRole
)

// Strategy is one way of finding a logical element.
type Strategy struct {
	Kind     Kind
	Selector string
	Text     string
	Role     string
	// MinHeight rejects matches whose layout box is shorter, when set.
	MinHeight float64
}

// CSS matches the first element for selector.
func CSS(selector string) Strategy {
	return Strategy{Kind: KindCSS, Selector: selector}
}

// Text matches the first selector match whose text contains text.
func Text(selector, text string) Strategy {
	return Strategy{Kind: KindText, Selector: selector, Text: text}
}

// Role matches an element by ARIA role and accessible name.
func Role(role, name string) Strategy {
	return Strategy{Kind: KindRole, Role: role, Text: name}
}

// Taller returns s restricted to elements at least h pixels high.
func (s Strategy) Taller(h float64) Strategy {
	s.MinHeight = h
	return s
}

func (s Strategy) String() string {
	switch s.Kind {
	case KindText:
		return fmt.Sprintf("%s:has-text(%q)", s.Selector, s.Text)
	case KindRole:
		return fmt.Sprintf("role=%s[name=%q]", s.Role, s.Text)
	default:
		return s.Selector
	}
}

// Find runs the strategy against scope.
func (s Strategy) Find(scope browser.Scope) (browser.Element, error) {
	var (
		el  browser.Element
		err error
	)
	switch s.Kind {
	case KindText:
		el, err = scope.FindByText(s.Selector, s.Text)
	case KindRole:
		el, err = scope.FindByRole(s.Role, s.Text)
	default:
		el, err = scope.Find(s.Selector)
	}
	if err != nil {
		return nil, err
	}
	if s.MinHeight > 0 {
		box, err := el.Box()
		if err != nil || box.Height <= s.MinHeight {
			return nil, fmt.Errorf("%w: %s shorter than %.0fpx", browser.ErrNotFound, s, s.MinHeight)
		}
	}
	return el, nil
}

// Chain is an ordered list of fallbacks for one logical element.
type Chain []Strategy

// Match is the outcome of a successful chain lookup.
type Match struct {
	Element  browser.Element
	Strategy Strategy
}

// First returns the first strategy that finds an element.
func (c Chain) First(scope browser.Scope) (Match, error) {
	return c.first(scope, false)
}

// FirstVisible is First restricted to visible elements.
func (c Chain) FirstVisible(scope browser.Scope) (Match, error) {
	return c.first(scope, true)
}

func (c Chain) first(scope browser.Scope, visible bool) (Match, error) {
	var errs []error
	for _, s := range c {
		el, err := s.Find(scope)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if visible && !el.Visible() {
			errs = append(errs, fmt.Errorf("%w: %s not visible", browser.ErrNotFound, s))
			continue
		}
		return Match{Element: el, Strategy: s}, nil
	}
	if len(errs) == 0 {
		return Match{}, fmt.Errorf("%w: empty chain", browser.ErrNotFound)
	}
	return Match{}, errors.Join(errs...)
}

// Texts builds a chain of Text strategies sharing one selector.
func Texts(selector string, texts ...string) Chain {
	c := make(Chain, 0, len(texts))
	for _, t := range texts {
		c = append(c, Text(selector, t))
	}
	return c
}

// String lists the chain for logs.
func (c Chain) String() string {
	parts := make([]string, 0, len(c))
	for _, s := range c {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, " | ")
}

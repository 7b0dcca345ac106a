// Package guard decides what a protected route shows for a given session state.
package guard

import (
	"github.com/and161185/retail-desk/internal/client/session"
)

// Outcome is what the route renders.
type Outcome int

const (
	Loading Outcome = iota
	Redirect
	Render
)

func (o Outcome) String() string {
	switch o {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	}
	return "unknown"
}

// Decision is the guard's answer. To and From are set only for Redirect.
type Decision struct {
	Outcome Outcome
	To      string
	From    string
}

// Decide is a pure function of state and the requested path.
func Decide(state session.State, path string) Decision {
	switch state {
	case session.Authenticated:
		return Decision{Outcome: Render}
	case session.Anonymous:
		return Decision{Outcome: Redirect, To: session.LoginPath, From: path}
	}
	return Decision{Outcome: Loading}
}

// Session is the view of the session controller the guard needs.
type Session interface {
	State() session.State
	RememberDestination(path string)
	Visit(path string)
}

var _ Session = (*session.Controller)(nil)

// Guard applies Decide to a live session.
type Guard struct {
	s Session
}

// New wraps s.
func New(s Session) *Guard { return &Guard{s: s} }

// Enter decides for path. A redirect records path as the post-login destination;
// a render records it as the current location.
func (g *Guard) Enter(path string) Decision {
	d := Decide(g.s.State(), path)
	switch d.Outcome {
	case Redirect:
		g.s.RememberDestination(path)
	case Render:
		g.s.Visit(path)
	}
	return d
}

// Package gate holds the access rules of the docs site and the small state
// machines behind its three auth pages, free of any HTTP plumbing.
package gate

import (
	"context"
	"log"

	"docgate/identity"
)

const (
	RootPath    = "/"
	LoginPath   = "/login"
	LandingPath = "/after-login"
	DocsPath    = "/docs"
)

// Class is the visibility of a route.
type Class int

const (
	Private Class = iota
	Public
)

var publicPaths = map[string]bool{
	RootPath:    true,
	LoginPath:   true,
	LandingPath: true,
}

// Classify matches the path exactly; "/login/" is private.
func Classify(path string) Class {
	if publicPaths[path] {
		return Public
	}
	return Private
}

type Outcome int

const (
	Render Outcome = iota
	RedirectLogin
	RedirectDocs
)

func (o Outcome) String() string {
	switch o {
	case RedirectLogin:
		return "redirect:" + LoginPath
	case RedirectDocs:
		return "redirect:" + DocsPath
	default:
		return "render"
	}
}

// Target is the redirect destination, or "" for Render.
func (o Outcome) Target() string {
	switch o {
	case RedirectLogin:
		return LoginPath
	case RedirectDocs:
		return DocsPath
	default:
		return ""
	}
}

func Decide(path string, hasSession bool) Outcome {
	switch {
	case !hasSession && Classify(path) == Private:
		return RedirectLogin
	case hasSession && path == RootPath:
		return RedirectDocs
	default:
		return Render
	}
}

// Check runs one checking -> checked cycle for a request. A failed lookup is
// treated as no session.
func Check(ctx context.Context, p identity.Provider, path string) Outcome {
	session, err := p.GetSession(ctx)
	if err != nil {
		log.Println("session lookup failed, treating as signed out: ", err)
		session = nil
	}
	return Decide(path, session != nil)
}

// RootTarget is where a visit to the site root is forwarded.
func RootTarget(ctx context.Context, p identity.Provider) string {
	session, err := p.GetSession(ctx)
	if err != nil {
		log.Println("Error fetching session: ", err)
		return LoginPath
	}
	if session != nil && session.User != nil {
		return DocsPath
	}
	return LoginPath
}

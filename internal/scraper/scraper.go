package scraper

import (
	"context"
	"errors"
)

var (
	ErrSessionOpen  = errors.New("failed to open rendering session")
	ErrSessionClose = errors.New("failed to close rendering session")
	ErrHomePage     = errors.New("failed to load home page")
)

// Session is a rendered browser page. Implemented by browser.Session.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Settle(ctx context.Context) error
	Content() (string, error)
	Screenshot(path string) error
	DismissConsent() bool
	Close() error
}

// Opener starts a new rendering session.
type Opener func(ctx context.Context) (Session, error)

// Package browser is the page-driving capability the scraper runs against.
package browser

import (
	"context"
	"errors"
	"time"
)

var (
	ErrLaunch           = errors.New("browser launch failed")
	ErrPage             = errors.New("page creation failed")
	ErrDownloadBehavior = errors.New("download channel failed")
	ErrNotFound         = errors.New("element not found")
)

// WaitUntil selects the readiness condition of a navigation.
type WaitUntil int

const (
	WaitLoad WaitUntil = iota
	WaitNetworkIdle
)

// ClickMode selects how an element is activated.
type ClickMode int

const (
	// ClickNative dispatches real input events at the element's position.
	ClickNative ClickMode = iota
	// ClickDOM calls element.click() inside the page.
	ClickDOM
)

// Page is one browser tab. Selectors are CSS query selectors; every wait is
// bounded by its timeout argument or by ctx.
type Page interface {
	Navigate(ctx context.Context, url string, until WaitUntil) error
	Back(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	WaitNetworkIdle(ctx context.Context, timeout time.Duration) error

	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error
	WaitPresent(ctx context.Context, sel string, timeout time.Duration) error
	Exists(ctx context.Context, sel string) (bool, error)
	Count(ctx context.Context, sel string) (int, error)

	Click(ctx context.Context, sel string) error
	// ClickDOM reports false when no element matched.
	ClickDOM(ctx context.Context, sel string) (bool, error)
	// ClickNavigate activates sel and then waits up to timeout for the page
	// to navigate. Only a failed click is an error; a navigation that never
	// happens is not.
	ClickNavigate(ctx context.Context, sel string, mode ClickMode, timeout time.Duration) error
	Type(ctx context.Context, sel, text string) error

	Text(ctx context.Context, sel string) (string, error)
	OuterHTML(ctx context.Context, sel string) (string, error)
}

// Download is a completed browser download.
type Download struct {
	GUID          string
	SuggestedName string
	URL           string
	Completed     time.Time
}

// DownloadWatcher is implemented by pages that observe the browser's
// download events.
type DownloadWatcher interface {
	// WaitDownload waits for the first download that began at or after
	// since and returns it once that download completes.
	WaitDownload(ctx context.Context, since time.Time, timeout time.Duration) (Download, error)
}

// Session is a running browser holding one page.
type Session interface {
	Page
	Close() error
}

package scrapers

import (
	"errors"

	"github.com/vrs-scraper/browser"
)

// Kind names the stage a failure came from.
type Kind string

const (
	BrowserLaunchFailed   Kind = "BrowserLaunchFailed"
	PageCreationFailed    Kind = "PageCreationFailed"
	DownloadChannelFailed Kind = "DownloadChannelFailed"
	MissingCredentials    Kind = "MissingCredentials"
	NavigationFailed      Kind = "NavigationFailed"
	LoginCardNotClickable Kind = "LoginCardNotClickable"
	LoginFailed           Kind = "LoginFailed"
	TableFailed           Kind = "TableFailed"
	RowFailed             Kind = "RowFailed"
	ArtifactFailed        Kind = "ArtifactFailed"
	Unknown               Kind = "Unknown"
)

// Tier is how far a failure propagates.
type Tier int

const (
	// TierFatal aborts the run after closing the session.
	TierFatal Tier = iota
	// TierRow is handled by resynchronising to the table; the walk continues.
	TierRow
	// TierArtifact drops one file from the result.
	TierArtifact
)

func (k Kind) Tier() Tier {
	switch k {
	case RowFailed:
		return TierRow
	case ArtifactFailed:
		return TierArtifact
	default:
		return TierFatal
	}
}

// StageError tags an error with the stage that produced it.
type StageError struct {
	Kind Kind
	Err  error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(kind Kind, err error) error {
	return &StageError{Kind: kind, Err: err}
}

// KindOf returns the stage of err, mapping browser sentinels to bootstrap kinds.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *StageError
	if errors.As(err, &se) {
		return se.Kind
	}
	switch {
	case errors.Is(err, browser.ErrLaunch):
		return BrowserLaunchFailed
	case errors.Is(err, browser.ErrPage):
		return PageCreationFailed
	case errors.Is(err, browser.ErrDownloadBehavior):
		return DownloadChannelFailed
	}
	return Unknown
}

// IsFatal reports whether err must end the run.
func IsFatal(err error) bool {
	return err != nil && KindOf(err).Tier() == TierFatal
}

// sessionKind maps a launch error to its bootstrap kind.
func sessionKind(err error) Kind {
	if k := KindOf(err); k != Unknown {
		return k
	}
	return BrowserLaunchFailed
}

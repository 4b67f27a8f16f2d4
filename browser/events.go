package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
)

const (
	// quietPeriod is how long the page must stay without requests in flight
	// to count as idle.
	quietPeriod = 500 * time.Millisecond

	// downloadRetention bounds how long a finished or stalled download that
	// nobody waited for is remembered.
	downloadRetention = time.Minute
)

type download struct {
	Download
	began   time.Time
	done    bool
	failed  bool
	claimed bool
}

// tracker follows the tab's network, lifecycle and download events.
type tracker struct {
	mu  sync.Mutex
	now func() time.Time

	mainFrame    cdp.FrameID
	loading      bool
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time

	downloads map[string]*download

	// wake is closed and replaced on every state change.
	wake chan struct{}
}

func newTracker() *tracker {
	return &tracker{
		now:       time.Now,
		inflight:  make(map[network.RequestID]struct{}),
		downloads: make(map[string]*download),
		wake:      make(chan struct{}),
	}
}

func (t *tracker) setMainFrame(id cdp.FrameID) {
	t.mu.Lock()
	t.mainFrame = id
	t.mu.Unlock()
}

// handle records ev and reports whether it was one the tracker follows.
func (t *tracker) handle(ev any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		if t.mainFrame != "" && e.FrameID != t.mainFrame {
			return true
		}
		switch e.Name {
		case "init":
			t.loading = true
		case "networkIdle":
			t.loading = false
		default:
			return true
		}
		t.lastActivity = now

	case *network.EventRequestWillBeSent:
		if e.Type == network.ResourceTypeEventSource {
			return true
		}
		t.inflight[e.RequestID] = struct{}{}
		t.lastActivity = now

	case *network.EventLoadingFinished:
		t.finishRequest(e.RequestID, now)

	case *network.EventLoadingFailed:
		t.finishRequest(e.RequestID, now)

	case *cdpbrowser.EventDownloadWillBegin:
		t.downloads[e.GUID] = &download{
			Download: Download{GUID: e.GUID, SuggestedName: e.SuggestedFilename, URL: e.URL},
			began:    now,
		}

	case *cdpbrowser.EventDownloadProgress:
		if e.State != cdpbrowser.DownloadProgressStateCompleted && e.State != cdpbrowser.DownloadProgressStateCanceled {
			return true
		}
		if d, ok := t.downloads[e.GUID]; ok {
			d.done = true
			d.failed = e.State == cdpbrowser.DownloadProgressStateCanceled
			d.Completed = now
		}
		t.pruneLocked(now)

	default:
		return false
	}

	close(t.wake)
	t.wake = make(chan struct{})
	return true
}

func (t *tracker) finishRequest(id network.RequestID, now time.Time) {
	if _, ok := t.inflight[id]; !ok {
		return
	}
	delete(t.inflight, id)
	t.lastActivity = now
}

// pruneLocked forgets downloads that finished, or began, longer ago than
// downloadRetention. A download someone is waiting on is kept until done.
func (t *tracker) pruneLocked(now time.Time) {
	for guid, d := range t.downloads {
		if d.claimed && !d.done {
			continue
		}
		ref := d.began
		if d.done {
			ref = d.Completed
		}
		if now.Sub(ref) > downloadRetention {
			delete(t.downloads, guid)
		}
	}
}

// claimLocked picks the earliest unclaimed download that began at or after
// since.
func (t *tracker) claimLocked(since time.Time) *download {
	var first *download
	for _, d := range t.downloads {
		if d.claimed || d.began.Before(since) {
			continue
		}
		if first == nil || d.began.Before(first.began) {
			first = d
		}
	}
	if first != nil {
		first.claimed = true
	}
	return first
}

// waitDownload waits for the first download that begins at or after since
// and returns it once that same download completes.
func (t *tracker) waitDownload(ctx context.Context, since time.Time, timeout time.Duration) (Download, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var claimed *download
	for {
		t.mu.Lock()
		if claimed == nil {
			claimed = t.claimLocked(since)
		}
		if claimed != nil && claimed.done {
			delete(t.downloads, claimed.GUID)
			t.mu.Unlock()
			if claimed.failed {
				return Download{}, fmt.Errorf("download %s was canceled", claimed.GUID)
			}
			return claimed.Download, nil
		}
		wake := t.wake
		t.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			if claimed != nil {
				return Download{}, fmt.Errorf("download %s did not complete within %s", claimed.GUID, timeout)
			}
			return Download{}, fmt.Errorf("no download started within %s", timeout)
		case <-ctx.Done():
			return Download{}, ctx.Err()
		}
	}
}

// waitIdle returns once no main-frame load is pending and no request has
// been in flight for quietPeriod.
func (t *tracker) waitIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	// Requests issued just before the wait may not have been reported yet,
	// so the quiet period never starts before the wait does.
	start := t.now()
	for {
		t.mu.Lock()
		busy := t.loading || len(t.inflight) > 0
		since := t.lastActivity
		if since.Before(start) {
			since = start
		}
		remaining := quietPeriod - t.now().Sub(since)
		wake := t.wake
		t.mu.Unlock()

		if !busy && remaining <= 0 {
			return nil
		}

		var quiet <-chan time.Time
		var qt *time.Timer
		if !busy {
			qt = time.NewTimer(remaining)
			quiet = qt.C
		}

		var err error
		select {
		case <-wake:
		case <-quiet:
		case <-deadline.C:
			err = fmt.Errorf("network not idle after %s", timeout)
		case <-ctx.Done():
			err = ctx.Err()
		}
		if qt != nil {
			qt.Stop()
		}
		if err != nil {
			return err
		}
	}
}

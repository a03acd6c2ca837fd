package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/onnwee/live-notifier/twitchapi"
)

var errUpstream = errors.New("upstream unavailable")

// fetchStep is one scripted FetchLiveStatus response.
type fetchStep struct {
	live LiveSet
	err  error
}

type scriptedFetcher struct {
	mu    sync.Mutex
	steps []fetchStep
	calls int
}

func (f *scriptedFetcher) FetchLiveStatus(_ context.Context, _ []string) (LiveSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.steps) == 0 {
		return LiveSet{}, nil
	}
	step := f.steps[0]
	if len(f.steps) > 1 {
		f.steps = f.steps[1:]
	}
	if step.err != nil {
		return LiveSet{}, step.err
	}
	return step.live, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDestination struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]int // substring -> remaining failures
}

func (d *fakeDestination) Send(_ context.Context, content string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for sub, n := range d.failFor {
		if n > 0 && strings.Contains(content, sub) {
			d.failFor[sub] = n - 1
			return "", errors.New("send rejected")
		}
	}
	d.sent = append(d.sent, content)
	return fmt.Sprintf("msg-%d", len(d.sent)), nil
}

func (d *fakeDestination) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.sent...)
}

// fakeDestinations fails Resolve with resolveErrs in order, then with
// resolveErr if set. onResolve runs before each lookup.
type fakeDestinations struct {
	dest        *fakeDestination
	resolveErr  error
	resolveErrs []error
	onResolve   func()
	resolved    []string
}

func (f *fakeDestinations) Resolve(_ context.Context, id string) (Destination, error) {
	f.resolved = append(f.resolved, id)
	if f.onResolve != nil {
		f.onResolve()
	}
	if len(f.resolveErrs) > 0 {
		err := f.resolveErrs[0]
		f.resolveErrs = f.resolveErrs[1:]
		if err != nil {
			return nil, err
		}
		return f.dest, nil
	}
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return f.dest, nil
}

type memRecorder struct {
	mu   sync.Mutex
	got  []Notification
	fail bool
}

func (r *memRecorder) RecordNotification(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("db down")
	}
	r.got = append(r.got, n)
	return nil
}

func stream(login, name, title string) twitchapi.Stream {
	return twitchapi.Stream{UserLogin: login, UserName: name, Title: title, Type: "live"}
}

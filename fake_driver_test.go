package recaptchabuster

import (
	"context"
	"errors"
	"github.com/benbjohnson/clock"
	"sync"
	"testing"
	"time"
)

const topFrame = ""

// fakeDriver is an in-memory page made of frames holding selector -> element ids.
// Clicking an element runs its registered reaction, which is how tests model the page
// changing after the checkbox or Buster's button is clicked.
type fakeDriver struct {
	mu        sync.Mutex
	frame     string
	frames    map[string]map[string][]string
	reactions map[string]func(d *fakeDriver)

	clicks      []string
	finds       map[string]int
	switches    []string
	findErr     error
	panicOnFind string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		frames:    map[string]map[string][]string{topFrame: {}},
		reactions: map[string]func(d *fakeDriver){},
		finds:     map[string]int{},
	}
}

// add places element id under selector in frame. It does not lock, so it is only
// used during setup and from click reactions, which already run under the lock.
func (d *fakeDriver) add(frame, selector, id string) *fakeDriver {
	if d.frames[frame] == nil {
		d.frames[frame] = map[string][]string{}
	}
	d.frames[frame][selector] = append(d.frames[frame][selector], id)
	return d
}

func (d *fakeDriver) onClick(id string, reaction func(d *fakeDriver)) *fakeDriver {
	d.reactions[id] = reaction
	return d
}

func (d *fakeDriver) FindElements(_ context.Context, selector string) ([]Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finds[selector]++
	if d.panicOnFind == selector {
		panic("driver exploded")
	}
	if d.findErr != nil {
		return nil, d.findErr
	}
	var elements []Element
	for _, id := range d.frames[d.frame][selector] {
		elements = append(elements, id)
	}
	return elements, nil
}

func (d *fakeDriver) Click(_ context.Context, el Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := el.(string)
	if !ok {
		return errors.New("foreign element")
	}
	d.clicks = append(d.clicks, id)
	if reaction := d.reactions[id]; reaction != nil {
		reaction(d)
	}
	return nil
}

func (d *fakeDriver) SwitchToFrame(_ context.Context, frame Element) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := frame.(string)
	if !ok {
		return errors.New("foreign element")
	}
	d.frame = id
	d.switches = append(d.switches, id)
	return nil
}

func (d *fakeDriver) SwitchToDefaultContent(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frame = topFrame
	d.switches = append(d.switches, topFrame)
	return nil
}

func (d *fakeDriver) currentFrame() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame
}

func (d *fakeDriver) clicked() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.clicks...)
}

func (d *fakeDriver) findCount(selector string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.finds[selector]
}

// focusingDriver adds TabFocuser to fakeDriver
type focusingDriver struct {
	*fakeDriver
	extraTabs bool
	focused   int
}

func (d *focusingDriver) FocusMainTab(context.Context) (bool, error) {
	d.focused++
	return d.extraTabs, nil
}

// recaptchaPage builds the widget: the checkbox iframe with its anchor. When solvedOnClick is set
// the anchor becomes checked immediately, otherwise clicking it opens the challenge iframe holding
// Buster's button, and clicking the button checks the anchor when busterWorks is set.
func recaptchaPage(solvedOnClick, busterWorks bool) *fakeDriver {
	sel := DefaultSelectors()
	d := newFakeDriver().
		add(topFrame, sel.CheckboxFrame, "anchor-frame").
		add("anchor-frame", sel.Checkbox, "anchor")

	d.onClick("anchor", func(d *fakeDriver) {
		if solvedOnClick {
			d.add("anchor-frame", sel.CheckboxChecked, "anchor")
			return
		}
		d.add(topFrame, sel.ChallengeFrames[0], "bframe").
			add("bframe", sel.BusterButtons[0], "buster")
	})
	d.onClick("buster", func(d *fakeDriver) {
		if busterWorks {
			d.add("anchor-frame", sel.CheckboxChecked, "anchor")
		}
	})
	return d
}

// runWithMock runs fn while advancing mock until fn returns
func runWithMock[T any](t *testing.T, mock *clock.Mock, fn func() T) T {
	t.Helper()
	done := make(chan T, 1)
	go func() {
		done <- fn()
	}()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case result := <-done:
			return result
		case <-deadline:
			t.Fatal("solver did not return")
		default:
			mock.Add(50 * time.Millisecond)
		}
	}
}

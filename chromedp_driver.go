package recaptchabuster

import (
	"context"
	"errors"
	"fmt"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"strings"
	"sync"
	"time"
)

// ChromedpDriver implements Driver and TabFocuser on top of chromedp.
// The context passed to every method must carry a chromedp target, e.g. Session.Context().
// The current frame is tracked as the iframe node, and queries are scoped to its
// content document through chromedp.FromNode.
type ChromedpDriver struct {
	mu    sync.Mutex
	frame *cdp.Node

	queryTimeout time.Duration
	run          func(ctx context.Context, actions ...chromedp.Action) error
}

// DefaultQueryTimeout bounds a single FindElements call
const DefaultQueryTimeout = 2 * time.Second

// DriverOption is a function that configures a ChromedpDriver
type DriverOption func(*ChromedpDriver)

// WithQueryTimeout bounds each query. chromedp retries a query until its frame and nodes are ready,
// so a query that runs out of time is reported as no match.
func WithQueryTimeout(timeout time.Duration) DriverOption {
	return func(d *ChromedpDriver) {
		if timeout > 0 {
			d.queryTimeout = timeout
		}
	}
}

// NewChromedpDriver returns a driver positioned on the top-level document
func NewChromedpDriver(opts ...DriverOption) *ChromedpDriver {
	d := &ChromedpDriver{
		queryTimeout: DefaultQueryTimeout,
		run:          chromedp.Run,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *ChromedpDriver) currentFrame() *cdp.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frame
}

// FindElements queries the current frame without waiting for a match.
// A query still pending after the query timeout yields no elements. Cancellation of ctx is an error.
func (d *ChromedpDriver) FindElements(ctx context.Context, selector string) ([]Element, error) {
	opts := []chromedp.QueryOption{chromedp.ByQueryAll, chromedp.AtLeast(0)}
	if frame := d.currentFrame(); frame != nil {
		opts = append(opts, chromedp.FromNode(frame))
	}

	queryCtx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	var nodes []*cdp.Node
	if err := d.run(queryCtx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("query %q: %w", selector, ctx.Err())
		}
		if queryCtx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}

	elements := make([]Element, 0, len(nodes))
	for _, node := range nodes {
		elements = append(elements, node)
	}
	return elements, nil
}

// Click dispatches a real mouse click on the centre of the node
func (d *ChromedpDriver) Click(ctx context.Context, el Element) error {
	node, err := asNode(el)
	if err != nil {
		return err
	}
	if err := chromedp.Run(ctx, chromedp.MouseClickNode(node)); err != nil {
		return fmt.Errorf("click %s: %w", node.FullXPath(), err)
	}
	return nil
}

// SwitchToFrame selects the iframe node so later queries run inside its document
func (d *ChromedpDriver) SwitchToFrame(_ context.Context, frame Element) error {
	node, err := asNode(frame)
	if err != nil {
		return err
	}
	if !strings.EqualFold(node.NodeName, "iframe") && !strings.EqualFold(node.NodeName, "frame") {
		return fmt.Errorf("switch to frame: node %s is not a frame", node.NodeName)
	}

	d.mu.Lock()
	d.frame = node
	d.mu.Unlock()
	return nil
}

// SwitchToDefaultContent drops the frame scope
func (d *ChromedpDriver) SwitchToDefaultContent(_ context.Context) error {
	d.mu.Lock()
	d.frame = nil
	d.mu.Unlock()
	return nil
}

// FocusMainTab re-activates the tab bound to ctx when other page targets exist
func (d *ChromedpDriver) FocusMainTab(ctx context.Context) (bool, error) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return false, errors.New("context has no chromedp target")
	}

	infos, err := chromedp.Targets(ctx)
	if err != nil {
		return false, fmt.Errorf("list targets: %w", err)
	}
	pages := 0
	for _, info := range infos {
		if info.Type == "page" {
			pages++
		}
	}
	if pages <= 1 {
		return false, nil
	}

	if err := chromedp.Run(ctx, target.ActivateTarget(c.Target.TargetID)); err != nil {
		return false, fmt.Errorf("activate main tab: %w", err)
	}
	return true, nil
}

func asNode(el Element) (*cdp.Node, error) {
	node, ok := el.(*cdp.Node)
	if !ok || node == nil {
		return nil, fmt.Errorf("element %T was not produced by ChromedpDriver", el)
	}
	return node, nil
}

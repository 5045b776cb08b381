package backend

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync/atomic"
	"time"
)

// Test ids of the views rendered around engines.
const (
	SourceLoaderTestID = "ersatz-source-loader"
	ErrorTestID        = "ersatz-error"
)

// View is a node of the rendered component tree.
type View struct {
	Kind     string
	TestID   string
	Style    Style
	Text     string
	Attrs    map[string]string
	Children []*View
}

// NewView creates a view of the given kind with an optional test id.
func NewView(kind, testID string, children ...*View) *View {
	return &View{Kind: kind, TestID: testID, Children: compact(children)}
}

func compact(views []*View) []*View {
	out := views[:0:0]
	for _, v := range views {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

// Find returns the first view in depth-first order with the given test id.
func (v *View) Find(testID string) *View {
	if v == nil {
		return nil
	}
	if v.TestID == testID {
		return v
	}
	for _, c := range v.Children {
		if found := c.Find(testID); found != nil {
			return found
		}
	}
	return nil
}

// String renders the tree as indented lines, for test failures and the CLI.
func (v *View) String() string {
	var b strings.Builder
	v.write(&b, 0)
	return b.String()
}

func (v *View) write(b *strings.Builder, depth int) {
	if v == nil {
		return
	}
	fmt.Fprintf(b, "%s<%s", strings.Repeat("  ", depth), v.Kind)
	if v.TestID != "" {
		fmt.Fprintf(b, " testID=%q", v.TestID)
	}
	for _, k := range slices.Sorted(maps.Keys(v.Attrs)) {
		fmt.Fprintf(b, " %s=%q", k, v.Attrs[k])
	}
	b.WriteString(">")
	if v.Text != "" {
		b.WriteString(v.Text)
	}
	b.WriteString("\n")
	for _, c := range v.Children {
		c.write(b, depth+1)
	}
}

// Marker returns the test id engines render for a state of a load cycle,
// such as backend-loaded-0.
func Marker(state string, cycle int) string {
	return fmt.Sprintf("backend-%s-%d", state, cycle)
}

// WaitForMarker polls render until a view with testID shows up.
func WaitForMarker(ctx context.Context, render func() *View, testID string) (*View, error) {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		if v := render().Find(testID); v != nil {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %q: %w", testID, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Sequence allocates identifiers, such as the ids that tell concurrently
// mounted frames apart. The zero value starts at 1.
type Sequence struct {
	n atomic.Int64
}

// Next returns the next identifier.
func (s *Sequence) Next() int {
	return int(s.n.Add(1))
}

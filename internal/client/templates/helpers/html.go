// Package helpers holds the small building blocks shared by the page components.
package helpers

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// Writer emits markup sequentially and keeps the first write error.
type Writer struct {
	w   io.Writer
	err error
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Raw writes trusted markup as-is.
func (w *Writer) Raw(markup string) {
	if w.err != nil {
		return
	}
	_, w.err = io.WriteString(w.w, markup)
}

// Text writes HTML-escaped text. Safe in element bodies and quoted attribute values.
func (w *Writer) Text(value string) {
	w.Raw(templ.EscapeString(value))
}

// Attr writes ` name="value"` with value escaped.
func (w *Writer) Attr(name, value string) {
	w.Raw(" " + name + `="`)
	w.Text(value)
	w.Raw(`"`)
}

// Component renders a nested component into the same stream.
func (w *Writer) Component(ctx context.Context, c templ.Component) {
	if w.err != nil || c == nil {
		return
	}
	w.err = c.Render(ctx, w.w)
}

// Err returns the first error encountered.
func (w *Writer) Err() error {
	return w.err
}

// TextComponent returns a component that renders escaped text.
func TextComponent(value string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := io.WriteString(w, templ.EscapeString(value))
		return err
	})
}

// HiddenInput renders a hidden form field.
func HiddenInput(name, value string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, out io.Writer) error {
		w := NewWriter(out)
		w.Raw(`<input type="hidden"`)
		w.Attr("name", name)
		w.Attr("value", value)
		w.Raw(`>`)
		return w.Err()
	})
}

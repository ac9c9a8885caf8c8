package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// output writes command results as text or as indented JSON.
type output struct {
	format string
	w      io.Writer
}

func newOutput(opts *RootOptions, w io.Writer) *output {
	return &output{format: opts.Format, w: w}
}

func (o *output) json() bool {
	return o.format == "json"
}

// Result writes v as JSON, or calls text for human-readable output.
func (o *output) Result(v any, text func(w io.Writer)) error {
	if o.json() {
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(o.w)
	return nil
}

func (o *output) Printf(format string, args ...any) {
	if o.json() {
		return
	}
	fmt.Fprintf(o.w, format, args...)
}

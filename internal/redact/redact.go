// Package redact scrubs known secret values from text before it is written
// anywhere a human or a log collector might read it.
package redact

import (
	"cmp"
	"io"
	"net/url"
	"slices"
	"strings"
	"sync"
)

// Substitution is what every secret is replaced with.
const Substitution = "[REDACTED]"

// Redactor holds the set of values to scrub. It is safe for concurrent use;
// values may be added while writers are in use.
type Redactor struct {
	mu       sync.RWMutex
	needles  []string
	replacer *strings.Replacer
}

// New returns a Redactor seeded with values.
func New(values ...string) *Redactor {
	r := &Redactor{}
	r.Add(values...)
	return r
}

// Add registers values to be scrubbed. Empty values are ignored. Each value is
// also registered in its URL query encoded form, since request dumps contain
// form-encoded bodies, and multi-line values (PEM keys) are also registered
// line by line.
func (r *Redactor) Add(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, v := range values {
		for _, needle := range variants(v) {
			if !slices.Contains(r.needles, needle) {
				r.needles = append(r.needles, needle)
			}
		}
	}

	// Longest needles first, so a secret containing another secret is
	// replaced whole.
	slices.SortFunc(r.needles, func(a, b string) int {
		return cmp.Compare(len(b), len(a))
	})

	oldnew := make([]string, 0, 2*len(r.needles))
	for _, n := range r.needles {
		oldnew = append(oldnew, n, Substitution)
	}
	r.replacer = strings.NewReplacer(oldnew...)
}

// Len returns the number of needles, including derived variants.
func (r *Redactor) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.needles)
}

// String scrubs s.
func (r *Redactor) String(s string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.replacer == nil {
		return s
	}
	return r.replacer.Replace(s)
}

// Writer returns an io.Writer that scrubs every write before passing it to
// w. Writes are assumed to be whole lines, which is how the logger printers
// write; a secret split across two writes is not caught.
func (r *Redactor) Writer(w io.Writer) io.Writer {
	return &writer{dst: w, r: r}
}

type writer struct {
	mu  sync.Mutex
	dst io.Writer
	r   *Redactor
}

func (w *writer) Write(p []byte) (int, error) {
	scrubbed := w.r.String(string(p))

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.dst, scrubbed); err != nil {
		return 0, err
	}
	// io.Writer callers expect len(p) on success, even if the length changed.
	return len(p), nil
}

func variants(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}

	out := []string{v}
	if q := url.QueryEscape(v); q != v {
		out = append(out, q)
	}

	if strings.Contains(v, "\n") {
		for line := range strings.Lines(v) {
			line = strings.TrimSpace(line)
			// PEM armour lines are not secret, and short lines would redact
			// too much unrelated output.
			if len(line) < LengthMin || strings.HasPrefix(line, "-----") {
				continue
			}
			out = append(out, line)
		}
	}
	return out
}

// LengthMin is the shortest line of a multi-line secret that is redacted on
// its own.
const LengthMin = 6

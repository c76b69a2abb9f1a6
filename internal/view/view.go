// Package view maintains the human-readable HTML rendering of
// processed emails. Entries are inserted immediately before a sentinel
// marker, never by truncating or reordering prior entries, so the
// document reads oldest-first. The authoritative data lives in the
// store; the view is a convenience that may lag on failure.
package view

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/triage-cli/internal/model"
)

// Marker is the sentinel token entries are inserted before.
const Marker = "<!-- End of logs -->"

const skeleton = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Support Email Triage Log</title>
</head>
<body>
  <h1>Support Email Triage Log</h1>
  <div id="logs">
` + Marker + `
  </div>
</body>
</html>
`

// View appends rendered entries to the HTML document at Path.
type View struct {
	path string

	// Serializes the read-modify-write across overlapping runs in the
	// same process. Cross-process races are bounded by the atomic
	// rename; last writer wins.
	mu sync.Mutex

	// now is swappable for tests.
	now func() time.Time
}

// New returns a View over the document at path. The document is
// created lazily on first append.
func New(path string) *View {
	return &View{path: path, now: time.Now}
}

// Entry is one processed-email block.
type Entry struct {
	EmailID  int64
	Intent   string
	Urgency  int
	Response string
}

// Append renders the entry and inserts it immediately before the
// marker. Returns an error wrapping model.ErrViewUpdate on any failure;
// callers treat that as non-fatal once the store write has committed.
func (v *View) Append(entry Entry) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	content, err := v.load()
	if err != nil {
		return eris.Wrap(model.ErrViewUpdate, err.Error())
	}

	idx := strings.Index(content, Marker)
	if idx < 0 {
		return eris.Wrapf(model.ErrViewUpdate, "marker %q not found in %s", Marker, v.path)
	}

	updated := content[:idx] + v.render(entry) + "\n" + content[idx:]
	if err := v.writeAtomic(updated); err != nil {
		return eris.Wrap(model.ErrViewUpdate, err.Error())
	}

	zap.L().Info("view updated",
		zap.String("path", v.path),
		zap.Int64("email_id", entry.EmailID),
	)
	return nil
}

func (v *View) load() (string, error) {
	raw, err := os.ReadFile(v.path)
	if os.IsNotExist(err) {
		return skeleton, nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "read view %s", v.path)
	}
	return string(raw), nil
}

func (v *View) render(entry Entry) string {
	var b strings.Builder
	b.WriteString("<div class=\"log-entry\">\n")
	fmt.Fprintf(&b, "  <h3>Email ID: %d</h3>\n", entry.EmailID)
	fmt.Fprintf(&b, "  <p><strong>Intent:</strong> %s</p>\n", html.EscapeString(entry.Intent))
	fmt.Fprintf(&b, "  <p><strong>Urgency:</strong> %d</p>\n", entry.Urgency)
	fmt.Fprintf(&b, "  <p><strong>Response:</strong> %s</p>\n", html.EscapeString(entry.Response))
	fmt.Fprintf(&b, "  <p><em>Logged on: %s</em></p>\n", v.now().Format("2006-01-02 15:04:05"))
	b.WriteString("</div>")
	return b.String()
}

// writeAtomic writes via a temp file and rename so a reader never sees
// a torn document.
func (v *View) writeAtomic(content string) error {
	dir := filepath.Dir(v.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "create view dir %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".view-*")
	if err != nil {
		return eris.Wrap(err, "create temp view")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return eris.Wrap(err, "write temp view")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "close temp view")
	}
	if err := os.Rename(tmpName, v.path); err != nil {
		return eris.Wrapf(err, "rename view into place %s", v.path)
	}
	return nil
}

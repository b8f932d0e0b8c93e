package scan

import (
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// Separator joins the stem, the two placeholder fields and the extension.
	Separator = "."

	// Placeholder is the rendered form of an unfilled rank or batch field.
	Placeholder = "*"
)

// WildcardPattern is the structured form of a partial-file name pattern.
// For an output path "out/dummy.ext" it holds Dir="out", Stem="dummy", Ext="ext"
// and renders as "dummy.*.*.ext". The two placeholder slots are filled with
// rank and batch by Substitute.
type WildcardPattern struct {
	Dir  string
	Stem string
	Sep  string
	Ext  string // empty when the output name has no extension
}

// Pattern derives the wildcard pattern for an output path.
// The name is split at its final separator; both placeholders are inserted
// directly before the extension.
func Pattern(path string) WildcardPattern {
	dir, base := filepath.Split(path)
	p := WildcardPattern{Stem: base, Sep: Separator}
	if dir != "" {
		p.Dir = filepath.Clean(dir)
	}
	if i := strings.LastIndex(base, Separator); i > 0 {
		p.Stem = base[:i]
		p.Ext = base[i+1:]
	}
	return p
}

// String renders the base-name pattern, e.g. "dummy.*.*.ext".
func (p WildcardPattern) String() string {
	return p.render(Placeholder, Placeholder)
}

// Substitute fills the rank and batch slots with their decimal values and
// returns the full partial path, directory included.
func (p WildcardPattern) Substitute(rank, batch int) string {
	return p.join(p.render(strconv.Itoa(rank), strconv.Itoa(batch)))
}

// Glob returns a filepath.Glob expression matching every partial file of this
// pattern. suffix is whatever the storage layer appends to written paths.
// The expression is anchored on the literal extension; glob metacharacters in
// the directory, stem, extension and suffix match only themselves.
func (p WildcardPattern) Glob(suffix string) string {
	lit := WildcardPattern{
		Dir:  escapeGlob(p.Dir),
		Stem: escapeGlob(p.Stem),
		Sep:  escapeGlob(p.Sep),
		Ext:  escapeGlob(p.Ext),
	}
	return lit.join(lit.String() + escapeGlob(suffix))
}

// escapeGlob wraps every filepath.Match metacharacter in a one-character
// class. Backslash is only special where it is not the path separator.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '*' || r == '?' || r == '[':
			b.WriteString("[" + string(r) + "]")
		case r == '\\' && filepath.Separator != '\\':
			b.WriteString(`[\\]`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Parse reports the rank and batch encoded in a discovered file name.
// Both fields must be unsigned decimal integers and the stem, extension and
// suffix must match exactly; anything else is not a partial file of p.
func (p WildcardPattern) Parse(name, suffix string) (rank, batch int, ok bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, suffix) {
		return 0, 0, false
	}
	base = strings.TrimSuffix(base, suffix)

	prefix := p.Stem + p.Sep
	if !strings.HasPrefix(base, prefix) {
		return 0, 0, false
	}
	rest := base[len(prefix):]
	if p.Ext != "" {
		tail := p.Sep + p.Ext
		if !strings.HasSuffix(rest, tail) {
			return 0, 0, false
		}
		rest = strings.TrimSuffix(rest, tail)
	}

	fields := strings.Split(rest, p.Sep)
	if len(fields) != 2 {
		return 0, 0, false
	}
	rank, ok = parseDecimal(fields[0])
	if !ok {
		return 0, 0, false
	}
	batch, ok = parseDecimal(fields[1])
	if !ok {
		return 0, 0, false
	}
	return rank, batch, true
}

func (p WildcardPattern) render(rank, batch string) string {
	parts := []string{p.Stem, rank, batch}
	if p.Ext != "" {
		parts = append(parts, p.Ext)
	}
	return strings.Join(parts, p.Sep)
}

func (p WildcardPattern) join(base string) string {
	if p.Dir == "" {
		return base
	}
	return filepath.Join(p.Dir, base)
}

func parseDecimal(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// PartialPath returns the partial-file path for one rank's batch.
// PartialPath("dummy.ext", 50, 34440) == "dummy.50.34440.ext".
func PartialPath(path string, rank, batch int) string {
	return Pattern(path).Substitute(rank, batch)
}

// GlobPattern returns the discovery expression for every partial file of path.
func GlobPattern(path, suffix string) string {
	return Pattern(path).Glob(suffix)
}

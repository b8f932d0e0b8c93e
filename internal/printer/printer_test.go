package printer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPrinter(t *testing.T) (*Printer, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var out, errw bytes.Buffer
	return New(&out, &errw), &out, &errw
}

func TestError(t *testing.T) {
	t.Run("returns error with title", func(t *testing.T) {
		p, _, errw := newTestPrinter(t)
		err := p.Error("Test Error", "This is a test error", []string{})
		require.Error(t, err)
		require.Equal(t, "Test Error", err.Error())
		assert.Equal(t, "Test Error\n\nThis is a test error\n", errw.String())
	})

	t.Run("single suggestion is printed plainly", func(t *testing.T) {
		p, _, errw := newTestPrinter(t)
		err := p.Error("Test Error", "Explanation", []string{"Try this fix"})
		require.Equal(t, "Test Error", err.Error())
		assert.True(t, strings.HasSuffix(errw.String(), "\nTry this fix\n"))
		assert.NotContains(t, errw.String(), "Either:")
	})

	t.Run("multiple suggestions are numbered", func(t *testing.T) {
		p, _, errw := newTestPrinter(t)
		err := p.Error("Test Error", "Explanation", []string{
			"First option",
			"Second option",
		})
		require.Equal(t, "Test Error", err.Error())
		assert.Contains(t, errw.String(), "Either:\n  1. First option\n  2. Second option\n")
	})
}

func TestErrorWithContext(t *testing.T) {
	p, out, errw := newTestPrinter(t)
	context := map[string]string{
		"Output": "runs/scan.dat",
		"Job":    "nightly",
	}
	err := p.ErrorWithContext("Test Error", "Explanation", context, nil)
	require.Error(t, err)
	require.Equal(t, "Test Error", err.Error())

	assert.Contains(t, errw.String(), "  Job: nightly\n  Output: runs/scan.dat\n")
	assert.Empty(t, out.String())
}

func TestMessages(t *testing.T) {
	p, out, _ := newTestPrinter(t)

	p.Success("wrote %d rows\n", 10)
	p.Success("✓ already prefixed\n")
	p.Warning("expected %d files\n", 4)
	p.Step("collating\n")
	p.Info("plain\n")

	assert.Equal(t, "✓ wrote 10 rows\n✓ already prefixed\n⚠️  expected 4 files\n→ collating\nplain\n", out.String())
}

func TestTable(t *testing.T) {
	p, out, _ := newTestPrinter(t)

	p.Table([]string{"RANK", "CHUNKS", "SEEDS"}, [][]string{
		{"0", "3", "0-2"},
		{"10", "2", "3-4"},
	})

	want := "RANK  CHUNKS  SEEDS\n" +
		"----  ------  -----\n" +
		"0     3       0-2\n" +
		"10    2       3-4\n"
	assert.Equal(t, want, out.String())
}

func TestStdWrappers(t *testing.T) {
	p, out, errw := newTestPrinter(t)
	prev := Std
	Std = p
	t.Cleanup(func() { Std = prev })

	Info("plan\n")
	Table([]string{"RANK", "SEEDS"}, [][]string{{"0", "0-2"}})
	err := Error("failed", "details", nil)

	assert.Equal(t, "plan\nRANK  SEEDS\n----  -----\n0     0-2\n", out.String())
	require.EqualError(t, err, "failed")
	assert.Contains(t, errw.String(), "details")
}

package mediastore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiagnosticLog_DisabledRecordsNothing(t *testing.T) {
	l := NewDiagnosticLog(10, nil)
	l.Record("muscle/42", "fetch", nil, "2 items")
	assert.Empty(t, l.Lines())
}

func TestDiagnosticLog_BoundedOldestDropped(t *testing.T) {
	l := NewDiagnosticLog(3, nil)
	l.SetEnabled(true)
	for i := 0; i < 5; i++ {
		l.Record("muscle/42", "upload", nil, "file-%d", i)
	}
	lines := l.Lines()
	assert.Len(t, lines, 3)
	assert.Equal(t, "file-2", lines[0].Message)
	assert.Equal(t, "file-4", lines[2].Message)

	l.Clear()
	assert.Empty(t, l.Lines())
}

func TestDiagnosticLog_RecordsFailure(t *testing.T) {
	l := NewDiagnosticLog(0, nil)
	l.SetEnabled(true)
	l.Record("organ/7", "delete", errors.New("status 502"), "abc")

	lines := l.Lines()
	assert.Len(t, lines, 1)
	assert.True(t, lines[0].Failed)
	assert.Equal(t, "abc: status 502", lines[0].Message)
	assert.Contains(t, lines[0].String(), "[organ/7] delete FAILED")
	assert.Contains(t, fmt.Sprint(lines[0]), "abc")
}

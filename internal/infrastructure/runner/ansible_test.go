package runner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseResultLine(t *testing.T) {
	cases := []struct {
		line string
		kind ResultKind
		ok   bool
	}{
		{"ok: [web1]", ResultOK, true},
		{"changed: [web1] => (item=nginx)", ResultChanged, true},
		{"fatal: [db1]: FAILED! => {\"msg\": \"boom\"}", ResultFailed, true},
		{"failed: [db1] (item=x)", ResultFailed, true},
		{"skipping: [web2]", ResultSkipped, true},
		{"TASK [install packages] ****", "", false},
		{"PLAY RECAP *********", "", false},
		{"web1 : ok=3 changed=1 unreachable=0 failed=0", "", false},
	}
	for _, tc := range cases {
		kind, ok := ParseResultLine(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		assert.Equal(t, tc.kind, kind, tc.line)
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	tb := newTailBuffer(10)
	tb.WriteLine("aaaaaaaa")
	tb.WriteLine("bbbb")
	out := tb.String()
	assert.LessOrEqual(t, len(out), 10)
	assert.True(t, strings.HasSuffix(out, "bbbb\n"))
}

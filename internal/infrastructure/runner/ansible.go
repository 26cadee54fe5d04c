package runner

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ResultKind is one host result line of ansible-playbook's default output.
type ResultKind string

const (
	ResultOK      ResultKind = "ok"
	ResultChanged ResultKind = "changed"
	ResultFailed  ResultKind = "failed"
	ResultSkipped ResultKind = "skipped"
)

type PlaybookSpec struct {
	Playbook  string
	Limit     string
	ExtraVars map[string]string
}

type AnsibleRunner struct {
	bin         string
	playbookDir string
	inventory   string
}

func NewAnsibleRunner(bin, playbookDir, inventory string) *AnsibleRunner {
	return &AnsibleRunner{bin: bin, playbookDir: playbookDir, inventory: inventory}
}

// Run executes the playbook and calls onResult for every host result as it
// is printed. The returned string is the tail of the combined output.
func (r *AnsibleRunner) Run(ctx context.Context, spec PlaybookSpec, onResult func(ResultKind)) (string, error) {
	playbook := filepath.Join(r.playbookDir, filepath.Clean("/"+spec.Playbook))
	args := []string{"-i", r.inventory, playbook}
	if spec.Limit != "" {
		args = append(args, "--limit", spec.Limit)
	}
	for k, v := range spec.ExtraVars {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}

	cmd := exec.CommandContext(ctx, r.bin, args...)
	cmd.Env = append(cmd.Environ(), "ANSIBLE_NOCOLOR=1", "ANSIBLE_FORCE_COLOR=0")
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	tail := newTailBuffer(64 * 1024)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			tail.WriteLine(line)
			if kind, ok := ParseResultLine(line); ok && onResult != nil {
				onResult(kind)
			}
		}
		_, _ = io.Copy(io.Discard, pr)
	}()

	err := cmd.Start()
	if err == nil {
		err = cmd.Wait()
	}
	pw.Close()
	wg.Wait()

	if err != nil {
		if ctx.Err() != nil {
			return tail.String(), fmt.Errorf("playbook cancelled: %w", ctx.Err())
		}
		return tail.String(), fmt.Errorf("playbook %s failed: %w", spec.Playbook, err)
	}
	return tail.String(), nil
}

// ParseResultLine classifies lines such as "ok: [web1]" or
// "fatal: [db1]: FAILED! => {...}".
func ParseResultLine(line string) (ResultKind, bool) {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "ok: ["):
		return ResultOK, true
	case strings.HasPrefix(line, "changed: ["):
		return ResultChanged, true
	case strings.HasPrefix(line, "fatal: ["), strings.HasPrefix(line, "failed: ["):
		return ResultFailed, true
	case strings.HasPrefix(line, "skipping: ["):
		return ResultSkipped, true
	}
	return "", false
}

type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   bytes.Buffer
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) WriteLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.WriteString(line)
	t.buf.WriteByte('\n')
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var (
	ErrProbeUnreachable = errors.New("probe: target unreachable")
	ErrProbeUnsupported = errors.New("probe: unsupported kind")
)

// Prober runs single reachability checks. ICMP shells out to the system
// ping binary so the worker needs no raw-socket capability.
type Prober struct {
	pingPath string
}

func NewProber(pingPath string) *Prober {
	if pingPath == "" {
		pingPath = "ping"
	}
	return &Prober{pingPath: pingPath}
}

func (p *Prober) TCP(ctx context.Context, host string, port int, timeout time.Duration) (time.Duration, error) {
	if port <= 0 {
		return 0, fmt.Errorf("%w: tcp probe needs a port", ErrProbeUnsupported)
	}
	dialer := net.Dialer{Timeout: timeout}
	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProbeUnreachable, err)
	}
	elapsed := time.Since(start)
	conn.Close()
	return elapsed, nil
}

func (p *Prober) ICMP(ctx context.Context, host string, timeout time.Duration) (time.Duration, error) {
	secs := int(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout+time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(cmdCtx, p.pingPath, "-c", "1", "-W", strconv.Itoa(secs), host)
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrProbeUnreachable, strings.TrimSpace(lastLine(out.String(), err)))
	}
	if rtt, ok := parsePingRTT(out.String()); ok {
		return rtt, nil
	}
	return time.Since(start), nil
}

// parsePingRTT extracts "time=12.3 ms" from ping output.
func parsePingRTT(output string) (time.Duration, bool) {
	idx := strings.Index(output, "time=")
	if idx < 0 {
		return 0, false
	}
	rest := output[idx+len("time="):]
	end := strings.IndexAny(rest, " m")
	if end <= 0 {
		return 0, false
	}
	ms, err := strconv.ParseFloat(rest[:end], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(ms * float64(time.Millisecond)), true
}

func lastLine(output string, err error) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 || lines[len(lines)-1] == "" {
		return err.Error()
	}
	return lines[len(lines)-1]
}

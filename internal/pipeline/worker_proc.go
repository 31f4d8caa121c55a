package pipeline

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// workerProc is a spawned diffusion worker process.
type workerProc struct {
	cmd     *exec.Cmd
	baseURL string
	stderr  *tailBuffer
	done    chan struct{}
	waitErr error
	stopped sync.Once
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// spawn starts the worker binary on a free port and waits until /health
// answers, the process exits, ctx ends or the ready timeout elapses.
func (l *WorkerLoader) spawn(ctx context.Context) (*workerProc, error) {
	host := strings.TrimSpace(l.cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	var (
		port int
		err  error
	)
	if l.cfg.PortStart > 0 && l.cfg.PortEnd >= l.cfg.PortStart {
		port, err = pickPortInRange(host, l.cfg.PortStart, l.cfg.PortEnd)
	} else {
		port, err = pickFreePort(host)
	}
	if err != nil {
		return nil, err
	}
	args := []string{"--host", host, "--port", strconv.Itoa(port)}
	args = append(args, l.cfg.ExtraArgs...)

	cmd := exec.Command(l.cfg.Bin, args...)
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	p := &workerProc{
		cmd:     cmd,
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		stderr:  stderr,
		done:    make(chan struct{}),
	}
	go func() {
		p.waitErr = cmd.Wait()
		close(p.done)
	}()
	l.log.Info().Str("event", "spawn_start").Int("pid", cmd.Process.Pid).Str("url", p.baseURL).Msg("worker")

	timeout := l.cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if l.healthy(ctx, p.baseURL) {
			l.log.Info().Str("event", "spawn_ready").Int("pid", cmd.Process.Pid).Msg("worker")
			return p, nil
		}
		select {
		case <-p.done:
			l.log.Warn().Str("event", "exit_early").Int("pid", cmd.Process.Pid).AnErr("wait", p.waitErr).Msg("worker")
			return nil, fmt.Errorf("worker exited before ready: %v; stderr tail: %s", p.waitErr, stderr.String())
		case <-deadline.C:
			p.stop(l.log)
			return nil, fmt.Errorf("worker not ready in %s: %s", timeout, p.baseURL)
		case <-ctx.Done():
			p.stop(l.log)
			return nil, ctx.Err()
		case <-tick.C:
		}
	}
}

func (l *WorkerLoader) healthy(ctx context.Context, baseURL string) bool {
	hctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(hctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// stop sends SIGTERM and kills the process if it has not exited after 2s.
func (p *workerProc) stop(log zerolog.Logger) {
	p.stopped.Do(func() {
		if p.cmd.Process == nil {
			return
		}
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
		select {
		case <-p.done:
		case <-time.After(2 * time.Second):
			_ = p.cmd.Process.Kill()
			<-p.done
		}
		log.Info().Str("event", "spawn_stop").Int("pid", p.cmd.Process.Pid).Msg("worker")
	})
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

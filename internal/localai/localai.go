// Package localai supervises an Ollama-compatible model server child
// process: binary discovery, start/stop, and a bounded readiness poll
// against its tags endpoint.
package localai

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rfontain/glimpse/internal/errors"
)

// providerName tags errors from this package; the supervised server
// backs the "ollama" analysis provider.
const providerName = "ollama"

// Readiness poll bounds: the server either answers /api/tags within
// readyAttempts polls, readyInterval apart, or the start fails hard.
const (
	readyAttempts = 20
	readyInterval = 500 * time.Millisecond
)

// Supervisor manages at most one child server process. A server
// already running externally is used as-is and never stopped.
type Supervisor struct {
	binary string // explicit path; "" means PATH lookup
	host   string // base URL the server answers on

	client *http.Client
	sleep  func(ctx context.Context, d time.Duration) bool

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

func NewSupervisor(binary, host string) *Supervisor {
	return &Supervisor{
		binary: binary,
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: 5 * time.Second},
		sleep:  sleepContext,
	}
}

// FindBinary resolves the server executable: the configured path wins,
// otherwise PATH is searched for "ollama".
func (s *Supervisor) FindBinary() (string, error) {
	if s.binary != "" {
		if _, err := os.Stat(s.binary); err != nil {
			return "", errors.NewProviderUnavailable(providerName, "configured binary not found: "+s.binary)
		}
		return s.binary, nil
	}
	path, err := exec.LookPath(providerName)
	if err != nil {
		return "", errors.NewProviderUnavailable(providerName, "ollama binary not found on PATH")
	}
	return path, nil
}

// Models lists the models the server reports. Doubles as the
// readiness probe.
func (s *Supervisor) Models(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.host+"/api/tags", nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.NewProviderUnavailable(providerName, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewProviderUnavailable(providerName, "HTTP "+resp.Status)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, errors.NewProviderUnavailable(providerName, "decode tags: "+err.Error())
	}

	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// Ready reports whether the server answers its tags endpoint.
func (s *Supervisor) Ready(ctx context.Context) bool {
	_, err := s.Models(ctx)
	return err == nil
}

// Start launches `<binary> serve` bound to the configured host. A
// child that is still running makes this a no-op. The caller is
// expected to follow up with WaitForReady.
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running() {
		return nil
	}

	bin, err := s.FindBinary()
	if err != nil {
		return err
	}

	cmd := exec.Command(bin, "serve")
	cmd.Env = append(os.Environ(), "OLLAMA_HOST="+s.listenAddr())
	if err := cmd.Start(); err != nil {
		return errors.NewProviderUnavailable(providerName, "start server: "+err.Error())
	}

	done := make(chan struct{})
	go func() {
		cmd.Wait()
		close(done)
	}()

	s.cmd = cmd
	s.done = done
	log.Printf("localai: started %s serve (pid %d)", bin, cmd.Process.Pid)
	return nil
}

// Stop kills a managed child and waits for it to exit. Servers this
// process did not start are left alone.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running() {
		return
	}
	s.cmd.Process.Kill()
	<-s.done
	s.cmd = nil
	s.done = nil
}

// Managed reports whether a child started by this process is running.
func (s *Supervisor) Managed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running()
}

// running must be called with mu held. A child that has exited is
// forgotten here.
func (s *Supervisor) running() bool {
	if s.cmd == nil {
		return false
	}
	select {
	case <-s.done:
		s.cmd = nil
		s.done = nil
		return false
	default:
		return true
	}
}

// WaitForReady polls the tags endpoint until the server answers or the
// attempt budget runs out.
func (s *Supervisor) WaitForReady(ctx context.Context) error {
	for attempt := 1; attempt <= readyAttempts; attempt++ {
		if s.Ready(ctx) {
			return nil
		}
		if attempt < readyAttempts && !s.sleep(ctx, readyInterval) {
			return ctx.Err()
		}
	}
	return errors.NewProviderUnavailable(providerName,
		fmt.Sprintf("server not ready after %d attempts", readyAttempts))
}

// EnsureRunning is the autostart path: a server that already answers
// is used as-is, otherwise the binary is started and polled until
// ready.
func (s *Supervisor) EnsureRunning(ctx context.Context) error {
	if s.Ready(ctx) {
		return nil
	}
	if err := s.Start(); err != nil {
		return err
	}
	return s.WaitForReady(ctx)
}

// listenAddr is the host:port the server should bind, derived from
// the configured base URL.
func (s *Supervisor) listenAddr() string {
	u, err := url.Parse(s.host)
	if err == nil && u.Host != "" {
		return u.Host
	}
	return "127.0.0.1:11434"
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

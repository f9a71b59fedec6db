package preflight

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/helpbase/kbengine/internal/embed"
)

const (
	// StartupTimeout is how long to wait for Ollama to come up.
	StartupTimeout = 30 * time.Second

	// readyPollInterval is the initial WaitForReady polling interval.
	// It doubles on each miss up to maxReadyPollInterval.
	readyPollInterval    = 100 * time.Millisecond
	maxReadyPollInterval = 2 * time.Second
)

// OllamaManager detects, starts and provisions a local Ollama daemon
// so hybrid search works without manual setup.
type OllamaManager struct {
	host   string
	client *http.Client

	// Test seams.
	execCommand func(name string, args ...string) *exec.Cmd
	lookPath    func(file string) (string, error)
	fileExists  func(path string) bool
}

// PullProgress reports model download progress.
type PullProgress struct {
	Status    string
	Digest    string
	Total     int64
	Completed int64
	Percent   float64
}

// EnsureOpts configures EnsureReady.
type EnsureOpts struct {
	// AutoStart launches the daemon when installed but not running.
	AutoStart bool
	// AutoPull downloads the embedding model when missing.
	AutoPull bool
	// ProgressFunc receives pull progress updates.
	ProgressFunc func(PullProgress)
	// Stdout carries status messages (default os.Stderr, so MCP stdio
	// stays clean).
	Stdout io.Writer
}

// DefaultEnsureOpts returns the zero-config behavior.
func DefaultEnsureOpts() EnsureOpts {
	return EnsureOpts{
		AutoStart: true,
		AutoPull:  true,
		Stdout:    os.Stderr,
	}
}

// NewOllamaManagerWithHost creates a manager. The KBENGINE_OLLAMA_HOST
// environment variable overrides host.
func NewOllamaManagerWithHost(host string) *OllamaManager {
	if host == "" {
		host = embed.DefaultOllamaHost
	}
	if envHost := os.Getenv("KBENGINE_OLLAMA_HOST"); envHost != "" {
		host = envHost
	}

	return &OllamaManager{
		host: host,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		execCommand: exec.Command,
		lookPath:    exec.LookPath,
		fileExists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
	}
}

// Host returns the configured Ollama endpoint.
func (m *OllamaManager) Host() string {
	return m.host
}

// IsInstalled reports whether an Ollama binary or app exists.
func (m *OllamaManager) IsInstalled() (bool, string, error) {
	if path, err := m.lookPath("ollama"); err == nil {
		return true, path, nil
	}

	if runtime.GOOS == "darwin" {
		for _, p := range []string{
			"/Applications/Ollama.app",
			filepath.Join(os.Getenv("HOME"), "Applications", "Ollama.app"),
		} {
			if m.fileExists(p) {
				return true, p, nil
			}
		}
	}

	if runtime.GOOS == "linux" {
		for _, p := range []string{
			"/usr/local/bin/ollama",
			"/usr/bin/ollama",
			filepath.Join(os.Getenv("HOME"), ".local", "bin", "ollama"),
		} {
			if m.fileExists(p) {
				return true, p, nil
			}
		}
	}

	return false, "", nil
}

// IsRunning reports whether the Ollama API responds.
func (m *OllamaManager) IsRunning(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		// Connection refused or timeout means not running.
		return false, nil
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK, nil
}

// ListModels returns the models the daemon has pulled.
func (m *OllamaManager) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect to ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	models := make([]string, len(result.Models))
	for i, model := range result.Models {
		models[i] = model.Name
	}
	return models, nil
}

// HasModel reports whether model (or its base name) is pulled.
func (m *OllamaManager) HasModel(ctx context.Context, model string) (bool, error) {
	models, err := m.ListModels(ctx)
	if err != nil {
		return false, err
	}

	want := strings.ToLower(model)
	wantBase := strings.Split(want, ":")[0]

	for _, available := range models {
		got := strings.ToLower(available)
		gotBase := strings.Split(got, ":")[0]
		if got == want || gotBase == wantBase {
			return true, nil
		}
	}
	return false, nil
}

// Start launches the Ollama daemon if installed and not yet running.
func (m *OllamaManager) Start(ctx context.Context) error {
	installed, path, err := m.IsInstalled()
	if err != nil {
		return fmt.Errorf("check installation: %w", err)
	}
	if !installed {
		return &NotInstalledError{}
	}

	if running, _ := m.IsRunning(ctx); running {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return m.startMacOS(path)
	case "linux":
		return m.startLinux(path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

func (m *OllamaManager) startMacOS(path string) error {
	if strings.HasSuffix(path, ".app") || m.fileExists("/Applications/Ollama.app") {
		cmd := m.execCommand("open", "-a", "Ollama")
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("open Ollama.app: %w", err)
		}
		return nil
	}
	return m.startServe(path)
}

func (m *OllamaManager) startLinux(path string) error {
	// Prefer the systemd unit when one exists.
	if err := m.execCommand("systemctl", "is-enabled", "--quiet", "ollama").Run(); err == nil {
		if err := m.execCommand("systemctl", "start", "ollama").Run(); err == nil {
			return nil
		}
		if err := m.execCommand("systemctl", "--user", "start", "ollama").Run(); err == nil {
			return nil
		}
	}
	return m.startServe(path)
}

func (m *OllamaManager) startServe(path string) error {
	cmd := m.execCommand(path, "serve")
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ollama serve: %w", err)
	}

	// Reap in the background so the daemon never zombies.
	go func() {
		_ = cmd.Wait()
	}()
	return nil
}

// WaitForReady polls with exponential backoff until the daemon
// responds or timeout elapses.
func (m *OllamaManager) WaitForReady(ctx context.Context, timeout time.Duration) error {
	if timeout == 0 {
		timeout = StartupTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	interval := readyPollInterval
	for {
		if running, _ := m.IsRunning(ctx); running {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for ollama: %w", ctx.Err())
		case <-time.After(interval):
		}

		interval *= 2
		if interval > maxReadyPollInterval {
			interval = maxReadyPollInterval
		}
	}
}

// PullModel downloads model via the streaming pull API, reporting
// progress through progressFunc.
func (m *OllamaManager) PullModel(ctx context.Context, model string, progressFunc func(PullProgress)) error {
	hasModel, err := m.HasModel(ctx, model)
	if err != nil {
		return fmt.Errorf("check model: %w", err)
	}
	if hasModel {
		return nil
	}

	body, err := json.Marshal(struct {
		Name   string `json:"name"`
		Stream bool   `json:"stream"`
	}{Name: model, Stream: true})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.host+"/api/pull", strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// No client timeout: large models stream for minutes. Cancellation
	// comes from ctx.
	pullClient := &http.Client{}
	resp, err := pullClient.Do(req)
	if err != nil {
		return fmt.Errorf("start pull: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		var progress struct {
			Status    string `json:"status"`
			Digest    string `json:"digest"`
			Total     int64  `json:"total"`
			Completed int64  `json:"completed"`
		}
		if err := json.Unmarshal([]byte(line), &progress); err != nil {
			continue
		}

		if progressFunc != nil {
			percent := 0.0
			if progress.Total > 0 {
				percent = float64(progress.Completed) / float64(progress.Total) * 100
			}
			progressFunc(PullProgress{
				Status:    progress.Status,
				Digest:    progress.Digest,
				Total:     progress.Total,
				Completed: progress.Completed,
				Percent:   percent,
			})
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read pull response: %w", err)
	}
	return nil
}

// EnsureReady makes sure Ollama is running with the embedding model
// pulled, starting and pulling as opts allow.
func (m *OllamaManager) EnsureReady(ctx context.Context, model string, opts EnsureOpts) error {
	if model == "" {
		model = embed.DefaultOllamaModel
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stderr
	}

	installed, _, err := m.IsInstalled()
	if err != nil {
		return fmt.Errorf("check installation: %w", err)
	}
	if !installed {
		return &NotInstalledError{}
	}

	running, err := m.IsRunning(ctx)
	if err != nil {
		return fmt.Errorf("check if running: %w", err)
	}

	if !running {
		if !opts.AutoStart {
			return &NotRunningError{}
		}

		fmt.Fprintln(opts.Stdout, "Ollama is installed but not running. Starting...")
		if err := m.Start(ctx); err != nil {
			return fmt.Errorf("start ollama: %w", err)
		}
		if err := m.WaitForReady(ctx, StartupTimeout); err != nil {
			return err
		}
		fmt.Fprintln(opts.Stdout, "Ollama started.")
	}

	hasModel, err := m.HasModel(ctx, model)
	if err != nil {
		return fmt.Errorf("check model: %w", err)
	}
	if hasModel {
		return nil
	}

	if !opts.AutoPull {
		return &ModelNotFoundError{Model: model}
	}

	fmt.Fprintf(opts.Stdout, "Pulling embedding model %s...\n", model)
	progressFunc := opts.ProgressFunc
	if progressFunc == nil {
		lastPercent := -1.0
		progressFunc = func(p PullProgress) {
			if p.Total > 0 && p.Percent != lastPercent {
				lastPercent = p.Percent
				fmt.Fprintf(opts.Stdout, "\r%s: %.0f%% (%s/%s)",
					p.Status, p.Percent,
					FormatBytes(uint64(p.Completed)), FormatBytes(uint64(p.Total)))
			}
		}
	}

	if err := m.PullModel(ctx, model, progressFunc); err != nil {
		return fmt.Errorf("pull model: %w", err)
	}
	fmt.Fprintln(opts.Stdout)
	fmt.Fprintf(opts.Stdout, "Model %s ready.\n", model)
	return nil
}

// NotInstalledError indicates Ollama is not installed.
type NotInstalledError struct{}

func (e *NotInstalledError) Error() string {
	return "ollama is not installed"
}

// NotRunningError indicates Ollama is installed but not running.
type NotRunningError struct{}

func (e *NotRunningError) Error() string {
	return "ollama is not running"
}

// ModelNotFoundError indicates the embedding model is not pulled.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %s not found", e.Model)
}

// InstallInstructions returns platform-specific install guidance shown
// when semantic search is requested without Ollama.
func InstallInstructions() string {
	switch runtime.GOOS {
	case "darwin":
		return `Ollama powers semantic search.

Install options:
  1. Download from: https://ollama.com/download
  2. Or via Homebrew: brew install ollama

Then run: kbengine rebuild`
	case "linux":
		return `Ollama powers semantic search.

Install:
  curl -fsSL https://ollama.com/install.sh | sh

Then run: kbengine rebuild`
	default:
		return `Ollama powers semantic search.

Download from: https://ollama.com/download

Then run: kbengine rebuild`
	}
}

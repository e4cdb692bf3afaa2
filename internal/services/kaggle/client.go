// Package kaggle submits stage batch jobs as Kaggle script kernels through the
// kaggle CLI.
package kaggle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ytcollector/internal/config"
	"ytcollector/internal/fileutil"
	"ytcollector/internal/services"
	"ytcollector/internal/stagerun"
)

const (
	scriptFile   = "script.py"
	metadataFile = "kernel-metadata.json"
	codeBaseURL  = "https://www.kaggle.com/code"
)

// Metadata is the kernel-metadata.json document read by `kaggle kernels push`.
type Metadata struct {
	ID                 string   `json:"id"`
	Title              string   `json:"title"`
	CodeFile           string   `json:"code_file"`
	Language           string   `json:"language"`
	KernelType         string   `json:"kernel_type"`
	IsPrivate          bool     `json:"is_private"`
	EnableGPU          bool     `json:"enable_gpu"`
	EnableInternet     bool     `json:"enable_internet"`
	DatasetSources     []string `json:"dataset_sources"`
	CompetitionSources []string `json:"competition_sources"`
	KernelSources      []string `json:"kernel_sources"`
}

// Client implements stagerun.Submitter.
type Client struct {
	binary         string
	username       string
	kernelDir      string
	enableGPU      bool
	enableInternet bool
	timeout        time.Duration
	exec           services.Executor
}

// Option customizes a Client.
type Option func(*Client)

// WithExecutor swaps the command runner, mostly for tests.
func WithExecutor(exec services.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// New builds a Client from the kaggle and paths configuration.
func New(cfg *config.Config, opts ...Option) *Client {
	binary := strings.TrimSpace(cfg.Kaggle.Binary)
	if binary == "" {
		binary = "kaggle"
	}
	c := &Client{
		binary:         binary,
		username:       strings.TrimSpace(cfg.Kaggle.Username),
		kernelDir:      cfg.Paths.KernelDir,
		enableGPU:      cfg.Kaggle.EnableGPU,
		enableInternet: cfg.Kaggle.EnableInternet,
		timeout:        time.Duration(cfg.Kaggle.SubmitTimeout) * time.Second,
		exec:           services.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// KernelLink returns the public page of a pushed kernel.
func KernelLink(username, kernel string) string {
	return fmt.Sprintf("%s/%s/%s", codeBaseURL, username, kernel)
}

// Submit writes the kernel directory for job and pushes it.
func (c *Client) Submit(ctx context.Context, job stagerun.Job) (stagerun.Ack, error) {
	if c.username == "" {
		return stagerun.Ack{}, services.Wrap(services.ErrConfiguration, job.Stage, "kaggle", "kaggle.username is not set", nil)
	}
	dir, err := c.prepare(job)
	if err != nil {
		return stagerun.Ack{}, services.Wrap(services.ErrConfiguration, job.Stage, "kaggle", "prepare kernel directory", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var (
		output    []string
		pushError string
	)
	err = c.exec.Run(ctx, c.binary, []string{"kernels", "push", "-p", dir}, func(line string) {
		line = strings.TrimSpace(line)
		if line == "" {
			return
		}
		output = append(output, line)
		if pushError == "" && isPushFailure(line) {
			pushError = line
		}
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return stagerun.Ack{}, services.Wrap(services.ErrTimeout, job.Stage, "kaggle push", job.KernelName, err)
		}
		return stagerun.Ack{}, services.Wrap(services.ErrExternalTool, job.Stage, "kaggle push", job.KernelName, err)
	}
	if pushError != "" {
		return stagerun.Ack{}, services.Wrap(services.ErrExternalTool, job.Stage, "kaggle push", pushError, nil)
	}

	return stagerun.Ack{
		KernelName: job.KernelName,
		Link:       KernelLink(c.username, job.KernelName),
	}, nil
}

// pushFailurePrefixes are the stdout lines the CLI prints for rejected pushes.
// It still exits zero in those cases.
var pushFailurePrefixes = []string{
	"kernel push error",
	"error:",
	"400 ", "401 ", "403 ", "404 ", "409 ", "429 ", "500 ",
}

func isPushFailure(line string) bool {
	lower := strings.ToLower(strings.TrimSpace(line))
	for _, prefix := range pushFailurePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func (c *Client) prepare(job stagerun.Job) (string, error) {
	if strings.TrimSpace(job.KernelName) == "" {
		return "", errors.New("job has no kernel name")
	}
	if len(job.KernelName) > config.MaxKernelNameLength {
		return "", fmt.Errorf("kernel name %q exceeds %d characters", job.KernelName, config.MaxKernelNameLength)
	}
	dir := filepath.Join(c.kernelDir, job.KernelName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(dir, scriptFile), []byte(job.Script), 0o644); err != nil {
		return "", fmt.Errorf("write script: %w", err)
	}
	meta := Metadata{
		ID:                 c.username + "/" + job.KernelName,
		Title:              job.KernelName,
		CodeFile:           scriptFile,
		Language:           "python",
		KernelType:         "script",
		IsPrivate:          true,
		EnableGPU:          c.enableGPU,
		EnableInternet:     c.enableInternet,
		DatasetSources:     []string{},
		CompetitionSources: []string{},
		KernelSources:      []string{},
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := fileutil.WriteFileAtomic(filepath.Join(dir, metadataFile), append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}
	return dir, nil
}

package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"ytcollector/internal/analysis"
	"ytcollector/internal/config"
	"ytcollector/internal/jobtemplate"
	"ytcollector/internal/queue"
)

// Requirement defines an external binary the collector shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Requirements lists the binaries needed by the given config.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Discovery.YtDlpBinary,
			Description: "Required for channel discovery",
		},
		{
			Name:        "kaggle",
			Command:     cfg.Kaggle.Binary,
			Description: "Required for stage job submission",
		},
	}
}

// CheckBinaries resolves each requirement on PATH.
func CheckBinaries(requirements []Requirement) []Result {
	results := make([]Result, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		result := Result{Name: req.Name, Optional: req.Optional}
		if cmd == "" {
			result.Detail = "command not configured"
			results = append(results, result)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			result.Detail = fmt.Sprintf("binary %q not found (%s)", cmd, strings.TrimSpace(req.Description))
			results = append(results, result)
			continue
		}
		result.Passed = true
		result.Detail = resolved
		results = append(results, result)
	}
	return results
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckTemplate verifies a stage template can be read and references every
// required binding.
func CheckTemplate(stageName, path string) Result {
	name := "Template " + stageName
	tmpl, err := jobtemplate.Load(path, jobtemplate.StageRequired...)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	present := make(map[string]struct{})
	for _, p := range tmpl.Placeholders() {
		present[p] = struct{}{}
	}
	var missing []string
	for _, binding := range jobtemplate.StageRequired {
		if _, ok := present[binding]; !ok {
			missing = append(missing, binding)
		}
	}
	if len(missing) > 0 {
		// A template may legitimately ignore a binding, so this only warns.
		return Result{Name: name, Optional: true, Detail: fmt.Sprintf("%s (unused bindings: %s)", path, strings.Join(missing, ", "))}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckRedis verifies the redis queue backend answers a ping.
func CheckRedis(ctx context.Context, cfg config.Queue) Result {
	const name = "Redis"
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return Result{Name: name, Detail: "missing queue.redis_addr"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := queue.ConnectRedis(checkCtx, queue.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return Result{Name: name, Detail: summarizeRedisError(err)}
	}
	_ = client.Close()
	return Result{Name: name, Passed: true, Detail: cfg.RedisAddr}
}

func summarizeRedisError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "ping timed out (redis unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ping timed out (redis unreachable)"
	}
	return err.Error()
}

// CheckAnalysis verifies the language model settings and the analysis prompt.
func CheckAnalysis(llmCfg config.LLM, settings config.Analysis) []Result {
	model := Result{Name: "LLM model", Passed: true, Detail: fmt.Sprintf("%s via %s", llmCfg.Model, llmCfg.BaseURL)}
	switch {
	case strings.TrimSpace(llmCfg.APIKey) == "":
		model = Result{Name: "LLM model", Detail: "llm.api_key is not set (or YTCOLLECTOR_LLM_API_KEY)"}
	case strings.TrimSpace(llmCfg.Model) == "":
		model = Result{Name: "LLM model", Detail: "llm.model is not set"}
	}

	prompt := Result{Name: "Analysis prompt", Passed: true, Detail: "built-in"}
	if settings.PromptFile != "" {
		prompt.Detail = settings.PromptFile
	}
	if _, err := analysis.LoadPrompt(settings.PromptFile); err != nil {
		prompt = Result{Name: "Analysis prompt", Detail: err.Error()}
	}
	return []Result{model, prompt}
}

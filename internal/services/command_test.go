package services_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"ytcollector/internal/services"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "tool.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCommandExecutorStreamsStdout(t *testing.T) {
	script := writeScript(t, "echo one\necho two\necho noise 1>&2\n")

	var lines []string
	err := services.CommandExecutor{}.Run(context.Background(), script, nil, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if strings.Join(lines, ",") != "one,two" {
		t.Fatalf("unexpected stdout lines: %v", lines)
	}
}

func TestCommandExecutorIncludesStderrOnFailure(t *testing.T) {
	script := writeScript(t, "echo 'quota exceeded' 1>&2\nexit 3\n")

	err := services.CommandExecutor{}.Run(context.Background(), script, nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected stderr tail in error, got %v", err)
	}
}

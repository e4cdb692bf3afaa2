package ytdlp_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"ytcollector/internal/services"
	"ytcollector/internal/services/ytdlp"
)

type fakeExecutor struct {
	lines  []string
	err    error
	binary string
	args   []string
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string, onStdout func(string)) error {
	f.binary = binary
	f.args = args
	for _, line := range f.lines {
		onStdout(line)
	}
	return f.err
}

func TestLatestParsesFlatPlaylist(t *testing.T) {
	exec := &fakeExecutor{lines: []string{
		`{"id":"new1","url":"https://www.youtube.com/watch?v=new1","title":"Newest","view_count":12}`,
		``,
		`{"id":"old2","title":"Older"}`,
		`{"title":"no id"}`,
	}}
	client := ytdlp.New("yt-dlp", ytdlp.WithExecutor(exec), ytdlp.WithCookiesFromBrowser("chrome"))

	got, err := client.Latest(context.Background(), "@SomeChannel", 5)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if len(got) != 2 || got[0].ID != "new1" || got[1].ID != "old2" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
	if got[0].ViewCount == nil || *got[0].ViewCount != 12 {
		t.Fatalf("expected view count 12, got %v", got[0].ViewCount)
	}
	if got[1].URL != "https://www.youtube.com/watch?v=old2" {
		t.Fatalf("expected fallback url, got %q", got[1].URL)
	}
	if exec.binary != "yt-dlp" {
		t.Fatalf("unexpected binary %q", exec.binary)
	}
	for _, want := range []string{"--flat-playlist", "--dump-json", "5", "chrome", "https://www.youtube.com/@SomeChannel/videos"} {
		if !slices.Contains(exec.args, want) {
			t.Fatalf("args %v missing %q", exec.args, want)
		}
	}
}

func TestLatestWrapsToolFailure(t *testing.T) {
	exec := &fakeExecutor{err: errors.New("exit status 1: ERROR: channel does not exist")}
	client := ytdlp.New("", ytdlp.WithExecutor(exec))
	_, err := client.Latest(context.Background(), "missing", 5)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if exec.binary != "yt-dlp" {
		t.Fatalf("expected default binary, got %q", exec.binary)
	}
}

func TestLatestRejectsGarbage(t *testing.T) {
	exec := &fakeExecutor{lines: []string{"not json"}}
	_, err := ytdlp.New("yt-dlp", ytdlp.WithExecutor(exec)).Latest(context.Background(), "c", 5)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestChannelURL(t *testing.T) {
	cases := map[string]string{
		"name":                             "https://www.youtube.com/@name/videos",
		"@name":                            "https://www.youtube.com/@name/videos",
		"https://www.youtube.com/c/x/feed": "https://www.youtube.com/c/x/feed",
	}
	for in, want := range cases {
		if got := ytdlp.ChannelURL(in); got != want {
			t.Fatalf("ChannelURL(%q) = %q want %q", in, got, want)
		}
	}
}

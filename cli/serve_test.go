package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "engage.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	old := configPath
	configPath = path
	t.Cleanup(func() { configPath = old })
}

func TestBootstrapAndHTTPApp(t *testing.T) {
	writeConfig(t, `
server:
  service_token: bridge-token
database:
  url: ./data/test.db
policy:
  points:
    per_action: 3
`)

	a, err := bootstrap(context.Background())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer a.Close()

	if got := a.policy.Int("points.per_action"); got != 3 {
		t.Errorf("points.per_action = %d, want 3 from config", got)
	}
	if a.seasons.Archiver != nil {
		t.Error("archiver should be nil without a bucket")
	}

	srv := newHTTPApp(context.Background(), a)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := srv.Test(req, -1)
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("without token = %d, want 401", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Authorization", "Bearer bridge-token")
	resp, err = srv.Test(req, -1)
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("with token = %d, want 200", resp.StatusCode)
	}

	sched, err := a.scheduler()
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("scheduler start: %v", err)
	}
	if got := len(sched.JobNames()); got != 4 {
		t.Errorf("jobs = %d, want 4", got)
	}
	sched.Shutdown()
}

func TestCommandsRegistered(t *testing.T) {
	for _, path := range [][]string{
		{"serve"}, {"log"}, {"stats"},
		{"season", "current"}, {"season", "rollover"}, {"season", "leaderboard"}, {"season", "list"},
		{"streaks", "rollup"}, {"streaks", "show"},
		{"policy", "get"}, {"policy", "set"}, {"policy", "list"},
		{"digest"}, {"reminders"},
	} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd == rootCmd {
			t.Errorf("command %v not registered: %v", path, err)
		}
	}
}

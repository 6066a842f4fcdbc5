package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/faucetdb/widgets/internal/store"
)

func TestSanitizeDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{"postgres with password", "postgres://app:s3cret@db:5432/widgets", "postgres://app:****@db:5432/widgets"},
		{"no password", "postgres://app@db/widgets", "postgres://app@db/widgets"},
		{"sqlite path", "/var/lib/widgets.db", "/var/lib/widgets.db"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeDSN(tt.dsn); got != tt.want {
				t.Errorf("sanitizeDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
			}
		})
	}
}

func TestPercentile(t *testing.T) {
	sorted := make([]time.Duration, 100)
	for i := range sorted {
		sorted[i] = time.Duration(i+1) * time.Millisecond
	}
	if got := percentile(sorted, 50); got != 51*time.Millisecond {
		t.Errorf("p50 = %s", got)
	}
	if got := percentile(sorted, 100); got != 100*time.Millisecond {
		t.Errorf("p100 = %s", got)
	}
	if got := percentile(nil, 99); got != 0 {
		t.Errorf("empty p99 = %s", got)
	}
}

func TestLocalHost(t *testing.T) {
	for in, want := range map[string]string{
		"":          "127.0.0.1",
		"0.0.0.0":   "127.0.0.1",
		"::":        "127.0.0.1",
		"10.0.0.7":  "10.0.0.7",
		"localhost": "localhost",
	} {
		if got := localHost(in); got != want {
			t.Errorf("localHost(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRunAuthLoad(t *testing.T) {
	st, err := store.Open(context.Background(), store.Config{Driver: "sqlite", DSN: ":memory:"})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer st.Close()
	if _, err := st.IssueAPIKey(context.Background(), "abc123", "acme"); err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res := runAuthLoad(ctx, st, []string{"abc123"}, 4, 2)

	if res.valid == 0 || res.invalid == 0 {
		t.Errorf("valid = %d, invalid = %d; want both > 0", res.valid, res.invalid)
	}
	if res.errors != 0 {
		t.Errorf("errors = %d, want 0", res.errors)
	}
	if int64(len(res.latencies)) != res.valid+res.invalid {
		t.Errorf("latencies = %d, want %d", len(res.latencies), res.valid+res.invalid)
	}
}

// execute runs the root command with args against a scratch SQLite database.
func execute(args ...string) error {
	cmd := newRootCmd(Build{Version: "test", Commit: "none", Date: "unknown"})
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestKeyCommands(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WIDGETS_DATABASE_DSN", filepath.Join(t.TempDir(), "widgets.db"))

	steps := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"issue", []string{"key", "issue", "--client", "acme", "--key", "abc123"}, false},
		{"check active", []string{"key", "check", "abc123"}, false},
		{"second key for client", []string{"key", "issue", "--client", "acme", "--key", "xyz999"}, true},
		{"deactivate", []string{"key", "deactivate", "abc123"}, false},
		{"deactivate again", []string{"key", "deactivate", "abc123"}, true},
		{"check deactivated", []string{"key", "check", "abc123"}, true},
		{"reuse key", []string{"key", "issue", "--client", "other", "--key", "abc123"}, true},
		{"reissue client", []string{"key", "issue", "--client", "acme", "--key", "xyz999"}, false},
		{"list", []string{"key", "list", "--json"}, false},
		{"unknown key", []string{"key", "deactivate", "nope"}, true},
	}
	for _, s := range steps {
		err := execute(s.args...)
		if (err != nil) != s.wantErr {
			t.Fatalf("%s: err = %v, wantErr %v", s.name, err, s.wantErr)
		}
	}
}

func TestWidgetCommands(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("WIDGETS_DATABASE_DSN", filepath.Join(t.TempDir(), "widgets.db"))

	if err := execute("widget", "create", "--name", "Stembolt", "--price-cents", "100"); err == nil {
		t.Fatal("expected error before statuses are seeded")
	}
	if err := execute("db", "seed"); err != nil {
		t.Fatalf("db seed: %v", err)
	}
	if err := execute("widget", "create", "--name", "Stembolt", "--price-cents", "100"); err != nil {
		t.Fatalf("widget create: %v", err)
	}
	if err := execute("widget", "create", "--name", "Freebie", "--price-cents", "0"); err == nil {
		t.Fatal("expected validation error for zero price")
	}
	if err := execute("widget", "list"); err != nil {
		t.Fatalf("widget list: %v", err)
	}
}

func TestVersionInfo(t *testing.T) {
	v := Build{Version: "1.2.0", Commit: "abc1234", Date: "2026-10-01T00:00:00Z"}.info()
	if v.Version != "1.2.0" || v.Commit != "abc1234" || v.Built != "2026-10-01T00:00:00Z" {
		t.Errorf("ldflags values not kept: %+v", v)
	}
	if len(v.Drivers) == 0 || v.Drivers[0] != store.Drivers()[0] {
		t.Errorf("drivers = %v, want %v", v.Drivers, store.Drivers())
	}

	var buf bytes.Buffer
	if err := printVersion(&buf, v, false); err != nil {
		t.Fatalf("printVersion: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "widgets 1.2.0\n") {
		t.Errorf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "sqlite") {
		t.Errorf("driver list missing from %q", out)
	}

	buf.Reset()
	if err := printVersion(&buf, v, true); err != nil {
		t.Fatalf("printVersion json: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["version"] != "1.2.0" || decoded["database_drivers"] == nil {
		t.Errorf("json = %v", decoded)
	}
}

func TestWaitForExit(t *testing.T) {
	calls := 0
	exitsOnThird := func(int) bool {
		calls++
		return calls < 3
	}
	if !waitForExit(42, time.Second, exitsOnThird) {
		t.Error("expected exit to be observed")
	}

	alwaysAlive := func(int) bool { return true }
	if waitForExit(42, 150*time.Millisecond, alwaysAlive) {
		t.Error("expected timeout for a process that never exits")
	}
}

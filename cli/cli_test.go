package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"social-ledger/ledger"
	"social-ledger/ledger/ledgertest"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func noEnv(string) (string, bool) { return "", false }

// harness runs commands against one SQLite file with a stepping clock.
type harness struct {
	t    *testing.T
	db   string
	opts *RootOptions
}

func newHarness(t *testing.T) *harness {
	return &harness{
		t:  t,
		db: filepath.Join(t.TempDir(), "ledger.db"),
		opts: &RootOptions{
			lookupEnv: noEnv,
			logger:    zaptest.NewLogger(t),
			clock:     ledgertest.NewStepClock(epoch, time.Second),
		},
	}
}

func (h *harness) run(args ...string) (string, error) {
	buf := &bytes.Buffer{}
	cmd := newRootCommand(h.opts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", h.db}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func (h *harness) mustRun(args ...string) string {
	out, err := h.run(args...)
	require.NoError(h.t, err, out)
	return out
}

func (h *harness) runJSON(args ...string) (CLIResponse, json.RawMessage, error) {
	out, err := h.run(append([]string{"--format", "json"}, args...)...)
	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(h.t, json.Unmarshal([]byte(out), &resp), out)
	return resp.CLIResponse, resp.Data, err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "social-ledger", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"},
		{"profile", "create"},
		{"profile", "get"},
		{"post", "create"},
		{"post", "get"},
		{"post", "list"},
		{"like"},
		{"follow"},
		{"feed"},
	}

	for _, path := range commands {
		t.Run(strings.Join(path, "_"), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "storage", "db", "log-level", "dev", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("--format", "xml", "profile", "get", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidStorageMode(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("--storage", "papyrus", "profile", "get", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid storage mode")
}

func TestScenarioText(t *testing.T) {
	h := newHarness(t)
	var out strings.Builder
	out.WriteString(h.mustRun("profile", "create", "alice", "alice", "Alice"))
	out.WriteString(h.mustRun("profile", "create", "bob", "bob", "Bob"))
	out.WriteString(h.mustRun("post", "create", "alice", "hello"))
	out.WriteString(h.mustRun("like", ledger.PostKey("alice", 0).String(), "bob"))
	out.WriteString(h.mustRun("follow", "bob", "alice"))
	out.WriteString(h.mustRun("profile", "get", "alice"))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "scenario", []byte(out.String()))
}

func TestCreateProfileJSON(t *testing.T) {
	h := newHarness(t)
	resp, data, err := h.runJSON("profile", "create", "alice", "alice", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	var res result
	require.NoError(t, json.Unmarshal(data, &res))
	require.NotNil(t, res.Profile)
	assert.Equal(t, ledger.ProfileKey("alice"), res.Profile.Key)
	require.Len(t, res.Events, 1)
	assert.Equal(t, ledger.EventProfileCreated, res.Events[0].Type)
}

func TestFailuresJSON(t *testing.T) {
	h := newHarness(t)
	h.mustRun("profile", "create", "alice", "alice", "Alice")

	tests := []struct {
		name  string
		args  []string
		code  string
		field string
	}{
		{"duplicate profile", []string{"profile", "create", "alice", "other", "Other"}, "already_exists", "owner"},
		{"content too long", []string{"post", "create", "alice", strings.Repeat("x", 281)}, "content_too_long", "content"},
		{"author without profile", []string{"post", "create", "mallory", "hi"}, "not_found", "author"},
		{"missing post", []string{"like", ledger.PostKey("alice", 7).String(), "alice"}, "not_found", "post"},
		{"malformed post key", []string{"post", "get", "post4"}, "not_found", ""},
		{"follow missing", []string{"follow", "alice", "nobody"}, "not_found", "followee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _, err := h.runJSON(tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Equal(t, tt.field, resp.Error.Field)
		})
	}

	// nothing above changed alice
	_, data, err := h.runJSON("profile", "get", "alice")
	require.NoError(t, err)
	var res result
	require.NoError(t, json.Unmarshal(data, &res))
	assert.Equal(t, uint64(0), res.Profile.PostCount)
	assert.Equal(t, uint64(0), res.Profile.FollowingCount)
}

func TestPostListPages(t *testing.T) {
	h := newHarness(t)
	h.mustRun("profile", "create", "alice", "alice", "Alice")
	for _, content := range []string{"one", "two", "three"} {
		h.mustRun("post", "create", "alice", content)
	}

	_, data, err := h.runJSON("post", "list", "alice", "--size", "2")
	require.NoError(t, err)
	var first result
	require.NoError(t, json.Unmarshal(data, &first))
	require.Len(t, first.Posts, 2)
	assert.Equal(t, "three", first.Posts[0].Content)
	assert.Equal(t, "two", first.Posts[1].Content)
	require.NotEmpty(t, first.NextPage)

	_, data, err = h.runJSON("post", "list", "alice", "--size", "2", "--page", first.NextPage)
	require.NoError(t, err)
	var second result
	require.NoError(t, json.Unmarshal(data, &second))
	require.Len(t, second.Posts, 1)
	assert.Equal(t, "one", second.Posts[0].Content)
	assert.Empty(t, second.NextPage)
}

func TestFeed(t *testing.T) {
	h := newHarness(t)
	h.mustRun("profile", "create", "alice", "alice", "Alice")
	h.mustRun("profile", "create", "bob", "bob", "Bob")
	h.mustRun("post", "create", "alice", "a0")
	h.mustRun("post", "create", "bob", "b0")
	h.mustRun("post", "create", "alice", "a1")

	_, data, err := h.runJSON("feed", "alice", "bob", "nobody", "--limit", "10")
	require.NoError(t, err)
	var res result
	require.NoError(t, json.Unmarshal(data, &res))
	var contents []string
	for _, p := range res.Posts {
		contents = append(contents, p.Content)
	}
	assert.Equal(t, []string{"a1", "b0", "a0"}, contents)
}

func TestConfigFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	db := filepath.Join(t.TempDir(), "from-config.db")
	require.NoError(t, os.WriteFile(path, []byte("storage_mode: sqlite\nsqlite_path: "+db+"\n"), 0o600))

	buf := &bytes.Buffer{}
	cmd := newRootCommand(h.opts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--config", path, "profile", "create", "alice", "alice", "Alice"})
	require.NoError(t, cmd.Execute())

	_, err := os.Stat(db)
	require.NoError(t, err)
}

func TestInMemoryStorageForgets(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("--storage", "inmemory", "profile", "create", "alice", "alice", "Alice")
	require.NoError(t, err)
	_, err = h.run("--storage", "inmemory", "profile", "get", "alice")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

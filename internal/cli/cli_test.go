// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/chatkeep/internal/client"
	"github.com/jeranaias/chatkeep/internal/config"
	"github.com/jeranaias/chatkeep/internal/export"
	"github.com/jeranaias/chatkeep/internal/model"
	"github.com/jeranaias/chatkeep/internal/settings"
	"github.com/jeranaias/chatkeep/internal/storage"
)

// =============================================================================
// HELPERS
// =============================================================================

var t0 = time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

// testEnv is a data directory with a config file pointing at it.
type testEnv struct {
	dataDir string
	cfgPath string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		dataDir: t.TempDir(),
		cfgPath: filepath.Join(t.TempDir(), "config.toml"),
	}
	cfg := config.Default()
	cfg.DataDir = env.dataDir
	cfg.Search.Watch = false
	require.NoError(t, config.SaveTOML(cfg, env.cfgPath))
	return env
}

// run executes the command line with stdin as input and returns stdout.
func (e *testEnv) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", e.cfgPath, "--env-file", ""}, args...))
	err := root.Execute()
	return out.String(), err
}

func (e *testEnv) repo(t *testing.T) *storage.Repository {
	t.Helper()
	repo, err := storage.Open(e.dataDir)
	require.NoError(t, err)
	return repo
}

// seed stores a conversation whose last reply is at ts.
func (e *testEnv) seed(t *testing.T, question, answer string, ts time.Time) (string, *model.Conversation) {
	t.Helper()
	conv := model.NewConversation(model.NewSystemMessage("You are X"), "m1", ts)
	conv.Append(model.NewUserMessage(question), ts)
	conv.Append(model.NewAssistantMessage(answer), ts)
	name := model.TimestampNamer{Loc: time.UTC}.Name(conv)
	require.NoError(t, e.repo(t).Save(context.Background(), name, conv))
	return name, conv
}

func decodeResponse[T any](t *testing.T, out string) (bool, T) {
	t.Helper()
	var resp struct {
		Success bool `json:"success"`
		Data    T    `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp.Success, resp.Data
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

func TestConversationsList(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "First question", "a", t0)
	env.seed(t, "Second question", "b", t0.Add(time.Hour))

	out, err := env.run(t, "", "conversations", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "First question")
	assert.Contains(t, out, "Second question")
	assert.Less(t, strings.Index(out, "Second question"), strings.Index(out, "First question"))
}

func TestConversationsList_Empty(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "", "conversations", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No conversations found.")
}

func TestConversationsList_JSON(t *testing.T) {
	env := newTestEnv(t)
	name, conv := env.seed(t, "Hello", "Hi", t0)

	out, err := env.run(t, "", "--json", "conversations", "list")
	require.NoError(t, err)

	ok, metas := decodeResponse[[]storage.Meta](t, out)
	assert.True(t, ok)
	require.Len(t, metas, 1)
	assert.Equal(t, name, metas[0].Filename)
	assert.Equal(t, conv.ID, metas[0].ID)
	assert.Equal(t, "Hello", metas[0].Title)
}

func TestConversationsShow(t *testing.T) {
	env := newTestEnv(t)
	name, conv := env.seed(t, "Hello", "Hi there", t0)

	out, err := env.run(t, "", "conversations", "show", name)
	require.NoError(t, err)
	assert.Equal(t, storage.ExportMarkdown(conv), out)
}

func TestConversationsShow_JSONToFile(t *testing.T) {
	env := newTestEnv(t)
	name, conv := env.seed(t, "Hello", "Hi there", t0)
	dest := filepath.Join(t.TempDir(), "export.json")

	_, err := env.run(t, "", "conversations", "show", name, "--format", "json", "-o", dest)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	var got model.Conversation
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, conv.ID, got.ID)
	assert.Len(t, got.Messages, 3)
}

func TestConversationsShow_HTMLToDir(t *testing.T) {
	env := newTestEnv(t)
	name, _ := env.seed(t, "Hello <there>", "Hi", t0)
	dir := t.TempDir()

	out, err := env.run(t, "", "--json", "conversations", "show", name, "--format", "html", "--output-dir", dir)
	require.NoError(t, err)

	ok, data := decodeResponse[map[string]string](t, out)
	require.True(t, ok)
	path := data["path"]
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".html"), path)

	page, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(page), "Hello &lt;there&gt;")
}

func TestConversationsShow_Errors(t *testing.T) {
	env := newTestEnv(t)
	name, _ := env.seed(t, "Hello", "Hi", t0)

	_, err := env.run(t, "", "conversations", "show", name, "--format", "pdf")
	assert.ErrorIs(t, err, export.ErrUnknownFormat)
	assert.Equal(t, ExitUsageError, GetExitCode(err))

	_, err = env.run(t, "", "conversations", "show", "2030-01-01_00-00-00.json")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, ExitNotFoundError, GetExitCode(err))
}

func TestConversationsDelete_Prompt(t *testing.T) {
	env := newTestEnv(t)
	name, _ := env.seed(t, "Hello", "Hi", t0)

	out, err := env.run(t, "n\n", "conversations", "delete", name)
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")
	names, err := env.repo(t).ListFilenames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{name}, names)

	out, err = env.run(t, "y\n", "conversations", "delete", name)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted")
	names, err = env.repo(t).ListFilenames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestConversationsDelete_JSONRequiresConfirm(t *testing.T) {
	env := newTestEnv(t)
	name, _ := env.seed(t, "Hello", "Hi", t0)

	_, err := env.run(t, "y\n", "--json", "conversations", "delete", name)
	assert.ErrorIs(t, err, errConfirmJSON)

	_, err = env.run(t, "", "--json", "conversations", "delete", name, "--confirm")
	require.NoError(t, err)
	_, err = env.repo(t).Get(context.Background(), name)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestConversationsDelete_InvalidName(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.run(t, "", "conversations", "delete", "index.json", "--confirm")
	assert.ErrorIs(t, err, storage.ErrReservedName)
	assert.Equal(t, ExitUsageError, GetExitCode(err))
}

func TestConversationsClear(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t, "One", "a", t0)
	env.seed(t, "Two", "b", t0.Add(time.Minute))

	out, err := env.run(t, "", "conversations", "clear", "--confirm")
	require.NoError(t, err)
	assert.Contains(t, out, "2 conversation(s)")

	names, err := env.repo(t).ListFilenames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

// =============================================================================
// SEARCH
// =============================================================================

func TestSearch_Local(t *testing.T) {
	env := newTestEnv(t)
	name, _ := env.seed(t, "How do I configure nginx", "Edit nginx.conf", t0)
	env.seed(t, "Unrelated topic", "Nothing", t0.Add(time.Minute))

	out, err := env.run(t, "", "search", "nginx")
	require.NoError(t, err)
	assert.Contains(t, out, name)
	assert.NotContains(t, out, "Unrelated topic")

	out, err = env.run(t, "", "search", "kubernetes")
	require.NoError(t, err)
	assert.Contains(t, out, "No matches.")
}

// =============================================================================
// CHAT
// =============================================================================

func TestChat_RecordsConversation(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "Hello there\n/reply Hi! How can I help?\n/show\n/quit\n", "chat", "--model", "m1")
	require.NoError(t, err)
	assert.Contains(t, out, "Hi! How can I help?")

	repo := env.repo(t)
	names, err := repo.ListFilenames(context.Background())
	require.NoError(t, err)
	require.Len(t, names, 1)

	conv, err := repo.Get(context.Background(), names[0])
	require.NoError(t, err)
	assert.Equal(t, "Hello there", conv.Title)
	assert.Equal(t, "m1", conv.Model)
	require.Len(t, conv.Messages, 3)
	assert.Equal(t, model.RoleSystem, conv.Messages[0].Role)
	assert.Equal(t, DefaultSystemPrompt, conv.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, conv.Messages[2].Role)
}

func TestChat_ListSwitchDelete(t *testing.T) {
	env := newTestEnv(t)
	older, _ := env.seed(t, "Older chat", "a", t0)
	env.seed(t, "Newer chat", "b", t0.Add(time.Hour))

	out, err := env.run(t, "/list\n/switch 2\n/delete\n/list\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "Switched to Older chat")
	assert.Contains(t, out, "Deleted Older chat")

	names, err := env.repo(t).ListFilenames(context.Background())
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.NotEqual(t, older, names[0])
}

func TestChat_Errors(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "/reply nobody asked\n/switch 5\n/bogus\n", "chat")
	require.NoError(t, err)
	assert.Contains(t, out, "no conversation selected")
	assert.Contains(t, out, "expected a number between 1 and 0")
	assert.Contains(t, out, "unknown command /bogus")
}

// =============================================================================
// DOCTOR
// =============================================================================

func TestDoctor_FreshDirectoryWarnsAboutSettings(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "", "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "Missing settings")

	out, err = env.run(t, "", "doctor", "--fix")
	require.NoError(t, err)
	assert.Contains(t, out, "Fixed Settings")
	assert.Contains(t, out, "Settings documents present")

	_, err = os.Stat(filepath.Join(env.dataDir, settings.ModelsFile))
	assert.NoError(t, err)
}

func TestDoctor_PrunesDanglingEntries(t *testing.T) {
	env := newTestEnv(t)
	name, _ := env.seed(t, "Hello", "Hi", t0)
	require.NoError(t, os.Remove(filepath.Join(env.dataDir, storage.DirName, name)))

	out, err := env.run(t, "", "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "without a file")

	_, err = env.run(t, "", "doctor", "--fix")
	require.NoError(t, err)
	names, err := env.repo(t).ListFilenames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDoctor_UnreadableConversationFails(t *testing.T) {
	env := newTestEnv(t)
	name, _ := env.seed(t, "Hello", "Hi", t0)
	require.NoError(t, os.WriteFile(filepath.Join(env.dataDir, storage.DirName, name), []byte("{broken"), 0644))

	out, err := env.run(t, "", "--json", "doctor")
	require.Error(t, err)
	assert.True(t, errors.As(err, new(reportedError)))

	ok, data := decodeResponse[DoctorData](t, out)
	assert.False(t, ok)
	assert.False(t, data.Summary.Healthy)
	assert.Equal(t, 1, data.Summary.Failed)
}

// =============================================================================
// CONFIG / VERSION
// =============================================================================

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	dataDir := t.TempDir()

	run := func(args ...string) error {
		root := NewRootCommand()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs(append([]string{"--config", path, "--env-file", "", "--data-dir", dataDir}, args...))
		return root.Execute()
	}

	require.NoError(t, run("config", "init"))
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)

	assert.ErrorContains(t, run("config", "init"), "already exists")
	assert.NoError(t, run("config", "init", "--force"))
}

func TestConfigShow_FlagOverridesFile(t *testing.T) {
	env := newTestEnv(t)
	other := t.TempDir()

	out, err := env.run(t, "", "--data-dir", other, "--json", "config", "show")
	require.NoError(t, err)

	ok, cfg := decodeResponse[config.Config](t, out)
	assert.True(t, ok)
	assert.Equal(t, other, cfg.DataDir)
}

func TestConfig_InvalidFileIsConfigError(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(env.cfgPath, []byte("[server]\nport = 99999\n"), 0600))

	_, err := env.run(t, "", "conversations", "list")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, GetExitCode(err))
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.run(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "chatkeep "+Version)
}

// =============================================================================
// HELPERS UNDER TEST
// =============================================================================

func TestRequireConfirmation(t *testing.T) {
	var out bytes.Buffer

	ok, err := RequireConfirmation(strings.NewReader(""), &out, "delete", nil, ConfirmationOptions{ConfirmFlag: true})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = RequireConfirmation(strings.NewReader("y\n"), &out, "delete", nil, ConfirmationOptions{JSONMode: true})
	assert.ErrorIs(t, err, errConfirmJSON)

	for input, want := range map[string]bool{"y\n": true, "YES\n": true, "n\n": false, "\n": false, "y": true} {
		ok, err := RequireConfirmation(strings.NewReader(input), &out, "delete", [][2]string{{"File", "a.json"}}, ConfirmationOptions{})
		require.NoError(t, err, input)
		assert.Equal(t, want, ok, input)
	}

	_, err = RequireConfirmation(strings.NewReader(""), &out, "delete", nil, ConfirmationOptions{})
	assert.Error(t, err)
}

func TestGetExitCode(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errors.New("boom"), ExitGeneralError},
		{fmt.Errorf("get: %w", storage.ErrNotFound), ExitNotFoundError},
		{fmt.Errorf("save: %w", client.ErrBadRequest), ExitUsageError},
		{fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "port", Message: "bad"}}), ExitConfigError},
		{context.DeadlineExceeded, ExitTimeoutError},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, ExitNetworkError},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, GetExitCode(tc.err), "%v", tc.err)
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, storage.ErrNotFound, true)
	var resp struct {
		Success bool              `json:"success"`
		Error   string            `json:"error"`
		Data    map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "not_found_error", resp.Data["error_type"])

	buf.Reset()
	DisplayError(&buf, reportedError{errors.New("printed")}, false)
	assert.Empty(t, buf.String())
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, loadDotEnv(filepath.Join(dir, "missing.env"), false))
	assert.Error(t, loadDotEnv(filepath.Join(dir, "missing.env"), true))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CHATKEEP_TEST_DOTENV=from-file\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("CHATKEEP_TEST_DOTENV") })

	require.NoError(t, loadDotEnv(path, true))
	assert.Equal(t, "from-file", os.Getenv("CHATKEEP_TEST_DOTENV"))
}

func TestTerminalDetection_NonTerminalStreams(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, isTerminal(&buf))
	assert.False(t, isTerminal(strings.NewReader("")))
	assert.Equal(t, DefaultTerminalWidth, terminalWidth(&buf))
	assert.Equal(t, "# Title\n", renderMarkdown(&buf, "# Title\n"))
}

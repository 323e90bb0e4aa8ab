package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentduet/config"
	"github.com/hupe1980/agentduet/core"
	"github.com/hupe1980/agentduet/session"
)

type cliEnv struct {
	dir        string
	configPath string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	for _, key := range []string{config.EnvGeminiKey, config.EnvOpenAIKey, config.EnvAnthropicKey, config.EnvOllamaHost, config.EnvLogLevel} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "agentduet.yaml")
	cfg := fmt.Sprintf(`engine:
  poll_interval: 5ms
paths:
  history_dir: %s
  user_personas: %s
  user_styles: %s
log:
  level: error
`, filepath.Join(dir, "history"), filepath.Join(dir, "user_personas.json"), filepath.Join(dir, "user_styles.json"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))
	return cliEnv{dir: dir, configPath: cfgPath}
}

func (e cliEnv) run(args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRun_DryRun(t *testing.T) {
	env := newCLIEnv(t)
	exportPath := filepath.Join(env.dir, "out", "talk.md")

	out, _, err := env.run("run", "--dry-run", "--topic", "tabs or spaces", "--rounds", "2", "--export", exportPath)
	require.NoError(t, err)

	assert.Contains(t, out, "Persona introduction")
	assert.Contains(t, out, "Round 1 (Agent1, model: echo):")
	assert.Contains(t, out, "Round 2 (Agent2, model: echo):")
	assert.Contains(t, out, "Agent1 (turn 1) replying to: \"On the topic: 'tabs or spaces'\"")
	assert.True(t, strings.HasSuffix(out, "--- Conversation ended ---\n"))

	md, err := os.ReadFile(exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "### Agent1\n> ")

	list, err := session.NewFileStore(filepath.Join(env.dir, "history")).List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tabs or spaces", list[0].Topic)
	assert.Equal(t, core.RunCompleted, list[0].State)
}

func TestRun_RequiresTopic(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run("run", "--dry-run")
	assert.ErrorContains(t, err, "--topic")
}

func TestRun_RejectsInvalidRounds(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run("run", "--dry-run", "--topic", "x", "--rounds", "0")
	assert.ErrorContains(t, err, "rounds")
}

func TestRun_UnknownBackend(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run("run", "--topic", "x", "--backend1", "carrier-pigeon")
	assert.ErrorContains(t, err, "unknown backend")
}

func TestRun_CloudBackendNeedsKey(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run("run", "--topic", "x", "--backend1", "openai", "--backend2", "echo")
	assert.ErrorContains(t, err, "OPENAI_API_KEY")
}

func TestModels_Echo(t *testing.T) {
	env := newCLIEnv(t)
	out, _, err := env.run("models", "echo")
	require.NoError(t, err)
	assert.Equal(t, "echo\n", out)
}

func TestPersonasAndStyles(t *testing.T) {
	env := newCLIEnv(t)

	_, _, err := env.run("personas", "add", "Critic", "--prompt", "You criticise.")
	require.NoError(t, err)
	_, _, err = env.run("personas", "add", "Critic", "--prompt", "again")
	assert.ErrorContains(t, err, "already exists")
	_, _, err = env.run("personas", "delete", "[Default] Optimist")
	assert.ErrorContains(t, err, "read-only")

	out, _, err := env.run("personas", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "[Default] Optimist\n")
	assert.Contains(t, out, "Critic\n")

	backup := filepath.Join(env.dir, "backup.json")
	_, _, err = env.run("personas", "export", backup)
	require.NoError(t, err)
	_, _, err = env.run("personas", "delete", "Critic")
	require.NoError(t, err)
	out, _, err = env.run("personas", "import", backup)
	require.NoError(t, err)
	assert.Equal(t, "imported 1 persona(s)\n", out)

	_, _, err = env.run("styles", "add", "Brief", "--prompt", "Answer in one sentence.")
	require.NoError(t, err)
	out, _, err = env.run("styles", "list")
	require.NoError(t, err)
	assert.Equal(t, "Brief: Answer in one sentence.\n", out)

	out, _, err = env.run("run", "--dry-run", "--topic", "x", "--rounds", "1",
		"--persona1", "Critic", "--persona2", "Optimist", "--style", "Brief")
	require.NoError(t, err)
	assert.Contains(t, out, "Agent1: Critic\n")
	assert.Contains(t, out, "Agent2: [Default] Optimist\n")
	assert.Contains(t, out, "Answer in one sentence.")
}

func TestPersonasAndStyles_ImportReplace(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run("personas", "add", "Critic", "--prompt", "You criticise.")
	require.NoError(t, err)
	_, _, err = env.run("styles", "add", "Brief", "--prompt", "One sentence.")
	require.NoError(t, err)

	personaBackup := filepath.Join(env.dir, "personas.json")
	require.NoError(t, os.WriteFile(personaBackup, []byte(`[{"name": "Poet", "prompt": "You rhyme."}]`), 0o644))
	out, _, err := env.run("personas", "import", personaBackup, "--replace")
	require.NoError(t, err)
	assert.Equal(t, "replaced user personas with 1 persona(s)\n", out)

	out, _, err = env.run("personas", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Poet\n")
	assert.Contains(t, out, "[Default] Optimist\n")
	assert.NotContains(t, out, "Critic")

	styleBackup := filepath.Join(env.dir, "styles.json")
	_, _, err = env.run("styles", "export", styleBackup)
	require.NoError(t, err)
	_, _, err = env.run("styles", "add", "Verbose", "--prompt", "Many words.")
	require.NoError(t, err)

	out, _, err = env.run("styles", "import", styleBackup)
	require.NoError(t, err)
	assert.Equal(t, "imported 0 style(s)\n", out)

	out, _, err = env.run("styles", "import", styleBackup, "--replace")
	require.NoError(t, err)
	assert.Equal(t, "replaced styles with 1 style(s)\n", out)
	out, _, err = env.run("styles", "list")
	require.NoError(t, err)
	assert.Equal(t, "Brief: One sentence.\n", out)
}

func TestHistoryCommands(t *testing.T) {
	env := newCLIEnv(t)
	_, _, err := env.run("run", "--dry-run", "--topic", "archived", "--rounds", "1")
	require.NoError(t, err)

	list, err := session.NewFileStore(filepath.Join(env.dir, "history")).List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	runID := list[0].RunID

	out, _, err := env.run("history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "archived")

	out, _, err = env.run("history", "show", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "[Agent1]:\n")

	csvPath := filepath.Join(env.dir, "talk.csv")
	_, _, err = env.run("history", "export", runID, csvPath)
	require.NoError(t, err)
	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "speaker,content\n"))

	docxPath := filepath.Join(env.dir, "talk.out")
	_, _, err = env.run("history", "export", runID, docxPath, "--format", "docx")
	require.NoError(t, err)
	data, err = os.ReadFile(docxPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")))

	_, _, err = env.run("history", "export", runID, filepath.Join(env.dir, "talk.pdf"))
	assert.ErrorContains(t, err, "unsupported export format")

	_, _, err = env.run("history", "delete", runID)
	require.NoError(t, err)
	_, _, err = env.run("history", "show", runID)
	assert.ErrorIs(t, err, core.ErrTranscriptNotFound)
}

func TestRunHeadless_StopSignal(t *testing.T) {
	env := newCLIEnv(t)
	a := &app{cfgPath: env.configPath, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	require.NoError(t, a.load(true))
	// A one-slot buffer keeps the run from finishing before the stop is seen.
	a.cfg.Engine.EventBufferSize = 1

	settings, err := a.buildSettings(context.Background(), dialogueFlags{topic: "stop me", rounds: 50, dryRun: true})
	require.NoError(t, err)

	stop := make(chan os.Signal, 1)
	stop <- os.Interrupt

	var out bytes.Buffer
	tr, err := runHeadless(context.Background(), a.newDuet(), settings, &out, stop)
	require.NoError(t, err)
	assert.Equal(t, core.RunCancelled, tr.State)
	assert.Less(t, len(tr.Dialogue()), 100)
	assert.Contains(t, out.String(), "--- Conversation stopped by user ---")
	assert.Contains(t, out.String(), "[stopping run "+tr.RunID+" after the current turn]")
}

func TestNewDuet_LogsFinishedRunsAtDebug(t *testing.T) {
	env := newCLIEnv(t)
	var logs bytes.Buffer
	a := &app{cfgPath: env.configPath, stdout: &bytes.Buffer{}, stderr: &logs}
	require.NoError(t, a.load(false))
	a.cfg.Log.Level = "debug"
	a.logger = a.cfg.Logger(&logs)

	settings, err := a.buildSettings(context.Background(), dialogueFlags{topic: "logging", rounds: 1, dryRun: true})
	require.NoError(t, err)

	tr, _, err := a.newDuet().RunSync(context.Background(), settings)
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "[run_finished] run: "+tr.RunID+", state: completed, turns: 2")
}

// File: cmd/cmd_test.go
package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executeCommandNoPreRun is for testing argument and flag validation without
// triggering the config loading in PersistentPreRunE.
func executeCommandNoPreRun(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Create a new root command for each test run to ensure isolation.
	testRootCmd, _ := NewRootCmd()

	buf := new(bytes.Buffer)
	testRootCmd.PersistentPreRunE = nil // Disable config loading for simple validation tests.
	testRootCmd.SetOut(buf)
	testRootCmd.SetErr(buf)
	testRootCmd.SetArgs(args)
	err := testRootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// createTempConfig helper
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp(t.TempDir(), "test-config-*.yaml")
	require.NoError(t, err)
	_, err = tmpfile.Write([]byte(content))
	require.NoError(t, err)
	tmpfile.Close()
	return tmpfile.Name()
}

func TestRecordCmd_RequiredFlags(t *testing.T) {
	output, err := executeCommandNoPreRun(t, "record", "log into the portal")
	require.Error(t, err)
	assert.Contains(t, output, "required flag(s) \"initial-url\" not set")
}

func TestRecordCmd_RequiresGoal(t *testing.T) {
	_, err := executeCommandNoPreRun(t, "record", "--initial-url", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestPlayCmd_RequiredArgs(t *testing.T) {
	_, err := executeCommandNoPreRun(t, "play")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestPlayCmd_RejectsBadPolicy(t *testing.T) {
	_, err := executeCommandNoPreRun(t, "play", "checkout", "--failure-policy", "explode")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown failure policy")
}

func TestPlayCmd_RejectsBadVar(t *testing.T) {
	_, err := executeCommandNoPreRun(t, "play", "checkout", "--var", "no-equals-sign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected KEY=VALUE")
}

func TestCollectBindings(t *testing.T) {
	t.Run("pairs only", func(t *testing.T) {
		got, err := collectBindings("", []string{"email=user@example.com", "password=s3cret"})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"email": "user@example.com", "password": "s3cret"}, got)
	})

	t.Run("value may contain equals", func(t *testing.T) {
		got, err := collectBindings("", []string{"query=a=b"})
		require.NoError(t, err)
		assert.Equal(t, "a=b", got["query"])
	})

	t.Run("flags override file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bindings.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"email":"file@example.com","tenant":"acme"}`), 0o644))

		got, err := collectBindings(path, []string{"email=flag@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "flag@example.com", got["email"])
		assert.Equal(t, "acme", got["tenant"])
	})

	t.Run("yaml bindings file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bindings.yaml")
		require.NoError(t, os.WriteFile(path, []byte("email: y@example.com\n"), 0o644))

		got, err := collectBindings(path, nil)
		require.NoError(t, err)
		assert.Equal(t, "y@example.com", got["email"])
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := collectBindings(filepath.Join(t.TempDir(), "nope.json"), nil)
		require.Error(t, err)
	})
}

func TestConfigFlagOverride(t *testing.T) {
	libDir := t.TempDir()
	configContent := fmt.Sprintf(`
player:
  default_step_timeout: 5s
library:
  dir: %s
logger:
  level: error
`, libDir)
	configFile := createTempConfig(t, configContent)

	testRootCmd, cfg := NewRootCmd()
	buf := new(bytes.Buffer)
	testRootCmd.SetOut(buf)
	testRootCmd.SetErr(buf)
	// `list` is the cheapest command that runs the full PersistentPreRunE.
	testRootCmd.SetArgs([]string{"--config", configFile, "list"})

	require.NoError(t, testRootCmd.ExecuteContext(context.Background()))

	assert.Equal(t, 5*time.Second, cfg.PlayerCfg.DefaultStepTimeout)
	assert.Equal(t, libDir, cfg.LibraryCfg.Dir)
	// Defaults survive where the file is silent.
	assert.Equal(t, 50, cfg.RecorderCfg.MaxSteps)
	assert.Contains(t, buf.String(), "No workflows")
}

func TestEnvOverride(t *testing.T) {
	libDir := t.TempDir()
	t.Setenv("NAYTRIK_RECORDER_MAX_STEPS", "7")
	t.Setenv("NAYTRIK_PLANNER_API_KEY", "env-key")
	t.Setenv("NAYTRIK_LIBRARY_DIR", libDir)

	testRootCmd, cfg := NewRootCmd()
	testRootCmd.SetOut(new(bytes.Buffer))
	testRootCmd.SetArgs([]string{"list"})

	require.NoError(t, testRootCmd.ExecuteContext(context.Background()))
	assert.Equal(t, 7, cfg.RecorderCfg.MaxSteps)
	assert.Equal(t, "env-key", cfg.PlannerCfg.APIKey)
}

func TestInvalidConfigRejected(t *testing.T) {
	configFile := createTempConfig(t, "library:\n  format: xml\n")

	testRootCmd, _ := NewRootCmd()
	testRootCmd.SetOut(new(bytes.Buffer))
	testRootCmd.SetErr(new(bytes.Buffer))
	testRootCmd.SetArgs([]string{"--config", configFile, "list"})

	err := testRootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "library.format")
}

func TestRunsCmd_RequiresDatabase(t *testing.T) {
	libDir := t.TempDir()
	t.Setenv("NAYTRIK_LIBRARY_DIR", libDir)

	testRootCmd, _ := NewRootCmd()
	testRootCmd.SetOut(new(bytes.Buffer))
	testRootCmd.SetErr(new(bytes.Buffer))
	testRootCmd.SetArgs([]string{"runs", "checkout"})

	err := testRootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history is not configured")
}

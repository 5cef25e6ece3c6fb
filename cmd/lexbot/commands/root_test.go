package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lex-bot-deploy/internal/domain"
	"lex-bot-deploy/internal/usecase"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand("test", &stdout, &stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestExamplesCommand(t *testing.T) {
	out, err := run(t, "examples")
	require.NoError(t, err)
	require.Equal(t, "BookTrip\nOrderFlowers\nScheduleAppointment\n", out)
}

func TestDeployCommand_RequiresSchemaSource(t *testing.T) {
	_, err := run(t, "deploy", "--alias", "prod")
	require.Error(t, err)

	_, err = run(t, "deploy", "--schema", "a.json", "--example", "BookTrip")
	require.Error(t, err)
}

func TestExportCommand_RequiresBot(t *testing.T) {
	_, err := run(t, "export")
	require.Error(t, err)
	require.Contains(t, err.Error(), "bot")
}

func TestSetup_RejectsUnknownLogLevel(t *testing.T) {
	g := &globalOptions{logLevel: "LOUD", stderr: &bytes.Buffer{}}
	_, _, err := g.setup()
	require.Error(t, err)
}

func TestSetup_RegionFromSettingsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("region: eu-west-1\nhistory_table: deployments\n"), 0o600))

	g := &globalOptions{logLevel: "DEBUG", configPath: path, stderr: &bytes.Buffer{}}
	_, settings, err := g.setup()
	require.NoError(t, err)
	require.Equal(t, "eu-west-1", g.region)
	require.Equal(t, "deployments", settings.HistoryTable)

	g = &globalOptions{region: "us-west-2", configPath: path, stderr: &bytes.Buffer{}}
	_, _, err = g.setup()
	require.NoError(t, err)
	require.Equal(t, "us-west-2", g.region)
}

func TestPrintDeployment(t *testing.T) {
	var buf bytes.Buffer
	g := &globalOptions{stdout: &buf}
	printDeployment(g, usecase.DeployOutput{
		DeploymentID:   "dep-1",
		BotName:        "OrderFlowers",
		BotVersion:     "2",
		Outcome:        domain.DeploymentSucceeded,
		IntentVersions: []domain.IntentVersion{{IntentName: "OrderFlowers", IntentVersion: "3"}},
		Permissions:    usecase.GrantReport{Skipped: true},
	})
	out := buf.String()
	require.Contains(t, out, "deployment dep-1: SUCCEEDED")
	require.Contains(t, out, "alias:    $LATEST -> version 2")
	require.Contains(t, out, "intents:  OrderFlowers:3")
	require.Contains(t, out, "permissions: skipped")
}

func TestPrintRecord_ShowsErrorCode(t *testing.T) {
	var buf bytes.Buffer
	g := &globalOptions{stdout: &buf}
	printRecord(g, domain.DeploymentRecord{
		DeploymentID: "dep-2",
		Alias:        "prod",
		BotVersion:   "4",
		Outcome:      domain.DeploymentFailed,
		ErrorCode:    "REMOTE_FAILED",
		FinishedAt:   time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC),
	})
	require.Contains(t, buf.String(), "dep-2  FAILED  prod -> 4  (REMOTE_FAILED)")
}

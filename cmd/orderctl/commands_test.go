package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"order-intake/internal/lifecycle"
	"order-intake/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  type: memory\n"), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestScanCommand_EmptyMailbox(t *testing.T) {
	out, err := run(t, "scan", "--config", memoryConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "admitted 0")
}

func TestTrashPurgeCommand_JSON(t *testing.T) {
	out, err := run(t, "trash", "purge", "--config", memoryConfig(t), "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"purged":0}`, out)
}

func TestMigrateCommand(t *testing.T) {
	out, err := run(t, "migrate", "--config", memoryConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready (memory)")
}

func TestInvalidFormat(t *testing.T) {
	_, err := run(t, "trash", "list", "--config", memoryConfig(t), "--format", "xml")
	assert.Error(t, err)
}

func TestRenderTrash(t *testing.T) {
	deleted := time.Date(2026, 5, 1, 8, 30, 0, 0, time.UTC)
	entries := []lifecycle.TrashEntry{{
		Order: models.Order{
			ID:          12,
			OrderNumber: "PO-1777624200",
			ProductName: "Toor Dal",
			OrderStatus: models.StatusPending,
			DeletedAt:   &deleted,
		},
		DaysRemaining: 27,
	}}

	var buf bytes.Buffer
	require.NoError(t, renderTrash(&buf, "text", entries))
	out := buf.String()
	assert.Contains(t, strings.ToUpper(out), "DAYS REMAINING")
	assert.Contains(t, out, "PO-1777624200")
	assert.Contains(t, out, "2026-05-01 08:30:00")
	assert.Contains(t, out, "27")

	buf.Reset()
	require.NoError(t, renderTrash(&buf, "json", entries))
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, float64(27), decoded[0]["days_remaining"])
	assert.Equal(t, "Toor Dal", decoded[0]["product_name"])
}

func TestRenderPurges(t *testing.T) {
	at := time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	require.NoError(t, renderPurges(&buf, "text", []models.PurgeLog{{
		OrderID: 4, OrderNumber: "PO-9", ProductName: "Salt",
		Reason: models.PurgeReasonExpired, TrashedAt: at, PurgedAt: at,
	}}))
	assert.Contains(t, buf.String(), models.PurgeReasonExpired)
	assert.Contains(t, buf.String(), "PO-9")
}

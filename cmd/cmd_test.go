package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"order-sla-extractor/extractor"
	"order-sla-extractor/internal/types"
)

func TestSLACommand(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("sla:\n  timezone: UTC\nlogging:\n  level: error\n"), 0o600))

	exportPath := filepath.Join(dir, "orders.json")
	created := time.Date(2025, 3, 1, 19, 0, 0, 0, time.UTC)
	require.NoError(t, extractor.WriteJSON(exportPath, extractor.Document{
		Orders: []types.OrderRecord{
			{ID: "1001", OrderCode: "SO1001", Platform: "Shopee", CreatedAt: created},
			{ID: "1002", OrderCode: "SO1002", Platform: "TikTok Shop", CreatedAt: created},
		},
	}))
	csvPath := filepath.Join(dir, "alerts.csv")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"sla", exportPath, "--config", configPath, "--at", "2025-03-02 10:00", "--alerts-csv", csvPath})

	require.NoError(t, rootCmd.Execute())

	text := out.String()
	assert.Contains(t, text, "SLA REPORT")
	assert.Contains(t, text, "Total orders:  2")
	assert.Contains(t, text, "CRITICAL: Order 1001 is overdue for confirm")

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	// header, the overdue confirmation and the handover two hours out
	assert.Len(t, records, 3)
}

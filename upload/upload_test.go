package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vrs-scraper/scrapers"
)

func TestNopLogsAggregatedResult(t *testing.T) {
	var buf bytes.Buffer
	n := Nop{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	err := n.Upload(context.Background(), Report{
		RunID:   "run-1",
		Root:    "/downloads",
		Success: true,
		Items: []scrapers.DataItem{
			{Row: 60, Files: []scrapers.FileRecord{{Name: "lap1.sto", Path: "/downloads/Audi/(Audi_Spa)lap1.sto"}}},
			{Row: 61},
		},
		Files: []string{"/downloads/Audi/(Audi_Spa)lap1.sto"},
	})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	require.Equal(t, "Upload skipped", entry["msg"])
	require.Equal(t, "run-1", entry["run_id"])
	require.Equal(t, true, entry["success"])
	require.Equal(t, 2.0, entry["rows"])
	require.Equal(t, 1.0, entry["files"])
}

func TestNopWithoutLogger(t *testing.T) {
	require.NoError(t, Nop{}.Upload(context.Background(), Report{}))
}

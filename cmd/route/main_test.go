package main

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feed.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range map[string]string{
		"stops.txt":      "stop_id,stop_name,stop_lat,stop_lon\nA,Alpha,41.0,2.0\nB,Bravo,41.01,2.0\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\nT1,08:00:00,08:00:00,A,1\nT1,08:05:00,08:05:00,B,2\n",
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return path
}

func TestRun(t *testing.T) {
	feed := writeFeed(t)
	tests := []struct {
		name string
		args []string
		want int
	}{
		{"journey", []string{"-zip", feed, "-from", "41.0,2.0", "-to", "41.01,2.0", "-at", "07:50"}, 0},
		{"too late", []string{"-zip", feed, "-from", "41.0,2.0", "-to", "41.01,2.0", "-at", "09:00"}, 1},
		{"bad origin", []string{"-zip", feed, "-from", "41.0", "-to", "41.01,2.0"}, 2},
		{"no source", []string{"-from", "41.0,2.0", "-to", "41.01,2.0"}, 2},
		{"unknown flag", []string{"-bogus"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, run(tt.args))
		})
	}
}

func TestParseLatLon(t *testing.T) {
	lat, lon, err := parseLatLon(" 41.38, 2.17 ")
	require.NoError(t, err)
	assert.Equal(t, 41.38, lat)
	assert.Equal(t, 2.17, lon)

	_, _, err = parseLatLon("41.38")
	assert.Error(t, err)
	_, _, err = parseLatLon("north,2")
	assert.Error(t, err)
}

package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/netreach/internal/scanning"
)

func sampleReport() *scanning.ScanReport {
	start := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return &scanning.ScanReport{
		RunID:     "0b26c1f0-1111-2222-3333-444455556666",
		ScanType:  scanning.ScanTypeConnect,
		StartTime: start,
		EndTime:   start.Add(42 * time.Second),
		Duration:  42 * time.Second,
		Hosts: []scanning.HostResult{
			{
				Address:  "192.168.1.10",
				Hostname: "web.internal",
				Status:   scanning.HostUp,
				Ports: []scanning.PortResult{
					{Port: 22, Protocol: scanning.ProtocolTCP, State: scanning.StateOpen,
						Service: "ssh", Version: "OpenSSH_9.6", ResponseTime: 3 * time.Millisecond},
					{Port: 53, Protocol: scanning.ProtocolUDP, State: scanning.StateOpenFiltered,
						Service: "dns"},
					{Port: 80, Protocol: scanning.ProtocolTCP, State: scanning.StateClosed,
						ResponseTime: time.Millisecond},
				},
			},
			{
				Address: "192.168.1.11",
				Status:  scanning.HostDown,
				Ports:   []scanning.PortResult{},
			},
		},
		Summary: scanning.Summary{
			TotalHosts: 2, HostsUp: 1, HostsDown: 1,
			TotalPorts: 3, OpenPorts: 1, ClosedPorts: 1, OpenFilteredPorts: 1,
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"XML", FormatXML, false},
		{" csv ", FormatCSV, false},
		{"human", FormatHuman, false},
		{"text", FormatHuman, false},
		{"", FormatHuman, false},
		{"yaml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	rep := sampleReport()

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, FormatJSON))

	var decoded scanning.ScanReport
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, *rep, decoded)
}

func TestJSONIsDeterministic(t *testing.T) {
	rep := sampleReport()

	var a, b bytes.Buffer
	require.NoError(t, Write(&a, rep, FormatJSON))
	require.NoError(t, Write(&b, rep, FormatJSON))
	assert.Equal(t, a.String(), b.String())
}

func TestXMLDocumentElement(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatXML))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<?xml"))
	assert.Contains(t, out, "<scan_results")
	assert.Contains(t, out, `scan-type="connect"`)
	assert.Contains(t, out, `address="192.168.1.10"`)
	assert.Contains(t, out, "<state>open</state>")
}

func TestCSVLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatCSV))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4, "header plus one row per port result")
	assert.Equal(t, []string{"host", "hostname", "port", "protocol", "state", "service", "response_time"}, rows[0])
	assert.Equal(t, []string{"192.168.1.10", "web.internal", "22", "tcp", "open", "ssh", "3ms"}, rows[1])
	assert.Equal(t, "open|filtered", rows[2][4])
}

func TestHumanOutput(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleReport(), FormatHuman))

	out := buf.String()
	assert.Contains(t, out, "web.internal (192.168.1.10)")
	assert.Contains(t, out, "ssh")
	assert.Contains(t, out, "open|filtered")
	// Two table rows (open, open|filtered); the closed port is omitted.
	assert.Equal(t, 2, strings.Count(out, "web.internal (192.168.1.10)"))
	assert.Contains(t, out, "Hosts: 2 total, 1 up, 1 down")
	assert.Contains(t, out, "1 open, 1 closed, 0 filtered, 1 open|filtered")
	assert.NotContains(t, out, "interrupted")
}

func TestHumanOutputMarksPartialRuns(t *testing.T) {
	rep := sampleReport()
	rep.Partial = true

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, rep, FormatHuman))
	assert.Contains(t, buf.String(), "results are partial")
}

func TestWriteRejectsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, sampleReport(), Format("yaml")))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, WriteFile(path, sampleReport(), FormatJSON))

	var a bytes.Buffer
	require.NoError(t, Write(&a, sampleReport(), FormatJSON))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, a.String(), string(data))
}

func TestWriteFileBadPath(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "report.json"),
		sampleReport(), FormatJSON)
	assert.Error(t, err)
}

// Package report serializes sealed scan reports. Four formats are
// supported: JSON, XML, CSV, and a human-readable table. Field order is
// fixed per format, and the JSON form round-trips to a structurally
// equal report.
package report

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	neterrors "github.com/anstrom/netreach/internal/errors"
	"github.com/anstrom/netreach/internal/logging"
	"github.com/anstrom/netreach/internal/scanning"
)

// Format identifies an output serialization.
type Format string

const (
	FormatJSON  Format = "json"
	FormatXML   Format = "xml"
	FormatCSV   Format = "csv"
	FormatHuman Format = "human"
)

const outputFilePerm = 0644

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatXML:
		return FormatXML, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatHuman, Format("text"), Format(""):
		return FormatHuman, nil
	default:
		return "", neterrors.ErrConfigInvalid("format", s)
	}
}

// Write serializes the report to w in the requested format.
func Write(w io.Writer, rep *scanning.ScanReport, format Format) error {
	var err error
	switch format {
	case FormatJSON:
		err = writeJSON(w, rep)
	case FormatXML:
		err = writeXML(w, rep)
	case FormatCSV:
		err = writeCSV(w, rep)
	case FormatHuman:
		err = writeHuman(w, rep)
	default:
		return neterrors.ErrConfigInvalid("format", string(format))
	}
	if err != nil {
		return neterrors.ErrSerialization(string(format), err)
	}
	return nil
}

// WriteFile serializes the report into path.
func WriteFile(path string, rep *scanning.ScanReport, format Format) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, outputFilePerm)
	if err != nil {
		return neterrors.WrapOutputError(neterrors.CodeFileWrite,
			"Failed to open output file", string(format), err)
	}
	defer f.Close()

	if err := Write(f, rep, format); err != nil {
		return err
	}
	logging.InfoReport("Report written", "path", path, "format", format)
	return nil
}

func writeJSON(w io.Writer, rep *scanning.ScanReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// xmlReport wraps the report to pin the document element name.
type xmlReport struct {
	XMLName xml.Name `xml:"scan_results"`
	*scanning.ScanReport
}

func writeXML(w io.Writer, rep *scanning.ScanReport) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(xmlReport{ScanReport: rep}); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// csvHeader is the fixed column order of the CSV form.
var csvHeader = []string{"host", "hostname", "port", "protocol", "state", "service", "response_time"}

func writeCSV(w io.Writer, rep *scanning.ScanReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for hi := range rep.Hosts {
		host := &rep.Hosts[hi]
		for pi := range host.Ports {
			port := &host.Ports[pi]
			row := []string{
				host.Address,
				host.Hostname,
				strconv.Itoa(int(port.Port)),
				string(port.Protocol),
				string(port.State),
				port.Service,
				port.ResponseTime.String(),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeHuman(w io.Writer, rep *scanning.ScanReport) error {
	fmt.Fprintf(w, "Scan report %s (%s)\n", rep.RunID, rep.ScanType)
	fmt.Fprintf(w, "Started:  %s\n", rep.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n", rep.Duration.Round(time.Millisecond))
	if rep.Partial {
		fmt.Fprintln(w, "NOTE: run was interrupted; results are partial")
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.Header("Host", "Port", "Protocol", "State", "Service", "Version")

	for hi := range rep.Hosts {
		host := &rep.Hosts[hi]
		if host.Status != scanning.HostUp && len(host.Ports) == 0 {
			continue
		}
		display := host.Address
		if host.Hostname != "" {
			display = fmt.Sprintf("%s (%s)", host.Hostname, host.Address)
		}
		for pi := range host.Ports {
			port := &host.Ports[pi]
			if port.State != scanning.StateOpen && port.State != scanning.StateOpenFiltered {
				continue
			}
			_ = table.Append([]string{
				display,
				strconv.Itoa(int(port.Port)),
				string(port.Protocol),
				string(port.State),
				port.Service,
				port.Version,
			})
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Hosts: %d total, %d up, %d down\n",
		rep.Summary.TotalHosts, rep.Summary.HostsUp, rep.Summary.HostsDown)
	fmt.Fprintf(w, "Ports: %d probed, %d open, %d closed, %d filtered, %d open|filtered\n",
		rep.Summary.TotalPorts, rep.Summary.OpenPorts, rep.Summary.ClosedPorts,
		rep.Summary.FilteredPorts, rep.Summary.OpenFilteredPorts)
	return nil
}

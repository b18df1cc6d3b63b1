package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anstrom/netreach/internal/discovery"
	"github.com/anstrom/netreach/internal/report"
	"github.com/anstrom/netreach/internal/scanning"
	"github.com/anstrom/netreach/internal/target"
)

var (
	scanTargets        string
	scanPorts          string
	scanUDPPorts       string
	scanType           string
	scanTimeout        time.Duration
	scanMaxParallel    int
	scanRetries        int
	scanRandomize      bool
	scanRateLimit      int
	scanDetectServices bool
	scanDetectOS       bool
	scanSkipDown       bool
	scanOutputFile     string
	scanOutputFormat   string
)

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan [targets...]",
	Short: "Scan targets for open ports",
	Long: `Probe targets for open ports using the selected technique.

Targets may be IP addresses, hostnames, CIDR blocks, or dashed IP
ranges, given as arguments or via --targets. TCP connect scanning
works unprivileged; SYN scanning requires root.`,
	Example: `  netreach scan 192.168.1.10
  netreach scan 192.168.1.0/24 --ports 22,80,443
  netreach scan --targets "10.0.0.1-10.0.0.20" --type syn --ports 1-1024
  netreach scan example.com --type comprehensive --format json -o report.json
  netreach scan 10.0.0.0/24 --skip-down --discovery-method tcp`,
	RunE: runScan,
}

var scanDiscoveryMethod string

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVar(&scanTargets, "targets", "", "comma-separated targets (alternative to arguments)")
	scanCmd.Flags().StringVarP(&scanPorts, "ports", "p", "", "ports to probe: '80,443' or '1-1024' or a mix")
	scanCmd.Flags().StringVar(&scanUDPPorts, "udp-ports", "", "UDP ports for comprehensive scans (default: common UDP services)")
	scanCmd.Flags().StringVarP(&scanType, "type", "t", "", "scan type: connect, syn, udp, comprehensive")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "per-probe timeout")
	scanCmd.Flags().IntVar(&scanMaxParallel, "max-parallel", 0, "maximum in-flight probes")
	scanCmd.Flags().IntVar(&scanRetries, "retries", -1, "retries after a probe timeout")
	scanCmd.Flags().BoolVar(&scanRandomize, "randomize", false, "shuffle probe order")
	scanCmd.Flags().IntVar(&scanRateLimit, "rate-limit", 0, "probes per second (0 = unlimited)")
	scanCmd.Flags().BoolVar(&scanDetectServices, "detect-services", false, "fingerprint services on open ports")
	scanCmd.Flags().BoolVar(&scanDetectOS, "detect-os", false, "guess target OS from response TTLs")
	scanCmd.Flags().BoolVar(&scanSkipDown, "skip-down", false, "run discovery first and skip hosts that are down")
	scanCmd.Flags().StringVar(&scanDiscoveryMethod, "discovery-method", "", "discovery method for --skip-down: ping, tcp, arp")
	scanCmd.Flags().StringVarP(&scanOutputFile, "output", "o", "", "write the report to a file instead of stdout")
	scanCmd.Flags().StringVarP(&scanOutputFormat, "format", "f", "", "report format: json, xml, csv, human")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	specifiers := collectTargets(args, scanTargets)
	if len(specifiers) == 0 {
		return fmt.Errorf("no targets specified: pass targets as arguments or via --targets")
	}

	// Flags override config file values.
	portSpec := cfg.Scanning.DefaultPorts
	if scanPorts != "" {
		portSpec = scanPorts
	}
	ports, err := scanning.ParsePorts(portSpec)
	if err != nil {
		return err
	}

	scanCfg := scanning.ScanConfig{
		Ports:          ports,
		ScanType:       firstNonEmpty(scanType, cfg.Scanning.DefaultScanType),
		Timeout:        cfg.Scanning.Timeout,
		MaxParallel:    cfg.Scanning.MaxParallel,
		Retries:        cfg.Scanning.Retries,
		Randomize:      scanRandomize || cfg.Scanning.Randomize,
		RateLimit:      cfg.Scanning.RateLimit,
		DetectServices: scanDetectServices || cfg.Scanning.EnableServiceDetection,
		DetectOS:       scanDetectOS || cfg.Scanning.EnableOSDetection,
		SkipDown:       scanSkipDown || cfg.Scanning.SkipDownHosts,
	}
	if scanTimeout > 0 {
		scanCfg.Timeout = scanTimeout
	}
	if scanMaxParallel > 0 {
		scanCfg.MaxParallel = scanMaxParallel
	}
	if scanRetries >= 0 {
		scanCfg.Retries = scanRetries
	}
	if scanRateLimit > 0 {
		scanCfg.RateLimit = scanRateLimit
	}

	udpSpec := firstNonEmpty(scanUDPPorts, cfg.Scanning.UDPPorts)
	if udpSpec != "" {
		udpPorts, err := scanning.ParsePorts(udpSpec)
		if err != nil {
			return err
		}
		scanCfg.UDPPorts = udpPorts
	}

	format, err := report.ParseFormat(firstNonEmpty(scanOutputFormat, cfg.Output.Format))
	if err != nil {
		return err
	}

	enum, err := target.NewEnumerator(specifiers)
	if err != nil {
		return err
	}

	var opts []scanning.EngineOption
	if scanCfg.SkipDown {
		discEngine, err := discovery.NewEngine(discovery.Config{
			Method:      discovery.Method(firstNonEmpty(scanDiscoveryMethod, cfg.Discovery.Method)),
			Timeout:     cfg.Discovery.Timeout,
			MaxParallel: cfg.Discovery.MaxParallel,
		})
		if err != nil {
			return err
		}
		opts = append(opts, scanning.WithHostFilter(discEngine))
	}

	engine, err := scanning.NewEngine(scanCfg, enum, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	outputFile := firstNonEmpty(scanOutputFile, cfg.Output.File)
	if outputFile != "" {
		return report.WriteFile(outputFile, rep, format)
	}
	return report.Write(os.Stdout, rep, format)
}

// collectTargets merges positional arguments with the --targets flag.
func collectTargets(args []string, flag string) []string {
	var specs []string
	for _, a := range args {
		if s := strings.TrimSpace(a); s != "" {
			specs = append(specs, s)
		}
	}
	for _, part := range strings.Split(flag, ",") {
		if s := strings.TrimSpace(part); s != "" {
			specs = append(specs, s)
		}
	}
	return specs
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

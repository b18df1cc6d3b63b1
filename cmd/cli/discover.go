package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/anstrom/netreach/internal/discovery"
	"github.com/anstrom/netreach/internal/target"
)

var (
	discoverTargets     string
	discoverMethod      string
	discoverTimeout     time.Duration
	discoverMaxParallel int
	discoverShowDown    bool
)

// discoverCmd represents the discover command.
var discoverCmd = &cobra.Command{
	Use:   "discover [targets...]",
	Short: "Discover live hosts",
	Long: `Probe targets for liveness without scanning ports.

Three methods are available: ping (ICMP echo, falls back to unprivileged
datagram sockets), tcp (connection attempts against well-known ports),
and arp (broadcast requests; targets must sit on a directly attached
subnet and root is required).`,
	Example: `  netreach discover 192.168.1.0/24
  netreach discover 10.0.0.1-10.0.0.50 --method tcp
  netreach discover 192.168.1.0/24 --method arp --timeout 1s`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringVar(&discoverTargets, "targets", "", "comma-separated targets (alternative to arguments)")
	discoverCmd.Flags().StringVarP(&discoverMethod, "method", "m", "", "discovery method: ping, tcp, or arp")
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", 0, "per-host probe timeout")
	discoverCmd.Flags().IntVar(&discoverMaxParallel, "max-parallel", 0, "maximum concurrent host probes")
	discoverCmd.Flags().BoolVar(&discoverShowDown, "show-down", false, "include hosts that did not answer")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	specifiers := collectTargets(args, discoverTargets)
	if len(specifiers) == 0 {
		return fmt.Errorf("no targets specified: pass targets as arguments or via --targets")
	}

	discCfg := discovery.Config{
		Method:      discovery.Method(firstNonEmpty(discoverMethod, cfg.Discovery.Method)),
		Timeout:     cfg.Discovery.Timeout,
		MaxParallel: cfg.Discovery.MaxParallel,
	}
	if discoverTimeout > 0 {
		discCfg.Timeout = discoverTimeout
	}
	if discoverMaxParallel > 0 {
		discCfg.MaxParallel = discoverMaxParallel
	}

	engine, err := discovery.NewEngine(discCfg)
	if err != nil {
		return err
	}

	enum, err := target.NewEnumerator(specifiers)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addrs, err := enum.Expand(ctx)
	if err != nil {
		return err
	}

	statuses, err := engine.Discover(ctx, addrs)
	if err != nil {
		return err
	}

	return printDiscovery(statuses)
}

func printDiscovery(statuses []discovery.HostStatus) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Host", "Status", "RTT", "Method")

	up := 0
	for i := range statuses {
		st := &statuses[i]
		if st.Up {
			up++
		} else if !discoverShowDown {
			continue
		}
		status := "down"
		rtt := "-"
		if st.Up {
			status = "up"
			rtt = st.RTT.Round(time.Microsecond).String()
		}
		_ = table.Append([]string{st.Address.Display(), status, rtt, string(st.Method)})
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Printf("\n%d of %d hosts up\n", up, len(statuses))
	return nil
}

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/localprobe/internal/core/domain"
	"github.com/vietddude/localprobe/internal/dispatch"
	"github.com/vietddude/localprobe/internal/probe"
	"github.com/vietddude/localprobe/internal/version"
)

var probeFlags struct {
	retry          int
	dead           time.Duration
	sick           time.Duration
	match          string
	above          uint16
	below          uint16
	icmpPrivileged bool
}

var probeCmd = &cobra.Command{
	Use:   "probe [replica_url]",
	Short: "Probe a single replica once and print its health without reporting it",
	Args:  cobra.ExactArgs(1),
	Run:   runProbe,
}

func init() {
	f := probeCmd.Flags()
	f.IntVar(&probeFlags.retry, "retry", domain.DefaultRetry, "extra attempts on a dead replica")
	f.DurationVar(&probeFlags.dead, "dead", domain.DefaultDelayDead, "timeout after which the replica is dead")
	f.DurationVar(&probeFlags.sick, "sick", 0, "latency from which a reachable replica is sick (0 disables)")
	f.StringVar(&probeFlags.match, "match", "", "substring the http body must contain")
	f.Uint16Var(&probeFlags.above, "healthy-above", domain.DefaultHealthyAbove, "lowest healthy http status")
	f.Uint16Var(&probeFlags.below, "healthy-below", domain.DefaultHealthyBelow, "first unhealthy http status")
	f.BoolVar(&probeFlags.icmpPrivileged, "icmp-privileged", false, "use raw icmp sockets")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) {
	setupLogging("warn")

	replica, err := domain.ParseReplicaURL(args[0])
	if err != nil {
		fmt.Printf("Invalid replica url: %v\n", err)
		os.Exit(1)
	}

	status, elapsed := probeOnce(cmd.Context(), replica, probe.NewTable(probe.Options{
		UserAgent:      version.UserAgent(),
		ICMPPrivileged: probeFlags.icmpPrivileged,
	}))

	fmt.Printf("%s %s (%s)\n", replica.Raw(), status, elapsed.Round(time.Millisecond))
	if status == domain.StatusDead {
		os.Exit(2)
	}
}

func probeOnce(ctx context.Context, replica domain.ReplicaURL, checker dispatch.Checker) (domain.Status, time.Duration) {
	if ctx == nil {
		ctx = context.Background()
	}

	thresholds := domain.Thresholds{Retry: max(probeFlags.retry, 0), DelayDead: probeFlags.dead}
	if probeFlags.sick > 0 {
		sick := probeFlags.sick
		thresholds.DelaySick = &sick
	}

	above, below := probeFlags.above, probeFlags.below
	rules := &domain.NodeHTTP{Status: &domain.NodeHTTPStatus{HealthyAbove: &above, HealthyBelow: &below}}
	if probeFlags.match != "" {
		match := probeFlags.match
		rules.Body = &domain.NodeHTTPBody{HealthyMatch: &match}
	}

	start := time.Now()
	status := dispatch.New(checker, nil).Probe(ctx, "cli", "cli",
		probe.Target{Replica: replica, HTTP: rules, DeadTimeout: thresholds.DelayDead}, thresholds)
	return status, time.Since(start)
}

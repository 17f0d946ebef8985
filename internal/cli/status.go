package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/localprobe/internal/health"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last probe cycle of a running agent",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "status server address (default is localhost:<server.port>)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	addr := statusAddr
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
		if cfg.Server.Port == 0 {
			slog.Error("Status server is disabled, set server.port or pass --addr")
			os.Exit(1)
		}
		addr = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := fetchHealth(ctx, "http://"+addr+"/health/detailed")
	if err != nil {
		slog.Error("Failed to query status server", "error", err)
		os.Exit(1)
	}
	_ = printHealth(os.Stdout, report)
}

func fetchHealth(ctx context.Context, url string) (*health.HealthReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var report health.HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode health report: %w", err)
	}
	return &report, nil
}

func printHealth(out io.Writer, report *health.HealthReport) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STATUS\tREASON\tINTERVAL\tRESTARTS")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", report.SystemStatus, dash(report.Reason), report.Interval, report.WorkerRestarts)
	_ = w.Flush()

	if report.LastCycle == nil {
		_, _ = fmt.Fprintln(out, "\nno cycle finished yet")
		return nil
	}

	c := report.LastCycle
	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CYCLE\tFINISHED\tSYNC\tSERVICES\tREPLICAS\tPROBED\tREPORT FAILURES")
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
		c.CycleID, c.FinishedAt.Format(time.RFC3339), c.SyncOutcome, c.Services, c.Replicas, c.Probed, c.ReportFailures)
	_ = w.Flush()

	statuses := make([]string, 0, len(c.Statuses))
	for s := range c.Statuses {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "HEALTH\tREPLICAS")
	for _, s := range statuses {
		_, _ = fmt.Fprintf(w, "%s\t%d\n", s, c.Statuses[s])
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

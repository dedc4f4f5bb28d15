package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ObserveRTC/connector-sub000/pkg/connector"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		logrus.Fatalf("connector %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./configs/connector.yaml", "Path to connector configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := connector.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := flow.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./configs/connector.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := connector.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	rt, err := connector.NewRuntime(cfg, connector.WithoutMetricsServer())
	if err != nil {
		return err
	}
	defer rt.Shutdown(context.Background())
	if err := rt.Check(); err != nil {
		return err
	}
	fmt.Printf("config %s looks good: %d pipelines\n", *cfgPath, len(cfg.Pipelines))
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

// printMetricsSnapshot sums every series of the connector counters and
// gauges across their labels.
func printMetricsSnapshot(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	targets := map[string]float64{
		"connector_records_received_total": 0,
		"connector_records_written_total":  0,
		"connector_records_dropped_total":  0,
		"connector_pipelines_in_flight":    0,
		"connector_pool_queue_length":      0,
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := parseSample(line)
		if !ok {
			continue
		}
		if _, tracked := targets[name]; tracked {
			targets[name] += value
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	fmt.Printf("[%s] received=%.0f written=%.0f dropped=%.0f in_flight=%.0f pool_queue=%.0f\n",
		time.Now().Format(time.RFC3339),
		targets["connector_records_received_total"],
		targets["connector_records_written_total"],
		targets["connector_records_dropped_total"],
		targets["connector_pipelines_in_flight"],
		targets["connector_pool_queue_length"],
	)
	return nil
}

// parseSample splits an exposition line `name{labels} value` into the
// metric name and value.
func parseSample(line string) (string, float64, bool) {
	sep := strings.LastIndexByte(line, ' ')
	if sep < 0 {
		return "", 0, false
	}
	value, err := strconv.ParseFloat(line[sep+1:], 64)
	if err != nil {
		return "", 0, false
	}
	name := line[:sep]
	if i := strings.IndexByte(name, '{'); i >= 0 {
		name = name[:i]
	}
	return name, value, true
}

func printUsage() {
	fmt.Printf(`ObserveRTC connector

Usage:
  connector <command> [flags]

Commands:
  run        Build the configured pipelines and run them until interrupted
  validate   Load a config file and check every stage type is known
  stats      Poll the Prometheus metrics endpoint and print live counters

Examples:
  connector run -config ./configs/connector.yaml
  connector validate -config ./configs/connector.yaml
  connector stats -url http://localhost:9100/metrics -interval 1s
`)
}

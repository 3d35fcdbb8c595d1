package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alesr/bucketpool"
	"github.com/alesr/bucketpool/config"
	"github.com/alesr/bucketpool/exporter"
	units "github.com/docker/go-units"
	"go.uber.org/zap"
)

const exportTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $"+config.ConfigEnvVar+" or ./"+config.DefaultConfigPath+")")
	exportURL := flag.String("export", "", "base URL to post metric snapshots to")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *exportURL != "" {
		cfg.Exporter.URL = *exportURL
	}

	logger, err := cfg.Logger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	pool := bucketpool.New[byte](cfg.PoolOptions(logger)...)
	defer pool.Dispose()

	// handle graceful shutdown on Ctrl+C
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Exporter.URL != "" {
		go exportLoop(ctx, logger, cfg.Exporter.URL, exporter.Snapshots(ctx, pool, cfg.Exporter.GetInterval()))
	}

	fmt.Println("Bucket Pool Demo")
	fmt.Println("================")
	fmt.Println(usage)
	fmt.Println()

	c := newConsole(pool, cfg.Exporter.URL)
	lines := make(chan string)
	go readLines(os.Stdin, lines)

	fmt.Print("> ")
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down...")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			out, quit := c.execute(ctx, line)
			if out != "" {
				fmt.Println(out)
			}
			if quit {
				return
			}
			fmt.Print("> ")
		}
	}
}

const usage = `Commands:
  rent <n>      - Rent a byte array of at least n elements
  return [all]  - Return the most recently rented array, or all of them
  stats         - Show pool statistics
  trim          - Run one trimmer pass now
  clear         - Drop every pooled array
  export        - Post a metrics snapshot to the export URL
  quit          - Exit the application`

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Get()
}

func readLines(r io.Reader, out chan<- string) {
	defer close(out)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func exportLoop(ctx context.Context, logger *zap.Logger, baseURL string, snapshots <-chan bucketpool.Metrics) {
	exp, err := exporter.NewExporter(baseURL, &http.Client{Timeout: exportTimeout}, snapshots)
	if err != nil {
		logger.Error("could not create exporter", zap.Error(err))
		return
	}
	for {
		if err := exp.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("could not export metrics", zap.Error(err))
		}
	}
}

// console executes demo commands against a pool. It keeps the arrays it
// rented so they can be returned later.
type console struct {
	pool      *bucketpool.ArrayPool[byte]
	exportURL string
	held      [][]byte
}

func newConsole(pool *bucketpool.ArrayPool[byte], exportURL string) *console {
	return &console{pool: pool, exportURL: exportURL}
}

// execute runs one command line and reports whether the demo should exit.
func (c *console) execute(ctx context.Context, line string) (string, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return "", false
	}

	switch strings.ToLower(parts[0]) {
	case "rent":
		if len(parts) < 2 {
			return "Usage: rent <n>", false
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 0 {
			return fmt.Sprintf("Invalid length: %s", parts[1]), false
		}
		arr := c.pool.Rent(n)
		c.held = append(c.held, arr)
		return fmt.Sprintf("Rented %d elements (%s), holding %d arrays", len(arr), units.BytesSize(float64(len(arr))), len(c.held)), false

	case "return":
		if len(c.held) == 0 {
			return "Nothing to return", false
		}
		if len(parts) > 1 && parts[1] == "all" {
			n := len(c.held)
			for _, arr := range c.held {
				c.pool.Return(arr)
			}
			c.held = nil
			return fmt.Sprintf("Returned %d arrays", n), false
		}
		last := c.held[len(c.held)-1]
		c.held = c.held[:len(c.held)-1]
		c.pool.Return(last)
		return fmt.Sprintf("Returned %d elements, holding %d arrays", len(last), len(c.held)), false

	case "stats":
		return formatMetrics(c.pool.Metrics()), false

	case "trim":
		r := c.pool.Trim()
		return fmt.Sprintf("Trimmed %d arrays (%s) from %d stale buckets, deficit %s, local caches dropped: %t",
			r.Evicted, units.BytesSize(float64(r.Released)), r.StaleBuckets, units.BytesSize(float64(r.Deficit)), r.LocalsDropped), false

	case "clear":
		c.pool.Clear()
		return "Pool cleared", false

	case "export":
		if c.exportURL == "" {
			return "No export URL configured, start with -export <url>", false
		}
		return c.export(ctx), false

	case "quit", "exit":
		return "Exiting...", true

	default:
		return fmt.Sprintf("Unknown command: %s\n%s", parts[0], usage), false
	}
}

func (c *console) export(ctx context.Context) string {
	ch := make(chan bucketpool.Metrics, 1)
	ch <- c.pool.Metrics()

	exp, err := exporter.NewExporter(c.exportURL, &http.Client{Timeout: exportTimeout}, ch)
	if err != nil {
		return fmt.Sprintf("Error creating exporter: %v", err)
	}
	if err := exp.Run(ctx); err != nil {
		return fmt.Sprintf("Error exporting metrics: %v", err)
	}
	return "Metrics exported"
}

func formatMetrics(m bucketpool.Metrics) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pool %s:\n", m.ID)
	fmt.Fprintf(&b, "  Rented:          %d (local %d, shared %d, allocated %d, oversized %d)\n",
		m.Rented, m.LocalHits, m.SharedHits, m.Allocated, m.Oversized)
	fmt.Fprintf(&b, "  Returned:        %d (dropped %d)\n", m.Returned, m.Dropped)
	fmt.Fprintf(&b, "  Trimmed:         %d arrays, %s\n", m.TrimmedArrays, units.BytesSize(float64(m.TrimmedBytes)))
	fmt.Fprintf(&b, "  Pooled (shared): %d arrays, %s\n", m.PooledArrays, units.BytesSize(float64(m.PooledBytes)))
	for _, bm := range m.Buckets {
		if bm.Pooled == 0 {
			continue
		}
		fmt.Fprintf(&b, "    %-10s %d/%d", units.BytesSize(float64(bm.Length)), bm.Pooled, bm.Capacity)
		if !bm.LastAccess.IsZero() {
			fmt.Fprintf(&b, "  last access %s", bm.LastAccess.Format("15:04:05.000"))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

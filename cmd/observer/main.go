// Command observer attaches to a running medtrust API, or replays a recorded
// frame log. With a terminal it opens the interactive console; otherwise it
// polls status and logs it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/stuphys1729/SenHons/internal/api"
	"github.com/stuphys1729/SenHons/internal/shell"
	"github.com/stuphys1729/SenHons/internal/telemetry"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	apiURL := flag.String("api", envOrDefault("MEDTRUST_API_URL", "http://localhost:8080"), "medtrust API base URL")
	replay := flag.String("replay", "", "summarize a recorded frame log instead of connecting")
	flag.Parse()

	if *replay != "" {
		if err := replayLog(*replay); err != nil {
			slog.Error("replay failed", "error", err)
			os.Exit(1)
		}
		return
	}

	adminKey := os.Getenv("MEDTRUST_ADMIN_KEY")
	interval := time.Duration(envIntOrDefault("OBSERVER_INTERVAL", 10)) * time.Second

	slog.Info("medtrust observer starting", "api_url", *apiURL, "admin", adminKey != "")
	slog.Info("waiting for medtrust API...")
	waitForAPI(*apiURL)

	client := api.NewClient(*apiURL, adminKey)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		sh, err := shell.New(client, shell.Config{HistoryFile: filepath.Join(os.TempDir(), "medtrust_observer_history")})
		if err != nil {
			slog.Error("failed to open shell", "error", err)
			os.Exit(1)
		}
		if err := sh.Run(ctx); err != nil {
			slog.Error("shell error", "error", err)
			os.Exit(1)
		}
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if !observe(ctx, client) {
			fmt.Println("Simulation stopped.")
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			fmt.Println("Observer stopped.")
			return
		}
	}
}

// observe logs one status snapshot. It reports false once the run is over.
func observe(ctx context.Context, client *api.Client) bool {
	st, err := client.Status(ctx)
	if err != nil {
		slog.Error("observation failed", "error", err)
		return ctx.Err() == nil && !errors.Is(err, telemetry.ErrClosed)
	}
	slog.Info("observation",
		"run", st.RunID,
		"step", humanize.Comma(int64(st.Step)),
		"paused", st.Paused,
		"sellers", st.Sellers,
		"suppliers", st.Suppliers,
		"total_sales", humanize.Comma(int64(st.TotalSales)),
		"mean_quality", fmt.Sprintf("%.3f", st.MeanQuality),
	)
	return true
}

// replayLog prints the stats of every frame in a recorded log.
func replayLog(path string) error {
	msgs, err := telemetry.ReadLog(path)
	if err != nil {
		return err
	}
	frames := 0
	for _, m := range msgs {
		switch m.Kind {
		case telemetry.KindLayout:
			l := m.Layout
			fmt.Printf("run %s seed %d: %d patients, %d towns, extent %s\n",
				l.RunID, l.Seed, len(l.Patients), len(l.Locations), l.Extent)
		case telemetry.KindFrame:
			frames++
			s := m.Frame.Stats
			fmt.Printf("step %8s  sales %5d  quality %.3f  sellers %3d  suppliers %3d  top %d (%.3f)\n",
				humanize.Comma(int64(m.Frame.Step)), s.Sales, s.MeanQuality, s.Sellers, s.Suppliers,
				s.TopSeller, s.TopQuality)
		case telemetry.KindStop:
			fmt.Printf("stop after %d frames\n", frames)
		}
	}
	return nil
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envIntOrDefault(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

// waitForAPI polls the status endpoint with exponential backoff until it
// responds. Exits after 5 minutes if the API never becomes ready.
func waitForAPI(apiURL string) {
	backoff := 2 * time.Second
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(5 * time.Minute)

	for {
		resp, err := http.Get(apiURL + "/api/v1/status")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				slog.Info("medtrust API is ready")
				return
			}
		}
		if time.Now().After(deadline) {
			slog.Error("medtrust API did not become ready within 5 minutes")
			os.Exit(1)
		}
		slog.Info("medtrust API not ready, retrying...", "backoff", backoff)
		time.Sleep(backoff)
		backoff = min(backoff*2, maxBackoff)
	}
}

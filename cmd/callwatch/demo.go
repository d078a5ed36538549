package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/callwatch/callwatch/internal/intercept"
	"github.com/callwatch/callwatch/internal/monitor"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run an instrumented demo workload and print the stats snapshot",
	Long: `Start a local test server, instrument an HTTP client through the
monitor, issue a mix of redundant and legitimately paginated calls, and
render the resulting stats snapshot.

The workload produces one true defect (concurrent duplicate fetches of the
same resource) and one false positive that the classifier clears (an
offset/limit pagination sequence).`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadMonitorConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		svc := monitor.NewService(cfg)
		if err := runDemo(svc); err != nil {
			fmt.Fprintf(os.Stderr, "Error: demo workload failed: %v\n", err)
			os.Exit(1)
		}

		renderStats(svc.Stats(), svc.Health())
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
}

func loadMonitorConfig() (*monitor.Config, error) {
	if configPath == "" {
		return monitor.DefaultConfig(), nil
	}
	return monitor.LoadConfig(configPath)
}

// runDemo drives the instrumented client: three concurrent fetches of the
// same widget list (a genuine defect), then a five-page offset pagination
// sweep (legitimate repetition the classifier clears).
func runDemo(svc *monitor.Service) error {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer server.Close()

	client := &http.Client{
		Transport: intercept.NewTransport(svc, nil),
	}

	// Redundant burst: three goroutines fetch the same resource at once
	var g errgroup.Group
	for i := 0; i < 3; i++ {
		g.Go(func() error {
			resp, err := client.Get(server.URL + "/api/widgets")
			if err != nil {
				return err
			}
			return resp.Body.Close()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Legitimate pagination: sequential offset/limit progression
	for offset := 0; offset <= 80; offset += 20 {
		resp, err := client.Get(fmt.Sprintf("%s/api/items?offset=%d&limit=20", server.URL, offset))
		if err != nil {
			return err
		}
		if err := resp.Body.Close(); err != nil {
			return err
		}
	}

	return nil
}

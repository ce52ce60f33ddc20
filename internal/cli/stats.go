package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"

	"github.com/BioHazard786/Strangers/internal/config"
	"github.com/BioHazard786/Strangers/internal/stats"
	"github.com/BioHazard786/Strangers/internal/ui"
)

const statsTimeout = 5 * time.Second

var flagStatsServer string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show live matchmaking stats from a server",
	Long: `Fetch the server's /stats endpoint and print it as a table.

Examples:
  strangers stats
  strangers stats --server https://strangers.example.com`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadClient(config.ClientOptions{ServerURL: flagStatsServer})
		if err != nil {
			return err
		}

		target := cfg.HTTPURL("/stats")
		s, err := fetchStats(cmd.Context(), http.DefaultClient, target)
		if err != nil {
			return err
		}

		host := target
		if u, err := url.Parse(target); err == nil {
			host = u.Host
		}
		ui.RenderStats(host, s)
		return nil
	},
}

func fetchStats(ctx context.Context, client *http.Client, target string) (stats.Stats, error) {
	return backoff.Retry(ctx, func() (stats.Stats, error) {
		reqCtx, cancel := context.WithTimeout(ctx, statsTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
		if err != nil {
			return stats.Stats{}, backoff.Permanent(err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return stats.Stats{}, fmt.Errorf("fetch stats: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("fetch stats: unexpected status %s", resp.Status)
			if resp.StatusCode < http.StatusInternalServerError {
				return stats.Stats{}, backoff.Permanent(err)
			}
			return stats.Stats{}, err
		}

		var s stats.Stats
		if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
			return stats.Stats{}, backoff.Permanent(fmt.Errorf("decode stats: %w", err))
		}
		return s, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
}

func init() {
	statsCmd.Flags().StringVar(&flagStatsServer, "server", "", "Matchmaking server URL")
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/postlsh/internal/cli"
	"github.com/hyperjump/postlsh/internal/config"
	"github.com/hyperjump/postlsh/internal/kv"
	"github.com/hyperjump/postlsh/internal/lsh"
	"github.com/spf13/cobra"
)

const defaultServerURL = "http://127.0.0.1:8080"

var httpClient = &http.Client{Timeout: 30 * time.Second}

var queryCmd = &cobra.Command{
	Use:   "query <post-id>...",
	Short: "Find posts similar to the given posts",
	Example: `  postlsh query 1
  postlsh query --n-results 50 --output json 1 2 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		n, _ := cmd.Flags().GetInt("n-results")
		output, _ := cmd.Flags().GetString("output")
		format, err := cli.ParseOutputFormat(output)
		if err != nil {
			return err
		}
		ids, err := parsePostIDs(args)
		if err != nil {
			return err
		}
		results, err := queryViaHTTP(cmd.Context(), serverURL, ids, n)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		return cli.WriteQueryResults(cmd.OutOrStdout(), ids, results, format)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		serverURL, _ := cmd.Flags().GetString("server")
		output, _ := cmd.Flags().GetString("output")
		format, err := cli.ParseOutputFormat(output)
		if err != nil {
			return err
		}
		stats, err := statsViaHTTP(cmd.Context(), serverURL)
		if err != nil {
			return fmt.Errorf("stats failed: %w", err)
		}
		return cli.WriteStats(cmd.OutOrStdout(), *stats, format)
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish <post-id>...",
	Short: "Announce stored embeddings on the new_embedding channel",
	Long: `Publish each post-id on the new_embedding channel, as the embedding
producer does after writing embedding:post:{id}. Uses the same Redis settings
as the server.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, err := parsePostIDs(args)
		if err != nil {
			return err
		}
		payloads := make([]string, len(ids))
		for i, id := range ids {
			payloads[i] = kv.FormatPostID(id)
		}
		return publish(cmd, kv.ChannelNewEmbedding, payloads)
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask every running server to shut down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return publish(cmd, kv.ChannelShutdown, []string{"shutdown"})
	},
}

func init() {
	for _, c := range []*cobra.Command{queryCmd, statsCmd} {
		c.Flags().String("server", defaultServerURL, "server URL")
		c.Flags().String("output", "text", "output format: text or json")
	}
	queryCmd.Flags().Int("n-results", 10, "candidates taken from the index per query post")
	for _, c := range []*cobra.Command{publishCmd, shutdownCmd} {
		c.Flags().String("config", "", "config file path (optional)")
	}
	rootCmd.AddCommand(queryCmd, statsCmd, publishCmd, shutdownCmd)
}

func parsePostIDs(args []string) ([]uint32, error) {
	ids := make([]uint32, 0, len(args))
	for _, a := range args {
		for _, part := range strings.Split(a, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := kv.ParsePostID(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no post ids given")
	}
	return ids, nil
}

func publish(cmd *cobra.Command, channel string, payloads []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store := newRedisStore(cfg.Redis, "")
	defer store.Close()
	for _, p := range payloads {
		if err := store.Publish(cmd.Context(), channel, p); err != nil {
			return fmt.Errorf("publish %s: %w", channel, err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %d message(s) on %s\n", len(payloads), channel)
	return nil
}

func queryViaHTTP(ctx context.Context, serverURL string, ids []uint32, n int) ([]uint32, error) {
	body, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	target := strings.TrimRight(serverURL, "/") + "/api/lsh/query?" + url.Values{"n_results": {strconv.Itoa(n)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var results []uint32
	if err := doJSON(req, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func statsViaHTTP(ctx context.Context, serverURL string) (*lsh.Stats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/api/lsh/stats", nil)
	if err != nil {
		return nil, err
	}
	var s lsh.Stats
	if err := doJSON(req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// doJSON sends req and decodes a 200 response into out. Error bodies are JSON
// strings and are surfaced as the error message.
func doJSON(req *http.Request, out interface{}) error {
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		var msg string
		if json.Unmarshal(b, &msg) != nil {
			msg = strings.TrimSpace(string(b))
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wfpaisa/plane-bookmarks/internal/client"
)

var (
	serverURL  string
	timeout    time.Duration
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "bookmarks",
	Short: "Inspect and edit the bookmark forest of a running server",
	Long: `bookmarks talks to a plane-bookmarks server over its REST API.

Every change made here is persisted by the server and pushed to every open
browser tab, exactly like an edit made in the sidebar.

Examples:
  bookmarks get
  bookmarks insert --parent 01HX... --kind folder
  bookmarks move 01HA... 01HB... --to 01HC... --index 0
  bookmarks search react --glob 'https://*.dev/**'
  bookmarks watch`,
	SilenceUsage: true,
}

func init() {
	defaultServer := os.Getenv("BOOKMARKS_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:3001"
	}
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", defaultServer, "Server base URL (env BOOKMARKS_SERVER)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "read", Title: "Reading:"},
		&cobra.Group{ID: "edit", Title: "Editing:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var remote *client.RemoteError
		if errors.As(err, &remote) && remote.Status >= 400 && remote.Status < 500 {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func restClient() *client.REST {
	return client.NewREST(client.RESTOptions{BaseURL: strings.TrimRight(serverURL, "/"), Timeout: timeout, Retries: 2})
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// websocketURL maps the server base URL to its /ws endpoint.
func websocketURL(base string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", base, err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url %q: unsupported scheme %q", base, u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/api") + "/ws"
	return u.String(), nil
}

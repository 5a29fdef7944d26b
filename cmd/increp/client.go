package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/increp/internal/config"
	"github.com/kalambet/increp/internal/report"
	"github.com/kalambet/increp/internal/settings"
)

type apiClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

var newAPIClient = func() (*apiClient, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port),
		token:      cfg.Server.APIToken,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable, is 'increp serve' running? (%w)", err)
	}
	return resp, nil
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *apiClient) post(ctx context.Context, path string, body any) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

type triggerState struct {
	Mode   settings.Mode `json:"mode"`
	Active bool          `json:"active"`
}

type jobState struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Error   string          `json:"error"`
	Created *bool           `json:"created"`
	Summary *report.Summary `json:"summary"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the server is running and its trigger state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showStatus(cmd.Context(), client)
	},
}

func showStatus(ctx context.Context, client *apiClient) error {
	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running at %s", client.baseURL)

	resp, err = client.get(ctx, "/trigger")
	if err != nil {
		return err
	}
	var ts triggerState
	if err := decodeJSON(resp, &ts); err != nil {
		printStatus("Trigger", "unknown (%v)", err)
		return nil
	}
	printStatus("Mode", "%s", ts.Mode)
	if ts.Active {
		printStatus("Submission trigger", "registered")
	} else {
		printStatus("Submission trigger", "none")
	}
	return nil
}

var jobCmd = &cobra.Command{
	Use:   "job <id>",
	Short: "Show a queued generation job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return showJob(cmd.Context(), cmd.OutOrStdout(), client, args[0])
	},
}

func showJob(ctx context.Context, w io.Writer, client *apiClient, id string) error {
	resp, err := client.get(ctx, "/reports/jobs/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	var job jobState
	if err := decodeJSON(resp, &job); err != nil {
		return err
	}
	printStatus("Job", "%s", job.ID)
	printStatus("Status", "%s", job.Status)
	if job.Error != "" {
		printStatus("Error", "%s", job.Error)
	}
	if job.Summary != nil {
		printStatus("Generated", "%d", job.Summary.Processed)
		printSummary(w, *job.Summary)
	}
	return nil
}

// queueRemote asks a running server to generate reports.
func queueRemote(ctx context.Context, client *apiClient) (jobState, error) {
	resp, err := client.post(ctx, "/reports/generate", nil)
	if err != nil {
		return jobState{}, err
	}
	var job jobState
	if err := decodeJSON(resp, &job); err != nil {
		return jobState{}, err
	}
	return job, nil
}

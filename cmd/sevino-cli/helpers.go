package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// apiRequest makes a plain HTTP request against the service API.
func apiRequest(method, path string, body io.Reader) (*http.Response, error) {
	url := strings.TrimRight(endpoint, "/") + path
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}
	return httpClient().Do(req)
}

// apiData performs a request and unwraps the response envelope, returning
// the data payload or the service's error message.
func apiData(method, path string, body io.Reader) (json.RawMessage, error) {
	resp, err := apiRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *string         `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("HTTP %d: parse response: %w", resp.StatusCode, err)
	}
	if !env.Success {
		if env.Error != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, *env.Error)
		}
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return env.Data, nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

// printTable prints data in a formatted table.
func printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(headers, "\t"))
	fmt.Fprintln(w, strings.Repeat("-\t", len(headers)))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	w.Flush()
}

// progressWriter wraps an io.Writer and shows progress.
type progressWriter struct {
	w       io.Writer
	total   int64
	written int64
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := float64(pw.written) / float64(pw.total) * 100
		fmt.Fprintf(os.Stderr, "\r  Progress: %.1f%% (%s / %s)",
			pct, formatSize(pw.written), formatSize(pw.total))
	} else {
		fmt.Fprintf(os.Stderr, "\r  Downloaded: %s", formatSize(pw.written))
	}
	return n, err
}

func formatSize(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

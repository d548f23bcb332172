package reportqctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/reportq/reportq/internal/report"
	"github.com/reportq/reportq/internal/runner"
	"github.com/reportq/reportq/internal/storage"
)

type JobRunner interface {
	Run(ctx context.Context, location string, renderer report.Renderer, sink io.Writer) (runner.Summary, error)
}

type Archive interface {
	Fetch(ctx context.Context, key string, w io.Writer) (int64, error)
	Stat(ctx context.Context, key string) (storage.ObjectInfo, error)
}

// Options carries defaults from the environment and the dependencies the
// commands need. OpenArchive is only called by fetch and stat.
type Options struct {
	OpsURL      string
	Timeout     time.Duration
	HTTPClient  *http.Client
	Runner      JobRunner
	OpenArchive func(ctx context.Context) (Archive, error)
	Stdout      io.Writer
	Stderr      io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("reportqctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	opsURL := fs.String("ops-url", firstNonEmpty(defaults.OpsURL, "http://localhost:9464"), "consumer ops endpoint base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	switch command {
	case "run":
		return runJob(ctx, rest, defaults.Runner, stdout, stderr)
	case "health":
		client := defaults.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: *timeout}
		}
		return probeHealth(ctx, client, strings.TrimRight(*opsURL, "/")+"/healthz", stdout, stderr)
	case "fetch", "stat":
		if len(rest) != 1 || strings.TrimSpace(rest[0]) == "" {
			_, _ = fmt.Fprintf(stderr, "%s requires exactly one object key\n", command)
			return 2
		}
		if defaults.OpenArchive == nil {
			_, _ = fmt.Fprintln(stderr, "report archive is not configured")
			return 1
		}
		archive, err := defaults.OpenArchive(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "open archive: %v\n", err)
			return 1
		}
		if command == "fetch" {
			return fetchReport(ctx, archive, strings.TrimSpace(rest[0]), stdout, stderr)
		}
		return statReport(ctx, archive, strings.TrimSpace(rest[0]), stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

func runJob(ctx context.Context, args []string, jobRunner JobRunner, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reportqctl run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	database := fs.String("database", "", "path to the job database")
	formatName := fs.String("type", string(report.FormatCSV), "output format: CSV, XML, JSON or TBL")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if strings.TrimSpace(*database) == "" {
		_, _ = fmt.Fprintln(stderr, "run requires -database")
		return 2
	}
	if jobRunner == nil {
		_, _ = fmt.Fprintln(stderr, "report runner is not configured")
		return 1
	}

	format := report.ParseFormat(*formatName)
	summary, err := jobRunner.Run(ctx, strings.TrimSpace(*database), report.SelectRenderer(format), stdout)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "report failed after %d queries: %v\n", summary.Queries, err)
		return 1
	}
	return 0
}

func probeHealth(ctx context.Context, client *http.Client, endpoint string, stdout, stderr io.Writer) int {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "read response: %v\n", err)
		return 1
	}
	if resp.StatusCode >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", resp.StatusCode, strings.TrimSpace(string(body)))
		return 1
	}

	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(stdout, string(body))
	}
	return 0
}

func fetchReport(ctx context.Context, archive Archive, key string, stdout, stderr io.Writer) int {
	if _, err := archive.Fetch(ctx, key, stdout); err != nil {
		_, _ = fmt.Fprintf(stderr, "fetch %q: %v\n", key, err)
		return 1
	}
	return 0
}

func statReport(ctx context.Context, archive Archive, key string, stdout, stderr io.Writer) int {
	info, err := archive.Stat(ctx, key)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "stat %q: %v\n", key, err)
		return 1
	}
	formatted, err := json.MarshalIndent(map[string]any{
		"key":           firstNonEmpty(info.Key, key),
		"size":          info.Size,
		"etag":          info.ETag,
		"content_type":  info.ContentType,
		"last_modified": info.LastModified.UTC().Format(time.RFC3339),
		"metadata":      info.Metadata,
	}, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "encode object info: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, string(formatted))
	return 0
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: reportqctl [flags] <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  run -database <path> [-type CSV|XML|JSON|TBL]   run a report locally and print it")
	_, _ = fmt.Fprintln(w, "  health                                         GET /healthz on the consumer")
	_, _ = fmt.Fprintln(w, "  fetch <key>                                    print an archived report")
	_, _ = fmt.Fprintln(w, "  stat <key>                                     show archived report metadata")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}

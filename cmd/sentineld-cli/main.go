// Command sentineld-cli is a thin operator client for a running sentineld
// gateway: task submission, job control, and state inspection over the
// bearer-gated HTTP surface (pkg/gateway). Human-facing output goes
// through internal/logging's logrus wrapper rather than the daemon's own
// zap logger, matching the teacher's split between its structured service
// log and its CLI's plain-text output.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sentineld/sentineld/internal/logging"
)

func main() {
	human := logging.NewHuman(logging.Config{Level: "info", Format: "text", Output: "stdout"})
	if err := run(context.Background(), os.Args[1:], human); err != nil {
		human.Errorf("sentineld-cli: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, human *logging.Human) error {
	defaultAddr := getenv("SENTINELD_ADDR", "http://localhost:8080")
	defaultSecret := os.Getenv("SENTINELD_SECRET")

	root := flag.NewFlagSet("sentineld-cli", flag.ContinueOnError)
	root.SetOutput(io.Discard)
	addr := root.String("addr", defaultAddr, "gateway base URL (env SENTINELD_ADDR)")
	secret := root.String("secret", defaultSecret, "gateway bearer secret (env SENTINELD_SECRET)")
	timeout := root.Duration("timeout", 15*time.Second, "HTTP request timeout")
	if err := root.Parse(args); err != nil {
		return usageError(err)
	}

	remaining := root.Args()
	if len(remaining) == 0 {
		return usageError(errors.New("no command specified"))
	}

	client := &apiClient{
		baseURL: strings.TrimRight(*addr, "/"),
		secret:  strings.TrimSpace(*secret),
		http:    &http.Client{Timeout: *timeout},
	}

	switch remaining[0] {
	case "health":
		return handleHealth(ctx, client)
	case "status":
		return handleStatus(ctx, client)
	case "task":
		return handleTask(ctx, client, remaining[1:])
	case "jobs":
		return handleJobs(ctx, client, remaining[1:])
	case "self-eval":
		return handleSelfEval(ctx, client, remaining[1:])
	case "memory":
		return handleMemory(ctx, client, remaining[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		return usageError(fmt.Errorf("unknown command %q", remaining[0]))
	}
}

func usageError(err error) error {
	printRootUsage()
	return err
}

func printRootUsage() {
	fmt.Println(`sentineld-cli: operator client for the autonomous operations daemon

Usage:
  sentineld-cli [global flags] <command> [flags]

Global Flags:
  --addr     gateway base URL (env SENTINELD_ADDR, default http://localhost:8080)
  --secret   bearer secret (env SENTINELD_SECRET)
  --timeout  HTTP timeout (default 15s)

Commands:
  health              unauthenticated liveness check
  status              daemon:status snapshot (queue depth, breakers, health)
  task submit         submit a task (--type --priority --title --description --payload)
  jobs list           list scheduled jobs
  jobs toggle         enable/disable a job (--id --enabled)
  self-eval run       run a scheduled job immediately (--id)
  memory stats        recent consolidated memory records (--namespace --limit)`)
}

type apiClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

func (c *apiClient) request(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: %s (status %d)", method, path, strings.TrimSpace(string(data)), resp.StatusCode)
	}
	return data, nil
}

func prettyPrint(data []byte) {
	if len(data) == 0 {
		fmt.Println("(empty)")
		return
	}
	var dst bytes.Buffer
	if err := json.Indent(&dst, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(dst.String())
}

func handleHealth(ctx context.Context, client *apiClient) error {
	data, err := client.request(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}

func handleStatus(ctx context.Context, client *apiClient) error {
	data, err := client.request(ctx, http.MethodPost, "/gateway:command", map[string]string{"subchannel": "daemon:status"})
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}

func handleTask(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 || args[0] != "submit" {
		return usageError(errors.New("task: expected \"submit\""))
	}
	fs := flag.NewFlagSet("task submit", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	taskType := fs.String("type", "", "task type (required)")
	priority := fs.String("priority", "low", "critical|high|medium|low")
	title := fs.String("title", "", "task title")
	description := fs.String("description", "", "task description")
	payloadRaw := fs.String("payload", "", "JSON object payload")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError(err)
	}
	if *taskType == "" {
		return usageError(errors.New("task submit: --type is required"))
	}
	payload, err := parseJSONMap(*payloadRaw)
	if err != nil {
		return fmt.Errorf("parse --payload: %w", err)
	}
	data, err := client.request(ctx, http.MethodPost, "/task:submit", map[string]any{
		"type": *taskType, "priority": *priority, "title": *title,
		"description": *description, "payload": payload,
	})
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}

func handleJobs(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 {
		return usageError(errors.New("jobs: expected \"list\" or \"toggle\""))
	}
	switch args[0] {
	case "list":
		data, err := client.request(ctx, http.MethodPost, "/gateway:command", map[string]string{"subchannel": "job:list"})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil
	case "toggle":
		fs := flag.NewFlagSet("jobs toggle", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		id := fs.String("id", "", "job id (required)")
		enabled := fs.Bool("enabled", true, "enable or disable")
		if err := fs.Parse(args[1:]); err != nil {
			return usageError(err)
		}
		if *id == "" {
			return usageError(errors.New("jobs toggle: --id is required"))
		}
		data, err := client.request(ctx, http.MethodPost, "/gateway:command", map[string]any{
			"subchannel": "job:toggle", "jobId": *id, "enabled": *enabled,
		})
		if err != nil {
			return err
		}
		prettyPrint(data)
		return nil
	default:
		return usageError(fmt.Errorf("jobs: unknown subcommand %q", args[0]))
	}
}

func handleSelfEval(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 || args[0] != "run" {
		return usageError(errors.New("self-eval: expected \"run\""))
	}
	fs := flag.NewFlagSet("self-eval run", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	id := fs.String("id", "", "job id (required)")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError(err)
	}
	if *id == "" {
		return usageError(errors.New("self-eval run: --id is required"))
	}
	data, err := client.request(ctx, http.MethodPost, "/gateway:command", map[string]string{
		"subchannel": "self-eval:run", "jobId": *id,
	})
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}

func handleMemory(ctx context.Context, client *apiClient, args []string) error {
	if len(args) == 0 || args[0] != "stats" {
		return usageError(errors.New("memory: expected \"stats\""))
	}
	fs := flag.NewFlagSet("memory stats", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	namespace := fs.String("namespace", "", "memory namespace filter")
	limit := fs.Int("limit", 20, "max records to return")
	if err := fs.Parse(args[1:]); err != nil {
		return usageError(err)
	}
	data, err := client.request(ctx, http.MethodPost, "/gateway:command", map[string]any{
		"subchannel": "memory:stats", "namespace": *namespace, "limit": *limit,
	})
	if err != nil {
		return err
	}
	prettyPrint(data)
	return nil
}

func parseJSONMap(input string) (map[string]any, error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(input), &result); err != nil {
		return nil, err
	}
	return result, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

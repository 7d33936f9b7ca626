package querywrightctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type apiRequest struct {
	method string
	path   string
	body   any
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

	fs := flag.NewFlagSet("querywrightctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "Querywright API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	request, err := buildRequest(strings.TrimSpace(fs.Arg(0)), fs.Args()[1:], stderr)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n\n", err)
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	endpoint := strings.TrimRight(*baseURL, "/") + request.path
	code, responseBody, err := doRequest(ctx, client, request.method, endpoint, *apiKey, request.body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func buildRequest(command string, args []string, stderr io.Writer) (apiRequest, error) {
	switch command {
	case "health":
		return apiRequest{method: http.MethodGet, path: "/v1/health"}, nil
	case "ready":
		return apiRequest{method: http.MethodGet, path: "/v1/ready"}, nil
	case "connections":
		return apiRequest{method: http.MethodGet, path: "/v1/database-connections"}, nil
	case "response":
		if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
			return apiRequest{}, fmt.Errorf("response requires exactly one response id")
		}
		return apiRequest{method: http.MethodGet, path: "/v1/responses/" + url.PathEscape(strings.TrimSpace(args[0]))}, nil
	case "golden-records":
		fs := flag.NewFlagSet("golden-records", flag.ContinueOnError)
		fs.SetOutput(stderr)
		connection := fs.String("connection", "", "database connection id")
		limit := fs.Int("limit", 0, "maximum records to list (0 = all)")
		if err := fs.Parse(args); err != nil {
			return apiRequest{}, err
		}
		if strings.TrimSpace(*connection) == "" {
			return apiRequest{}, fmt.Errorf("golden-records requires -connection")
		}
		query := url.Values{}
		query.Set("db_connection_id", strings.TrimSpace(*connection))
		if *limit > 0 {
			query.Set("limit", strconv.Itoa(*limit))
		}
		return apiRequest{method: http.MethodGet, path: "/v1/golden-records?" + query.Encode()}, nil
	case "datasets":
		fs := flag.NewFlagSet("datasets", flag.ContinueOnError)
		fs.SetOutput(stderr)
		connection := fs.String("connection", "", "database connection id")
		export := fs.Bool("export", false, "export golden records before listing")
		if err := fs.Parse(args); err != nil {
			return apiRequest{}, err
		}
		connectionID := strings.TrimSpace(*connection)
		if connectionID == "" {
			return apiRequest{}, fmt.Errorf("datasets requires -connection")
		}
		if *export {
			return apiRequest{method: http.MethodPost, path: "/v1/golden-records/export", body: map[string]any{"db_connection_id": connectionID}}, nil
		}
		return apiRequest{method: http.MethodGet, path: "/v1/golden-records/exports?" + url.Values{"db_connection_id": {connectionID}}.Encode()}, nil
	case "ask":
		fs := flag.NewFlagSet("ask", flag.ContinueOnError)
		fs.SetOutput(stderr)
		connection := fs.String("connection", "", "database connection id")
		strategy := fs.String("strategy", "", "generation strategy (default: server default)")
		useContext := fs.Bool("use-context", false, "add golden records as few-shot examples")
		contextLimit := fs.Int("context-limit", 0, "number of golden records to add (0 = server default)")
		if err := fs.Parse(args); err != nil {
			return apiRequest{}, err
		}
		question := strings.TrimSpace(strings.Join(fs.Args(), " "))
		if strings.TrimSpace(*connection) == "" || question == "" {
			return apiRequest{}, fmt.Errorf("ask requires -connection and a question")
		}
		body := map[string]any{
			"db_connection_id": strings.TrimSpace(*connection),
			"question":         question,
		}
		if *strategy != "" {
			body["strategy"] = *strategy
		}
		if *useContext {
			body["use_context"] = true
		}
		if *contextLimit > 0 {
			body["context_limit"] = *contextLimit
		}
		return apiRequest{method: http.MethodPost, path: "/v1/questions", body: body}, nil
	default:
		return apiRequest{}, fmt.Errorf("unknown command %q", command)
	}
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
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
	_, _ = fmt.Fprintln(w, "usage: querywrightctl [flags] <command> [command flags]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                                  GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                                   GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  connections                             GET /v1/database-connections")
	_, _ = fmt.Fprintln(w, "  golden-records -connection <id>         GET /v1/golden-records")
	_, _ = fmt.Fprintln(w, "  datasets -connection <id> [-export]     GET /v1/golden-records/exports")
	_, _ = fmt.Fprintln(w, "  ask -connection <id> \"<question>\"       POST /v1/questions")
	_, _ = fmt.Fprintln(w, "  response <id>                           GET /v1/responses/{id}")
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

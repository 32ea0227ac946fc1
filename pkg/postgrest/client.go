package postgrest

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	pgrest "github.com/supabase-community/postgrest-go"
)

const restPath = "/rest/v1"

// APIError is an error answer from the REST gateway. The client library reports it as "(code) message" and
// drops the HTTP status, so callers classify on the PostgREST or SQLSTATE code.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return "postgrest: " + e.Message
	}
	return fmt.Sprintf("postgrest (%s): %s", e.Code, e.Message)
}

// CredentialRejected reports whether the API key itself was refused: a PGRST3xx JWT error from PostgREST or
// the gateway's "Invalid API key" answer, which carries no code.
func (e *APIError) CredentialRejected() bool {
	if strings.HasPrefix(e.Code, "PGRST3") {
		return true
	}
	return e.Code == "" && strings.Contains(strings.ToLower(e.Message), "api key")
}

// PermissionDenied reports SQLSTATE 42501: a missing grant or a row-level security policy on one table.
func (e *APIError) PermissionDenied() bool {
	return e.Code == "42501"
}

var errorPattern = regexp.MustCompile(`(?s)^\(([^)]*)\) (.*)$`)

func parseError(err error) error {
	if err == nil {
		return nil
	}
	if m := errorPattern.FindStringSubmatch(err.Error()); m != nil {
		return &APIError{Code: m[1], Message: m[2]}
	}
	return err
}

// Client talks to a PostgREST endpoint such as the one exposed by Supabase.
//
// The library takes no context. ctx is checked before every request and the transport timeout bounds the
// request itself.
type Client struct {
	rest *pgrest.Client
}

// New builds a client for the project at baseURL. apiKey is sent both as apikey and as the bearer token.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rest := pgrest.NewClient(strings.TrimRight(baseURL, "/")+restPath, "public", map[string]string{
		"apikey":        apiKey,
		"Authorization": "Bearer " + apiKey,
	})
	if rest.Transport != nil {
		rest.Transport.Parent = newTransport(timeout)
	}
	return &Client{rest: rest}
}

func newTransport(timeout time.Duration) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
	t.TLSHandshakeTimeout = timeout
	t.ResponseHeaderTimeout = timeout
	return t
}

// Ping reads at most one row of table, proving the gateway answers and accepts the key.
func (c *Client) Ping(ctx context.Context, table string) error {
	return c.run(ctx, c.rest.From(table).Select("*", "", false).Limit(1, ""))
}

// Insert appends rows to table.
func (c *Client) Insert(ctx context.Context, table string, rows interface{}) error {
	payload, err := encode(table, rows)
	if err != nil {
		return err
	}
	return c.run(ctx, c.rest.From(table).Insert(payload, false, "", "minimal", ""))
}

// Upsert writes rows, merging those whose onConflict column already exists.
func (c *Client) Upsert(ctx context.Context, table, onConflict string, rows interface{}) error {
	payload, err := encode(table, rows)
	if err != nil {
		return err
	}
	return c.run(ctx, c.rest.From(table).Upsert(payload, onConflict, "minimal", ""))
}

// Count returns the exact number of rows in table whose columns equal the values in eq.
func (c *Client) Count(ctx context.Context, table string, eq map[string]string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	_, n, err := c.rest.From(table).Select("*", "exact", false).Match(eq).Limit(1, "").Execute()
	if err != nil {
		return 0, parseError(err)
	}
	return int(n), nil
}

func (c *Client) run(ctx context.Context, q *pgrest.FilterBuilder) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := q.Execute()
	return parseError(err)
}

// encode marshals rows up front. A marshal failure inside the library would stick to the shared client.
func encode(table string, rows interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("encode %s rows: %w", table, err)
	}
	return payload, nil
}

package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"

	"github.com/wfpaisa/plane-bookmarks/internal/domain/coordinator"
	"github.com/wfpaisa/plane-bookmarks/internal/domain/tree"
	"github.com/wfpaisa/plane-bookmarks/internal/shared/types"
)

// RESTOptions configures a REST client.
type RESTOptions struct {
	// BaseURL of the server, e.g. http://localhost:3001.
	BaseURL string
	Timeout time.Duration
	// Retries applies to transport failures only.
	Retries int
}

// Mutation is the server's answer to a change made over HTTP.
type Mutation struct {
	Success  bool        `json:"success"`
	Forest   tree.Forest `json:"data"`
	Revision uint64      `json:"revision"`
	ID       string      `json:"id,omitempty"`
}

// Health is the /health payload.
type Health struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Clients   int    `json:"clients"`
	Revision  uint64 `json:"revision"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// REST talks to the request/response endpoints.
type REST struct {
	resty *resty.Client
}

// NewREST creates a REST client.
func NewREST(opts RESTOptions) *REST {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	r := resty.New()
	r.SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retries).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(_ *resty.Response, err error) bool { return err != nil }).
		SetHeader("User-Agent", "plane-bookmarks-cli/1.0").
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)

	return &REST{resty: r}
}

// Get returns the forest and its revision.
func (c *REST) Get(ctx context.Context) (tree.Forest, uint64, error) {
	var f tree.Forest
	resp, err := c.do(ctx, http.MethodGet, "/bookmarks", nil, &f)
	if err != nil {
		return nil, 0, err
	}
	rev, _ := strconv.ParseUint(resp.Header().Get("X-Revision"), 10, 64)
	if f == nil {
		f = tree.Forest{}
	}
	return f, rev, nil
}

// Save replaces the whole forest.
func (c *REST) Save(ctx context.Context, f tree.Forest) (Mutation, error) {
	if f == nil {
		f = tree.Forest{}
	}
	var m Mutation
	_, err := c.do(ctx, http.MethodPut, "/bookmarks", f, &m)
	return m, err
}

// Clear empties the forest.
func (c *REST) Clear(ctx context.Context) (Mutation, error) {
	var m Mutation
	_, err := c.do(ctx, http.MethodDelete, "/bookmarks", nil, &m)
	return m, err
}

// Apply runs one intent on the server.
func (c *REST) Apply(ctx context.Context, in coordinator.Intent) (Mutation, error) {
	var m Mutation
	_, err := c.do(ctx, http.MethodPost, "/bookmarks/ops", in, &m)
	return m, err
}

// Stats returns the forest summary.
func (c *REST) Stats(ctx context.Context) (tree.Stats, error) {
	var s tree.Stats
	_, err := c.do(ctx, http.MethodGet, "/bookmarks/stats", nil, &s)
	return s, err
}

// Tags lists every distinct tag.
func (c *REST) Tags(ctx context.Context) ([]string, error) {
	var tags []string
	_, err := c.do(ctx, http.MethodGet, "/bookmarks/tags", nil, &tags)
	return tags, err
}

// Search runs a query on the server.
func (c *REST) Search(ctx context.Context, q tree.Query) ([]tree.Match, error) {
	var matches []tree.Match
	req := c.resty.R().SetContext(ctx).SetResult(&matches)
	for key, value := range map[string]string{"q": q.Term, "glob": q.URLGlob, "tag": q.Tag} {
		if value != "" {
			req.SetQueryParam(key, value)
		}
	}
	resp, err := req.Get("/bookmarks/search")
	if err := checkResponse(resp, err); err != nil {
		return nil, err
	}
	return matches, nil
}

// Health returns the server status. A server that is not ready answers
// with a RemoteError alongside the decoded payload.
func (c *REST) Health(ctx context.Context) (Health, error) {
	var h Health
	resp, err := c.resty.R().SetContext(ctx).Get("/health")
	if err != nil {
		return h, fmt.Errorf("GET /health: %w", err)
	}
	if err := sonic.Unmarshal(resp.Body(), &h); err != nil {
		return h, fmt.Errorf("decode health: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return h, &RemoteError{Code: types.CodeUnavailable, Message: h.Status, Status: resp.StatusCode()}
	}
	return h, nil
}

func (c *REST) do(ctx context.Context, method, path string, body, result any) (*resty.Response, error) {
	req := c.resty.R().SetContext(ctx).SetResult(result)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err := checkResponse(resp, err); err != nil {
		return resp, err
	}
	return resp, nil
}

// checkResponse turns transport failures and non-2xx answers into errors.
func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		if resp != nil && resp.Request != nil {
			return fmt.Errorf("%s %s: %w", resp.Request.Method, resp.Request.URL, err)
		}
		return err
	}
	if !resp.IsError() {
		return nil
	}

	remote := &RemoteError{Status: resp.StatusCode(), Code: types.CodeInternal, Message: resp.Status()}
	var body errorBody
	if sonic.Unmarshal(resp.Body(), &body) == nil && body.Error != "" {
		remote.Message = body.Error
		if body.Code != "" {
			remote.Code = types.Code(body.Code)
		}
	}
	return remote
}

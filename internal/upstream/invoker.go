package upstream

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/softrlabs/bexgate/params"
	"github.com/valyala/bytebufferpool"
)

// Response is a relayed upstream reply.
type Response struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// Invoker performs an authenticated call against the accounting API on
// behalf of a tenant.
type Invoker interface {
	Call(ctx context.Context, tenantKey string, method string, path string, query url.Values, body []byte) (*Response, error)
}

// TokenProvider is the slice of the token lifecycle the invoker needs.
type TokenProvider interface {
	GetValidToken(ctx context.Context, tenantKey string) (string, error)
	ForceRefresh(ctx context.Context, tenantKey string) (string, error)
}

type BexioInvoker struct {
	apiBase string
	tokens  TokenProvider
	client  *http.Client
}

func NewBexioInvoker(apiBase string, tokens TokenProvider) *BexioInvoker {
	return &BexioInvoker{
		apiBase: strings.TrimSuffix(apiBase, "/"),
		tokens:  tokens,
		client:  &http.Client{Timeout: params.UpstreamRequestTimeout},
	}
}

// Call obtains a token, issues the request and relays the reply. A 401 from
// bexio despite a locally-valid token triggers exactly one forced refresh
// and retry; any other ≥400 reply is surfaced verbatim without retry.
func (i *BexioInvoker) Call(ctx context.Context, tenantKey string, method string, path string, query url.Values, body []byte) (*Response, error) {
	token, err := i.tokens.GetValidToken(ctx, tenantKey)
	if err != nil {
		return nil, err
	}

	resp, err := i.do(ctx, token, method, path, query, body)
	if err != nil {
		return nil, err
	}

	if resp.Status == http.StatusUnauthorized {
		slog.Warn("Upstream rejected token, forcing refresh", "tenant", tenantKey, "path", path)
		token, err = i.tokens.ForceRefresh(ctx, tenantKey)
		if err != nil {
			return nil, err
		}
		resp, err = i.do(ctx, token, method, path, query, body)
		if err != nil {
			return nil, err
		}
	}

	if resp.Status >= http.StatusBadRequest {
		return nil, &Error{Status: resp.Status, Body: resp.Body}
	}
	return resp, nil
}

func (i *BexioInvoker) do(ctx context.Context, token string, method string, path string, query url.Values, body []byte) (*Response, error) {
	endpoint := i.apiBase + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if len(body) > 0 {
		reqBody = bytes.NewReader(body)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}

	out := make([]byte, len(buf.B))
	copy(out, buf.B)
	return &Response{Status: resp.StatusCode, Body: out}, nil
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	autherrors "github.com/droniapp/go-auth-client/internal/errors"
	"github.com/droniapp/go-auth-client/session"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

// RequestOptions describes one API call.
type RequestOptions struct {
	// Public requests never carry the bearer token and are never reissued.
	Public bool
	// Method defaults to POST when Body is set and GET otherwise.
	Method string
	// Body is JSON encoded; a []byte or json.RawMessage is sent as-is.
	Body    any
	Headers map[string]string
	Query   url.Values
}

// Response is a successful API response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// attempt carries one logical request across its retry.
type attempt struct {
	endpoint  string
	method    string
	body      []byte
	opts      RequestOptions
	requestID string
	sentToken string
	retried   bool
}

// Do sends the request and returns the response for 2xx statuses. Every
// failure is an *APIError.
func (c *Client) Do(ctx context.Context, endpoint string, opts RequestOptions) (*Response, error) {
	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, newTransportError(autherrors.Wrapf(err, "encode request body"))
	}

	a := &attempt{
		endpoint:  endpoint,
		method:    requestMethod(opts),
		body:      body,
		opts:      opts,
		requestID: uuid.NewString(),
	}

	resp, err := c.send(ctx, a)
	if err != nil {
		return nil, err
	}
	if resp.Status != http.StatusUnauthorized || !c.canReissue(a) {
		return c.result(resp)
	}

	// Another request already refreshed the token after this one was sent.
	if current := c.store.Token(); current == "" || current == a.sentToken {
		if _, err := c.Reissue(ctx); err != nil {
			return nil, err
		}
	}

	a.retried = true
	resp, err = c.send(ctx, a)
	if err != nil {
		return nil, err
	}
	return c.result(resp)
}

// Request sends the call and decodes the JSON response into T.
func Request[T any](ctx context.Context, c *Client, endpoint string, opts RequestOptions) (T, error) {
	var out T
	resp, err := c.Do(ctx, endpoint, opts)
	if err != nil {
		return out, err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return out, nil
	}
	if err := resp.Decode(&out); err != nil {
		return out, newTransportError(autherrors.Wrapf(err, "decode response from %s", endpoint))
	}
	return out, nil
}

// canReissue guards against loops: public calls, calls to the reissue
// endpoint itself and calls already retried once all fail with the 401.
func (c *Client) canReissue(a *attempt) bool {
	return !a.opts.Public && !a.retried && !c.isReissueEndpoint(a.endpoint)
}

func (c *Client) isReissueEndpoint(endpoint string) bool {
	return strings.Contains(endpoint, c.reissuePath)
}

func (c *Client) send(ctx context.Context, a *attempt) (*Response, error) {
	target, err := c.resolve(a.endpoint, a.opts.Query)
	if err != nil {
		return nil, newTransportError(err)
	}

	var reader io.Reader
	if a.body != nil {
		reader = bytes.NewReader(a.body)
	}
	req, err := http.NewRequestWithContext(ctx, a.method, target, reader)
	if err != nil {
		return nil, newTransportError(err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	for name, value := range a.opts.Headers {
		req.Header.Set(name, value)
	}
	req.Header.Set(requestIDHeader, a.requestID)

	a.sentToken = ""
	if a.opts.Public {
		req.Header.Del("Authorization")
	} else if token := c.store.Token(); token != "" {
		session.BearerToken(token).SetAuthHeader(req)
		a.sentToken = token
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("request_id", a.requestID).Str("endpoint", a.endpoint).Msg("Request failed")
		return nil, newTransportError(err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, newTransportError(autherrors.Wrapf(err, "read response from %s", a.endpoint))
	}

	c.logger.Debug().
		Str("request_id", a.requestID).
		Str("method", a.method).
		Str("endpoint", a.endpoint).
		Int("status", httpResp.StatusCode).
		Bool("retry", a.retried).
		Msg("Request completed")

	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

func (c *Client) result(resp *Response) (*Response, error) {
	if resp.Status >= 200 && resp.Status < 300 {
		return resp, nil
	}

	var body *ErrorResponse
	var parsed ErrorResponse
	if err := json.Unmarshal(resp.Body, &parsed); err == nil {
		body = &parsed
	}
	return nil, newStatusError(resp.Status, body)
}

func (c *Client) resolve(endpoint string, query url.Values) (string, error) {
	raw := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		raw = c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", autherrors.Wrapf(err, "parse endpoint %q", endpoint)
	}
	if len(query) > 0 {
		q := u.Query()
		for name, values := range query {
			for _, v := range values {
				q.Add(name, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func requestMethod(opts RequestOptions) string {
	if opts.Method != "" {
		return strings.ToUpper(opts.Method)
	}
	if opts.Body != nil {
		return http.MethodPost
	}
	return http.MethodGet
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		return json.Marshal(b)
	}
}

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	autherrors "github.com/droniapp/go-auth-client/internal/errors"
)

const maxReissueResponseBytes = 1 << 20

type reissueRequest struct {
	AccessToken string `json:"accessToken"`
}

type reissueResponse struct {
	AccessToken string `json:"accessToken"`
}

type reissueResult struct {
	token string
	err   error
}

// Reissue exchanges the current token for a new one and returns it. At most
// one reissue is in flight: callers arriving while one is pending wait for its
// outcome instead of starting another. On failure the session is logged out
// and every caller gets the same session-expired *APIError.
func (c *Client) Reissue(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.refreshing {
		waiter := make(chan reissueResult, 1)
		c.waiters = append(c.waiters, waiter)
		c.mu.Unlock()

		select {
		case res := <-waiter:
			return res.token, res.err
		case <-ctx.Done():
			return "", newTransportError(ctx.Err())
		}
	}
	c.refreshing = true
	c.mu.Unlock()

	return c.leadReissue(ctx)
}

func (c *Client) leadReissue(ctx context.Context) (token string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reissue panic: %v", r)
		}
		token, err = c.settle(token, err)
	}()
	return c.reissue(ctx)
}

// settle clears the in-flight flag and hands the outcome to every queued
// caller in join order. It runs on every exit path of the leader.
func (c *Client) settle(token string, err error) (string, error) {
	if err == nil && token == "" {
		err = autherrors.ErrMissingAccessToken
	}

	var expired *APIError
	if err != nil {
		c.logger.Err(err).Msg("Token reissue failed, logging out")
		c.store.Logout()
		expired = newSessionExpiredError(err)
	}

	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.mu.Unlock()

	for _, waiter := range waiters {
		if expired != nil {
			waiter <- reissueResult{err: expired}
		} else {
			waiter <- reissueResult{token: token}
		}
	}

	if expired != nil {
		c.onSessionExpired()
		return "", expired
	}
	return token, nil
}

// reissue calls the backend. The refresh token itself travels as an HttpOnly
// cookie through the client's jar. The call is detached from the leader's
// cancellation: the queued callers depend on it too.
func (c *Client) reissue(ctx context.Context) (string, error) {
	c.store.SetLoading(true)
	defer c.store.SetLoading(false)

	current := c.store.Token()
	if current == "" {
		return "", autherrors.ErrNoAccessToken
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.reissueTimeout)
	defer cancel()

	body, err := json.Marshal(reissueRequest{AccessToken: current})
	if err != nil {
		return "", autherrors.Wrapf(err, "encode reissue request")
	}

	target := fmt.Sprintf("%s%s?redirectionUrl=%s", c.baseURL, c.reissuePath, url.QueryEscape(c.redirectionURL()))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return "", autherrors.Wrapf(err, "build reissue request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", autherrors.Wrapf(err, "reissue request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReissueResponseBytes))
	if err != nil {
		return "", autherrors.Wrapf(err, "read reissue response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", autherrors.ErrReissueFailed, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out reissueResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", autherrors.ErrReissueFailed, err)
	}
	if out.AccessToken == "" {
		return "", autherrors.ErrMissingAccessToken
	}
	if err := c.store.SetTokens(out.AccessToken); err != nil {
		return "", err
	}

	c.logger.Info().Msg("Access token reissued")
	return out.AccessToken, nil
}

package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"authbridge/pkg/idp"
)

// TriggerSignIn is the triggerSource sent after an interactive sign-in.
const TriggerSignIn = "sign_in_flow"

type Request struct {
	TriggerSource string `json:"triggerSource"`
	Timestamp     string `json:"timestamp"`
}

type Result struct {
	ReconciliationNeeded bool `json:"reconciliationNeeded"`
}

// Error is a non-2xx answer from the reconciliation endpoint.
type Error struct {
	Status int
	Body   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("reconciliation failed: status %d: %s", e.Status, e.Body)
}

// Client calls the profile reconciliation endpoint on behalf of a session.
type Client interface {
	Reconcile(ctx context.Context, sess idp.Session, req Request) (Result, error)
}

type HTTPClient struct {
	url  string
	http *http.Client
}

func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		url:  url,
		http: &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (c *HTTPClient) Reconcile(ctx context.Context, sess idp.Session, req Request) (Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	if sess.Token != "" {
		hreq.Header.Set("Authorization", "Bearer "+sess.Token)
	}
	resp, err := c.http.Do(hreq)
	if err != nil {
		return Result{}, fmt.Errorf("reconciliation request: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode/100 != 2 {
		return Result{}, &Error{Status: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}
	var res Result
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &res); err != nil {
			return Result{}, fmt.Errorf("decode reconciliation result: %w", err)
		}
	}
	return res, nil
}

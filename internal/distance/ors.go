package distance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/mat"
)

const (
	DefaultORSBaseURL = "https://api.openrouteservice.org"
	DefaultORSProfile = "driving-car"
)

// ORSProvider queries the OpenRouteService matrix endpoint. Requests are
// paced by Limiter and transient failures are retried with backoff.
type ORSProvider struct {
	BaseURL string
	Profile string
	APIKey  string
	Client  *http.Client
	Limiter *rate.Limiter

	MaxAttempts int
	Backoff     time.Duration
}

func NewORSProvider(baseURL, profile, apiKey string, perSecond float64, timeout time.Duration) *ORSProvider {
	if baseURL == "" {
		baseURL = DefaultORSBaseURL
	}
	if profile == "" {
		profile = DefaultORSProfile
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &ORSProvider{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		Profile:     profile,
		APIKey:      apiKey,
		Client:      &http.Client{Timeout: timeout},
		Limiter:     lim,
		MaxAttempts: 4,
		Backoff:     200 * time.Millisecond,
	}
}

type orsMatrixRequest struct {
	Locations [][]float64 `json:"locations"`
	Metrics   []string    `json:"metrics"`
}

type orsMatrixResponse struct {
	Durations [][]*float64 `json:"durations"`
}

type httpStatusError struct {
	Code int
	Body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (o *ORSProvider) Matrix(ctx context.Context, pts []Point) (*mat.Dense, error) {
	n := len(pts)
	if n == 0 {
		return nil, errNoPoints
	}
	body := orsMatrixRequest{Locations: make([][]float64, n), Metrics: []string{"duration"}}
	for i, p := range pts {
		body.Locations[i] = []float64{p.Lon, p.Lat}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ors matrix: marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v2/matrix/%s", o.BaseURL, o.Profile)

	resp, err := o.doWithRetry(ctx, func() (*http.Request, error) {
		return o.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	})
	if err != nil {
		return nil, fmt.Errorf("ors matrix: %w", err)
	}
	defer resp.Body.Close()

	var mr orsMatrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		return nil, fmt.Errorf("ors matrix: decode response: %w", err)
	}
	if len(mr.Durations) != n {
		return nil, fmt.Errorf("ors matrix: got %d rows for %d points", len(mr.Durations), n)
	}
	m := mat.NewDense(n, n, nil)
	for i, row := range mr.Durations {
		if len(row) != n {
			return nil, fmt.Errorf("ors matrix: row %d has %d entries, want %d", i, len(row), n)
		}
		for j, sec := range row {
			if sec == nil {
				return nil, fmt.Errorf("ors matrix: %s -> %s: %w", pts[i].Key(), pts[j].Key(), ErrUnroutable)
			}
			m.Set(i, j, *sec/60)
		}
	}
	return m, nil
}

func (o *ORSProvider) newRequest(ctx context.Context, method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", o.APIKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (o *ORSProvider) do(req *http.Request) (*http.Response, error) {
	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &httpStatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// doWithRetry retries network errors, 429 and 5xx responses with
// exponential backoff. Each attempt waits for the rate limiter.
func (o *ORSProvider) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	attempts := max(o.MaxAttempts, 1)
	backoff := o.Backoff
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := o.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := makeReq()
		if err != nil {
			return nil, fmt.Errorf("make request: %w", err)
		}
		resp, err := o.do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		retry := false
		var he *httpStatusError
		if errors.As(err, &he) {
			switch he.Code {
			case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
				http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				retry = true
			}
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == attempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}

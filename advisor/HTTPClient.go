package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/samuelfneumann/pointmass/metric"
)

// Request is the body posted to an advisory service
type Request struct {
	Metrics []metric.Metric `json:"metrics"`
}

// Response is the body returned by an advisory service
type Response struct {
	Report string `json:"report"`
}

// HTTPClient is an Advisor which posts metrics as JSON to a remote
// advisory service
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient returns a new HTTPClient posting to url. If client is
// nil, http.DefaultClient is used.
func NewHTTPClient(url string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{url: url, client: client}
}

// Advise posts metrics to the advisory service and returns its report
func (h *HTTPClient) Advise(ctx context.Context,
	metrics []metric.Metric) (string, error) {
	body, err := json.Marshal(Request{Metrics: metrics})
	if err != nil {
		return "", fmt.Errorf("advise: could not encode metrics: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url,
		bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("advise: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("advise: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("advise: advisory service returned %v",
			resp.Status)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("advise: could not decode report: %v", err)
	}
	if out.Report == "" {
		return "", fmt.Errorf("advise: empty report")
	}
	return out.Report, nil
}

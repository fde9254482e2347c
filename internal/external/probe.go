package external

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// UpstreamProbe checks an HTTP dependency by issuing GET against its health
// URL. Any 2xx is healthy.
type UpstreamProbe struct {
	name   string
	url    string
	client *http.Client
}

// NewUpstreamProbe builds a probe for baseURL+healthPath. A nil client uses
// http.DefaultClient.
func NewUpstreamProbe(name, baseURL, healthPath string, client *http.Client) *UpstreamProbe {
	if client == nil {
		client = http.DefaultClient
	}
	return &UpstreamProbe{
		name:   name,
		url:    strings.TrimRight(baseURL, "/") + healthPath,
		client: client,
	}
}

// Name implements core.HealthProbe.
func (p *UpstreamProbe) Name() string {
	return p.name
}

// Check implements core.HealthProbe.
func (p *UpstreamProbe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probing %s: %w", p.name, err)
	}
	defer drainAndClose(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s health returned %d", p.name, resp.StatusCode)
	}
	return nil
}

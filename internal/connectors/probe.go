package connectors

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/xela07ax/devit-dispatch-prototype/internal/domain"
)

// HTTPHealthProbe опрашивает /healthz агента.
type HTTPHealthProbe struct {
	client *http.Client
}

func NewHTTPHealthProbe(timeout time.Duration) *HTTPHealthProbe {
	return &HTTPHealthProbe{
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPHealthProbe) Check(ctx context.Context, agent domain.AgentDescriptor) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, agent.Endpoint+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("agent %s unhealthy: status %d", agent.Type, resp.StatusCode)
	}
	return nil
}

// Package tunnel discovers the public URL the dashboard is reachable at.
package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/wadesk/internal/config"
	"github.com/soyeahso/wadesk/internal/logging"
	"github.com/soyeahso/wadesk/internal/version"
)

// ErrNoTunnel is returned when the agent never reports an https tunnel.
var ErrNoTunnel = errors.New("tunnel: no public https url")

// Provider resolves the public URL.
type Provider interface {
	URL(ctx context.Context) (string, error)
}

// New builds the provider named by cfg.Kind. Kind "none" returns nil.
// target is the local dashboard URL an ngrok endpoint forwards to.
func New(cfg config.TunnelConfig, target string, log *logging.Logger) (Provider, error) {
	switch cfg.Kind {
	case "", "none":
		return nil, nil
	case "static":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, fmt.Errorf("tunnel: static kind needs a url")
		}
		return Static(strings.TrimSpace(cfg.URL)), nil
	case "ngrok":
		n, err := NewNgrok(target, cfg.Authtoken, cfg.Domain, log)
		if err != nil {
			return nil, err
		}
		return n, nil
	case "ngrok-agent":
		return NewAgent(cfg.AgentAPI, time.Duration(cfg.PollIntervalMs)*time.Millisecond, cfg.Attempts, log), nil
	default:
		return nil, fmt.Errorf("tunnel: unknown kind %q", cfg.Kind)
	}
}

// Static is a fixed, operator-configured URL.
type Static string

// URL returns the configured URL.
func (s Static) URL(context.Context) (string, error) { return string(s), nil }

// Agent polls a local ngrok agent API for the first https tunnel.
type Agent struct {
	api      string
	interval time.Duration
	attempts int
	client   *http.Client
	log      *logging.Logger
}

// NewAgent creates an Agent for the API base URL, e.g. http://127.0.0.1:4040.
func NewAgent(api string, interval time.Duration, attempts int, log *logging.Logger) *Agent {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if attempts <= 0 {
		attempts = 1
	}
	return &Agent{
		api:      strings.TrimRight(api, "/"),
		interval: interval,
		attempts: attempts,
		client:   &http.Client{Timeout: 5 * time.Second},
		log:      log.Sub("tunnel"),
	}
}

type tunnelList struct {
	Tunnels []struct {
		Name      string `json:"name"`
		PublicURL string `json:"public_url"`
		Proto     string `json:"proto"`
	} `json:"tunnels"`
}

// URL polls until an https tunnel shows up, the attempts run out, or ctx
// is cancelled.
func (a *Agent) URL(ctx context.Context) (string, error) {
	var lastErr error
	for i := 0; i < a.attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(a.interval):
			}
		}

		url, err := a.poll(ctx)
		if err == nil && url != "" {
			return url, nil
		}
		if err != nil {
			lastErr = err
			a.log.Debug().Err(err).Int("attempt", i+1).Msg("tunnel agent not ready")
		}
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", ErrNoTunnel, lastErr)
	}
	return "", ErrNoTunnel
}

func (a *Agent) poll(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.api+"/api/tunnels", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("agent api returned %d", resp.StatusCode)
	}

	var list tunnelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("decoding tunnel list: %w", err)
	}
	for _, t := range list.Tunnels {
		if strings.HasPrefix(t.PublicURL, "https://") {
			return t.PublicURL, nil
		}
	}
	return "", nil
}

// Discover resolves p in the background and hands the URL to publish.
// Failures are logged; the dashboard simply never learns a URL.
func Discover(ctx context.Context, p Provider, publish func(string), log *logging.Logger) {
	if p == nil {
		return
	}
	go func() {
		url, err := p.URL(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Msg("tunnel url unavailable")
			}
			return
		}
		log.Info().Str("url", url).Msg("tunnel url discovered")
		publish(url)
	}()
}

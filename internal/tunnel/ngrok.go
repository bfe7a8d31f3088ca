package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"

	"github.com/soyeahso/wadesk/internal/logging"
	"golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

// ErrNoAuthtoken is returned when neither the config nor NGROK_AUTHTOKEN
// carries an ngrok authtoken.
var ErrNoAuthtoken = errors.New("tunnel: ngrok needs an authtoken")

// Ngrok opens an ngrok HTTP endpoint forwarding to the dashboard server.
// The endpoint stays up until the context passed to URL is done.
type Ngrok struct {
	backend   *url.URL
	authtoken string
	domain    string
	log       *logging.Logger

	mu  sync.Mutex
	fwd ngrok.Forwarder
}

// NewNgrok creates an Ngrok forwarding to target, e.g. http://127.0.0.1:3000.
// An empty authtoken falls back to NGROK_AUTHTOKEN.
func NewNgrok(target, authtoken, domain string, log *logging.Logger) (*Ngrok, error) {
	backend, err := url.Parse(target)
	if err != nil || backend.Host == "" {
		return nil, fmt.Errorf("tunnel: bad ngrok target %q", target)
	}
	if authtoken == "" {
		authtoken = os.Getenv("NGROK_AUTHTOKEN")
	}
	if authtoken == "" {
		return nil, ErrNoAuthtoken
	}
	return &Ngrok{
		backend:   backend,
		authtoken: authtoken,
		domain:    domain,
		log:       log.Sub("tunnel"),
	}, nil
}

func (n *Ngrok) endpoint() ngrokconfig.Tunnel {
	var opts []ngrokconfig.HTTPEndpointOption
	if n.domain != "" {
		opts = append(opts, ngrokconfig.WithDomain(n.domain))
	}
	return ngrokconfig.HTTPEndpoint(opts...)
}

// URL connects to ngrok and returns the public URL. A second call returns
// the URL of the endpoint already open.
func (n *Ngrok) URL(ctx context.Context) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fwd != nil {
		return n.fwd.URL(), nil
	}

	fwd, err := ngrok.ListenAndForward(ctx, n.backend, n.endpoint(), ngrok.WithAuthtoken(n.authtoken))
	if err != nil {
		return "", fmt.Errorf("tunnel: ngrok connect: %w", err)
	}
	n.fwd = fwd
	n.log.Info().Str("url", fwd.URL()).Str("backend", n.backend.String()).Msg("ngrok endpoint online")

	go func() {
		<-ctx.Done()
		if err := fwd.Close(); err != nil {
			n.log.Debug().Err(err).Msg("closing ngrok endpoint")
		}
		n.mu.Lock()
		if n.fwd == fwd {
			n.fwd = nil
		}
		n.mu.Unlock()
	}()
	return fwd.URL(), nil
}

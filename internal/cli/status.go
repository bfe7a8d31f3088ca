package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/wadesk/internal/config"
	"github.com/soyeahso/wadesk/internal/gateway"
	"github.com/soyeahso/wadesk/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and the running server's session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "wadesk %s (commit %s)\n\n", version.Version, version.Commit)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}
			paths.FillLocations(&cfg)
			printSummary(out, cfg)

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s: %s\n", issue.Path, issue.Message)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			fmt.Fprintln(out)
			health, err := queryHealth(ctx, statusAddr(cfg.Server))
			if err != nil {
				fmt.Fprintf(out, "Server:   not reachable (%v)\n", err)
				return nil
			}
			printHealth(out, health)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "how long to wait for the running server")
	return cmd
}

func printSummary(w io.Writer, cfg config.Config) {
	if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
		fmt.Fprintf(w, "Config:   %s (not found, using defaults)\n", paths.Config)
	} else {
		fmt.Fprintf(w, "Config:   %s\n", paths.Config)
	}
	fmt.Fprintf(w, "Server:   port=%d bind=%s mode=%s\n", cfg.Server.Port, cfg.Server.Bind, cfg.Server.Mode)
	fmt.Fprintf(w, "Provider: kind=%s session=%s\n", cfg.Provider.Kind, cfg.Provider.SessionDB)
	fmt.Fprintf(w, "Journal:  %s\n", cfg.Provider.JournalDB)
	fmt.Fprintf(w, "Uploads:  %s (%s)\n", cfg.Media.UploadDir, cfg.Media.URLPrefix)
	fmt.Fprintf(w, "Bot:      %s\n", cfg.Bot.ConfigFile)
	tunnel := cfg.Tunnel.Kind
	if tunnel == "" {
		tunnel = "none"
	}
	fmt.Fprintf(w, "Tunnel:   %s\n", tunnel)
}

func printHealth(w io.Writer, h gateway.HealthResponse) {
	fmt.Fprintf(w, "Server:   %s (version %s, %d dashboard(s))\n", h.Status, h.Version, h.Clients)
	if h.Session == nil {
		fmt.Fprintln(w, "Session:  (no relay)")
		return
	}
	s := h.Session
	fmt.Fprintf(w, "Session:  status=%s authenticated=%v running=%v chats=%d\n",
		s.Status, s.Authenticated, s.Running, s.Chats)
	if s.TunnelURL != "" {
		fmt.Fprintf(w, "Tunnel:   %s\n", s.TunnelURL)
	}
}

// statusAddr is the host:port a local client reaches the server at.
func statusAddr(cfg config.ServerConfig) string {
	host := "127.0.0.1"
	if cfg.Bind == "custom" && cfg.CustomBindHost != "" && cfg.CustomBindHost != "0.0.0.0" {
		host = cfg.CustomBindHost
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// queryHealth calls the health RPC of the server at addr.
func queryHealth(ctx context.Context, addr string) (gateway.HealthResponse, error) {
	var health gateway.HealthResponse

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, "ws://"+addr+"/ws", nil)
	if err != nil {
		return health, err
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	id := uuid.NewString()
	if err := conn.WriteJSON(gateway.Frame{Type: gateway.FrameTypeRequest, ID: id, Method: "health"}); err != nil {
		return health, err
	}

	for {
		var f gateway.Frame
		if err := conn.ReadJSON(&f); err != nil {
			return health, err
		}
		if f.Type != gateway.FrameTypeResponse || f.ID != id {
			continue
		}
		if f.Error != nil {
			return health, fmt.Errorf("%s: %s", f.Error.Code, f.Error.Message)
		}
		err := json.Unmarshal(f.Payload, &health)
		return health, err
	}
}

package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/wadesk/internal/config"
)

// DefaultCommandTimeout bounds a command hook without an explicit timeout.
const DefaultCommandTimeout = 5 * time.Second

// configEvents maps the yaml hook keys to event names.
var configEvents = map[string]string{
	"messageReceived": EventMessageReceived,
	"messageSent":     EventMessageSent,
	"autoReplySent":   EventAutoReplySent,
	"configUpdated":   EventConfigUpdated,
	"sessionStatus":   EventSessionStatus,
	"gatewayStart":    EventGatewayStart,
	"gatewayStop":     EventGatewayStop,
}

// RegisterCommands registers a shell command handler for every configured
// hook entry and returns how many were registered.
func (m *Manager) RegisterCommands(cfg config.HooksConfig) int {
	n := 0
	for key, entries := range cfg.Entries() {
		event, ok := configEvents[key]
		if !ok {
			continue
		}
		for i, e := range entries {
			if strings.TrimSpace(e.Command) == "" {
				continue
			}
			m.On(event, fmt.Sprintf("command:%s[%d]", key, i), CommandHandler(e))
			n++
		}
	}
	return n
}

// CommandHandler runs entry.Command through the shell with the JSON payload
// on stdin.
func CommandHandler(entry config.HookEntry) Handler {
	timeout := DefaultCommandTimeout
	if entry.Timeout > 0 {
		timeout = time.Duration(entry.Timeout) * time.Millisecond
	}

	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding hook payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "sh", "-c", entry.Command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.Env = append(cmd.Environ(), "WADESK_HOOK_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook command %q: %w: %s", entry.Command, err, msg)
			}
			return fmt.Errorf("hook command %q: %w", entry.Command, err)
		}
		return nil
	}
}

package capture

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"

	"github.com/dualview-dev/dualview/internal/logger"
)

// portal drives the org.freedesktop.portal.ScreenCast permission flow:
// CreateSession, SelectSources, Start. Each step issues a request and waits
// for the matching Response signal; the caller's context bounds the wait.
type portal struct {
	conn *dbus.Conn
}

const (
	portalService   = "org.freedesktop.portal.Desktop"
	portalPath      = "/org/freedesktop/portal/desktop"
	screenCastIface = "org.freedesktop.portal.ScreenCast"
	requestIface    = "org.freedesktop.portal.Request"
)

const (
	sourceTypeMonitor  = 1 << 0
	cursorModeEmbedded = 1 << 1
)

func newPortal() (*portal, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &portal{conn: conn}, nil
}

func (p *portal) close() error {
	return p.conn.Close()
}

// requestScreenCast runs the full permission flow and returns the PipeWire
// node id of the granted stream.
func (p *portal) requestScreenCast(ctx context.Context) (uint32, error) {
	log := logger.WithComponent("portal")

	matchRule := fmt.Sprintf("type='signal',interface='%s',member='Response'", requestIface)
	if err := p.conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule).Err; err != nil {
		log.Warn().Err(err).Msg("Failed to add signal match rule")
	}

	sessionHandle, err := p.request(ctx, screenCastIface+".CreateSession", map[string]dbus.Variant{
		"handle_token":         dbus.MakeVariant(fmt.Sprintf("dualview%d", os.Getpid())),
		"session_handle_token": dbus.MakeVariant(fmt.Sprintf("session%d", os.Getpid())),
	})
	if err != nil {
		return 0, fmt.Errorf("CreateSession: %w", err)
	}
	session, err := sessionHandleFrom(sessionHandle)
	if err != nil {
		return 0, err
	}
	log.Debug().Str("session", string(session)).Msg("Portal session created")

	if _, err := p.request(ctx, screenCastIface+".SelectSources", map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(fmt.Sprintf("select%d", os.Getpid())),
		"types":        dbus.MakeVariant(uint32(sourceTypeMonitor)),
		"multiple":     dbus.MakeVariant(false),
		"cursor_mode":  dbus.MakeVariant(uint32(cursorModeEmbedded)),
	}, session); err != nil {
		return 0, fmt.Errorf("SelectSources: %w", err)
	}

	results, err := p.request(ctx, screenCastIface+".Start", map[string]dbus.Variant{
		"handle_token": dbus.MakeVariant(fmt.Sprintf("start%d", os.Getpid())),
	}, session, "")
	if err != nil {
		return 0, fmt.Errorf("Start: %w", err)
	}
	return nodeIDFrom(results)
}

// request calls method with options appended to extraArgs and waits for the
// Response signal on the returned request path.
func (p *portal) request(ctx context.Context, method string, options map[string]dbus.Variant, extraArgs ...interface{}) (map[string]dbus.Variant, error) {
	responseChan := make(chan *dbus.Signal, 10)
	p.conn.Signal(responseChan)
	defer p.conn.RemoveSignal(responseChan)

	args := append(extraArgs, options)
	var requestPath dbus.ObjectPath
	obj := p.conn.Object(portalService, portalPath)
	if err := obj.CallWithContext(ctx, method, 0, args...).Store(&requestPath); err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for portal response: %w", ctx.Err())
		case sig, open := <-responseChan:
			if !open {
				return nil, fmt.Errorf("session bus closed while waiting for response")
			}
			if sig.Path != requestPath || sig.Name != requestIface+".Response" {
				continue
			}
			if len(sig.Body) < 2 {
				return nil, fmt.Errorf("malformed portal response")
			}
			code, _ := sig.Body[0].(uint32)
			if code != 0 {
				return nil, fmt.Errorf("portal request denied (code %d)", code)
			}
			results, _ := sig.Body[1].(map[string]dbus.Variant)
			return results, nil
		}
	}
}

func sessionHandleFrom(results map[string]dbus.Variant) (dbus.ObjectPath, error) {
	v, ok := results["session_handle"]
	if !ok {
		return "", fmt.Errorf("no session handle in portal response")
	}
	switch h := v.Value().(type) {
	case dbus.ObjectPath:
		return h, nil
	case string:
		return dbus.ObjectPath(h), nil
	default:
		return "", fmt.Errorf("unexpected session_handle type %T", h)
	}
}

// nodeIDFrom extracts the first stream's node id from a Start response. The
// streams property is a(ua{sv}); godbus decodes it in more than one shape.
func nodeIDFrom(results map[string]dbus.Variant) (uint32, error) {
	streams, ok := results["streams"]
	if !ok {
		return 0, fmt.Errorf("no streams in portal response")
	}
	switch v := streams.Value().(type) {
	case [][]interface{}:
		if len(v) > 0 && len(v[0]) > 0 {
			if nodeID, ok := v[0][0].(uint32); ok {
				return nodeID, nil
			}
		}
	case []interface{}:
		if len(v) > 0 {
			if stream, ok := v[0].([]interface{}); ok && len(stream) > 0 {
				if nodeID, ok := stream[0].(uint32); ok {
					return nodeID, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("unrecognized streams format %T", streams.Value())
}

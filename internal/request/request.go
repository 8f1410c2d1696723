// Package request follows org.freedesktop.portal.Request objects returned by
// portal calls.
package request

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"

	"go2tv.app/screenrec/internal/apis"
)

var ErrUnexpectedResponse = errors.New("unexpected response from dbus")

const (
	interfaceName  = "org.freedesktop.portal.Request"
	responseMember = "Response"
	closeCallName  = interfaceName + ".Close"
	basePath       = apis.ObjectPath + "/request/"
)

type ResponseStatus = uint32

const (
	Success   ResponseStatus = 0
	Cancelled ResponseStatus = 1
	Ended     ResponseStatus = 2
)

// Path predicts the request object path the portal creates for token, so the
// response can be subscribed to before the call is made.
func Path(uniqueName, token string) dbus.ObjectPath {
	sender := strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
	return dbus.ObjectPath(basePath + sender + "/" + token)
}

func Close(ctx context.Context, conn *dbus.Conn, path dbus.ObjectPath) error {
	return apis.CallOnObject(ctx, conn, path, closeCallName)
}

// Pending is a subscription to a single request's Response signal.
type Pending struct {
	conn   *dbus.Conn
	path   dbus.ObjectPath
	signal <-chan *dbus.Signal
	stop   func()
}

func Subscribe(conn *dbus.Conn, path dbus.ObjectPath) (*Pending, error) {
	signal, stop, err := apis.ListenOnSignal(conn, path, interfaceName, responseMember)
	if err != nil {
		return nil, err
	}
	return &Pending{conn: conn, path: path, signal: signal, stop: stop}, nil
}

// Retarget follows a request path that differs from the predicted one, as
// returned by portals older than version 0.9.
func (p *Pending) Retarget(path dbus.ObjectPath) error {
	if path == p.path {
		return nil
	}
	signal, stop, err := apis.ListenOnSignal(p.conn, path, interfaceName, responseMember)
	if err != nil {
		return err
	}
	p.stop()
	p.path, p.signal, p.stop = path, signal, stop
	return nil
}

func (p *Pending) Close() { p.stop() }

// Wait blocks for the Response signal. When ctx ends first the request is
// closed on the portal side.
func (p *Pending) Wait(ctx context.Context) (ResponseStatus, map[string]dbus.Variant, error) {
	defer p.stop()
	for {
		select {
		case <-ctx.Done():
			_ = Close(context.WithoutCancel(ctx), p.conn, p.path)
			return Ended, nil, ctx.Err()
		case sig, ok := <-p.signal:
			if !ok {
				return Ended, nil, fmt.Errorf("%w: signal channel closed", ErrUnexpectedResponse)
			}
			if sig.Path != p.path || sig.Name != interfaceName+"."+responseMember {
				continue
			}
			return ParseResponse(sig)
		}
	}
}

func ParseResponse(sig *dbus.Signal) (ResponseStatus, map[string]dbus.Variant, error) {
	if sig == nil || len(sig.Body) != 2 {
		return Ended, nil, ErrUnexpectedResponse
	}
	status, ok := sig.Body[0].(ResponseStatus)
	if !ok {
		return Ended, nil, fmt.Errorf("%w: status has type %T", ErrUnexpectedResponse, sig.Body[0])
	}
	results, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return Ended, nil, fmt.Errorf("%w: results have type %T", ErrUnexpectedResponse, sig.Body[1])
	}
	return status, results, nil
}

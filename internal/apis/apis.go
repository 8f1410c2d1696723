// Package apis wraps calls against the xdg-desktop-portal object on a
// session bus connection.
package apis

import (
	"context"

	"github.com/godbus/dbus/v5"
)

const (
	ObjectName        = "org.freedesktop.portal.Desktop"
	ObjectPath        = "/org/freedesktop/portal/desktop"
	CallBaseName      = "org.freedesktop.portal"
	PropertiesGetName = "org.freedesktop.DBus.Properties.Get"
)

func Call(ctx context.Context, conn *dbus.Conn, callName string, args ...any) (any, error) {
	call, err := callOnObject(ctx, conn, ObjectPath, callName, args...)
	if err != nil {
		return nil, err
	}

	var result any
	err = call.Store(&result)
	return result, err
}

func CallOnObject(ctx context.Context, conn *dbus.Conn, path dbus.ObjectPath, callName string, args ...any) error {
	_, err := callOnObject(ctx, conn, path, callName, args...)
	return err
}

func callOnObject(ctx context.Context, conn *dbus.Conn, path dbus.ObjectPath, callName string, args ...any) (*dbus.Call, error) {
	obj := conn.Object(ObjectName, path)
	call := obj.CallWithContext(ctx, callName, 0, args...)
	return call, call.Err
}

// GetProperty reads a property of a portal interface and returns the value
// inside its variant.
func GetProperty(ctx context.Context, conn *dbus.Conn, interfaceName, property string) (any, error) {
	obj := conn.Object(ObjectName, ObjectPath)
	call := obj.CallWithContext(ctx, PropertiesGetName, 0, interfaceName, property)
	if call.Err != nil {
		return nil, call.Err
	}

	var value dbus.Variant
	if err := call.Store(&value); err != nil {
		return nil, err
	}
	return value.Value(), nil
}

// ListenOnSignal subscribes to one signal member emitted at path, or to every
// member of iface when signalName is empty. The returned stop function
// removes the match rule and unregisters the channel.
func ListenOnSignal(conn *dbus.Conn, path dbus.ObjectPath, iface, signalName string) (<-chan *dbus.Signal, func(), error) {
	if path == "" {
		path = ObjectPath
	}
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(path),
		dbus.WithMatchInterface(iface),
	}
	if signalName != "" {
		match = append(match, dbus.WithMatchMember(signalName))
	}
	if err := conn.AddMatchSignal(match...); err != nil {
		return nil, nil, err
	}

	signal := make(chan *dbus.Signal, 16)
	conn.Signal(signal)
	stop := func() {
		conn.RemoveSignal(signal)
		_ = conn.RemoveMatchSignal(match...)
	}
	return signal, stop, nil
}

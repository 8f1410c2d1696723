// Package convert builds dbus variants with explicit signatures.
package convert

import (
	"reflect"

	"github.com/godbus/dbus/v5"
)

var (
	boolSignature   = dbus.SignatureOfType(reflect.TypeOf(false))
	stringSignature = dbus.SignatureOfType(reflect.TypeOf(""))
	bytesSignature  = dbus.SignatureOfType(reflect.TypeOf([]byte(nil)))
	filterSignature = dbus.SignatureOfType(reflect.TypeOf([]Filter(nil)))
)

// FilterPattern is one (uint32, string) rule of a portal file filter. Kind 0
// is a glob, 1 a MIME type.
type FilterPattern struct {
	Kind    uint32
	Pattern string
}

// Filter is the a(sa(us)) entry portals use for file type filters.
type Filter struct {
	Name     string
	Patterns []FilterPattern
}

func FromBool(input bool) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, boolSignature)
}

func FromString(input string) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, stringSignature)
}

// FromPath encodes a filesystem path as a NUL-terminated byte array.
func FromPath(input string) dbus.Variant {
	b := append([]byte(input), 0)
	return dbus.MakeVariantWithSignature(b, bytesSignature)
}

func FromFilters(input []Filter) dbus.Variant {
	return dbus.MakeVariantWithSignature(input, filterSignature)
}

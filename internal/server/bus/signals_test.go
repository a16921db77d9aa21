package bus

import (
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestParseNameOwnerChangedVanished(t *testing.T) {
	sig := &dbus.Signal{
		Name: "org.freedesktop.DBus.NameOwnerChanged",
		Body: []interface{}{":1.42", ":1.42", ""},
	}

	name, vanished := parseNameOwnerChanged(sig)
	if !vanished || name != ":1.42" {
		t.Fatalf("got (%q, %v), want (\":1.42\", true)", name, vanished)
	}
}

func TestParseNameOwnerChangedArrival(t *testing.T) {
	sig := &dbus.Signal{
		Name: "org.freedesktop.DBus.NameOwnerChanged",
		Body: []interface{}{":1.42", "", ":1.42"},
	}

	_, vanished := parseNameOwnerChanged(sig)
	if vanished {
		t.Fatal("a name gaining an owner must not be reported as vanished")
	}
}

func TestParseNameOwnerChangedMalformed(t *testing.T) {
	sig := &dbus.Signal{
		Name: "org.freedesktop.DBus.NameOwnerChanged",
		Body: []interface{}{":1.42"},
	}

	if _, vanished := parseNameOwnerChanged(sig); vanished {
		t.Fatal("a malformed signal must not be reported as vanished")
	}
}

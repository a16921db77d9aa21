package bus

import "github.com/godbus/dbus/v5/introspect"

// introspectNode builds the introspection document for one
// publication's interface (spec §4.11). Both publications describe
// the same shape under their own interface name.
func introspectNode(iface string) *introspect.Node {
	return &introspect.Node{
		Name: "/",
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: propertiesInterface,
				Methods: []introspect.Method{
					{
						Name: "Get",
						Args: []introspect.Arg{
							{Name: "interface_name", Type: "s", Direction: "in"},
							{Name: "property_name", Type: "s", Direction: "in"},
							{Name: "value", Type: "v", Direction: "out"},
						},
					},
					{
						Name: "GetAll",
						Args: []introspect.Arg{
							{Name: "interface_name", Type: "s", Direction: "in"},
							{Name: "properties", Type: "a{sv}", Direction: "out"},
						},
					},
					{
						Name: "Set",
						Args: []introspect.Arg{
							{Name: "interface_name", Type: "s", Direction: "in"},
							{Name: "property_name", Type: "s", Direction: "in"},
							{Name: "value", Type: "v", Direction: "in"},
						},
					},
				},
				Signals: []introspect.Signal{
					{
						Name: "PropertiesChanged",
						Args: []introspect.Arg{
							{Name: "interface_name", Type: "s"},
							{Name: "changed_properties", Type: "a{sv}"},
							{Name: "invalidated_properties", Type: "as"},
						},
					},
				},
			},
			{
				Name: iface,
				Methods: []introspect.Method{
					{
						Name: "HoldProfile",
						Args: []introspect.Arg{
							{Name: "profile", Type: "s", Direction: "in"},
							{Name: "reason", Type: "s", Direction: "in"},
							{Name: "application_id", Type: "s", Direction: "in"},
							{Name: "cookie", Type: "u", Direction: "out"},
						},
					},
					{
						Name: "ReleaseProfile",
						Args: []introspect.Arg{
							{Name: "cookie", Type: "u", Direction: "in"},
						},
					},
				},
				Signals: []introspect.Signal{
					{
						Name: "ProfileReleased",
						Args: []introspect.Arg{
							{Name: "cookie", Type: "u"},
						},
					},
				},
				Properties: []introspect.Property{
					{Name: "ActiveProfile", Type: "s", Access: "readwrite"},
					{Name: "Profiles", Type: "aa{sv}", Access: "read"},
					{Name: "Actions", Type: "as", Access: "read"},
					{Name: "PerformanceDegraded", Type: "s", Access: "read"},
					{Name: "PerformanceInhibited", Type: "s", Access: "read"},
					{Name: "ActiveProfileHolds", Type: "aa{sv}", Access: "read"},
					{Name: "Version", Type: "s", Access: "read"},
				},
			},
		},
	}
}

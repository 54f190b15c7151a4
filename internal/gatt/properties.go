package gatt

import "strings"

// Properties is the GATT characteristic property bitmask.
type Properties uint8

const (
	PropBroadcast Properties = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
	PropSignedWrite
	PropExtended
)

var propNames = []struct {
	bit  Properties
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

func (p Properties) String() string {
	var names []string
	for _, pn := range propNames {
		if p&pn.bit != 0 {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// CanRead reports whether the characteristic supports reads.
func (p Properties) CanRead() bool { return p&PropRead != 0 }

// CanWrite reports whether the characteristic supports acknowledged writes.
func (p Properties) CanWrite() bool { return p&PropWrite != 0 }

// CanWriteWithoutResponse reports whether unacknowledged writes are supported.
func (p Properties) CanWriteWithoutResponse() bool { return p&PropWriteWithoutResponse != 0 }

// CanNotify reports whether the characteristic can deliver notifications or
// indications.
func (p Properties) CanNotify() bool { return p&(PropNotify|PropIndicate) != 0 }

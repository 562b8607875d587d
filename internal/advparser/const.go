package advparser

// Advertising data types handled by Parse.
// Refer to Supplement to Bluetooth Core Specification, Part A.
const (
	typeFlags          = 0x01
	typeSomeUUID16     = 0x02
	typeAllUUID16      = 0x03
	typeSomeUUID128    = 0x06
	typeAllUUID128     = 0x07
	typeShortName      = 0x08
	typeCompleteName   = 0x09
	typeTxPower        = 0x0A
	typeServiceData16  = 0x16
	typeServiceData128 = 0x21
	typeManufacturer   = 0xFF
)

// UnknownName is reported when an advertisement carries no local name.
const UnknownName = "Unknown"

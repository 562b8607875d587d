// Package advparser decodes raw BLE advertising payloads (a sequence of
// length-prefixed AD structures) into the fields the backend tracks.
package advparser

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Advertisement is the decoded content of one advertising payload.
type Advertisement struct {
	Name        string   `json:"name"`
	MfgID       *uint16  `json:"mfg_id,omitempty"`
	MfgDataHex  string   `json:"mfg_data_hex"`
	TxPower     *int8    `json:"tx_power,omitempty"`
	Flags       *uint8   `json:"flags,omitempty"`
	Services16  []string `json:"services_16"`
	Services128 []string `json:"services_128"`
}

// ServiceCount returns the number of 16-bit and 128-bit service UUIDs found.
func (a Advertisement) ServiceCount() (n16, n128 int) {
	return len(a.Services16), len(a.Services128)
}

// HasServices reports whether any service UUID was advertised.
func (a Advertisement) HasServices() bool {
	return len(a.Services16)+len(a.Services128) > 0
}

// Parse decodes payload. It never fails: a zero length byte terminates the
// walk, and an element whose declared length runs past the end of the buffer
// stops decoding with everything gathered before it left intact.
func Parse(payload []byte) Advertisement {
	adv := Advertisement{Name: UnknownName}
	haveComplete := false

	b := payload
	for len(b) > 0 {
		l := int(b[0])
		if l == 0 {
			break
		}
		if len(b) < 1+l {
			break // truncated element
		}
		typ, val := b[1], b[2:1+l]

		switch typ {
		case typeCompleteName:
			adv.Name = decodeName(val)
			haveComplete = true
		case typeShortName:
			if !haveComplete {
				adv.Name = decodeName(val)
			}
		case typeTxPower:
			if len(val) >= 1 {
				p := int8(val[0])
				adv.TxPower = &p
			}
		case typeFlags:
			if len(val) >= 1 {
				f := val[0]
				adv.Flags = &f
			}
		case typeManufacturer:
			if len(val) >= 2 {
				id := binary.LittleEndian.Uint16(val[0:2])
				adv.MfgID = &id
				adv.MfgDataHex = strings.ToUpper(hex.EncodeToString(val[2:]))
			}
		case typeSomeUUID16, typeAllUUID16:
			adv.Services16 = appendUUID16(adv.Services16, val)
		case typeSomeUUID128, typeAllUUID128:
			adv.Services128 = appendUUID128(adv.Services128, val)
		case typeServiceData16:
			if len(val) >= 2 {
				adv.Services16 = appendUUID16(adv.Services16, val[:2])
			}
		case typeServiceData128:
			if len(val) >= 16 {
				adv.Services128 = appendUUID128(adv.Services128, val[:16])
			}
		}

		b = b[1+l:]
	}

	return adv
}

// decodeName converts a name element to text, replacing invalid UTF-8.
func decodeName(b []byte) string {
	s := strings.ToValidUTF8(string(b), "�")
	return strings.TrimRight(s, "\x00")
}

// appendUUID16 renders each complete 2-byte little-endian UUID as 4 hex digits.
func appendUUID16(dst []string, b []byte) []string {
	for ; len(b) >= 2; b = b[2:] {
		dst = append(dst, fmt.Sprintf("%04X", binary.LittleEndian.Uint16(b)))
	}
	return dst
}

// appendUUID128 renders each complete 16-byte little-endian UUID in canonical form.
func appendUUID128(dst []string, b []byte) []string {
	for ; len(b) >= 16; b = b[16:] {
		var u uuid.UUID
		for i := 0; i < 16; i++ {
			u[i] = b[15-i]
		}
		dst = append(dst, strings.ToUpper(u.String()))
	}
	return dst
}

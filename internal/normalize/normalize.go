// Package normalize turns loosely typed station records into canonical events.
package normalize

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/EldarSaltoun/BLE-Security-System/internal/advparser"
	"github.com/EldarSaltoun/BLE-Security-System/internal/models"
)

// UnknownScanner is used when neither the record nor the batch names a station.
const UnknownScanner = "UNKNOWN"

var (
	// ErrNotObject is returned for records that are not JSON objects.
	ErrNotObject = errors.New("record is not an object")
	// ErrMissingAddress is returned for records that carry no device address.
	ErrMissingAddress = errors.New("record has no device address")
)

// Key aliases, lowercase. Earlier entries take precedence.
var (
	macKeys         = []string{"mac", "a", "addr", "address", "bdaddr"}
	macParentKeys   = []string{"device", "peer", "addr", "address"}
	nestedMACKeys   = []string{"mac", "address", "addr", "val"}
	rssiKeys        = []string{"rssi", "r"}
	channelKeys     = []string{"channel", "c", "ch"}
	scannerKeys     = []string{"scanner", "scanner_id", "scannerid", "station", "station_id"}
	epochKeys       = []string{"timestamp_epoch_us", "ts_epoch_us", "timestamp_esp_us", "ts", "timestamp"}
	monoKeys        = []string{"timestamp_mono_us", "ts_mono_us", "mono_us", "tm"}
	payloadKeys     = []string{"p", "payload", "adv", "raw"}
	nameKeys        = []string{"name", "local_name"}
	mfgIDKeys       = []string{"mfg_id", "mfgid", "company_id"}
	mfgDataKeys     = []string{"mfg_data", "mfg_data_hex", "mfgdata"}
	txPowerKeys     = []string{"txpwr", "tx_power", "txpower"}
	advLenKeys      = []string{"adv_len", "advlen"}
	services16Keys  = []string{"n_services_16"}
	services128Keys = []string{"n_services_128"}
	hasServicesKeys = []string{"has_services", "hasservices"}
	hashKeys        = []string{"packet_hash", "hash", "fingerprint"}
)

// record is a raw event with lowercased keys.
type record map[string]any

func lower(raw map[string]any) record {
	r := make(record, len(raw))
	for k, v := range raw {
		lk := strings.ToLower(k)
		if _, exists := r[lk]; exists && k != lk {
			continue // exact lowercase spelling wins
		}
		r[lk] = v
	}
	return r
}

func (r record) lookup(keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r record) str(keys []string) string {
	v, _ := r.lookup(keys)
	return toString(v)
}

// Normalize validates and coerces a raw event into a CanonicalEvent.
// Numeric fields default to 0 when missing or unparsable. When the record
// carries the raw advertising payload, decoded fields take precedence over
// declared ones.
func Normalize(raw map[string]any, scannerFallback string) (models.CanonicalEvent, error) {
	if raw == nil {
		return models.CanonicalEvent{}, ErrNotObject
	}
	r := lower(raw)

	ev := models.CanonicalEvent{
		MAC:     CanonicalMAC(r.address()),
		RSSI:    toInt(first(r, rssiKeys)),
		Channel: toInt(first(r, channelKeys)),
		Scanner: strings.TrimSpace(r.str(scannerKeys)),
	}
	if ev.MAC == "" {
		return models.CanonicalEvent{}, ErrMissingAddress
	}
	if ev.Scanner == "" {
		ev.Scanner = scannerFallback
	}
	if ev.Scanner == "" {
		ev.Scanner = UnknownScanner
	}

	ev.TsEpochUs = toUint64(first(r, epochKeys))
	if v, ok := r.lookup(monoKeys); ok {
		ev.TsMonoUs = toUint64(v)
	} else {
		ev.TsMonoUs = ev.TsEpochUs
	}

	payload, hasPayload := decodePayload(r.str(payloadKeys))
	if hasPayload {
		applyAdvertisement(&ev, payload)
		if ev.Name == advparser.UnknownName {
			if declared := strings.TrimSpace(r.str(nameKeys)); declared != "" {
				ev.Name = declared
			}
		}
	} else {
		applyDeclared(&ev, r)
	}

	if v, ok := r.lookup(hasServicesKeys); ok {
		ev.HasServices = toBool(v)
	} else {
		ev.HasServices = ev.NServices16+ev.NServices128 > 0
	}

	if h := strings.TrimSpace(r.str(hashKeys)); h != "" {
		ev.PacketHash = h
	} else {
		ev.PacketHash = mfgFingerprint(ev.MfgDataHex)
	}

	return ev, nil
}

func first(r record, keys []string) any {
	v, _ := r.lookup(keys)
	return v
}

// address finds the device address either flat or nested one level down.
func (r record) address() string {
	for _, k := range macKeys {
		if s, ok := r[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	for _, k := range macParentKeys {
		if sub, ok := r[k].(map[string]any); ok {
			if s := lower(sub).str(nestedMACKeys); s != "" {
				return s
			}
		}
	}
	return ""
}

func applyAdvertisement(ev *models.CanonicalEvent, payload []byte) {
	adv := advparser.Parse(payload)
	ev.Name = strings.TrimSpace(adv.Name)
	if adv.MfgID != nil {
		ev.MfgID = *adv.MfgID
	}
	ev.MfgDataHex = adv.MfgDataHex
	if adv.TxPower != nil {
		ev.TxPower = int(*adv.TxPower)
	}
	ev.AdvLen = len(payload)
	ev.NServices16, ev.NServices128 = adv.ServiceCount()
}

func applyDeclared(ev *models.CanonicalEvent, r record) {
	ev.Name = strings.TrimSpace(r.str(nameKeys))
	if ev.Name == "" {
		ev.Name = advparser.UnknownName
	}
	ev.MfgID = uint16(toInt64(first(r, mfgIDKeys)))
	ev.MfgDataHex = strings.ToUpper(strings.TrimSpace(r.str(mfgDataKeys)))
	ev.TxPower = toInt(first(r, txPowerKeys))
	ev.AdvLen = toInt(first(r, advLenKeys))
	ev.NServices16 = toInt(first(r, services16Keys))
	ev.NServices128 = toInt(first(r, services128Keys))
}

// decodePayload accepts the raw advertisement as hex or standard base64.
func decodePayload(s string) ([]byte, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if len(s)%2 == 0 && isHex(s) {
		if b, err := hex.DecodeString(s); err == nil {
			return b, true
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, true
	}
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, true
	}
	return nil, false
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// mfgFingerprint hashes the manufacturer-data bytes, whether decoded from the
// payload or declared by the station. Malformed hex yields no fingerprint.
func mfgFingerprint(mfgHex string) string {
	mfg, err := hex.DecodeString(mfgHex)
	if err != nil {
		return ""
	}
	return Fingerprint(mfg)
}

// Fingerprint is the CRC-32 (IEEE) of b as 8 uppercase hex digits, or "" for no bytes.
// Independent stations hashing the same bytes always agree.
func Fingerprint(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return fmt.Sprintf("%08X", crc32.ChecksumIEEE(b))
}

// CanonicalMAC uppercases an address, accepts '-' separators and inserts
// colons into a bare 12 digit form. Other shapes are returned uppercased.
func CanonicalMAC(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", ":")
	if len(s) == 12 && isHex(s) {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(s[i : i+2])
		}
		return b.String()
	}
	return s
}

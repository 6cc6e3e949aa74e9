package inventory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Sentinel values used in DeviceInfo in place of absent data.
const (
	// Unknown stands in for a missing name, manufacturer or model.
	Unknown = "Unknown"

	// NotFound stands in for a missing MAC, IP or configuration URL.
	NotFound = "Not found"
)

// Connection and identifier types recognised by the extractor.
const (
	ConnectionMAC = "mac"
	ConnectionIP  = "ip"
)

// Pair is a (type, value) tuple as used by the device registry for
// connections and identifiers, e.g. ("mac", "aa:bb:cc:dd:ee:ff").
//
// On the wire a Pair is a two-element JSON array.
type Pair struct {
	Type  string
	Value string
}

// UnmarshalJSON accepts ["type", "value"] and {"type": ..., "value": ...}.
// Non-string elements are kept in their JSON text form.
func (p *Pair) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Type  json.RawMessage `json:"type"`
			Value json.RawMessage `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("decoding pair object: %w", err)
		}
		p.Type = rawString(obj.Type)
		p.Value = rawString(obj.Value)
		return nil
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return fmt.Errorf("decoding pair: %w", err)
	}
	if len(elems) != 2 {
		return fmt.Errorf("decoding pair: want 2 elements, got %d", len(elems))
	}
	p.Type = rawString(elems[0])
	p.Value = rawString(elems[1])
	return nil
}

// MarshalJSON encodes the pair as a two-element array.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{p.Type, p.Value})
}

// String renders the pair for classification and diagnostics.
func (p Pair) String() string {
	return p.Type + "=" + p.Value
}

// DeviceRecord is one entry of the controller's device registry.
//
// Optional fields use the empty string for "absent"; the registry reports
// missing values as null, which decodes to "".
type DeviceRecord struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	NameByUser       string   `json:"name_by_user"`
	Manufacturer     string   `json:"manufacturer"`
	Model            string   `json:"model"`
	ConfigurationURL string   `json:"configuration_url"`
	Connections      []Pair   `json:"connections"`
	Identifiers      []Pair   `json:"identifiers"`
	ConfigEntries    []string `json:"config_entries"`

	// Extra holds any other registry attribute (area_id, sw_version, ...)
	// rendered as text. Strings are stored unquoted; other values keep their
	// JSON form.
	Extra map[string]string `json:"-"`
}

// knownDeviceFields lists the JSON keys decoded into named fields.
var knownDeviceFields = map[string]bool{
	"id":                true,
	"name":              true,
	"name_by_user":      true,
	"manufacturer":      true,
	"model":             true,
	"configuration_url": true,
	"connections":       true,
	"identifiers":       true,
	"config_entries":    true,
}

// UnmarshalJSON decodes the named fields and collects every other key into Extra.
func (d *DeviceRecord) UnmarshalJSON(data []byte) error {
	type plain DeviceRecord
	var rec plain
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for key, raw := range all {
		if knownDeviceFields[key] {
			continue
		}
		if rec.Extra == nil {
			rec.Extra = make(map[string]string)
		}
		rec.Extra[key] = rawString(raw)
	}

	*d = DeviceRecord(rec)
	return nil
}

// MarshalJSON writes the named fields and the Extra attributes at the same level.
func (d DeviceRecord) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(knownDeviceFields)+len(d.Extra))
	for k, v := range d.Extra {
		out[k] = v
	}
	out["id"] = d.ID
	out["name"] = d.Name
	out["name_by_user"] = nullable(d.NameByUser)
	out["manufacturer"] = nullable(d.Manufacturer)
	out["model"] = nullable(d.Model)
	out["configuration_url"] = nullable(d.ConfigurationURL)
	out["connections"] = nonNilPairs(d.Connections)
	out["identifiers"] = nonNilPairs(d.Identifiers)
	entries := d.ConfigEntries
	if entries == nil {
		entries = []string{}
	}
	out["config_entries"] = entries
	return json.Marshal(out)
}

// Field is one stringified attribute of a DeviceRecord.
type Field struct {
	Name  string
	Value string
}

// Fields returns every attribute of the record as text, in a fixed order:
// the named registry fields first, then Extra sorted by key. Classification
// iterates this list so that results never depend on map iteration order.
func (d DeviceRecord) Fields() []Field {
	fields := []Field{
		{Name: "id", Value: d.ID},
		{Name: "name", Value: d.Name},
		{Name: "name_by_user", Value: d.NameByUser},
		{Name: "manufacturer", Value: d.Manufacturer},
		{Name: "model", Value: d.Model},
		{Name: "configuration_url", Value: d.ConfigurationURL},
		{Name: "connections", Value: joinPairs(d.Connections)},
		{Name: "identifiers", Value: joinPairs(d.Identifiers)},
		{Name: "config_entries", Value: strings.Join(d.ConfigEntries, ", ")},
	}

	keys := make([]string, 0, len(d.Extra))
	for k := range d.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, Field{Name: k, Value: d.Extra[k]})
	}

	return fields
}

// EntityRecord is one entry of the controller's entity registry.
type EntityRecord struct {
	EntityID     string `json:"entity_id"`
	DeviceID     string `json:"device_id"`
	Platform     string `json:"platform"`
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
}

// Domain returns the entity domain ("light" for "light.kitchen").
func (e EntityRecord) Domain() string {
	domain, _, found := strings.Cut(e.EntityID, ".")
	if !found {
		return ""
	}
	return domain
}

// Snapshot is a point-in-time copy of the device and entity registries.
// It is treated as immutable once built.
type Snapshot struct {
	Devices   []DeviceRecord `json:"devices"`
	Entities  []EntityRecord `json:"entities,omitempty"`
	FetchedAt time.Time      `json:"fetched_at,omitempty"`
}

// EntitiesForDevice returns the entities attached to a device, in registry order.
func (s Snapshot) EntitiesForDevice(deviceID string) []EntityRecord {
	if deviceID == "" {
		return nil
	}
	var out []EntityRecord
	for _, e := range s.Entities {
		if e.DeviceID == deviceID {
			out = append(out, e)
		}
	}
	return out
}

// maxListedEntities caps the entity ids carried on a DeviceInfo.
const maxListedEntities = 3

// Info extracts the DeviceInfo for a record and attaches up to three of its
// light entity ids from the entity registry.
func (s Snapshot) Info(rec DeviceRecord) DeviceInfo {
	info := Extract(rec)
	for _, e := range s.EntitiesForDevice(rec.ID) {
		if e.Domain() != "light" {
			continue
		}
		info.Entities = append(info.Entities, e.EntityID)
		if len(info.Entities) == maxListedEntities {
			break
		}
	}
	return info
}

// DeviceInfo is the normalised view of a DeviceRecord.
//
// DisplayName, Manufacturer and Model are never empty (Unknown fallback);
// MAC, IP and ConfigURL are never empty (NotFound fallback).
type DeviceInfo struct {
	ID           string   `json:"id"`
	DisplayName  string   `json:"display_name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	MAC          string   `json:"mac"`
	IP           string   `json:"ip"`
	ConfigURL    string   `json:"config_url"`
	Entities     []string `json:"entities,omitempty"`
}

// HasIP reports whether an IP address was found for the device.
func (i DeviceInfo) HasIP() bool {
	return i.IP != NotFound
}

// HasMAC reports whether a MAC address was found for the device.
func (i DeviceInfo) HasMAC() bool {
	return i.MAC != NotFound
}

// rawString renders a raw JSON value as text: strings unquoted, null empty,
// everything else in compact JSON form.
func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func joinPairs(pairs []Pair) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.String()
	}
	return strings.Join(parts, ", ")
}

func nonNilPairs(pairs []Pair) []Pair {
	if pairs == nil {
		return []Pair{}
	}
	return pairs
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

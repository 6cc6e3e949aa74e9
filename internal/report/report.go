// Package report renders a device mapping for people and downstream tools.
//
// Format is pure: it turns a mapper.Mapping into plain text, CSV, Markdown
// and structured rows. Writing files, serving HTTP or posting notifications
// is left to the caller.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/matter-ipmap/internal/inventory"
	"github.com/nerrad567/matter-ipmap/internal/mapper"
)

// CSVHeader is the first line of the CSV artifact.
const CSVHeader = "Name,IP Address,MAC Address,Manufacturer,Model"

// Notification titles.
const (
	TitleComplete = "Matter IP Mapping Complete"
	TitleFailed   = "Matter IP Mapping Error"
)

// timestampLayout is used for the "Generated" line.
const timestampLayout = "2006-01-02 15:04:05"

var rule = strings.Repeat("=", 80)

// Row is one structured record per matched device.
//
// Name is the source (Matter) display name. Manufacturer, Model and the
// network fields describe the bridge device that carries the address.
type Row struct {
	Name         string   `json:"name"`
	BridgeName   string   `json:"bridge_name"`
	IP           string   `json:"ip"`
	MAC          string   `json:"mac"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	ConfigURL    string   `json:"config_url"`
	Score        float64  `json:"match_score"`
	Entities     []string `json:"entities,omitempty"`
}

// Notice is a one-shot user-facing message.
type Notice struct {
	Title   string
	Message string
}

// Report holds every rendering of one mapping.
type Report struct {
	GeneratedAt time.Time
	Text        string
	CSV         string
	Markdown    string
	Records     []Row
	Unmatched   []string
}

// Format renders the mapping. Records follow the mapping's order, which is
// ascending by source display name.
func Format(m mapper.Mapping, generatedAt time.Time) Report {
	rows := Records(m)

	unmatched := make([]string, len(m.Unmatched))
	for i, u := range m.Unmatched {
		unmatched[i] = u.DisplayName
	}

	csv := CSV(rows)
	return Report{
		GeneratedAt: generatedAt,
		Text:        text(rows, unmatched, csv, generatedAt),
		CSV:         csv,
		Markdown:    markdown(rows),
		Records:     rows,
		Unmatched:   unmatched,
	}
}

// Records converts the mapping into structured rows.
func Records(m mapper.Mapping) []Row {
	rows := make([]Row, 0, len(m.Matches))
	for _, r := range m.Matches {
		entities := r.Source.Entities
		if len(entities) == 0 {
			entities = r.Target.Entities
		}
		rows = append(rows, Row{
			Name:         r.Source.DisplayName,
			BridgeName:   r.Target.DisplayName,
			IP:           r.Target.IP,
			MAC:          r.Target.MAC,
			Manufacturer: r.Target.Manufacturer,
			Model:        r.Target.Model,
			ConfigURL:    r.Target.ConfigURL,
			Score:        r.Score,
			Entities:     entities,
		})
	}
	return rows
}

// WithIP returns the number of rows that carry an IP address.
func WithIP(rows []Row) int {
	n := 0
	for _, r := range rows {
		if r.IP != inventory.NotFound {
			n++
		}
	}
	return n
}

// CSV renders the header and one line per row. Name, manufacturer and model
// are always quoted with embedded quotes doubled. IP and MAC are bare unless
// they hold a comma, quote or line break, in which case they are quoted too.
func CSV(rows []Row) string {
	var b strings.Builder
	b.WriteString(CSVHeader)
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(quote(r.Name))
		b.WriteByte(',')
		b.WriteString(quoteIfNeeded(r.IP))
		b.WriteByte(',')
		b.WriteString(quoteIfNeeded(r.MAC))
		b.WriteByte(',')
		b.WriteString(quote(r.Manufacturer))
		b.WriteByte(',')
		b.WriteString(quote(r.Model))
		b.WriteByte('\n')
	}
	return b.String()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// quoteIfNeeded leaves well-formed addresses bare. Connection values are
// free text, so anything that would break the column layout is quoted.
func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, ",\"\r\n") {
		return quote(s)
	}
	return s
}

// jsonEntry is the per-device value of the JSON mapping file.
type jsonEntry struct {
	BridgeName string  `json:"bridge_name"`
	IP         string  `json:"ip"`
	MAC        string  `json:"mac"`
	ConfigURL  string  `json:"config_url"`
	MatchScore float64 `json:"match_score"`
}

// JSON renders the mapping as an object keyed by display name, keys in
// record order. When two sources share a display name the later one wins.
func (r Report) JSON() ([]byte, error) {
	rows := dedupe(r.Records)

	var buf bytes.Buffer
	buf.WriteString("{")
	for i, row := range rows {
		if i > 0 {
			buf.WriteString(",")
		}
		key, err := json.Marshal(row.Name)
		if err != nil {
			return nil, fmt.Errorf("encoding key %q: %w", row.Name, err)
		}
		val, err := json.MarshalIndent(jsonEntry{
			BridgeName: row.BridgeName,
			IP:         row.IP,
			MAC:        row.MAC,
			ConfigURL:  row.ConfigURL,
			MatchScore: row.Score,
		}, "  ", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding entry %q: %w", row.Name, err)
		}
		buf.WriteString("\n  ")
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
	}
	if len(rows) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// Duplicates returns display names that occur on more than one record.
func (r Report) Duplicates() []string {
	var dups []string
	for i := 1; i < len(r.Records); i++ {
		name := r.Records[i].Name
		if name == r.Records[i-1].Name && (len(dups) == 0 || dups[len(dups)-1] != name) {
			dups = append(dups, name)
		}
	}
	return dups
}

// dedupe keeps the last row of each run of equal names. Records are sorted
// by name so duplicates are adjacent.
func dedupe(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, row := range rows {
		if n := len(out); n > 0 && out[n-1].Name == row.Name {
			out[n-1] = row
			continue
		}
		out = append(out, row)
	}
	return out
}

// Summary returns the completion notice.
func (r Report) Summary() Notice {
	total := len(r.Records) + len(r.Unmatched)

	var b strings.Builder
	fmt.Fprintf(&b, "Device mapping complete!\n\n")
	fmt.Fprintf(&b, "Mapped %d of %d Matter devices (%d with IP addresses)\n", len(r.Records), total, WithIP(r.Records))
	if len(r.Unmatched) > 0 {
		fmt.Fprintf(&b, "\nNo confident match for:\n")
		for _, name := range r.Unmatched {
			fmt.Fprintf(&b, "- %s\n", name)
		}
	}
	fmt.Fprintf(&b, "\nGenerated: %s", r.GeneratedAt.Format(timestampLayout))

	return Notice{Title: TitleComplete, Message: b.String()}
}

// FailureSummary returns the notice sent when a run could not complete.
func FailureSummary(err error) Notice {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Notice{Title: TitleFailed, Message: msg}
}

func text(rows []Row, unmatched []string, csv string, generatedAt time.Time) string {
	var b strings.Builder

	b.WriteString(rule + "\n")
	b.WriteString("MATTER DEVICE TO IP ADDRESS MAPPING\n")
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt.Format(timestampLayout))
	b.WriteString(rule + "\n")

	if len(rows) == 0 {
		b.WriteString("\nNo matches found between Matter and Leviton devices.\n")
		b.WriteString("This could mean:\n")
		b.WriteString("  1. Device names don't match closely enough\n")
		b.WriteString("  2. Devices are not from the expected integrations\n")
		b.WriteString("  3. Leviton devices don't expose IP addresses in the expected way\n")
		writeUnmatched(&b, unmatched)
		return b.String()
	}

	for _, r := range rows {
		fmt.Fprintf(&b, "\n%s\n", r.Name)
		fmt.Fprintf(&b, "  Bridge Name:  %s\n", r.BridgeName)
		fmt.Fprintf(&b, "  IP Address:   %s\n", r.IP)
		fmt.Fprintf(&b, "  MAC Address:  %s\n", r.MAC)
		fmt.Fprintf(&b, "  Config URL:   %s\n", r.ConfigURL)
		fmt.Fprintf(&b, "  Match Score:  %s\n", Percent(r.Score))
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString("SUMMARY\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Matched devices:   %d\n", len(rows))
	fmt.Fprintf(&b, "Devices with IPs:  %d\n", WithIP(rows))
	fmt.Fprintf(&b, "Unmatched devices: %d\n", len(unmatched))
	writeUnmatched(&b, unmatched)

	b.WriteString("\n" + rule + "\n")
	b.WriteString("CSV FORMAT (for import to network management)\n")
	b.WriteString(rule + "\n")
	b.WriteString(csv)

	return b.String()
}

func writeUnmatched(b *strings.Builder, unmatched []string) {
	if len(unmatched) == 0 {
		return
	}
	b.WriteString("\nUnmatched Matter devices:\n")
	for _, name := range unmatched {
		fmt.Fprintf(b, "  - %s\n", name)
	}
}

// Percent formats a score as a percentage with two decimals.
func Percent(score float64) string {
	return fmt.Sprintf("%.2f%%", score*100)
}

func markdown(rows []Row) string {
	var b strings.Builder

	b.WriteString("# Matter/Leviton Switches Network Info\n\n")
	b.WriteString("| Device Name | Manufacturer | Model | MAC Address | IP Address | Entities |\n")
	b.WriteString("|------------|-------------|-------|-------------|------------|----------|\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s |\n",
			cell(r.Name), cell(r.Manufacturer), cell(r.Model),
			cell(r.MAC), cell(r.IP), cell(strings.Join(r.Entities, ", ")))
	}
	fmt.Fprintf(&b, "\n**Total Devices:** %d\n", len(rows))

	return b.String()
}

// cell escapes a Markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

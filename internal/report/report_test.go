package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/matter-ipmap/internal/inventory"
	"github.com/nerrad567/matter-ipmap/internal/mapper"
)

var generated = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func match(source, target, ip, mac string, score float64) mapper.MatchResult {
	return mapper.MatchResult{
		Source: inventory.DeviceInfo{
			DisplayName:  source,
			Manufacturer: inventory.Unknown,
			Model:        inventory.Unknown,
			MAC:          inventory.NotFound,
			IP:           inventory.NotFound,
			ConfigURL:    inventory.NotFound,
		},
		Target: inventory.DeviceInfo{
			DisplayName:  target,
			Manufacturer: "Leviton",
			Model:        "D26HD",
			MAC:          mac,
			IP:           ip,
			ConfigURL:    "http://" + ip,
		},
		Score: score,
	}
}

func TestCSV_QuotingRoundTrip(t *testing.T) {
	m := mapper.Mapping{Matches: []mapper.MatchResult{
		match("Hall, Light", "Hall Light", "192.168.1.9", "aa:bb:cc:dd:ee:ff", 0.95),
		match(`Den "Main"`, "Den Main", "192.168.1.10", inventory.NotFound, 0.8),
	}}

	out := Format(m, generated).CSV

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if lines[0] != CSVHeader {
		t.Errorf("header = %q", lines[0])
	}
	wantFirst := `"Hall, Light",192.168.1.9,aa:bb:cc:dd:ee:ff,"Leviton","D26HD"`
	if lines[1] != wantFirst {
		t.Errorf("row = %q, want %q", lines[1], wantFirst)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("csv.ReadAll() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	want := [][]string{
		{"Name", "IP Address", "MAC Address", "Manufacturer", "Model"},
		{"Hall, Light", "192.168.1.9", "aa:bb:cc:dd:ee:ff", "Leviton", "D26HD"},
		{`Den "Main"`, "192.168.1.10", "Not found", "Leviton", "D26HD"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records = %q, want %q", records, want)
	}
}

func TestCSV_MalformedAddressesKeepColumns(t *testing.T) {
	rows := []Row{{
		Name:         "Porch",
		IP:           `10.0.0.1,10.0.0.2`,
		MAC:          `aa:bb "cc"`,
		Manufacturer: "Leviton",
		Model:        "D26HD",
	}}

	out := CSV(rows)

	wantLine := `"Porch","10.0.0.1,10.0.0.2","aa:bb ""cc""","Leviton","D26HD"`
	if line := strings.Split(out, "\n")[1]; line != wantLine {
		t.Errorf("row = %q, want %q", line, wantLine)
	}

	records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("csv.ReadAll() error = %v", err)
	}
	want := []string{"Porch", "10.0.0.1,10.0.0.2", `aa:bb "cc"`, "Leviton", "D26HD"}
	if len(records) != 2 || !reflect.DeepEqual(records[1], want) {
		t.Errorf("records = %q, want row %q", records, want)
	}
}

func TestFormat_Text(t *testing.T) {
	m := mapper.Mapping{
		Matches: []mapper.MatchResult{
			match("Living Room Light", "Living Room Light", "192.168.1.20", "aa:bb:cc:00:00:01", 1.0),
		},
		Unmatched: []inventory.DeviceInfo{{DisplayName: "Garage Opener"}},
	}

	out := Format(m, generated).Text

	for _, want := range []string{
		"MATTER DEVICE TO IP ADDRESS MAPPING",
		"Generated: 2026-03-14 09:30:00",
		"\nLiving Room Light\n",
		"  IP Address:   192.168.1.20\n",
		"  MAC Address:  aa:bb:cc:00:00:01\n",
		"  Match Score:  100.00%\n",
		"Matched devices:   1\n",
		"  - Garage Opener\n",
		CSVHeader,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("text missing %q\n%s", want, out)
		}
	}
}

func TestFormat_Empty(t *testing.T) {
	r := Format(mapper.Mapping{}, generated)

	if !strings.Contains(r.Text, "No matches found") {
		t.Errorf("text = %q", r.Text)
	}
	if r.CSV != CSVHeader+"\n" {
		t.Errorf("CSV = %q", r.CSV)
	}
	if len(r.Records) != 0 {
		t.Errorf("Records = %+v", r.Records)
	}

	data, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	if string(data) != "{}\n" {
		t.Errorf("JSON() = %q", data)
	}
}

func TestRecords_UseBridgeFields(t *testing.T) {
	m := mapper.Mapping{Matches: []mapper.MatchResult{
		match("Porch", "Front Porch", "10.0.0.4", "aa", 0.7),
	}}

	rows := Format(m, generated).Records

	want := Row{
		Name:         "Porch",
		BridgeName:   "Front Porch",
		IP:           "10.0.0.4",
		MAC:          "aa",
		Manufacturer: "Leviton",
		Model:        "D26HD",
		ConfigURL:    "http://10.0.0.4",
		Score:        0.7,
	}
	if len(rows) != 1 || !reflect.DeepEqual(rows[0], want) {
		t.Errorf("Records = %+v, want %+v", rows, want)
	}
}

func TestJSON_KeyedByName(t *testing.T) {
	m := mapper.Mapping{Matches: []mapper.MatchResult{
		match("Attic", "Attic Fan", "10.0.0.1", "aa", 0.9),
		match("Porch", "Porch Light", "10.0.0.2", "bb", 0.8),
	}}

	data, err := Format(m, generated).JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}

	var decoded map[string]map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, data)
	}
	if decoded["Porch"]["ip"] != "10.0.0.2" || decoded["Porch"]["bridge_name"] != "Porch Light" {
		t.Errorf("Porch = %+v", decoded["Porch"])
	}
	if decoded["Attic"]["match_score"] != 0.9 {
		t.Errorf("Attic score = %v", decoded["Attic"]["match_score"])
	}
	if strings.Index(string(data), `"Attic"`) > strings.Index(string(data), `"Porch"`) {
		t.Errorf("keys out of order:\n%s", data)
	}
}

func TestJSON_DuplicateNameLaterWins(t *testing.T) {
	m := mapper.Mapping{Matches: []mapper.MatchResult{
		match("Lamp", "Lamp A", "10.0.0.1", "aa", 0.9),
		match("Lamp", "Lamp B", "10.0.0.2", "bb", 0.8),
	}}
	r := Format(m, generated)

	if dups := r.Duplicates(); !reflect.DeepEqual(dups, []string{"Lamp"}) {
		t.Errorf("Duplicates() = %v", dups)
	}

	data, err := r.JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	var decoded map[string]map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(decoded) != 1 || decoded["Lamp"]["ip"] != "10.0.0.2" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestMarkdown(t *testing.T) {
	res := match("Hall | Stairs", "Hall Stairs", "10.0.0.7", "cc", 0.75)
	res.Source.Entities = []string{"light.hall", "light.stairs"}

	md := Format(mapper.Mapping{Matches: []mapper.MatchResult{res}}, generated).Markdown

	want := `| Hall \| Stairs | Leviton | D26HD | cc | 10.0.0.7 | light.hall, light.stairs |`
	if !strings.Contains(md, want) {
		t.Errorf("markdown missing %q\n%s", want, md)
	}
	if !strings.Contains(md, "**Total Devices:** 1") {
		t.Errorf("markdown missing total\n%s", md)
	}
}

func TestSummary(t *testing.T) {
	m := mapper.Mapping{
		Matches: []mapper.MatchResult{
			match("A", "A", "10.0.0.1", "aa", 1),
			match("B", "B", inventory.NotFound, "bb", 1),
		},
		Unmatched: []inventory.DeviceInfo{{DisplayName: "C"}},
	}

	n := Format(m, generated).Summary()

	if n.Title != TitleComplete {
		t.Errorf("Title = %q", n.Title)
	}
	if !strings.Contains(n.Message, "Mapped 2 of 3 Matter devices (1 with IP addresses)") {
		t.Errorf("Message = %q", n.Message)
	}
	if !strings.Contains(n.Message, "- C\n") {
		t.Errorf("Message missing unmatched device: %q", n.Message)
	}
}

func TestFailureSummary(t *testing.T) {
	err := errors.New("inventory: unavailable: dial tcp: connection refused")

	n := FailureSummary(err)

	if n.Title != TitleFailed || n.Message != err.Error() {
		t.Errorf("FailureSummary() = %+v", n)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{score: 1, want: "100.00%"},
		{score: 26.0 / 27.0, want: "96.30%"},
		{score: 0.6123, want: "61.23%"},
	}

	for _, tt := range tests {
		if got := Percent(tt.score); got != tt.want {
			t.Errorf("Percent(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

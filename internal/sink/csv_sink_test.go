package sink

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fmsync/fmsync/internal/endpoint"
)

func TestEncodeCSV(t *testing.T) {
	columns := []string{"Id", "Name", "Note"}
	records := []endpoint.Record{
		{"Id": "1", "Name": "a", "Note": "x,y"},
		{"Id": "2", "Name": "b"}, // missing column becomes empty cell
	}

	data, err := EncodeCSV(columns, records)
	if err != nil {
		t.Fatalf("EncodeCSV: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][0] != "Id" || rows[0][2] != "Note" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][2] != "x,y" {
		t.Errorf("quoted cell = %q", rows[1][2])
	}
	if rows[2][2] != "" {
		t.Errorf("missing column = %q, want empty", rows[2][2])
	}
}

func TestCSVSinkWritesTableAndManifest(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCSVSink(dir)
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	defer s.Close()

	spec := TableSpec{
		Name:              "Orders",
		Columns:           []string{"hsh_Id", "Name"},
		Mode:              Upsert,
		PrimaryKey:        []string{"hsh_Id"},
		IncrementalFields: []string{"hsh_Timestamp_Modified"},
	}
	records := []endpoint.Record{{"hsh_Id": "1", "Name": "a"}}

	if err := s.WriteTable(context.Background(), spec, records); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "Orders.csv"))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if !strings.HasPrefix(string(raw), "hsh_Id,Name") {
		t.Errorf("csv header = %q", strings.SplitN(string(raw), "\n", 2)[0])
	}

	doc, err := os.ReadFile(filepath.Join(dir, "Orders.csv.manifest"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m manifest
	if err := json.Unmarshal(doc, &m); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if !m.Incremental {
		t.Error("manifest not marked incremental for upsert mode")
	}
	if len(m.PrimaryKey) != 1 || m.PrimaryKey[0] != "hsh_Id" {
		t.Errorf("manifest pkey = %v", m.PrimaryKey)
	}
}

func TestCSVSinkOverwriteManifestNotIncremental(t *testing.T) {
	dir := t.TempDir()
	s, err := NewCSVSink(dir)
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}

	spec := TableSpec{Name: "layouts", Columns: []string{"database_name", "layout_name"}, Mode: Overwrite}
	if err := s.WriteTable(context.Background(), spec, nil); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}

	doc, err := os.ReadFile(filepath.Join(dir, "layouts.csv.manifest"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m manifest
	if err := json.Unmarshal(doc, &m); err != nil {
		t.Fatal(err)
	}
	if m.Incremental {
		t.Error("overwrite table marked incremental")
	}
}

func TestMemorySinkRecordsSpecAndRows(t *testing.T) {
	s := NewMemorySink()
	spec := TableSpec{Name: "t", Columns: []string{"Id"}, Mode: Overwrite}
	if err := s.WriteTable(context.Background(), spec, []endpoint.Record{{"Id": "1"}}); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	if s.Specs["t"].Mode != Overwrite {
		t.Errorf("spec = %+v", s.Specs["t"])
	}
	if len(s.Tables["t"]) != 1 || s.Tables["t"][0]["Id"] != "1" {
		t.Errorf("rows = %v", s.Tables["t"])
	}
}

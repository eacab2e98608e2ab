package filemaker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
)

func testConfig() *Config {
	return &Config{
		BaseURL:  "https://fms.test",
		Username: "api",
		Password: "secret",
	}
}

// fakeServer emulates the Data API: sessions, database and layout listings,
// layout metadata, finds and record listings with 1-based offsets.
type fakeServer struct {
	mu sync.Mutex

	databases map[string][]string // database -> layouts
	fields    []fieldMeta
	records   []RawRecord // records of every layout

	// match decides which records a find payload selects, nil selects all
	match func(payload FindQuery, rec RawRecord) bool

	// failAt returns an override response for the nth find call, 0 disables
	findCalls int
	failAt    int
	failWith  *nethttp.Response

	logins  int
	logouts int
	offsets []int
}

func (s *fakeServer) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := req.URL.Path
	switch {
	case strings.HasSuffix(path, "/sessions") && req.Method == "POST":
		s.logins++
		return jsonResponse(200, `{"response":{"token":"tok-`+strconv.Itoa(s.logins)+`"},"messages":[{"code":"0","message":"OK"}]}`), nil

	case strings.Contains(path, "/sessions/") && req.Method == "DELETE":
		s.logouts++
		return jsonResponse(200, `{"response":{},"messages":[{"code":"0","message":"OK"}]}`), nil

	case strings.HasSuffix(path, "/databases"):
		names := make([]string, 0, len(s.databases))
		for name := range s.databases {
			names = append(names, name)
		}
		body := map[string]any{
			"response": map[string]any{"databases": toNameObjects(names)},
			"messages": []map[string]string{{"code": "0", "message": "OK"}},
		}
		return jsonResponseObj(200, body), nil

	case strings.HasSuffix(path, "/layouts"):
		db := pathSegment(path, "databases")
		layouts := make([]map[string]any, 0)
		for _, l := range s.databases[db] {
			layouts = append(layouts, map[string]any{"name": l})
		}
		body := map[string]any{
			"response": map[string]any{"layouts": layouts},
			"messages": []map[string]string{{"code": "0", "message": "OK"}},
		}
		return jsonResponseObj(200, body), nil

	case strings.HasSuffix(path, "/_find"):
		s.findCalls++
		if s.failAt > 0 && s.findCalls == s.failAt {
			return s.failWith, nil
		}
		defer req.Body.Close()
		raw, _ := io.ReadAll(req.Body)
		var find struct {
			Query  []FindQuery `json:"query"`
			Offset int         `json:"offset"`
			Limit  int         `json:"limit"`
		}
		if err := json.Unmarshal(raw, &find); err != nil {
			return jsonResponse(400, `{"messages":[{"code":"960","message":"bad request"}],"response":{}}`), nil
		}
		s.offsets = append(s.offsets, find.Offset)

		var matched []RawRecord
		for _, rec := range s.records {
			if s.match == nil || len(find.Query) == 0 || s.match(find.Query[0], rec) {
				matched = append(matched, rec)
			}
		}
		page := slicePage(matched, find.Offset, find.Limit)
		if len(matched) > 0 && len(page) == 0 || len(matched) == 0 {
			return jsonResponse(500, `{"messages":[{"code":"401","message":"No records match the request"}],"response":{}}`), nil
		}
		return jsonResponseObj(200, pageBody(page, len(matched))), nil

	case strings.HasSuffix(path, "/records"):
		offset, _ := strconv.Atoi(req.URL.Query().Get("_offset"))
		limit, _ := strconv.Atoi(req.URL.Query().Get("_limit"))
		s.offsets = append(s.offsets, offset)
		page := slicePage(s.records, offset, limit)
		if len(s.records) == 0 {
			return jsonResponse(500, `{"messages":[{"code":"401","message":"No records match the request"}],"response":{}}`), nil
		}
		return jsonResponseObj(200, pageBody(page, len(s.records))), nil

	case strings.Contains(path, "/layouts/"):
		body := map[string]any{
			"response": map[string]any{"fieldMetaData": s.fields},
			"messages": []map[string]string{{"code": "0", "message": "OK"}},
		}
		return jsonResponseObj(200, body), nil
	}
	return jsonResponse(404, `{"messages":[{"code":"100","message":"not found"}],"response":{}}`), nil
}

func toNameObjects(names []string) []map[string]any {
	out := make([]map[string]any, 0, len(names))
	for _, n := range names {
		out = append(out, map[string]any{"name": n})
	}
	return out
}

func pathSegment(path, after string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if p == after && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func slicePage(records []RawRecord, offset, limit int) []RawRecord {
	start := offset - 1 // 1-based offsets
	if start < 0 || start >= len(records) {
		return nil
	}
	end := start + limit
	if end > len(records) {
		end = len(records)
	}
	return records[start:end]
}

func pageBody(page []RawRecord, found int) map[string]any {
	return map[string]any{
		"response": map[string]any{
			"data": page,
			"dataInfo": map[string]any{
				"table":         "base_table",
				"foundCount":    found,
				"returnedCount": len(page),
			},
		},
		"messages": []map[string]string{{"code": "0", "message": "OK"}},
	}
}

func jsonResponse(status int, body string) *nethttp.Response {
	return &nethttp.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		Header:     nethttp.Header{"Content-Type": []string{"application/json"}},
	}
}

func jsonResponseObj(status int, body map[string]any) *nethttp.Response {
	data, _ := json.Marshal(body)
	return jsonResponse(status, string(data))
}

func makeRecords(n int) []RawRecord {
	records := make([]RawRecord, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, RawRecord{
			RecordID:  strconv.Itoa(i),
			ModID:     "0",
			FieldData: map[string]any{"Id": strconv.Itoa(i), "Name": fmt.Sprintf("row %d", i)},
		})
	}
	return records
}

func TestLoginStoresSessionAndLogoutReleasesIt(t *testing.T) {
	server := &fakeServer{databases: map[string][]string{"Sales": {"Orders"}}}
	client, err := NewClientWithTransport(testConfig(), server)
	if err != nil {
		t.Fatalf("NewClientWithTransport: %v", err)
	}
	ctx := context.Background()

	if err := client.Login(ctx, "Sales"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if server.logins != 1 {
		t.Errorf("logins = %d, want 1", server.logins)
	}
	if err := client.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if server.logouts != 1 {
		t.Errorf("logouts = %d, want 1", server.logouts)
	}
}

func TestSessionIsReusedAcrossCalls(t *testing.T) {
	server := &fakeServer{
		databases: map[string][]string{"Sales": {"Orders"}},
		records:   makeRecords(3),
	}
	client, err := NewClientWithTransport(testConfig(), server)
	if err != nil {
		t.Fatalf("NewClientWithTransport: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.FindPage(ctx, "Sales", "Orders", FindQuery{"Id": "1"}, 1, 10); err != nil {
			t.Fatalf("FindPage: %v", err)
		}
	}
	if server.logins != 1 {
		t.Errorf("logins = %d, want 1 session reused across calls", server.logins)
	}
}

func TestListDatabases(t *testing.T) {
	server := &fakeServer{databases: map[string][]string{"Sales": nil, "HR": nil}}
	client, _ := NewClientWithTransport(testConfig(), server)

	names, err := client.ListDatabases(context.Background())
	if err != nil {
		t.Fatalf("ListDatabases: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("databases = %v, want 2 entries", names)
	}
}

func TestFlattenLayoutsRecursesFolders(t *testing.T) {
	entries := []layoutEntry{
		{Name: "Top"},
		{IsFolder: true, Name: "Folder", FolderLayoutNames: []layoutEntry{
			{Name: "Nested"},
			{IsFolder: true, FolderLayoutNames: []layoutEntry{{Name: "Deep"}}},
		}},
	}
	got := flattenLayouts(entries)
	want := []string{"Top", "Nested", "Deep"}
	if len(got) != len(want) {
		t.Fatalf("layouts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("layouts[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLayoutSchema(t *testing.T) {
	server := &fakeServer{
		databases: map[string][]string{"Sales": {"Orders"}},
		fields: []fieldMeta{
			{Name: "Id", Type: "normal", Result: "number", MaxCharacters: 10},
			{Name: "Tags", Type: "normal", Result: "text", Repetitions: 3},
		},
	}
	client, _ := NewClientWithTransport(testConfig(), server)

	fields, err := client.LayoutSchema(context.Background(), "Sales", "Orders")
	if err != nil {
		t.Fatalf("LayoutSchema: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("fields = %d, want 2", len(fields))
	}
	if fields[0].Name != "Id" || fields[0].Result != "number" || fields[0].Position != 1 {
		t.Errorf("field 0 = %+v", fields[0])
	}
	if fields[1].Repetitions != 3 {
		t.Errorf("field 1 repetitions = %d, want 3", fields[1].Repetitions)
	}
}

func TestFindPageNoRecordsMatchIsEmptyNotError(t *testing.T) {
	// The Data API reports an empty find with HTTP 500 and message code 401.
	server := &fakeServer{databases: map[string][]string{"Sales": {"Orders"}}}
	client, _ := NewClientWithTransport(testConfig(), server)

	page, err := client.FindPage(context.Background(), "Sales", "Orders", FindQuery{"Id": "999"}, 1, 10)
	if err != nil {
		t.Fatalf("FindPage: %v", err)
	}
	if len(page.Records) != 0 {
		t.Errorf("records = %d, want 0", len(page.Records))
	}
}

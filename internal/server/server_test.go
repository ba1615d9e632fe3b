package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/FocuswithJustin/delimcodec/core/layout"
	"github.com/FocuswithJustin/delimcodec/internal/journal"
)

const testLayout = `
field amount {
  terminator ";"
  justify right pad "0" minLength 5
  nil "NIL"
  type int
}
field name {
  separator ","
  escape character "\\"
  charset "US-ASCII"
}
`

func newTestServer(t *testing.T, cfg Config, j *journal.Journal) (*Server, *httptest.Server) {
	t.Helper()
	specs, err := layout.Parse(testLayout)
	if err != nil {
		t.Fatal(err)
	}
	fields, err := layout.CompileAll(specs, nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := New(cfg, fields, j)
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func postUnparse(t *testing.T, url, body string) (int, Response) {
	t.Helper()
	res, err := http.Post(url+"/unparse", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var resp Response
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return res.StatusCode, resp
}

func TestUnparseEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Config{}, nil)

	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantEncoded string
		wantKind    string
	}{
		{"number", `{"field":"amount","value":42}`, http.StatusOK, "00042", ""},
		{"numeric text", `{"field":"amount","value":"7"}`, http.StatusOK, "00007", ""},
		{"nil", `{"field":"amount","nil":true}`, http.StatusOK, "00NIL", ""},
		{"escaped", `{"field":"name","value":"a,b"}`, http.StatusOK, `a\,b`, ""},
		{"short sink", `{"field":"amount","value":12,"capacity":3}`, http.StatusUnprocessableEntity, "000", "InsufficientSpace"},
		{"not a number", `{"field":"amount","value":"x"}`, http.StatusUnprocessableEntity, "", "MalformedValue"},
		{"unrepresentable", `{"field":"name","value":"café"}`, http.StatusUnprocessableEntity, "", "UnrepresentableContent"},
		{"unknown field", `{"field":"nope","value":"x"}`, http.StatusNotFound, "", "NotFound"},
		{"missing value", `{"field":"name"}`, http.StatusBadRequest, "", "InvalidInput"},
		{"nil on non-nillable", `{"field":"name","nil":true}`, http.StatusBadRequest, "", "InvalidInput"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := postUnparse(t, ts.URL, tt.body)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%+v)", status, tt.wantStatus, resp)
			}
			if resp.Encoded != tt.wantEncoded {
				t.Errorf("Encoded = %q, want %q", resp.Encoded, tt.wantEncoded)
			}
			gotKind := ""
			if resp.Error != nil {
				gotKind = resp.Error.Kind
			}
			if gotKind != tt.wantKind {
				t.Errorf("error kind = %q, want %q", gotKind, tt.wantKind)
			}
		})
	}

	t.Run("short sink details", func(t *testing.T) {
		_, resp := postUnparse(t, ts.URL, `{"id":"r1","field":"amount","value":12,"capacity":3}`)
		if resp.ID != "r1" || resp.Error == nil || resp.Error.Expected == nil || *resp.Error.Expected != 5 || *resp.Error.Actual != 3 {
			t.Errorf("response = %+v", resp)
		}
		if resp.Hex != "303030" || resp.Bits != 24 || resp.Chars != 3 {
			t.Errorf("partial output = %q, %d bits, %d chars", resp.Hex, resp.Bits, resp.Chars)
		}
	})

	t.Run("unrepresentable details", func(t *testing.T) {
		_, resp := postUnparse(t, ts.URL, `{"field":"name","value":"café"}`)
		if resp.Error == nil || resp.Error.Stage != "escape" || resp.Error.Char != "é" {
			t.Errorf("response = %+v", resp.Error)
		}
	})
}

func TestUnparseEndpointRejects(t *testing.T) {
	_, ts := newTestServer(t, Config{MaxMessageSize: 64}, nil)

	res, err := http.Post(ts.URL+"/unparse", "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d", res.StatusCode)
	}

	big := `{"field":"name","value":"` + strings.Repeat("x", 100) + `"}`
	res, err = http.Post(ts.URL+"/unparse", "application/json", strings.NewReader(big))
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("oversized body status = %d", res.StatusCode)
	}

	res, err = http.Get(ts.URL + "/unparse")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /unparse status = %d", res.StatusCode)
	}
}

func TestMaxCapacityClamps(t *testing.T) {
	s, _ := newTestServer(t, Config{MaxCapacity: 2}, nil)
	resp := s.Unparse(context.Background(), Request{Field: "name", Value: json.RawMessage(`"abc"`), Capacity: 10})
	if resp.Error == nil || resp.Error.Kind != "InsufficientSpace" || resp.Encoded != "ab" {
		t.Errorf("response = %+v", resp)
	}
}

func TestFieldsAndHealth(t *testing.T) {
	_, ts := newTestServer(t, Config{}, nil)

	res, err := http.Get(ts.URL + "/fields")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var body struct {
		Success bool        `json:"success"`
		Data    []FieldInfo `json:"data"`
		Meta    apiMeta     `json:"meta"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Success || len(body.Data) != 2 || body.Meta.Total != 2 {
		t.Fatalf("fields = %+v", body)
	}
	if body.Data[0].Name != "amount" || body.Data[0].Type != "int" || body.Data[1].Charset != "US-ASCII" {
		t.Errorf("fields = %+v", body.Data)
	}
	if res.Header.Get("X-Content-Type-Options") != "nosniff" || res.Header.Get("X-Request-ID") == "" {
		t.Errorf("missing middleware headers: %v", res.Header)
	}

	res2, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", res2.StatusCode)
	}
}

func dial(t *testing.T, ts *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
}

func TestWebSocketFrames(t *testing.T) {
	_, ts := newTestServer(t, Config{}, nil)
	conn, _, err := dial(t, ts, "")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	frames := []string{
		`{"id":"1","field":"amount","value":42}`,
		`{"id":"2","field":"amount","nil":true}`,
		`not json`,
		`{"id":"4","field":"name","value":"x,y"}`,
	}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
			t.Fatal(err)
		}
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got []Response
	for range frames {
		var resp Response
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		got = append(got, resp)
	}
	if got[0].ID != "1" || got[0].Encoded != "00042" {
		t.Errorf("frame 1 = %+v", got[0])
	}
	if got[1].Encoded != "00NIL" {
		t.Errorf("frame 2 = %+v", got[1])
	}
	if got[2].Error == nil || got[2].Error.Kind != "InvalidInput" {
		t.Errorf("frame 3 = %+v", got[2])
	}
	if got[3].ID != "4" || got[3].Encoded != `x\,y` {
		t.Errorf("frame 4 = %+v", got[3])
	}
}

func TestWebSocketOrigin(t *testing.T) {
	_, ts := newTestServer(t, Config{AllowedOrigins: []string{"https://ok.example", "*.trusted.example"}}, nil)

	if _, res, err := dial(t, ts, "https://evil.example"); err == nil {
		t.Error("dial from disallowed origin succeeded")
	} else if res == nil || res.StatusCode != http.StatusForbidden {
		t.Errorf("disallowed origin response = %v", res)
	}
	for _, origin := range []string{"https://ok.example", "https://api.trusted.example"} {
		conn, _, err := dial(t, ts, origin)
		if err != nil {
			t.Errorf("dial from %s: %v", origin, err)
			continue
		}
		conn.Close()
	}
}

func TestWebSocketRateLimit(t *testing.T) {
	_, ts := newTestServer(t, Config{MaxMessageRate: 1}, nil)
	conn, _, err := dial(t, ts, "")
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	for i := 0; i < 5; i++ {
		conn.WriteMessage(websocket.TextMessage, []byte(`{"field":"name","value":"a"}`))
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var closeErr error
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			closeErr = err
			break
		}
	}
	if !websocket.IsCloseError(closeErr, websocket.ClosePolicyViolation) {
		t.Errorf("read error = %v, want policy violation close", closeErr)
	}
}

func TestJournalRecordsFailures(t *testing.T) {
	j, err := journal.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()

	s, ts := newTestServer(t, Config{LayoutPath: "test.layout"}, j)
	postUnparse(t, ts.URL, `{"field":"amount","value":1}`)
	postUnparse(t, ts.URL, `{"field":"amount","value":12,"capacity":3}`)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	run, err := j.Run(ctx, s.RunID())
	if err != nil {
		t.Fatal(err)
	}
	if run.Values != 2 || run.Failures != 1 || run.Layout != "test.layout" {
		t.Errorf("run = %+v", run)
	}
	outs, err := j.Outcomes(ctx, s.RunID())
	if err != nil || len(outs) != 1 {
		t.Fatalf("outcomes = %+v, %v", outs, err)
	}
	if outs[0].Index != 1 || outs[0].Expected != 5 || outs[0].Actual != 3 {
		t.Errorf("outcome = %+v", outs[0])
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"https://a.example", nil, true},
		{"", []string{"https://a.example"}, false},
		{"https://a.example", []string{"*"}, true},
		{"https://a.example", []string{"https://a.example"}, true},
		{"https://x.a.example", []string{"*.a.example"}, true},
		{"https://evila.example", []string{"*.a.example"}, false},
	}
	for _, tt := range tests {
		if got := isOriginAllowed(tt.origin, tt.allowed); got != tt.want {
			t.Errorf("isOriginAllowed(%q, %v) = %v, want %v", tt.origin, tt.allowed, got, tt.want)
		}
	}
}

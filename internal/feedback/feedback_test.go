package feedback

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        string
		want        string
	}{
		{name: "json result", contentType: "application/json", body: `{"result":"**Great pitch!**"}`, want: "**Great pitch!**"},
		{name: "json result without content type", body: `{"result":"ok"}`, want: "ok"},
		{name: "raw text", contentType: "text/plain", body: "Great pitch!", want: "Great pitch!"},
		{name: "empty body", contentType: "application/json", body: "", want: ""},
		{name: "missing result", contentType: "application/json", body: `{"other":"x"}`, want: ""},
		{name: "null result", contentType: "application/json", body: `{"result":null}`, want: ""},
		{name: "json string", contentType: "application/json", body: `"hello"`, want: "hello"},
		{name: "brace text", contentType: "text/plain", body: "{not json", want: "{not json"},
		{name: "text labelled json", contentType: "application/json", body: "Great pitch, tighten the ask.", want: "Great pitch, tighten the ask."},
		{name: "brace text labelled json", contentType: "application/json; charset=utf-8", body: "{broken", want: "{broken"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseResponse(tc.contentType, []byte(tc.body))
			if err != nil {
				t.Fatalf("ParseResponse error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestParseResponseUnparseable(t *testing.T) {
	cases := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{name: "non string result", contentType: "application/json", body: []byte(`{"result":42}`)},
		{name: "binary", contentType: "application/octet-stream", body: []byte{0xff, 0xfe, 0x00}},
		{name: "binary labelled json", contentType: "application/json", body: []byte{0xff, 0xfe, 0x00}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseResponse(tc.contentType, tc.body); !errors.Is(err, ErrUnparseable) {
				t.Fatalf("expected ErrUnparseable, got %v", err)
			}
		})
	}
}

func TestNewResultPlaceholder(t *testing.T) {
	if r := NewResult("  "); !r.Placeholder || r.Text != NoResultPlaceholder {
		t.Fatalf("expected placeholder, got %+v", r)
	}
	if r := NewResult("fine"); r.Placeholder || r.Text != "fine" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestHTTPClientSendsTranscript(t *testing.T) {
	var gotBody, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		gotType = r.Header.Get("Content-Type")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result":"**Great pitch!**"}`)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, srv.Client())
	res, err := client.Critique(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("Critique error: %v", err)
	}
	if gotBody != `{"text":"hello world"}` {
		t.Fatalf("unexpected request body %q", gotBody)
	}
	if gotType != "application/json" {
		t.Fatalf("unexpected content type %q", gotType)
	}
	if res.Text != "**Great pitch!**" || res.Placeholder {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHTTPClientRawText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "Great pitch!")
	}))
	defer srv.Close()

	res, err := NewHTTPClient(srv.URL, srv.Client()).Critique(context.Background(), "x")
	if err != nil {
		t.Fatalf("Critique error: %v", err)
	}
	if res.Text != "Great pitch!" {
		t.Fatalf("expected raw text, got %q", res.Text)
	}
}

func TestHTTPClientTextLabelledJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "Open with the problem, then the numbers.")
	}))
	defer srv.Close()

	res, err := NewHTTPClient(srv.URL, srv.Client()).Critique(context.Background(), "x")
	if err != nil {
		t.Fatalf("Critique returned error: %v", err)
	}
	if res.Text != "Open with the problem, then the numbers." || res.Placeholder {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestHTTPClientEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res, err := NewHTTPClient(srv.URL, srv.Client()).Critique(context.Background(), "x")
	if err != nil {
		t.Fatalf("Critique error: %v", err)
	}
	if !res.Placeholder || res.Text != NoResultPlaceholder {
		t.Fatalf("expected placeholder, got %+v", res)
	}
}

func TestHTTPClientNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model offline", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, srv.Client()).Critique(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}
	if !strings.Contains(err.Error(), "model offline") {
		t.Fatalf("expected body in error, got %v", err)
	}
}

func TestOllamaClientAccumulatesStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, `{"response":"Strong ","done":false}`+"\n")
		_, _ = io.WriteString(w, `{"response":"opening.","done":true}`+"\n")
	}))
	defer srv.Close()

	res, err := NewOllamaClient(srv.URL, "", "", 64, 0.2).Critique(context.Background(), "pitch")
	if err != nil {
		t.Fatalf("Critique error: %v", err)
	}
	if res.Text != "Strong opening." {
		t.Fatalf("unexpected text %q", res.Text)
	}
}

func TestMockClient(t *testing.T) {
	res, err := NewMockClient().Critique(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Critique error: %v", err)
	}
	if !strings.Contains(res.Text, "hello") {
		t.Fatalf("unexpected mock text %q", res.Text)
	}
}

func TestNewExecClientEmpty(t *testing.T) {
	if _, err := NewExecClient("  "); err == nil {
		t.Fatal("expected error for empty command")
	}
}

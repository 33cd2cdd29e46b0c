package transcribe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-pitch/internal/media"
)

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"transcript field", `{"transcript": "hello world"}`, "hello world"},
		{"transcription field", `{"transcription": "hello there"}`, "hello there"},
		{"transcript wins", `{"transcript": "a", "transcription": "b"}`, "a"},
		{"empty transcript falls through", `{"transcript": "", "transcription": "b"}`, "b"},
		{"text field", `{"text": "whisper style"}`, "whisper style"},
		{"neither", `{"status": "ok"}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseResponse([]byte(tc.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ParseResponse() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestParseResponseInvalidJSON(t *testing.T) {
	if _, err := ParseResponse([]byte("<html>")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestHTTPTranscriberUpload(t *testing.T) {
	var gotField, gotFile, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		for field, files := range r.MultipartForm.File {
			gotField = field
			gotFile = files[0].Filename
			gotType = files[0].Header.Get("Content-Type")
			f, _ := files[0].Open()
			data, _ := io.ReadAll(f)
			f.Close()
			gotBody = string(data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transcription": "hello world"}`))
	}))
	defer srv.Close()

	blob := media.Assemble([][]byte{[]byte("ogg"), []byte("data")}, media.Negotiate(media.SupportedSet{media.MimeOggOpus}), "recording")
	text, err := NewHTTPTranscriber(srv.URL, "file", srv.Client()).Transcribe(context.Background(), blob)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("text = %q", text)
	}
	if gotField != "file" || gotFile != "recording.ogg" {
		t.Fatalf("unexpected form part %q %q", gotField, gotFile)
	}
	if gotType != media.MimeOggOpus {
		t.Fatalf("unexpected part content type %q", gotType)
	}
	if gotBody != "oggdata" {
		t.Fatalf("unexpected body %q", gotBody)
	}
}

func TestHTTPTranscriberDefaultField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("audio"); err != nil {
			t.Errorf("expected audio field: %v", err)
		}
		_, _ = w.Write([]byte(`{"transcript": "ok"}`))
	}))
	defer srv.Close()

	blob := media.Blob{Data: []byte("x"), ContentType: "audio/webm", FileName: "a.webm"}
	if _, err := NewHTTPTranscriber(srv.URL, "", nil).Transcribe(context.Background(), blob); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
}

func TestHTTPTranscriberNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPTranscriber(srv.URL, "audio", nil).Transcribe(context.Background(), media.Blob{Data: []byte("x"), FileName: "a.webm"})
	if err == nil || !strings.Contains(err.Error(), "model overloaded") {
		t.Fatalf("expected status error carrying body, got %v", err)
	}
}

func TestMockTranscriber(t *testing.T) {
	text, err := NewMockTranscriber().Transcribe(context.Background(), media.Blob{Data: []byte("abc"), FileName: "r.webm"})
	if err != nil || !strings.Contains(text, "bytes=3") {
		t.Fatalf("unexpected mock output %q %v", text, err)
	}
}

func TestExecTranscriberRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecTranscriber("   ", "en"); err == nil {
		t.Fatal("expected error for empty command")
	}
}

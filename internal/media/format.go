// Package media negotiates recording formats and describes audio payloads.
package media

import (
	"bytes"
	"path/filepath"
	"strings"
)

const (
	MimeWebMOpus = "audio/webm;codecs=opus"
	MimeOggOpus  = "audio/ogg;codecs=opus"

	// DefaultBlobType tags blobs recorded with the host's unspecified default encoding.
	DefaultBlobType = "audio/webm"
)

// Format is the encoding chosen for one recording session. The extension is
// derived from the mime type and must never be set independently.
type Format struct {
	MimeType  string
	Extension string
}

// preference lists candidate encodings in negotiation order.
var preference = []Format{
	{MimeType: MimeWebMOpus, Extension: "webm"},
	{MimeType: MimeOggOpus, Extension: "ogg"},
}

// Unspecified is used when the host supports none of the preferred encodings.
var Unspecified = Format{MimeType: "", Extension: "webm"}

// Introspector reports whether the host can record a mime type.
type Introspector interface {
	Supports(mimeType string) bool
}

// Negotiate picks the first preferred format the host supports.
func Negotiate(host Introspector) Format {
	if host == nil {
		return Unspecified
	}
	for _, f := range preference {
		if host.Supports(f.MimeType) {
			return f
		}
	}
	return Unspecified
}

// BlobType is the content type attached to assembled audio.
func (f Format) BlobType() string {
	if f.MimeType == "" {
		return DefaultBlobType
	}
	return f.MimeType
}

// FileName attaches the negotiated extension to base.
func (f Format) FileName(base string) string {
	ext := f.Extension
	if ext == "" {
		ext = Unspecified.Extension
	}
	return base + "." + ext
}

// ExtensionFor maps a content type onto the file extension transcription
// services expect for it.
func ExtensionFor(mimeType string) string {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	switch base {
	case "audio/webm", "video/webm", "":
		return "webm"
	case "audio/ogg", "application/ogg":
		return "ogg"
	case "audio/wav", "audio/wave", "audio/x-wav", "audio/vnd.wave":
		return "wav"
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/mp4", "audio/x-m4a", "audio/m4a":
		return "m4a"
	case "audio/flac", "audio/x-flac":
		return "flac"
	}
	if i := strings.Index(base, "/"); i >= 0 {
		return base[i+1:]
	}
	return base
}

// SupportedSet is an Introspector backed by a fixed list of mime types.
type SupportedSet []string

func (s SupportedSet) Supports(mimeType string) bool {
	for _, m := range s {
		if strings.EqualFold(strings.ReplaceAll(m, " ", ""), strings.ReplaceAll(mimeType, " ", "")) {
			return true
		}
	}
	return false
}

// Blob is a single assembled audio payload ready for transcription.
type Blob struct {
	Data        []byte
	ContentType string
	FileName    string
}

// Assemble concatenates recorded fragments into a blob tagged with f.
func Assemble(chunks [][]byte, f Format, base string) Blob {
	return Blob{
		Data:        bytes.Join(chunks, nil),
		ContentType: f.BlobType(),
		FileName:    f.FileName(base),
	}
}

// Extension returns the blob's file extension without the dot.
func (b Blob) Extension() string {
	return strings.TrimPrefix(filepath.Ext(b.FileName), ".")
}

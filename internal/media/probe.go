package media

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// ErrNotAudio is returned for uploads that do not look like audio.
var ErrNotAudio = errors.New("uploaded file is not audio")

// Info describes an uploaded audio file.
type Info struct {
	ContentType string
	Duration    time.Duration
	SampleRate  int
	Channels    int
}

// ProbeUpload validates an uploaded file and returns it as a blob ready for
// transcription. The declared content type wins over sniffing when it names an
// audio type.
func ProbeUpload(name, declared string, data []byte) (Blob, Info, error) {
	if len(data) == 0 {
		return Blob{}, Info{}, fmt.Errorf("%w: empty file", ErrNotAudio)
	}
	contentType := resolveContentType(name, declared, data)
	if !isAudio(contentType) {
		return Blob{}, Info{}, fmt.Errorf("%w: %s", ErrNotAudio, contentType)
	}

	info := Info{ContentType: contentType}
	if ExtensionFor(contentType) == "wav" {
		if err := probeWAV(data, &info); err != nil {
			return Blob{}, Info{}, err
		}
	}

	fileName := filepath.Base(name)
	if fileName == "." || fileName == "/" || fileName == "" {
		fileName = "upload"
	}
	if filepath.Ext(fileName) == "" {
		fileName += "." + ExtensionFor(contentType)
	}
	return Blob{Data: data, ContentType: contentType, FileName: fileName}, info, nil
}

func resolveContentType(name, declared string, data []byte) string {
	if declared != "" && isAudio(declared) {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" && isAudio(byExt) {
		return byExt
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext == ".webm" || ext == ".ogg" || ext == ".wav" || ext == ".m4a" || ext == ".flac" || ext == ".mp3" {
		return "audio/" + strings.TrimPrefix(ext, ".")
	}
	return http.DetectContentType(data)
}

func isAudio(contentType string) bool {
	base := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	return strings.HasPrefix(base, "audio/") || base == "video/webm" || base == "application/ogg"
}

func probeWAV(data []byte, info *Info) error {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return fmt.Errorf("%w: invalid wav file", ErrNotAudio)
	}
	info.SampleRate = int(dec.SampleRate)
	info.Channels = int(dec.NumChans)
	duration, err := wav.NewDecoder(bytes.NewReader(data)).Duration()
	if err == nil {
		info.Duration = duration
	}
	return nil
}

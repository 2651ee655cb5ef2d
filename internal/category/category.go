package category

import (
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type Category string

const (
	Document Category = "document"
	Image    Category = "image"
	Video    Category = "video"
	Audio    Category = "audio"
	Other    Category = "other"
)

var documentMarkers = []string{"pdf", "document", "msword", "officedocument", "vnd.ms-excel"}

// FromMIME classifies a MIME type. Parameters such as charset are ignored.
func FromMIME(mimeType string) Category {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch {
	case mt == "":
		return Other
	case strings.HasPrefix(mt, "image/"):
		return Image
	case strings.HasPrefix(mt, "video/"):
		return Video
	case strings.HasPrefix(mt, "audio/"):
		return Audio
	}
	for _, m := range documentMarkers {
		if strings.Contains(mt, m) {
			return Document
		}
	}
	return Other
}

const octetStream = "application/octet-stream"

// DetectMIME trusts the declared type unless it is empty or generic, in which
// case the content is sniffed and the file extension is used as a last resort.
// r is rewound before returning.
func DetectMIME(r io.ReadSeeker, declared, fileName string) (string, error) {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != octetStream {
		return declared, nil
	}
	mt, err := mimetype.DetectReader(r)
	if _, serr := r.Seek(0, io.SeekStart); serr != nil {
		return "", serr
	}
	if err != nil {
		return "", err
	}
	if !mt.Is(octetStream) {
		return mt.String(), nil
	}
	if byExt := mime.TypeByExtension(filepath.Ext(fileName)); byExt != "" {
		return byExt, nil
	}
	return octetStream, nil
}

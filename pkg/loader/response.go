package loader

import (
	"mime"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/replicate/cacheplayer/pkg/transport"
)

const (
	mp4ContentType = "video/mp4"
	mp3ContentType = "audio/mpeg"
)

var contentRangeRegexp = regexp.MustCompile(`^bytes .*/([0-9]+)$`)

// ClassifyResponse derives content information from a response. Header names are matched case-insensitively
// because responses do not always come through a canonicalizing http.Header.
func ClassifyResponse(resp *transport.Response) ContentInfo {
	if resp == nil {
		return ContentInfo{ContentType: mp4ContentType, ContentLength: -1}
	}
	return ContentInfo{
		ContentType:              classifyContentType(headerValue(resp.Header, "Content-Type")),
		ContentLength:            expectedContentLength(resp),
		ByteRangeAccessSupported: strings.TrimSpace(headerValue(resp.Header, "Accept-Ranges")) == "bytes",
	}
}

// classifyContentType maps the response media type to one of the two container types players are handed.
// Anything unrecognised is treated as mp4.
func classifyContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	mediaType = strings.ToLower(mediaType)
	switch {
	case strings.Contains(mediaType, "mp4"):
		return mp4ContentType
	case strings.Contains(mediaType, "mp3"):
		return mp3ContentType
	default:
		return mp4ContentType
	}
}

// expectedContentLength prefers the total from Content-Range, which is the full asset size even for a ranged
// response, and falls back to the response's own length (-1 when unknown).
func expectedContentLength(resp *transport.Response) int64 {
	contentRange := strings.TrimSpace(headerValue(resp.Header, "Content-Range"))
	if groups := contentRangeRegexp.FindStringSubmatch(contentRange); groups != nil {
		if total, err := strconv.ParseInt(groups[1], 10, 64); err == nil {
			return total
		}
	}
	if resp.ContentLength < 0 {
		return -1
	}
	return resp.ContentLength
}

func headerValue(h http.Header, name string) string {
	if v := h.Get(name); v != "" {
		return v
	}
	for key, values := range h {
		if strings.EqualFold(key, name) && len(values) > 0 {
			return values[0]
		}
	}
	return ""
}

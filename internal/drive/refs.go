package drive

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// IsDirectURI reports whether ref can be rendered without a drive fetch.
func IsDirectURI(ref string) bool {
	return strings.HasPrefix(ref, "blob:") || strings.HasPrefix(ref, "data:")
}

// ExtractFileID pulls the drive file id out of a content or view link. Both
// "...?id=<id>&export=download" and ".../file/d/<id>/view" shapes are handled.
func ExtractFileID(ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil || u.Host == "" {
		return ""
	}
	if id := u.Query().Get("id"); id != "" {
		return id
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i < len(parts)-1; i++ {
		if parts[i] == "d" && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return ""
}

// ReceiptName builds the uploaded name receipt_<unix-millis>_<original>.
func ReceiptName(now time.Time, original string) string {
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "receipt"
	}
	return fmt.Sprintf("receipt_%d_%s", now.UnixMilli(), base)
}

// DataURI embeds body so it can be served without further authentication.
func DataURI(mimeType string, body []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(body)
}

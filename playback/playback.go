// Package playback serves stored HLS artifacts and rewrites manifests for
// players that cannot carry credentials on sub-requests.
package playback

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/grafov/m3u8"

	"github.com/focustagency/media-api/errors"
	"github.com/focustagency/media-api/log"
)

const (
	ManifestFilename = "output.m3u8"
	KeyFilename      = "enc.key"
	KeyInfoFilename  = "enc.keyinfo"

	MIMEPlaylist = "application/x-mpegURL"
	MIMESegment  = "video/mp2t"
)

func IsManifest(file string) bool {
	return strings.HasSuffix(file, ".m3u8")
}

// ContentType maps the HLS artifact kinds this service stores.
func ContentType(file string) string {
	switch {
	case IsManifest(file):
		return MIMEPlaylist
	case strings.HasSuffix(file, ".ts"):
		return MIMESegment
	default:
		return "application/octet-stream"
	}
}

// SetNoStore stamps the mandatory cache-defeating headers onto every
// response that returns stored bytes.
func SetNoStore(h http.Header) {
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}

// ServeFile streams a stored artifact with the no-store header set. When
// attachment is non-empty the file is returned as a download with that name;
// originals are only ever served this way.
func ServeFile(w http.ResponseWriter, requestID, path, contentType, attachment string) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			errors.WriteHTTPNotFound(w, "not found", err)
			return
		}
		errors.WriteHTTPInternalServerError(w, "internal server error", err)
		return
	}
	defer f.Close()

	SetNoStore(w.Header())
	w.Header().Set("Content-Type", contentType)
	if attachment != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", attachment))
	}
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		log.LogError(requestID, "failed to write response body", err, "path", path)
	}
}

// Rewrite points a stored playlist's key and segment URIs back through the
// serving base, propagating the presented credential as a token query
// parameter so the player's sub-requests stay authorized. Playlists the
// parser cannot decode, such as segment lines with no #EXTINF tag, go
// through the textual rewrite instead.
func Rewrite(manifest io.Reader, base *url.URL, credential string) ([]byte, error) {
	raw, err := io.ReadAll(manifest)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("#EXTM3U")) {
		return nil, fmt.Errorf("failed to read manifest contents: missing #EXTM3U header")
	}

	p, listType, err := decode(bytes.NewReader(raw))
	if err != nil {
		return rewriteLines(raw, base, credential), nil
	}

	switch listType {
	case m3u8.MEDIA:
		mediaPl := p.(*m3u8.MediaPlaylist)
		if mediaPl.Key != nil {
			mediaPl.Key.URI = withToken(base.JoinPath("key"), credential)
		}
		for _, segment := range mediaPl.Segments {
			if segment == nil {
				break
			}
			if segment.Key != nil {
				segment.Key.URI = withToken(base.JoinPath("key"), credential)
			}
			segment.URI = withToken(base.JoinPath(segment.URI), credential)
		}
	case m3u8.MASTER:
		masterPl := p.(*m3u8.MasterPlaylist)
		for _, variant := range masterPl.Variants {
			if variant == nil {
				break
			}
			variant.URI = withToken(base.JoinPath(variant.URI), credential)
		}
	}

	return p.Encode().Bytes(), nil
}

// decode wraps the playlist parser, which panics on a segment line with no
// preceding #EXTINF tag instead of returning an error.
func decode(r io.Reader) (p m3u8.Playlist, listType m3u8.ListType, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("manifest decode failed: %v", rec)
		}
	}()
	p, listType, err = m3u8.DecodeFrom(r, true)
	return p, listType, err
}

var keyURIAttr = regexp.MustCompile(`URI="[^"]*"`)

// rewriteLines walks the manifest line by line. #EXT-X-KEY lines get their
// URI attribute replaced with the key endpoint, bare segment lines become
// absolute URLs under base, and everything else passes through untouched.
func rewriteLines(manifest []byte, base *url.URL, credential string) []byte {
	keyURI := withToken(base.JoinPath("key"), credential)
	var out bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(manifest))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "#EXT-X-KEY"):
			line = keyURIAttr.ReplaceAllLiteralString(line, `URI="`+keyURI+`"`)
		case line != "" && !strings.HasPrefix(line, "#") && strings.HasSuffix(line, ".ts"):
			line = withToken(base.JoinPath(line), credential)
		}
		out.WriteString(line)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

// RewriteFile reads a playlist off disk and rewrites it for the mobile
// route serving it.
func RewriteFile(path string, base *url.URL, credential string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Rewrite(f, base, credential)
}

func withToken(u *url.URL, credential string) string {
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()
	return u.String()
}

// SafeJoin joins a store directory with a request-supplied artifact name,
// refusing anything that would escape the directory.
func SafeJoin(dir, file string) (string, error) {
	cleaned := filepath.Clean("/" + file)
	if cleaned == "/" {
		return "", fmt.Errorf("empty artifact name")
	}
	return filepath.Join(dir, cleaned), nil
}

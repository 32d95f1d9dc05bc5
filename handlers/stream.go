package handlers

import (
	"mime"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/focustagency/media-api/errors"
	"github.com/focustagency/media-api/middleware"
	"github.com/focustagency/media-api/playback"
	"github.com/focustagency/media-api/requests"
	"github.com/focustagency/media-api/storage"
)

// StreamHandlersCollection serves manifests, segments, keys and inline
// originals. Authorization happens in the gate wrapping these routes; the
// handlers only resolve paths and stream bytes.
type StreamHandlersCollection struct {
	Roots         storage.Roots
	PublicBaseURL *url.URL
}

// VideosUser serves the stored source inline from the uploads store.
func (h *StreamHandlersCollection) VideosUser() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		path := h.Roots.UploadPathV1(ps.ByName("user_id"), ps.ByName("filename"))

		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		playback.ServeFile(w, requestID, path, contentType, "")
	}
}

// HLSFile serves a v1 HLS artifact verbatim.
func (h *StreamHandlersCollection) HLSFile() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		dir := h.Roots.HLSDirV1(ps.ByName("user_id"), ps.ByName("video_id"))
		h.serveArtifact(w, requestID, dir, ps.ByName("file"))
	}
}

// MobileHLSFile serves a v1 HLS artifact for native players; the playlist is
// rewritten so sub-requests carry the presented credential.
func (h *StreamHandlersCollection) MobileHLSFile() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		userID, videoID := ps.ByName("user_id"), ps.ByName("video_id")
		dir := h.Roots.HLSDirV1(userID, videoID)
		file := ps.ByName("file")

		if playback.IsManifest(file) {
			base := h.PublicBaseURL.JoinPath("mobile", "hls", userID, videoID)
			h.serveRewritten(w, req, requestID, dir, file, base)
			return
		}
		h.serveArtifact(w, requestID, dir, file)
	}
}

// HLSFileV2 serves a hierarchical HLS artifact verbatim.
func (h *StreamHandlersCollection) HLSFileV2() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		rel, file, err := ParseV2Path(ps)
		if err != nil {
			errors.WriteHTTPNotFound(w, "not found", err)
			return
		}
		h.serveArtifact(w, requestID, h.Roots.HLSDirV2(rel), file)
	}
}

// MobileHLSFileV2 is the rewriting variant of HLSFileV2.
func (h *StreamHandlersCollection) MobileHLSFileV2() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		rel, file, err := ParseV2Path(ps)
		if err != nil {
			errors.WriteHTTPNotFound(w, "not found", err)
			return
		}
		dir := h.Roots.HLSDirV2(rel)

		if playback.IsManifest(file) {
			base := h.PublicBaseURL.JoinPath("mobile", "hls2", rel.TrainerID, rel.CourseID, rel.ModuleID, rel.LessonID)
			h.serveRewritten(w, req, requestID, dir, file, base)
			return
		}
		h.serveArtifact(w, requestID, dir, file)
	}
}

func (h *StreamHandlersCollection) serveArtifact(w http.ResponseWriter, requestID, dir, file string) {
	path, err := artifactPath(dir, file)
	if err != nil {
		errors.WriteHTTPNotFound(w, "not found", err)
		return
	}
	playback.ServeFile(w, requestID, path, playback.ContentType(file), "")
}

func (h *StreamHandlersCollection) serveRewritten(w http.ResponseWriter, req *http.Request, requestID, dir, file string, base *url.URL) {
	path, err := artifactPath(dir, file)
	if err != nil {
		errors.WriteHTTPNotFound(w, "not found", err)
		return
	}

	credential := middleware.ExtractCredential(req)
	body, err := playback.RewriteFile(path, base, credential)
	if err != nil {
		if os.IsNotExist(err) {
			errors.WriteHTTPNotFound(w, "not found", err)
			return
		}
		internalErr(w, "failed to rewrite playlist", err)
		return
	}

	playback.SetNoStore(w.Header())
	w.Header().Set("Content-Type", playback.MIMEPlaylist)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// artifactPath resolves the requested HLS artifact name; the public name
// "key" maps to the stored enc.key.
func artifactPath(dir, file string) (string, error) {
	if file == "key" {
		file = playback.KeyFilename
	}
	return playback.SafeJoin(dir, storage.SafeName(file))
}

// ParseV2Path splits a catch-all v2 path parameter into its validated rel
// and trailing artifact name.
func ParseV2Path(ps httprouter.Params) (storage.Rel, string, error) {
	parts := splitParams(ps)
	if len(parts) != 5 {
		return storage.Rel{}, "", errors.ErrNotFound
	}
	rel, err := storage.ParseRel(strings.Join(parts[:4], "/"))
	if err != nil {
		return storage.Rel{}, "", err
	}
	return rel, parts[4], nil
}

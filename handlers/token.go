package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/focustagency/media-api/errors"
	"github.com/focustagency/media-api/storage"
	"github.com/focustagency/media-api/token"
)

// TokenHandlersCollection mints the playback and download credentials. The
// mint routes are public; possession of a credential is what the gates
// check downstream.
type TokenHandlersCollection struct {
	Minter                  *token.Minter
	Roots                   storage.Roots
	PublicBaseURL           *url.URL
	RequireDownloadFilename bool
}

type tokenResponse struct {
	Token           string `json:"token"`
	PlaylistURL     string `json:"playlist_url,omitempty"`
	DownloadURL     string `json:"download_url,omitempty"`
	DownloadBaseURL string `json:"download_base_url,omitempty"`
	Extension       string `json:"extension,omitempty"`
}

// GetVideoToken dispatches the playback-credential mints:
//
//	/api/get-video-token/<user_id>/<filename>
//	/api/get-video-token/mobile/<user_id>/<filename>/<video_id>
//	/api/get-video-token/v2?user_id&rel&platform&ttl
func (h *TokenHandlersCollection) GetVideoToken() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		parts := splitParams(ps)
		switch {
		case len(parts) == 1 && parts[0] == "v2":
			h.mintV2Playback(w, req)
		case len(parts) == 4 && parts[0] == "mobile":
			h.mintMobile(w, req, parts[1], parts[2], parts[3])
		case len(parts) == 2:
			h.mintWeb(w, req, parts[0], parts[1])
		default:
			errors.WriteHTTPNotFound(w, "not found", nil)
		}
	}
}

func (h *TokenHandlersCollection) mintWeb(w http.ResponseWriter, req *http.Request, userID, filename string) {
	tok, err := h.Minter.MintWeb(userID, filename, ttlParam(req))
	if err != nil {
		internalErr(w, "failed to mint credential", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: tok})
}

func (h *TokenHandlersCollection) mintMobile(w http.ResponseWriter, req *http.Request, userID, filename, videoID string) {
	tok, err := h.Minter.MintMobile(userID, filename, videoID, ttlParam(req))
	if err != nil {
		internalErr(w, "failed to mint credential", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:       tok,
		PlaylistURL: h.PublicBaseURL.JoinPath("mobile", "hls", userID, videoID, "output.m3u8").String(),
	})
}

func (h *TokenHandlersCollection) mintV2Playback(w http.ResponseWriter, req *http.Request) {
	userID := req.URL.Query().Get("user_id")
	platform := token.Platform(req.URL.Query().Get("platform"))
	rel, err := storage.ParseRel(req.URL.Query().Get("rel"))
	if err != nil {
		errors.WriteHTTPBadRequest(w, "invalid rel", err)
		return
	}
	if userID == "" {
		errors.WriteHTTPBadRequest(w, "user_id is required", nil)
		return
	}

	tok, err := h.Minter.MintV2Playback(userID, rel.String(), platform, ttlParam(req))
	if err != nil {
		errors.WriteHTTPBadRequest(w, "invalid platform", err)
		return
	}

	playlist := h.PublicBaseURL.JoinPath("hls2")
	if platform == token.PlatformMobile {
		playlist = h.PublicBaseURL.JoinPath("mobile", "hls2")
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:       tok,
		PlaylistURL: playlist.JoinPath(rel.TrainerID, rel.CourseID, rel.ModuleID, rel.LessonID, "output.m3u8").String(),
	})
}

// GetDownloadToken dispatches the download-credential mints:
//
//	/api/get-download-token/<user_id>/<filename>
//	/api/get-download-token/v2?user_id&type[&filename&rel&course_id&module_id]
func (h *TokenHandlersCollection) GetDownloadToken() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		parts := splitParams(ps)
		switch {
		case len(parts) == 1 && parts[0] == "v2":
			h.mintV2Download(w, req)
		case len(parts) == 2:
			h.mintV1Download(w, req, parts[0], parts[1])
		default:
			errors.WriteHTTPNotFound(w, "not found", nil)
		}
	}
}

func (h *TokenHandlersCollection) mintV1Download(w http.ResponseWriter, req *http.Request, userID, filename string) {
	tok, err := h.Minter.MintDownloadV1(userID, filename, ttlParam(req))
	if err != nil {
		internalErr(w, "failed to mint credential", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:       tok,
		DownloadURL: h.PublicBaseURL.JoinPath("api", "download", userID, filename).String(),
	})
}

func (h *TokenHandlersCollection) mintV2Download(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	mintReq := token.V2DownloadRequest{
		UserID:          q.Get("user_id"),
		Type:            token.DownloadType(q.Get("type")),
		Filename:        storage.SafeName(q.Get("filename")),
		Rel:             q.Get("rel"),
		CourseID:        storage.SafeName(q.Get("course_id")),
		ModuleID:        storage.SafeName(q.Get("module_id")),
		TTL:             ttlParam(req),
		RequireFilename: h.RequireDownloadFilename,
	}

	var rel storage.Rel
	if mintReq.Rel != "" {
		var err error
		rel, err = storage.ParseRel(mintReq.Rel)
		if err != nil {
			errors.WriteHTTPBadRequest(w, "invalid rel", err)
			return
		}
		mintReq.Rel = rel.String()
	}

	tok, err := h.Minter.MintV2Download(mintReq)
	if err != nil {
		errors.WriteHTTPBadRequest(w, err.Error(), err)
		return
	}

	resp := tokenResponse{Token: tok}
	base := h.downloadBase(mintReq, rel)
	if mintReq.Filename != "" {
		resp.DownloadURL = base.JoinPath(mintReq.Filename).String()
	} else {
		resp.DownloadBaseURL = base.String()
		if mintReq.Type == token.DownloadLesson {
			if ext, ok := storage.SingleFileExt(h.Roots.OriginalDirV2(rel)); ok {
				resp.Extension = ext
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *TokenHandlersCollection) downloadBase(req token.V2DownloadRequest, rel storage.Rel) *url.URL {
	switch req.Type {
	case token.DownloadCourse:
		return h.PublicBaseURL.JoinPath("download2", "course", req.CourseID)
	case token.DownloadModule:
		return h.PublicBaseURL.JoinPath("download2", "module", req.CourseID, req.ModuleID)
	default:
		return h.PublicBaseURL.JoinPath("download2", rel.TrainerID, rel.CourseID, rel.ModuleID, rel.LessonID)
	}
}

func splitParams(ps httprouter.Params) []string {
	raw := strings.Trim(ps.ByName("params"), "/")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "/")
}

func ttlParam(req *http.Request) *time.Duration {
	raw := req.URL.Query().Get("ttl")
	if raw == "" {
		return nil
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return nil
	}
	d := time.Duration(secs) * time.Second
	return &d
}

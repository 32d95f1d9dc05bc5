package handlers

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/focustagency/media-api/errors"
	"github.com/focustagency/media-api/middleware"
	"github.com/focustagency/media-api/playback"
	"github.com/focustagency/media-api/requests"
	"github.com/focustagency/media-api/storage"
	"github.com/focustagency/media-api/token"
)

// DownloadHandlersCollection serves originals and presentations as
// attachments. Content from the originals store is only ever returned this
// way.
type DownloadHandlersCollection struct {
	Roots storage.Roots
}

// DownloadV1 serves /api/download/<user_id>/<filename> from originals.
func (h *DownloadHandlersCollection) DownloadV1() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		filename := storage.SafeName(ps.ByName("filename"))
		path := h.Roots.OriginalPathV1(ps.ByName("user_id"), filename)
		serveAttachment(w, requestID, path, filename)
	}
}

// DownloadV2 dispatches the hierarchical download routes:
//
//	/download2/<rel>/<filename>                       lesson original
//	/download2/course/<course_id>/<filename>          course presentation
//	/download2/module/<course_id>/<module_id>/<filename>  module presentation
func (h *DownloadHandlersCollection) DownloadV2() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(req)
		parts := splitParams(ps)

		switch {
		case len(parts) == 3 && parts[0] == "course":
			filename := storage.SafeName(parts[2])
			serveAttachment(w, requestID, filepath.Join(h.Roots.CoursePresentationDir(parts[1]), filename), filename)
		case len(parts) == 4 && parts[0] == "module":
			filename := storage.SafeName(parts[3])
			serveAttachment(w, requestID, filepath.Join(h.Roots.ModulePresentationDir(parts[1], parts[2]), filename), filename)
		case len(parts) == 5:
			rel, err := storage.ParseRel(strings.Join(parts[:4], "/"))
			if err != nil {
				errors.WriteHTTPBadRequest(w, "invalid rel", err)
				return
			}
			filename := storage.SafeName(parts[4])
			serveAttachment(w, requestID, filepath.Join(h.Roots.OriginalDirV2(rel), filename), filename)
		default:
			errors.WriteHTTPNotFound(w, "not found", nil)
		}
	}
}

// BindDownloadV2 extracts the gate binding for the v2 download routes.
func BindDownloadV2(ps httprouter.Params) middleware.RouteBinding {
	parts := splitParams(ps)
	switch {
	case len(parts) == 3 && parts[0] == "course":
		return middleware.RouteBinding{
			Type:     token.DownloadCourse,
			CourseID: parts[1],
			Filename: parts[2],
		}
	case len(parts) == 4 && parts[0] == "module":
		return middleware.RouteBinding{
			Type:     token.DownloadModule,
			CourseID: parts[1],
			ModuleID: parts[2],
			Filename: parts[3],
		}
	case len(parts) == 5:
		return middleware.RouteBinding{
			Type:     token.DownloadLesson,
			Rel:      strings.Join(parts[:4], "/"),
			Filename: parts[4],
		}
	default:
		return middleware.RouteBinding{}
	}
}

func serveAttachment(w http.ResponseWriter, requestID, path, filename string) {
	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	playback.ServeFile(w, requestID, path, contentType, filename)
}

package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/julienschmidt/httprouter"

	"github.com/focustagency/media-api/errors"
	"github.com/focustagency/media-api/metrics"
	"github.com/focustagency/media-api/pipeline"
	"github.com/focustagency/media-api/storage"
)

// MaxUploadBytes is the upload size ceiling: exactly 100 MiB is accepted,
// one byte more is rejected.
const MaxUploadBytes = 100 << 20

// multipart overhead allowance on top of the file-size ceiling
const maxRequestBytes = MaxUploadBytes + 1<<20

// UploadHandlersCollection accepts source videos and presentations, stages
// them across the stores and enqueues conversion where applicable.
type UploadHandlersCollection struct {
	Roots              storage.Roots
	Coordinator        *pipeline.Coordinator
	DefaultCallbackURL string
}

// Upload accepts a legacy (v1) source upload: multipart field "video" plus
// a user_id form field.
func (h *UploadHandlersCollection) Upload() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		file, header, userID, ok := h.acceptVideoFields(w, req, "upload", true)
		if !ok {
			return
		}
		defer file.Close()

		filename := storage.SafeName(header.Filename)
		uploadPath := h.Roots.UploadPathV1(userID, filename)
		originalPath := h.Roots.OriginalPathV1(userID, filename)
		if !h.stage(w, "upload", file, uploadPath, originalPath) {
			return
		}

		videoID := storage.VideoID(filename)
		taskID, err := h.Coordinator.Enqueue(req.Context(), pipeline.TranscodeJob{
			SourcePath: uploadPath,
			HLSDir:     h.Roots.HLSDirV1(userID, videoID),
			SuccessURL: h.callbackURL(req, "success_url"),
			ErrorURL:   h.callbackURL(req, "error_url"),
			UserID:     userID,
			VideoID:    videoID,
		})
		if err != nil {
			internalErr(w, "failed to enqueue conversion", err)
			return
		}

		metrics.Metrics.UploadRequestCount.WithLabelValues("upload", "accepted").Inc()
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "video_id": videoID})
	}
}

// UploadLesson accepts a hierarchical (v2) lesson upload. The file is
// renamed to the canonical <lesson_id>_lesson.<ext> and staged under both
// originals and uploads before conversion is enqueued.
func (h *UploadHandlersCollection) UploadLesson() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		file, header, _, ok := h.acceptVideoFields(w, req, "upload_lesson", false)
		if !ok {
			return
		}
		defer file.Close()

		rel, err := storage.NewRel(
			req.PostFormValue("trainer_id"),
			req.PostFormValue("course_id"),
			req.PostFormValue("module_id"),
			req.PostFormValue("lesson_id"),
		)
		if err != nil {
			errors.WriteHTTPBadRequest(w, "trainer_id, course_id, module_id and lesson_id are required", err)
			return
		}

		filename := rel.LessonFilename(storage.Ext(header.Filename))
		uploadPath := filepath.Join(h.Roots.UploadDirV2(rel), filename)
		originalPath := filepath.Join(h.Roots.OriginalDirV2(rel), filename)
		if !h.stage(w, "upload_lesson", file, uploadPath, originalPath) {
			return
		}

		taskID, err := h.Coordinator.Enqueue(req.Context(), pipeline.TranscodeJob{
			SourcePath: uploadPath,
			HLSDir:     h.Roots.HLSDirV2(rel),
			SuccessURL: h.callbackURL(req, "success_url"),
			ErrorURL:   h.callbackURL(req, "error_url"),
			UserID:     rel.TrainerID,
			VideoID:    rel.LessonID,
			Context: map[string]string{
				"rel":        rel.String(),
				"trainer_id": rel.TrainerID,
				"course_id":  rel.CourseID,
				"module_id":  rel.ModuleID,
				"lesson_id":  rel.LessonID,
			},
		})
		if err != nil {
			internalErr(w, "failed to enqueue conversion", err)
			return
		}

		metrics.Metrics.UploadRequestCount.WithLabelValues("upload_lesson", "accepted").Inc()
		writeJSON(w, http.StatusAccepted, map[string]string{"task_id": taskID, "rel": rel.String()})
	}
}

// UploadPresentation accepts a course or module presentation. Presentations
// are stored unencrypted, play without credentials and skip the transcoder.
func (h *UploadHandlersCollection) UploadPresentation() httprouter.Handle {
	return func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		file, header, _, ok := h.acceptVideoFields(w, req, "upload_presentation", false)
		if !ok {
			return
		}
		defer file.Close()

		// form fields are only read once acceptVideoFields has capped the body
		courseID := ps.ByName("course_id")
		if courseID == "" {
			courseID = req.PostFormValue("course_id")
		}
		moduleID := ps.ByName("module_id")
		if moduleID == "" {
			moduleID = req.PostFormValue("module_id")
		}

		if courseID == "" {
			errors.WriteHTTPBadRequest(w, "course_id is required", nil)
			return
		}

		dir := h.Roots.CoursePresentationDir(courseID)
		if moduleID != "" {
			dir = h.Roots.ModulePresentationDir(courseID, moduleID)
		}
		dest := filepath.Join(dir, "presentation"+storage.Ext(header.Filename))
		if err := saveFile(file, dest); err != nil {
			h.rejectSave(w, "upload_presentation", err)
			return
		}

		metrics.Metrics.UploadRequestCount.WithLabelValues("upload_presentation", "accepted").Inc()
		writeJSON(w, http.StatusCreated, map[string]string{"path": dest})
	}
}

// acceptVideoFields pulls the multipart video and, when required, the
// user_id form field, rejecting disallowed extensions up front.
func (h *UploadHandlersCollection) acceptVideoFields(w http.ResponseWriter, req *http.Request, route string, needUserID bool) (multipart.File, *multipart.FileHeader, string, bool) {
	req.Body = http.MaxBytesReader(w, req.Body, maxRequestBytes)

	file, header, err := req.FormFile("video")
	if err != nil {
		metrics.Metrics.UploadRequestCount.WithLabelValues(route, "rejected").Inc()
		errors.WriteHTTPBadRequest(w, "no video file sent", err)
		return nil, nil, "", false
	}

	userID := req.PostFormValue("user_id")
	if needUserID && userID == "" {
		file.Close()
		metrics.Metrics.UploadRequestCount.WithLabelValues(route, "rejected").Inc()
		errors.WriteHTTPBadRequest(w, "user_id is required", nil)
		return nil, nil, "", false
	}

	if !storage.AllowedFile(header.Filename) {
		file.Close()
		metrics.Metrics.UploadRequestCount.WithLabelValues(route, "rejected").Inc()
		errors.WriteHTTPBadRequest(w, "file type not allowed", nil)
		return nil, nil, "", false
	}

	return file, header, userID, true
}

// stage persists the upload under dest and copies it to originalDest.
func (h *UploadHandlersCollection) stage(w http.ResponseWriter, route string, file multipart.File, dest, originalDest string) bool {
	if err := saveFile(file, dest); err != nil {
		h.rejectSave(w, route, err)
		return false
	}
	if err := copyFile(dest, originalDest); err != nil {
		internalErr(w, "failed to persist original", err)
		return false
	}
	metrics.Metrics.UploadAcceptedBytes.Add(float64(fileSize(dest)))
	return true
}

func (h *UploadHandlersCollection) rejectSave(w http.ResponseWriter, route string, err error) {
	metrics.Metrics.UploadRequestCount.WithLabelValues(route, "rejected").Inc()
	if err == errOversize {
		errors.WriteHTTPBadRequest(w, "file exceeds the 100 MiB upload limit", err)
		return
	}
	internalErr(w, "failed to store upload", err)
}

func (h *UploadHandlersCollection) callbackURL(req *http.Request, field string) string {
	if v := req.PostFormValue(field); v != "" {
		return v
	}
	return h.DefaultCallbackURL
}

var errOversize = fmt.Errorf("upload exceeds %d bytes", MaxUploadBytes)

// saveFile writes the multipart payload to dest, enforcing the exact
// file-size ceiling.
func saveFile(src io.Reader, dest string) error {
	if err := storage.EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(src, MaxUploadBytes+1))
	if err != nil {
		os.Remove(dest)
		return err
	}
	if n > MaxUploadBytes {
		os.Remove(dest)
		return errOversize
	}
	return nil
}

func copyFile(src, dest string) error {
	if err := storage.EnsureDir(filepath.Dir(dest)); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

func fileSize(path string) int64 {
	if info, err := os.Stat(path); err == nil {
		return info.Size()
	}
	return 0
}

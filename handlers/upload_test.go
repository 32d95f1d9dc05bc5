package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/focustagency/media-api/clients"
	"github.com/focustagency/media-api/pipeline"
	"github.com/focustagency/media-api/storage"
)

func testUploadHandlers(t *testing.T) (*UploadHandlersCollection, *pipeline.Queue) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	queue := pipeline.NewQueue(rdb)

	base, err := url.Parse("https://media.example.com")
	require.NoError(t, err)
	root := t.TempDir()
	roots := storage.Roots{
		Uploads:       filepath.Join(root, "uploads"),
		Originals:     filepath.Join(root, "originals"),
		HLS:           filepath.Join(root, "hls"),
		Presentations: filepath.Join(root, "presentation_videos"),
	}
	coordinator := pipeline.NewCoordinator(queue, nil, clients.NewCallbackClient(""), roots.HLS, base)

	return &UploadHandlersCollection{
		Roots:              roots,
		Coordinator:        coordinator,
		DefaultCallbackURL: "https://lifecycle.example.com/notify",
	}, queue
}

func multipartRequest(t *testing.T, target string, fields map[string]string, filename string, content []byte) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("video", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func dequeueJob(t *testing.T, queue *pipeline.Queue) pipeline.TranscodeJob {
	job, payload, err := queue.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NoError(t, queue.Ack(context.Background(), payload))
	return job
}

func TestUploadV1(t *testing.T) {
	h, queue := testUploadHandlers(t)

	req := multipartRequest(t, "/upload",
		map[string]string{"user_id": "u1", "success_url": "https://caller.example.com/ok"},
		"intro.mp4", []byte("video bytes"))
	rec := httptest.NewRecorder()
	h.Upload()(rec, req, nil)

	require.Equal(t, 202, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp["task_id"])
	require.Equal(t, "intro", resp["video_id"])

	for _, path := range []string{
		h.Roots.UploadPathV1("u1", "intro.mp4"),
		h.Roots.OriginalPathV1("u1", "intro.mp4"),
	} {
		content, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, "video bytes", string(content))
	}

	job := dequeueJob(t, queue)
	require.Equal(t, h.Roots.UploadPathV1("u1", "intro.mp4"), job.SourcePath)
	require.Equal(t, h.Roots.HLSDirV1("u1", "intro"), job.HLSDir)
	require.Equal(t, "https://caller.example.com/ok", job.SuccessURL)
	require.Equal(t, "https://lifecycle.example.com/notify", job.ErrorURL)
	require.Equal(t, "u1", job.UserID)
	require.Equal(t, "intro", job.VideoID)
}

func TestUploadRejectsBadRequests(t *testing.T) {
	h, queue := testUploadHandlers(t)

	// disallowed extension
	req := multipartRequest(t, "/upload", map[string]string{"user_id": "u1"}, "notes.txt", []byte("x"))
	rec := httptest.NewRecorder()
	h.Upload()(rec, req, nil)
	require.Equal(t, 400, rec.Code)

	// missing user_id
	req = multipartRequest(t, "/upload", nil, "intro.mp4", []byte("x"))
	rec = httptest.NewRecorder()
	h.Upload()(rec, req, nil)
	require.Equal(t, 400, rec.Code)

	// missing file field
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("user_id", "u1"))
	require.NoError(t, mw.Close())
	plain := httptest.NewRequest("POST", "/upload", &buf)
	plain.Header.Set("Content-Type", mw.FormDataContentType())
	rec = httptest.NewRecorder()
	h.Upload()(rec, plain, nil)
	require.Equal(t, 400, rec.Code)

	depth, err := queue.Depth(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 0, depth)
}

// zeroReader yields zero bytes forever.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func TestSaveFileSizeCeiling(t *testing.T) {
	dir := t.TempDir()

	// exactly at the ceiling is accepted
	dest := filepath.Join(dir, "exact.mp4")
	require.NoError(t, saveFile(io.LimitReader(zeroReader{}, MaxUploadBytes), dest))
	info, err := os.Stat(dest)
	require.NoError(t, err)
	require.EqualValues(t, MaxUploadBytes, info.Size())

	// one byte over is rejected and nothing is left behind
	dest = filepath.Join(dir, "over.mp4")
	err = saveFile(io.LimitReader(zeroReader{}, MaxUploadBytes+1), dest)
	require.ErrorIs(t, err, errOversize)
	_, err = os.Stat(dest)
	require.True(t, os.IsNotExist(err))
}

func TestUploadLesson(t *testing.T) {
	h, queue := testUploadHandlers(t)

	req := multipartRequest(t, "/upload/lesson", map[string]string{
		"trainer_id": "t1",
		"course_id":  "c1",
		"module_id":  "m1",
		"lesson_id":  "l1",
	}, "Recording Session.MOV", []byte("lesson bytes"))
	rec := httptest.NewRecorder()
	h.UploadLesson()(rec, req, nil)

	require.Equal(t, 202, rec.Code)

	rel, err := storage.ParseRel("t1/c1/m1/l1")
	require.NoError(t, err)
	for _, dir := range []string{h.Roots.UploadDirV2(rel), h.Roots.OriginalDirV2(rel)} {
		content, err := os.ReadFile(filepath.Join(dir, "l1_lesson.mov"))
		require.NoError(t, err)
		require.Equal(t, "lesson bytes", string(content))
	}

	job := dequeueJob(t, queue)
	require.Equal(t, h.Roots.HLSDirV2(rel), job.HLSDir)
	require.Equal(t, "t1/c1/m1/l1", job.Context["rel"])
	require.Equal(t, "t1", job.UserID)
	require.Equal(t, "l1", job.VideoID)
}

func TestUploadLessonRequiresAllIdentifiers(t *testing.T) {
	h, _ := testUploadHandlers(t)

	req := multipartRequest(t, "/upload/lesson", map[string]string{
		"trainer_id": "t1",
		"course_id":  "c1",
	}, "intro.mp4", []byte("x"))
	rec := httptest.NewRecorder()
	h.UploadLesson()(rec, req, nil)
	require.Equal(t, 400, rec.Code)
}

func TestUploadPresentation(t *testing.T) {
	h, queue := testUploadHandlers(t)

	// course form with the id in the route
	req := multipartRequest(t, "/upload_presentation/course/c1", nil, "intro.mp4", []byte("course deck"))
	rec := httptest.NewRecorder()
	h.UploadPresentation()(rec, req, httprouter.Params{{Key: "course_id", Value: "c1"}})
	require.Equal(t, 201, rec.Code)

	content, err := os.ReadFile(filepath.Join(h.Roots.CoursePresentationDir("c1"), "presentation.mp4"))
	require.NoError(t, err)
	require.Equal(t, "course deck", string(content))

	// module form
	req = multipartRequest(t, "/upload_presentation/module/c1/m1", nil, "intro.MP4", []byte("module deck"))
	rec = httptest.NewRecorder()
	h.UploadPresentation()(rec, req, httprouter.Params{
		{Key: "course_id", Value: "c1"},
		{Key: "module_id", Value: "m1"},
	})
	require.Equal(t, 201, rec.Code)
	_, err = os.Stat(filepath.Join(h.Roots.ModulePresentationDir("c1", "m1"), "presentation.mp4"))
	require.NoError(t, err)

	// bare form takes the id from the body
	req = multipartRequest(t, "/upload_presentation", map[string]string{"course_id": "c2"}, "intro.mp4", []byte("deck"))
	rec = httptest.NewRecorder()
	h.UploadPresentation()(rec, req, nil)
	require.Equal(t, 201, rec.Code)
	_, err = os.Stat(filepath.Join(h.Roots.CoursePresentationDir("c2"), "presentation.mp4"))
	require.NoError(t, err)

	// presentations never enqueue conversion
	depth, err := queue.Depth(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 0, depth)
}

// The presentation route installs the request body cap before any form
// parsing, so an oversized body never gets fully drained.
func TestUploadPresentationCapsRequestBody(t *testing.T) {
	h, _ := testUploadHandlers(t)

	head := "--capbound\r\n" +
		"Content-Disposition: form-data; name=\"course_id\"\r\n\r\nc1\r\n" +
		"--capbound\r\n" +
		"Content-Disposition: form-data; name=\"video\"; filename=\"deck.mp4\"\r\n" +
		"Content-Type: video/mp4\r\n\r\n"
	tail := "\r\n--capbound--\r\n"
	body := io.MultiReader(
		strings.NewReader(head),
		io.LimitReader(zeroReader{}, maxRequestBytes+1),
		strings.NewReader(tail),
	)

	req := httptest.NewRequest("POST", "/upload_presentation", body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=capbound")
	rec := httptest.NewRecorder()
	h.UploadPresentation()(rec, req, nil)
	require.Equal(t, 400, rec.Code)

	_, err := os.Stat(h.Roots.CoursePresentationDir("c1"))
	require.True(t, os.IsNotExist(err))
}

func TestUploadPresentationRequiresCourseID(t *testing.T) {
	h, _ := testUploadHandlers(t)

	req := multipartRequest(t, "/upload_presentation", nil, "intro.mp4", []byte("deck"))
	rec := httptest.NewRecorder()
	h.UploadPresentation()(rec, req, nil)
	require.Equal(t, 400, rec.Code)
}

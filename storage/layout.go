// Package storage resolves on-disk paths across the four content stores.
// All functions are pure path resolution; the only I/O is mkdir on ingest
// paths and the single-file extension probe.
package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Roots holds the four store roots configured at startup.
type Roots struct {
	Uploads       string
	Originals     string
	HLS           string
	Presentations string
}

// AllowedExtensions is the set of accepted upload extensions, matched
// case-insensitively and without the leading dot.
var AllowedExtensions = map[string]bool{
	"mp4": true,
	"avi": true,
	"mov": true,
	"wmv": true,
	"flv": true,
}

// SafeName strips directory separators, NUL bytes and leading dots from a
// user-supplied path component. Idempotent.
func SafeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '/', '\\', 0:
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimLeft(b.String(), ".")
}

// Ext returns the lowercased extension of filename including the leading
// dot, or "" when there is none.
func Ext(filename string) string {
	return strings.ToLower(path.Ext(filename))
}

// AllowedFile reports whether the filename carries one of the accepted
// video extensions.
func AllowedFile(filename string) bool {
	ext := strings.TrimPrefix(Ext(filename), ".")
	return ext != "" && AllowedExtensions[ext]
}

// VideoID is the legacy video identifier: the source basename without its
// extension.
func VideoID(filename string) string {
	base := SafeName(path.Base(filename))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Rel is the validated trainer/course/module/lesson tail of a v2 path.
type Rel struct {
	TrainerID string
	CourseID  string
	ModuleID  string
	LessonID  string
}

// ParseRel validates a /-joined rel string segment by segment. Traversal
// sequences and absolute paths are rejected.
func ParseRel(rel string) (Rel, error) {
	parts := strings.Split(rel, "/")
	if len(parts) != 4 {
		return Rel{}, fmt.Errorf("rel must have exactly 4 segments, got %d", len(parts))
	}
	for _, p := range parts {
		if p == "" || p != SafeName(p) {
			return Rel{}, fmt.Errorf("invalid rel segment %q", p)
		}
	}
	return Rel{TrainerID: parts[0], CourseID: parts[1], ModuleID: parts[2], LessonID: parts[3]}, nil
}

func NewRel(trainerID, courseID, moduleID, lessonID string) (Rel, error) {
	return ParseRel(strings.Join([]string{trainerID, courseID, moduleID, lessonID}, "/"))
}

func (r Rel) String() string {
	return strings.Join([]string{r.TrainerID, r.CourseID, r.ModuleID, r.LessonID}, "/")
}

// LessonFilename is the canonical lesson filename, extension lowercased.
func (r Rel) LessonFilename(ext string) string {
	return r.LessonID + "_lesson" + strings.ToLower(ext)
}

// Legacy (v1) layout: <root>/<user_id>/<file or video_id>.

func (ro Roots) UploadPathV1(userID, filename string) string {
	return filepath.Join(ro.Uploads, SafeName(userID), SafeName(filename))
}

func (ro Roots) OriginalPathV1(userID, filename string) string {
	return filepath.Join(ro.Originals, SafeName(userID), SafeName(filename))
}

func (ro Roots) HLSDirV1(userID, videoID string) string {
	return filepath.Join(ro.HLS, SafeName(userID), SafeName(videoID))
}

// Hierarchical (v2) layout: <root>/<trainer>/<course>/<module>/<lesson>.

func (ro Roots) UploadDirV2(rel Rel) string {
	return filepath.Join(ro.Uploads, rel.TrainerID, rel.CourseID, rel.ModuleID, rel.LessonID)
}

func (ro Roots) OriginalDirV2(rel Rel) string {
	return filepath.Join(ro.Originals, rel.TrainerID, rel.CourseID, rel.ModuleID, rel.LessonID)
}

func (ro Roots) HLSDirV2(rel Rel) string {
	return filepath.Join(ro.HLS, rel.TrainerID, rel.CourseID, rel.ModuleID, rel.LessonID)
}

// Presentations sit outside both schemes and need no credential to play.

func (ro Roots) CoursePresentationDir(courseID string) string {
	return filepath.Join(ro.Presentations, "courses", SafeName(courseID))
}

func (ro Roots) ModulePresentationDir(courseID, moduleID string) string {
	return filepath.Join(ro.Presentations, "modules", SafeName(courseID), SafeName(moduleID))
}

// EnsureDir creates an ingest directory and its parents.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// SingleFileExt probes dir and, when it contains exactly one regular file,
// returns that file's lowercased extension with the leading dot.
func SingleFileExt(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, e.Name())
		}
	}
	if len(files) != 1 {
		return "", false
	}
	ext := Ext(files[0])
	if ext == "" {
		return "", false
	}
	return ext, true
}

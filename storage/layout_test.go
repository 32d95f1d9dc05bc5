package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeName(t *testing.T) {
	require.Equal(t, "intro.mp4", SafeName("intro.mp4"))
	require.Equal(t, "etcpasswd", SafeName("../../etc/passwd"))
	require.Equal(t, "secret", SafeName("..\\secret"))
	require.Equal(t, "hidden", SafeName(".hidden"))
	require.Equal(t, "a.b.c", SafeName("a.b.c"))
	require.Equal(t, "", SafeName("..."))

	// idempotent
	for _, in := range []string{"intro.mp4", "../../etc/passwd", ".hidden", "a/b\\c"} {
		once := SafeName(in)
		require.Equal(t, once, SafeName(once))
	}
}

func TestAllowedFile(t *testing.T) {
	require.True(t, AllowedFile("intro.mp4"))
	require.True(t, AllowedFile("INTRO.MP4"))
	require.True(t, AllowedFile("clip.MoV"))
	require.False(t, AllowedFile("notes.txt"))
	require.False(t, AllowedFile("archive.mp4.exe"))
	require.False(t, AllowedFile("noextension"))
	require.False(t, AllowedFile(""))
}

func TestVideoID(t *testing.T) {
	require.Equal(t, "intro", VideoID("intro.mp4"))
	require.Equal(t, "my.video", VideoID("my.video.avi"))
	require.Equal(t, "intro", VideoID("some/dir/intro.mp4"))
}

func TestParseRel(t *testing.T) {
	rel, err := ParseRel("t1/c1/m1/l1")
	require.NoError(t, err)
	require.Equal(t, Rel{TrainerID: "t1", CourseID: "c1", ModuleID: "m1", LessonID: "l1"}, rel)
	require.Equal(t, "t1/c1/m1/l1", rel.String())

	for _, bad := range []string{
		"t1/c1/m1",
		"t1/c1/m1/l1/extra",
		"t1//m1/l1",
		"../c1/m1/l1",
		"t1/c1/m1/.l1",
		"/t1/c1/m1",
	} {
		_, err := ParseRel(bad)
		require.Error(t, err, "rel %q should be rejected", bad)
	}
}

func TestLessonFilename(t *testing.T) {
	rel := Rel{TrainerID: "t1", CourseID: "c1", ModuleID: "m1", LessonID: "l1"}
	require.Equal(t, "l1_lesson.mp4", rel.LessonFilename(".MP4"))
	require.Equal(t, "l1_lesson.avi", rel.LessonFilename(".avi"))
}

func TestLayoutPaths(t *testing.T) {
	roots := Roots{Uploads: "uploads", Originals: "originals", HLS: "hls", Presentations: "presentation_videos"}

	require.Equal(t, filepath.Join("uploads", "u1", "intro.mp4"), roots.UploadPathV1("u1", "intro.mp4"))
	require.Equal(t, filepath.Join("originals", "u1", "intro.mp4"), roots.OriginalPathV1("u1", "intro.mp4"))
	require.Equal(t, filepath.Join("hls", "u1", "intro"), roots.HLSDirV1("u1", "intro"))

	// traversal attempts collapse into plain names
	require.Equal(t, filepath.Join("uploads", "u1", "etcpasswd"), roots.UploadPathV1("u1", "../../etc/passwd"))

	rel := Rel{TrainerID: "t1", CourseID: "c1", ModuleID: "m1", LessonID: "l1"}
	require.Equal(t, filepath.Join("hls", "t1", "c1", "m1", "l1"), roots.HLSDirV2(rel))
	require.Equal(t, filepath.Join("presentation_videos", "courses", "c1"), roots.CoursePresentationDir("c1"))
	require.Equal(t, filepath.Join("presentation_videos", "modules", "c1", "m1"), roots.ModulePresentationDir("c1", "m1"))
}

func TestSingleFileExt(t *testing.T) {
	dir := t.TempDir()

	_, ok := SingleFileExt(dir)
	require.False(t, ok)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "l1_lesson.MP4"), []byte("x"), 0o644))
	ext, ok := SingleFileExt(dir)
	require.True(t, ok)
	require.Equal(t, ".mp4", ext)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "second.mp4"), []byte("x"), 0o644))
	_, ok = SingleFileExt(dir)
	require.False(t, ok)
}

package pipeline

import (
	"fmt"
	"path/filepath"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Transcoder runs the external transcoder for one job. Implementations
// write output.m3u8 and the encrypted segments into hlsDir.
type Transcoder interface {
	Transcode(sourcePath, hlsDir, keyInfoPath string) error
}

// FFmpeg invokes the ffmpeg binary on $PATH: H.264/AAC, 10 second segment
// target, unbounded playlist, AES-128 segment encryption driven by the
// key-info file.
type FFmpeg struct{}

func (FFmpeg) Transcode(sourcePath, hlsDir, keyInfoPath string) error {
	err := ffmpeg.Input(sourcePath).
		Output(filepath.Join(hlsDir, "output.m3u8"), ffmpeg.KwArgs{
			"c:v":                  "libx264",
			"c:a":                  "aac",
			"hls_time":             "10",
			"hls_list_size":        "0",
			"hls_key_info_file":    keyInfoPath,
			"hls_segment_filename": filepath.Join(hlsDir, "segment_%03d.ts"),
		}).
		OverWriteOutput().
		Run()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

package pipeline

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/focustagency/media-api/clients"
	"github.com/focustagency/media-api/log"
	"github.com/focustagency/media-api/metrics"
)

// TranscodeJob carries everything a worker needs to produce the encrypted
// HLS rendition for one video. Steps are idempotent except the source
// unlink, which tolerates absence, so redelivery under at-least-once
// semantics is safe.
type TranscodeJob struct {
	ID         string            `json:"id"`
	SourcePath string            `json:"source_path"`
	HLSDir     string            `json:"hls_dir"`
	SuccessURL string            `json:"success_url"`
	ErrorURL   string            `json:"error_url"`
	UserID     string            `json:"user_id,omitempty"`
	VideoID    string            `json:"video_id,omitempty"`
	Key        []byte            `json:"key,omitempty"`
	KeyURL     string            `json:"key_url,omitempty"`
	Context    map[string]string `json:"context,omitempty"`
}

// Coordinator fronts the transcode subsystem: it accepts jobs onto the FIFO
// queue and runs the worker pool that executes them. Once a job is accepted
// it runs to a definitive status, and exactly one callback (success or
// error) is delivered best-effort.
type Coordinator struct {
	Queue      *Queue
	Transcoder Transcoder
	Callback   clients.CallbackClient

	// HLSRoot anchors the key-URL chooser; PublicBaseURL supplies its host.
	HLSRoot       string
	PublicBaseURL *url.URL
}

func NewCoordinator(queue *Queue, transcoder Transcoder, callback clients.CallbackClient, hlsRoot string, publicBaseURL *url.URL) *Coordinator {
	return &Coordinator{
		Queue:         queue,
		Transcoder:    transcoder,
		Callback:      callback,
		HLSRoot:       hlsRoot,
		PublicBaseURL: publicBaseURL,
	}
}

// Enqueue accepts a job and returns its task ID. Acceptance only persists
// the parameters; execution happens on a worker.
func (c *Coordinator) Enqueue(ctx context.Context, job TranscodeJob) (string, error) {
	if job.SourcePath == "" || job.HLSDir == "" {
		return "", errors.New("job requires source_path and hls_dir")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if err := c.Queue.Enqueue(ctx, job); err != nil {
		return "", err
	}
	log.Log(job.ID, "transcode job queued", "source", job.SourcePath, "hls_dir", job.HLSDir)
	return job.ID, nil
}

// RunWorkers requeues jobs stranded by a previous run, then starts n workers
// that consume the queue until ctx is done.
func (c *Coordinator) RunWorkers(ctx context.Context, n int) {
	if reclaimed, err := c.Queue.Reclaim(ctx); err != nil {
		log.LogNoRequestID("failed to reclaim stranded transcode jobs", "err", err.Error())
	} else if reclaimed > 0 {
		log.LogNoRequestID("requeued stranded transcode jobs", "count", reclaimed)
	}
	for i := 0; i < n; i++ {
		go c.worker(ctx)
	}
}

func (c *Coordinator) worker(ctx context.Context) {
	brokerBackoff := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	for ctx.Err() == nil {
		job, payload, err := c.Queue.Dequeue(ctx, 5*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				brokerBackoff.Reset()
				continue
			}
			log.LogNoRequestID("transcode queue dequeue failed", "err", err.Error())
			wait := brokerBackoff.NextBackOff()
			if wait == backoff.Stop {
				return
			}
			time.Sleep(wait)
			continue
		}
		brokerBackoff.Reset()

		start := time.Now()
		if err := c.runJob(job); err != nil {
			metrics.Metrics.TranscodeJobCount.WithLabelValues("failed").Inc()
			log.LogError(job.ID, "transcode job failed", err, "source", job.SourcePath)
		} else {
			metrics.Metrics.TranscodeJobCount.WithLabelValues("succeeded").Inc()
		}
		metrics.Metrics.TranscodeDurationSec.Observe(time.Since(start).Seconds())

		// Terminal either way; only a crashed worker leaves the payload
		// eligible for redelivery.
		if err := c.Queue.Ack(context.Background(), payload); err != nil {
			log.LogError(job.ID, "failed to ack transcode job", err)
		}
	}
}

// runJob executes one transcode to its definitive status and delivers the
// matching callback.
func (c *Coordinator) runJob(job TranscodeJob) error {
	if err := c.execute(job); err != nil {
		_ = c.Callback.Send(job.ErrorURL, clients.CallbackMessage{
			Status:  clients.CallbackError,
			UserID:  job.UserID,
			VideoID: job.VideoID,
			Error:   err.Error(),
			Message: "video conversion failed",
			Context: job.Context,
		})
		return err
	}

	_ = c.Callback.Send(job.SuccessURL, clients.CallbackMessage{
		Status:  clients.CallbackSuccess,
		UserID:  job.UserID,
		VideoID: job.VideoID,
		HLSPath: c.hlsPath(job),
		Message: "video converted successfully",
		Context: job.Context,
	})
	return nil
}

func (c *Coordinator) execute(job TranscodeJob) error {
	if err := os.MkdirAll(job.HLSDir, 0o755); err != nil {
		return fmt.Errorf("failed to create hls dir: %w", err)
	}

	key := job.Key
	if len(key) == 0 {
		key = make([]byte, 16)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("failed to draw content key: %w", err)
		}
	}
	keyPath := filepath.Join(job.HLSDir, "enc.key")
	if err := os.WriteFile(keyPath, key, 0o600); err != nil {
		return fmt.Errorf("failed to write content key: %w", err)
	}

	keyURL := job.KeyURL
	if keyURL == "" {
		keyURL = c.keyURL(job)
	}

	// The transcoder's working directory is not ours to control, so the
	// local key path in the key-info file is always absolute.
	absKeyPath, err := filepath.Abs(keyPath)
	if err != nil {
		return fmt.Errorf("failed to resolve key path: %w", err)
	}
	keyInfoPath := filepath.Join(job.HLSDir, "enc.keyinfo")
	keyInfo := keyURL + "\n" + absKeyPath + "\n"
	if err := os.WriteFile(keyInfoPath, []byte(keyInfo), 0o600); err != nil {
		return fmt.Errorf("failed to write key info: %w", err)
	}

	if err := c.Transcoder.Transcode(job.SourcePath, job.HLSDir, keyInfoPath); err != nil {
		return err
	}

	// The originals copy persists; the staging source is done with.
	if err := os.Remove(job.SourcePath); err != nil && !os.IsNotExist(err) {
		log.LogError(job.ID, "failed to remove converted source", err, "source", job.SourcePath)
	}
	return nil
}

// relOf recovers the hierarchical tail of the job's hls_dir. More than two
// components beneath the HLS root means a v2 path.
func (c *Coordinator) relOf(job TranscodeJob) ([]string, bool) {
	rel, err := filepath.Rel(c.HLSRoot, job.HLSDir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return nil, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	return parts, len(parts) > 2
}

func (c *Coordinator) keyURL(job TranscodeJob) string {
	parts, isV2 := c.relOf(job)
	if isV2 {
		return c.PublicBaseURL.JoinPath("hls2").JoinPath(parts...).JoinPath("key").String()
	}
	userID, videoID := job.UserID, job.VideoID
	if len(parts) == 2 {
		if userID == "" {
			userID = parts[0]
		}
		if videoID == "" {
			videoID = parts[1]
		}
	}
	return c.PublicBaseURL.JoinPath("hls", userID, videoID, "key").String()
}

func (c *Coordinator) hlsPath(job TranscodeJob) string {
	if rel, ok := job.Context["rel"]; ok && rel != "" {
		return "/hls2/" + rel + "/output.m3u8"
	}
	if parts, isV2 := c.relOf(job); isV2 {
		return "/hls2/" + strings.Join(parts, "/") + "/output.m3u8"
	}
	return "/hls/" + job.UserID + "/" + job.VideoID + "/output.m3u8"
}

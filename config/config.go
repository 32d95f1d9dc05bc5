package config

import (
	"flag"
	"os"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v3"
)

// LoadDotEnv loads a dotenv-style file if one exists. Values already present
// in the environment win, which godotenv's non-overload Load guarantees.
func LoadDotEnv(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	_ = godotenv.Load(path)
}

// Parse populates a Cli from command-line flags with environment-variable
// fallback; flag "secret-key" maps to env SECRET_KEY and so on.
func Parse(args []string) (Cli, error) {
	fs := flag.NewFlagSet("focust-media-api", flag.ContinueOnError)
	cli := Cli{}

	fs.StringVar(&cli.HTTPAddress, "http-addr", "0.0.0.0:8989", "Address to bind the HTTP listener on")
	URLVarFlag(fs, &cli.PublicBaseURL, "public-base-url", "http://localhost:8989", "Public base URL used for playlist and key URLs")

	fs.StringVar(&cli.SecretKey, "secret-key", "", "Credential signing key; a development fallback is used when empty")
	fs.IntVar(&cli.TokenExpirySecs, "token-expiry", 3600, "Default playback credential TTL in seconds")
	fs.IntVar(&cli.DownloadTokenExpirySecs, "download-token-expiry", 900, "Default download credential TTL in seconds")
	fs.BoolVar(&cli.RequireDownloadFilename, "download-token-require-filename", false, "Require download credentials to bind a filename")
	CommaSliceFlag(fs, &cli.AllowedOrigins, "focust-allowed-origins", "https://focustagency.com", "Comma-separated CORS and referrer allow-list")

	fs.StringVar(&cli.CallbackBearer, "callback-bearer", "", "If set, sent as Authorization: Bearer on outgoing callbacks")
	fs.StringVar(&cli.DefaultCallbackURL, "default-callback-url", "", "Lifecycle-tracking URL used when the upload does not supply one")

	fs.StringVar(&cli.RedisURL, "redis-url", "redis://localhost:6379/0", "Redis broker URL for the transcode job queue")
	fs.IntVar(&cli.TranscodeWorkers, "transcode-workers", 2, "Number of concurrent transcode workers")

	fs.StringVar(&cli.UploadsRoot, "uploads-root", "uploads", "Root directory for pending source uploads")
	fs.StringVar(&cli.OriginalsRoot, "originals-root", "originals", "Root directory for persistent originals")
	fs.StringVar(&cli.HLSRoot, "hls-root", "hls", "Root directory for encrypted HLS renditions")
	fs.StringVar(&cli.PresentationsRoot, "presentations-root", "presentation_videos", "Root directory for course and module presentations")

	if err := ff.Parse(fs, args, ff.WithEnvVarNoPrefix()); err != nil {
		return Cli{}, err
	}
	return cli, nil
}

package config

import (
	"flag"
	"fmt"
	"net/url"
	"strings"
)

// Cli holds the runtime configuration passed to the endpoint handlers and
// the transcode orchestrator at construction time.
type Cli struct {
	HTTPAddress string

	// Host used when building absolute playlist and key URLs.
	PublicBaseURL *url.URL

	SecretKey               string
	TokenExpirySecs         int
	DownloadTokenExpirySecs int
	RequireDownloadFilename bool

	// Comma-separated CORS and referrer allow-list (FOCUST_ALLOWED_ORIGINS).
	AllowedOrigins []string

	CallbackBearer     string
	DefaultCallbackURL string

	RedisURL         string
	TranscodeWorkers int

	UploadsRoot       string
	OriginalsRoot     string
	HLSRoot           string
	PresentationsRoot string
}

// DevelopmentSecret is only ever used when SECRET_KEY is unset.
const DevelopmentSecret = "focust-dev-secret"

func (cli Cli) Secret() []byte {
	if cli.SecretKey == "" {
		return []byte(DevelopmentSecret)
	}
	return []byte(cli.SecretKey)
}

func URLVarFlag(fs *flag.FlagSet, dest **url.URL, name, value, usage string) {
	if err := parseURL(value, dest); err != nil {
		panic(err)
	}
	fs.Func(name, usage, func(s string) error {
		return parseURL(s, dest)
	})
}

func CommaSliceFlag(fs *flag.FlagSet, dest *[]string, name, value, usage string) {
	parseCommaSlice(value, dest)
	fs.Func(name, usage, func(s string) error {
		parseCommaSlice(s, dest)
		return nil
	})
}

func parseURL(s string, dest **url.URL) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must be http or https", s)
	}
	*dest = u
	return nil
}

func parseCommaSlice(s string, dest *[]string) {
	*dest = nil
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*dest = append(*dest, part)
		}
	}
}

package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// Platform selects which audience policy the authorization gate applies.
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformMobile   Platform = "mobile"
	PlatformDownload Platform = "download"
)

// DownloadType names which v2 download route a credential permits.
type DownloadType string

const (
	DownloadLesson DownloadType = "lesson"
	DownloadCourse DownloadType = "course"
	DownloadModule DownloadType = "module"
)

const ActionDownload = "download"

var ErrInvalidCredential = errors.New("invalid credential")

// Claims is the full credential claim set. Claims absent from a given mint
// operation are omitted from the payload entirely; the gate treats a missing
// claim as not binding that field.
type Claims struct {
	UserID   string       `json:"user_id"`
	Filename string       `json:"filename,omitempty"`
	VideoID  string       `json:"video_id,omitempty"`
	Rel      string       `json:"rel,omitempty"`
	Type     DownloadType `json:"type,omitempty"`
	CourseID string       `json:"course_id,omitempty"`
	ModuleID string       `json:"module_id,omitempty"`
	Platform Platform     `json:"platform"`
	Action   string       `json:"action,omitempty"`
	jwt.RegisteredClaims
}

// Minter mints and verifies the service's signed credentials. Stateless; the
// validity window lives entirely in the exp claim.
type Minter struct {
	Secret      []byte
	PlaybackTTL time.Duration
	DownloadTTL time.Duration
}

func NewMinter(secret []byte, playbackTTL, downloadTTL time.Duration) *Minter {
	if playbackTTL <= 0 {
		playbackTTL = time.Hour
	}
	if downloadTTL <= 0 {
		downloadTTL = 15 * time.Minute
	}
	return &Minter{Secret: secret, PlaybackTTL: playbackTTL, DownloadTTL: downloadTTL}
}

func (m *Minter) MintWeb(userID, filename string, ttl *time.Duration) (string, error) {
	return m.sign(Claims{
		UserID:   userID,
		Filename: filename,
		Platform: PlatformWeb,
	}, m.playbackTTL(ttl))
}

func (m *Minter) MintMobile(userID, filename, videoID string, ttl *time.Duration) (string, error) {
	return m.sign(Claims{
		UserID:   userID,
		Filename: filename,
		VideoID:  videoID,
		Platform: PlatformMobile,
	}, m.playbackTTL(ttl))
}

func (m *Minter) MintDownloadV1(userID, filename string, ttl *time.Duration) (string, error) {
	return m.sign(Claims{
		UserID:   userID,
		Filename: filename,
		Platform: PlatformDownload,
		Action:   ActionDownload,
	}, m.downloadTTL(ttl))
}

func (m *Minter) MintV2Playback(userID, rel string, platform Platform, ttl *time.Duration) (string, error) {
	if platform != PlatformWeb && platform != PlatformMobile {
		return "", fmt.Errorf("platform must be web or mobile, got %q", platform)
	}
	return m.sign(Claims{
		UserID:   userID,
		Rel:      rel,
		Platform: platform,
	}, m.playbackTTL(ttl))
}

// V2DownloadRequest carries the fields of a v2 download mint. Which ones are
// required depends on Type.
type V2DownloadRequest struct {
	UserID   string
	Type     DownloadType
	Filename string
	Rel      string
	CourseID string
	ModuleID string
	TTL      *time.Duration

	// When set, Filename becomes mandatory for every type.
	RequireFilename bool
}

// Validate enforces the per-type required-field matrix.
func (r V2DownloadRequest) Validate() error {
	if r.UserID == "" {
		return errors.New("user_id is required")
	}
	switch r.Type {
	case DownloadLesson:
		if r.Rel == "" {
			return errors.New("rel is required for lesson downloads")
		}
	case DownloadCourse:
		if r.CourseID == "" {
			return errors.New("course_id is required for course downloads")
		}
	case DownloadModule:
		if r.CourseID == "" || r.ModuleID == "" {
			return errors.New("course_id and module_id are required for module downloads")
		}
	default:
		return fmt.Errorf("type must be lesson, course or module, got %q", r.Type)
	}
	if r.RequireFilename && r.Filename == "" {
		return errors.New("filename is required")
	}
	return nil
}

func (m *Minter) MintV2Download(req V2DownloadRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	return m.sign(Claims{
		UserID:   req.UserID,
		Type:     req.Type,
		Filename: req.Filename,
		Rel:      req.Rel,
		CourseID: req.CourseID,
		ModuleID: req.ModuleID,
		Platform: PlatformDownload,
		Action:   ActionDownload,
	}, m.downloadTTL(req.TTL))
}

// Verify checks signature and expiry and returns the claim set. It does not
// enforce binding; that is the gate's responsibility. Expiry is strict, with
// zero clock-skew tolerance.
func (m *Minter) Verify(credential string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(credential, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	return claims, nil
}

func (m *Minter) sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.ID = uuid.NewString()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.Secret)
}

func (m *Minter) playbackTTL(ttl *time.Duration) time.Duration {
	if ttl == nil {
		return m.PlaybackTTL
	}
	return *ttl
}

func (m *Minter) downloadTTL(ttl *time.Duration) time.Duration {
	if ttl == nil {
		return m.DownloadTTL
	}
	return *ttl
}

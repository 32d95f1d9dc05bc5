package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-signing-key")

func testMinter() *Minter {
	return NewMinter(testSecret, time.Hour, 15*time.Minute)
}

func TestWebCredentialRoundTrip(t *testing.T) {
	m := testMinter()

	credential, err := m.MintWeb("user-1", "intro.mp4", nil)
	require.NoError(t, err)

	claims, err := m.Verify(credential)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "intro.mp4", claims.Filename)
	require.Equal(t, PlatformWeb, claims.Platform)
	require.Empty(t, claims.VideoID)
	require.Empty(t, claims.Action)
	require.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.ExpiresAt)
}

func TestMobileCredentialCarriesVideoID(t *testing.T) {
	m := testMinter()

	credential, err := m.MintMobile("user-1", "intro.mp4", "intro", nil)
	require.NoError(t, err)

	claims, err := m.Verify(credential)
	require.NoError(t, err)
	require.Equal(t, PlatformMobile, claims.Platform)
	require.Equal(t, "intro", claims.VideoID)
}

func TestDownloadV1CredentialCarriesAction(t *testing.T) {
	m := testMinter()

	credential, err := m.MintDownloadV1("user-1", "intro.mp4", nil)
	require.NoError(t, err)

	claims, err := m.Verify(credential)
	require.NoError(t, err)
	require.Equal(t, PlatformDownload, claims.Platform)
	require.Equal(t, ActionDownload, claims.Action)
}

func TestV2PlaybackRejectsDownloadPlatform(t *testing.T) {
	m := testMinter()

	_, err := m.MintV2Playback("user-1", "t1/c1/m1/l1", PlatformDownload, nil)
	require.Error(t, err)

	credential, err := m.MintV2Playback("user-1", "t1/c1/m1/l1", PlatformMobile, nil)
	require.NoError(t, err)
	claims, err := m.Verify(credential)
	require.NoError(t, err)
	require.Equal(t, "t1/c1/m1/l1", claims.Rel)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	m := testMinter()
	credential, err := m.MintWeb("user-1", "intro.mp4", nil)
	require.NoError(t, err)

	other := NewMinter([]byte("a-different-key"), time.Hour, time.Hour)
	_, err = other.Verify(credential)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	m := testMinter()
	_, err := m.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestZeroTTLIsAlreadyExpired(t *testing.T) {
	m := testMinter()
	zero := time.Duration(0)

	credential, err := m.MintWeb("user-1", "intro.mp4", &zero)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = m.Verify(credential)
	require.ErrorIs(t, err, ErrInvalidCredential)
}

func TestExplicitTTLOverridesDefault(t *testing.T) {
	m := testMinter()
	short := 2 * time.Second

	credential, err := m.MintWeb("user-1", "intro.mp4", &short)
	require.NoError(t, err)

	claims, err := m.Verify(credential)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(short), claims.ExpiresAt.Time, time.Second)
}

func TestV2DownloadValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     V2DownloadRequest
		wantErr bool
	}{
		{
			name: "lesson needs rel",
			req:     V2DownloadRequest{UserID: "u", Type: DownloadLesson},
			wantErr: true,
		},
		{
			name: "lesson with rel",
			req:  V2DownloadRequest{UserID: "u", Type: DownloadLesson, Rel: "t/c/m/l"},
		},
		{
			name:    "course needs course_id",
			req:     V2DownloadRequest{UserID: "u", Type: DownloadCourse},
			wantErr: true,
		},
		{
			name: "course with course_id",
			req:  V2DownloadRequest{UserID: "u", Type: DownloadCourse, CourseID: "c1"},
		},
		{
			name:    "module needs both ids",
			req:     V2DownloadRequest{UserID: "u", Type: DownloadModule, CourseID: "c1"},
			wantErr: true,
		},
		{
			name: "module with both ids",
			req:  V2DownloadRequest{UserID: "u", Type: DownloadModule, CourseID: "c1", ModuleID: "m1"},
		},
		{
			name:    "unknown type",
			req:     V2DownloadRequest{UserID: "u", Type: "archive"},
			wantErr: true,
		},
		{
			name:    "missing user",
			req:     V2DownloadRequest{Type: DownloadCourse, CourseID: "c1"},
			wantErr: true,
		},
		{
			name:    "filename enforced when required",
			req:     V2DownloadRequest{UserID: "u", Type: DownloadCourse, CourseID: "c1", RequireFilename: true},
			wantErr: true,
		},
		{
			name: "filename satisfied when required",
			req:  V2DownloadRequest{UserID: "u", Type: DownloadCourse, CourseID: "c1", Filename: "presentation.mp4", RequireFilename: true},
		},
	}

	m := testMinter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			credential, err := m.MintV2Download(tt.req)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			claims, err := m.Verify(credential)
			require.NoError(t, err)
			require.Equal(t, tt.req.Type, claims.Type)
			require.Equal(t, PlatformDownload, claims.Platform)
			require.Equal(t, ActionDownload, claims.Action)
		})
	}
}

package middleware

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/focustagency/media-api/errors"
	"github.com/focustagency/media-api/log"
	"github.com/focustagency/media-api/metrics"
	"github.com/focustagency/media-api/requests"
	"github.com/focustagency/media-api/token"
)

// RouteBinding carries the identifiers a route names in its URL. The gate
// reads only the fields relevant to its audience; an empty field means the
// route does not name that identifier.
type RouteBinding struct {
	UserID   string
	Filename string
	VideoID  string
	Rel      string
	Type     token.DownloadType
	CourseID string
	ModuleID string
}

// BindFunc extracts the route binding from httprouter parameters.
type BindFunc func(httprouter.Params) RouteBinding

// Gate is the single authority deciding whether stored bytes are served.
// One parameterized gate keyed by audience covers the web, mobile and
// download policies.
type Gate struct {
	Minter                  *token.Minter
	AllowedOrigins          []string
	RequireDownloadFilename bool
}

// ExtractCredential returns the credential the caller presented: the
// Authorization bearer value or the token query parameter.
func ExtractCredential(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Gated wraps next with the audience's authorization policy. Failures are
// answered 403 with a generic body; the reason is only logged.
func (g *Gate) Gated(audience token.Platform, bind BindFunc, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		requestID := requests.GetRequestID(r)

		credential := ExtractCredential(r)
		if credential == "" {
			metrics.Metrics.GateDecisions.WithLabelValues(string(audience), "missing").Inc()
			errors.WriteHTTPForbidden(w, "missing credential", errors.ErrMissingCredential)
			return
		}

		if err := g.Authorize(r, audience, credential, bind(ps)); err != nil {
			metrics.Metrics.GateDecisions.WithLabelValues(string(audience), "denied").Inc()
			log.LogError(requestID, "gate denied request", err, "audience", audience, "uri", r.URL.RequestURI())
			errors.WriteHTTPForbidden(w, "forbidden", nil)
			return
		}

		metrics.Metrics.GateDecisions.WithLabelValues(string(audience), "allowed").Inc()
		next(w, r, ps)
	}
}

// Authorize verifies the credential and checks audience policy plus
// identifier bindings. Pure over (claims, route identifiers, referrer).
func (g *Gate) Authorize(r *http.Request, audience token.Platform, credential string, bind RouteBinding) error {
	claims, err := g.Minter.Verify(credential)
	if err != nil {
		return err
	}

	switch audience {
	case token.PlatformWeb:
		return g.authorizeWeb(r, claims, bind)
	case token.PlatformMobile:
		return g.authorizeMobile(claims, bind)
	case token.PlatformDownload:
		return g.authorizeDownload(claims, bind)
	}
	return fmt.Errorf("unknown audience %q", audience)
}

func (g *Gate) authorizeWeb(r *http.Request, claims *token.Claims, bind RouteBinding) error {
	if claims.Platform == token.PlatformMobile {
		return stderrors.New("mobile credential presented to web route")
	}
	if err := bindIdentifiers(claims, bind); err != nil {
		return err
	}
	referer := r.Header.Get("Referer")
	if referer == "" {
		return stderrors.New("missing referrer")
	}
	for _, origin := range g.AllowedOrigins {
		if strings.HasPrefix(referer, origin) {
			return nil
		}
	}
	return fmt.Errorf("referrer %q not allowed", referer)
}

func (g *Gate) authorizeMobile(claims *token.Claims, bind RouteBinding) error {
	if claims.Platform != token.PlatformMobile {
		return fmt.Errorf("platform %q presented to mobile route", claims.Platform)
	}
	return bindIdentifiers(claims, bind)
}

func (g *Gate) authorizeDownload(claims *token.Claims, bind RouteBinding) error {
	if claims.Action != token.ActionDownload && claims.Platform != token.PlatformDownload {
		return stderrors.New("credential does not permit downloads")
	}
	if err := match("user_id", claims.UserID, bind.UserID); err != nil {
		return err
	}
	if g.RequireDownloadFilename && bind.Filename != "" {
		if claims.Filename == "" {
			return stderrors.New("credential does not bind a filename")
		}
		if claims.Filename != bind.Filename {
			return fmt.Errorf("filename mismatch: credential binds %q", claims.Filename)
		}
	}
	if err := match("rel", claims.Rel, bind.Rel); err != nil {
		return err
	}
	if err := match("type", string(claims.Type), string(bind.Type)); err != nil {
		return err
	}
	if err := match("course_id", claims.CourseID, bind.CourseID); err != nil {
		return err
	}
	return match("module_id", claims.ModuleID, bind.ModuleID)
}

// bindIdentifiers enforces claim equality for every identifier the route
// names. A route identifier with no corresponding claim is vacuous.
func bindIdentifiers(claims *token.Claims, bind RouteBinding) error {
	if err := match("user_id", claims.UserID, bind.UserID); err != nil {
		return err
	}
	if err := match("filename", claims.Filename, bind.Filename); err != nil {
		return err
	}
	if err := match("video_id", claims.VideoID, bind.VideoID); err != nil {
		return err
	}
	return match("rel", claims.Rel, bind.Rel)
}

func match(name, claim, route string) error {
	if claim == "" || route == "" {
		return nil
	}
	if claim != route {
		return fmt.Errorf("%s mismatch: credential binds %q, route names %q", name, claim, route)
	}
	return nil
}

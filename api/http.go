package api

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/focustagency/media-api/config"
	"github.com/focustagency/media-api/handlers"
	"github.com/focustagency/media-api/log"
	"github.com/focustagency/media-api/middleware"
	"github.com/focustagency/media-api/pipeline"
	"github.com/focustagency/media-api/storage"
	"github.com/focustagency/media-api/token"
)

func ListenAndServe(ctx context.Context, cli config.Cli, minter *token.Minter, coordinator *pipeline.Coordinator) error {
	router := NewMediaAPIRouter(cli, minter, coordinator)
	server := http.Server{Addr: cli.HTTPAddress, Handler: router}
	ctx, cancel := context.WithCancel(ctx)

	log.LogNoRequestID(
		"Starting Media API!",
		"host", cli.HTTPAddress,
		"publicBaseURL", cli.PublicBaseURL.String(),
	)

	var err error
	go func() {
		err = server.ListenAndServe()
		cancel()
	}()

	<-ctx.Done()
	if err != nil {
		return err
	}

	ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func NewMediaAPIRouter(cli config.Cli, minter *token.Minter, coordinator *pipeline.Coordinator) *httprouter.Router {
	router := httprouter.New()
	withLogging := middleware.LogRequest()
	withCORS := middleware.AllowCORS(cli.AllowedOrigins)

	roots := storage.Roots{
		Uploads:       cli.UploadsRoot,
		Originals:     cli.OriginalsRoot,
		HLS:           cli.HLSRoot,
		Presentations: cli.PresentationsRoot,
	}
	gate := &middleware.Gate{
		Minter:                  minter,
		AllowedOrigins:          cli.AllowedOrigins,
		RequireDownloadFilename: cli.RequireDownloadFilename,
	}

	tokenHandlers := &handlers.TokenHandlersCollection{
		Minter:                  minter,
		Roots:                   roots,
		PublicBaseURL:           cli.PublicBaseURL,
		RequireDownloadFilename: cli.RequireDownloadFilename,
	}
	streamHandlers := &handlers.StreamHandlersCollection{
		Roots:         roots,
		PublicBaseURL: cli.PublicBaseURL,
	}
	downloadHandlers := &handlers.DownloadHandlersCollection{Roots: roots}
	uploadHandlers := &handlers.UploadHandlersCollection{
		Roots:              roots,
		Coordinator:        coordinator,
		DefaultCallbackURL: cli.DefaultCallbackURL,
	}

	// Simple endpoint for healthchecks
	router.GET("/ok", withLogging(handlers.Ok()))
	router.Handler("GET", "/metrics", promhttp.Handler())

	// Credential minting. Both endpoints multiplex their legacy, mobile and
	// hierarchical forms through a catch-all parameter.
	router.GET("/api/get-video-token/*params", withLogging(withCORS(tokenHandlers.GetVideoToken())))
	router.GET("/api/get-download-token/*params", withLogging(withCORS(tokenHandlers.GetDownloadToken())))

	// Web playback
	router.GET("/videos-user/:user_id/:filename",
		withLogging(withCORS(gate.Gated(token.PlatformWeb, bindUserFile, streamHandlers.VideosUser()))))
	router.GET("/hls/:user_id/:video_id/:file",
		withLogging(withCORS(gate.Gated(token.PlatformWeb, bindUser, streamHandlers.HLSFile()))))
	router.GET("/hls2/*params",
		withLogging(withCORS(gate.Gated(token.PlatformWeb, bindRel, streamHandlers.HLSFileV2()))))

	// Mobile playback
	router.GET("/mobile/hls/:user_id/:video_id/:file",
		withLogging(withCORS(gate.Gated(token.PlatformMobile, bindUserVideo, streamHandlers.MobileHLSFile()))))
	router.GET("/mobile/hls2/*params",
		withLogging(withCORS(gate.Gated(token.PlatformMobile, bindRel, streamHandlers.MobileHLSFileV2()))))

	// Downloads
	router.GET("/api/download/:user_id/:filename",
		withLogging(withCORS(gate.Gated(token.PlatformDownload, bindUserFile, downloadHandlers.DownloadV1()))))
	router.GET("/download2/*params",
		withLogging(withCORS(gate.Gated(token.PlatformDownload, handlers.BindDownloadV2, downloadHandlers.DownloadV2()))))

	// Uploads
	router.POST("/upload", withLogging(uploadHandlers.Upload()))
	router.POST("/upload/lesson", withLogging(uploadHandlers.UploadLesson()))
	router.POST("/upload_presentation", withLogging(uploadHandlers.UploadPresentation()))
	router.POST("/upload_presentation/course/:course_id", withLogging(uploadHandlers.UploadPresentation()))
	router.POST("/upload_presentation/module/:course_id/:module_id", withLogging(uploadHandlers.UploadPresentation()))

	// Preflight for the credentialed routes
	router.GlobalOPTIONS = corsPreflight(cli.AllowedOrigins)

	return router
}

func bindUserFile(ps httprouter.Params) middleware.RouteBinding {
	return middleware.RouteBinding{UserID: ps.ByName("user_id"), Filename: ps.ByName("filename")}
}

func bindUser(ps httprouter.Params) middleware.RouteBinding {
	return middleware.RouteBinding{UserID: ps.ByName("user_id")}
}

func bindUserVideo(ps httprouter.Params) middleware.RouteBinding {
	return middleware.RouteBinding{UserID: ps.ByName("user_id"), VideoID: ps.ByName("video_id")}
}

func bindRel(ps httprouter.Params) middleware.RouteBinding {
	rel, _, err := handlers.ParseV2Path(ps)
	if err != nil {
		return middleware.RouteBinding{}
	}
	return middleware.RouteBinding{Rel: rel.String()}
}

func corsPreflight(allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		for _, allowed := range allowedOrigins {
			if origin == allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				break
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

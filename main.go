package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/focustagency/media-api/api"
	"github.com/focustagency/media-api/clients"
	"github.com/focustagency/media-api/config"
	"github.com/focustagency/media-api/log"
	"github.com/focustagency/media-api/pipeline"
	"github.com/focustagency/media-api/token"
)

func main() {
	config.LoadDotEnv("")

	cli, err := config.Parse(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	if cli.SecretKey == "" {
		log.LogNoRequestID("WARNING: SECRET_KEY is unset, using the development signing key")
	}

	redisOpts, err := redis.ParseURL(cli.RedisURL)
	if err != nil {
		log.Fatal(err)
	}
	rdb := redis.NewClient(redisOpts)

	minter := token.NewMinter(
		cli.Secret(),
		time.Duration(cli.TokenExpirySecs)*time.Second,
		time.Duration(cli.DownloadTokenExpirySecs)*time.Second,
	)

	queue := pipeline.NewQueue(rdb)
	callback := clients.NewCallbackClient(cli.CallbackBearer)
	coordinator := pipeline.NewCoordinator(queue, pipeline.FFmpeg{}, callback, cli.HLSRoot, cli.PublicBaseURL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		coordinator.RunWorkers(ctx, cli.TranscodeWorkers)
		return nil
	})

	group.Go(func() error {
		return api.ListenAndServe(ctx, cli, minter, coordinator)
	})

	if err := group.Wait(); err != nil {
		log.Fatal(err)
	}
}

// Command vexmarket is the VEX Market desktop client.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/account"
	"github.com/rexlx/vexmarket/internal/chat"
	"github.com/rexlx/vexmarket/internal/config"
	"github.com/rexlx/vexmarket/internal/gateway"
	"github.com/rexlx/vexmarket/internal/listing"
	"github.com/rexlx/vexmarket/internal/location"
	"github.com/rexlx/vexmarket/internal/logging"
	"github.com/rexlx/vexmarket/internal/notify"
	"github.com/rexlx/vexmarket/internal/realtime"
	"github.com/rexlx/vexmarket/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, JSON: cfg.LogJSON})
	if err != nil {
		return err
	}
	defer closer.Close()

	gw, err := gateway.New(cfg.APIBaseURL,
		gateway.WithLogger(logger),
		gateway.WithThrottle(gateway.NewThrottle(cfg.RateRPS, cfg.RateBurst)))
	if err != nil {
		return err
	}

	sess := session.New(gw, logger)

	dir, err := cfg.ProfileDir()
	if err != nil {
		return err
	}
	storage, err := location.OpenFile(filepath.Join(dir, "storage.json"))
	if err != nil {
		return err
	}
	loc, err := location.Open(storage)
	if err != nil {
		return err
	}

	ch := realtime.New(cfg.SocketURL,
		realtime.WebsocketDialer{Jar: gw.CookieJar()},
		realtime.GatewayTokens{Req: gw},
		realtime.WithLogger(logger))
	defer ch.Close()
	stopFollow := ch.FollowSession(sess)
	defer stopFollow()

	fa := fyneapp.NewWithID("market.vex.desktop")
	chats := chat.NewClient(gw)
	var a *app
	toast := func(n internal.Notice) {
		fyne.Do(func() { a.toast(n) })
	}
	dispatcher := notify.New(sess, chats, toast, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dispatcher.Attach(ctx, ch)

	a = &app{
		fa:       fa,
		cfg:      cfg,
		logger:   logger,
		gw:       gw,
		session:  sess,
		location: loc,
		confirm:  location.NewConfirmer(gw),
		channel:  ch,
		notify:   dispatcher,
		accounts: account.NewService(gw, sess),
		listings: listing.NewService(gw, sess),
		chats:    chats,
	}
	a.win = fa.NewWindow(session.DefaultTitle)
	a.win.Resize(fyne.NewSize(1000, 800))
	a.build(ctx)

	go func() {
		if err := sess.Refresh(ctx); err != nil {
			logger.Warn("loading session", "error", err)
		}
		fyne.Do(a.ready)
		ch.Start()
	}()

	a.win.ShowAndRun()
	dispatcher.Wait()
	return nil
}

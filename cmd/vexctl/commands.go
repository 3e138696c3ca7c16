package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/account"
	"github.com/rexlx/vexmarket/internal/chat"
	"github.com/rexlx/vexmarket/internal/listing"
	"github.com/rexlx/vexmarket/internal/location"
	"github.com/rexlx/vexmarket/internal/notify"
	"github.com/rexlx/vexmarket/internal/realtime"
)

func cmdRegister(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	var r account.Registration
	fs.StringVar(&r.FirstName, "first", "", "first name")
	fs.StringVar(&r.LastName, "last", "", "last name")
	fs.StringVar(&r.Email, "email", "", "email")
	fs.StringVar(&r.Password, "pass", "", "password")
	_ = fs.Parse(args)
	r.Confirm = r.Password

	if err := e.account.Register(ctx, r); err != nil {
		return err
	}
	fmt.Fprintln(e.out, "Account created. Check your email to verify it.")
	return nil
}

func cmdWhoami(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ExitOnError)
	email, pass := credentials(fs)
	_ = fs.Parse(args)
	if err := e.signIn(ctx, *email, *pass); err != nil {
		return err
	}
	s := e.session.Current()
	fmt.Fprintf(e.out, "user %d: %s %s <%s>, %d unread\n",
		e.session.UserID(), deref(s.FirstName), deref(s.LastName), deref(s.Email), e.session.Unread())
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// zipFlag defaults a -zip flag to the stored location.
func (e *env) zipFlag(fs *flag.FlagSet) *string {
	def := ""
	if store, err := e.location(); err == nil {
		def = store.Zip()
	}
	return fs.String("zip", def, "ZIP code, empty for everywhere")
}

func cmdSearch(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	q := fs.String("q", "", "search text")
	zip := e.zipFlag(fs)
	page := fs.Int("page", 1, "result page")
	_ = fs.Parse(args)

	res, err := listing.NewService(e.gw, e.session).Search(ctx, listing.Query{Text: *q, Zip: *zip, Page: *page})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPRICE\tWHERE")
	for _, l := range res.Listings {
		fmt.Fprintf(tw, "%d\t%s\t$%s\t%s\n", l.ID, l.Title, l.Price, l.ZipFriendly)
	}
	fmt.Fprintf(tw, "\npage %d of %d\n", *page, res.EstimatedPages)
	return tw.Flush()
}

func cmdListing(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("listing", flag.ExitOnError)
	id := fs.Int64("id", 0, "listing id")
	_ = fs.Parse(args)

	l, err := listing.NewService(e.gw, e.session).Get(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s  $%s\n%s, %s, %s\n\n%s\n", l.Title, l.Price, l.Condition, l.Type, l.ZipFriendly, l.Description)
	for _, img := range l.Images {
		fmt.Fprintln(e.out, "image:", img)
	}
	if l.Archived {
		fmt.Fprintln(e.out, "(archived)")
	}
	return nil
}

func cmdMine(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("mine", flag.ExitOnError)
	email, pass := credentials(fs)
	_ = fs.Parse(args)
	if err := e.signIn(ctx, *email, *pass); err != nil {
		return err
	}
	mine, err := listing.NewService(e.gw, e.session).Mine(ctx)
	if err != nil {
		return err
	}
	for _, l := range mine {
		state := ""
		if l.Archived {
			state = " (archived)"
		}
		fmt.Fprintf(e.out, "%d  %s  $%s%s\n", l.ID, l.Title, l.Price, state)
	}
	return nil
}

func cmdChats(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("chats", flag.ExitOnError)
	email, pass := credentials(fs)
	_ = fs.Parse(args)
	if err := e.signIn(ctx, *email, *pass); err != nil {
		return err
	}
	list, err := chat.NewClient(e.gw).List(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAT\tWITH\tLISTING\tLAST\t")
	for _, c := range list {
		mark := ""
		if c.Unread {
			mark = "*"
		}
		fmt.Fprintf(tw, "%d%s\t%s\t%s\t%s\t%s\n", c.ChatID, mark, c.CounterpartyName, deref(c.PostTitle), deref(c.LastMessage), stamp(c.LastTimestamp))
	}
	return tw.Flush()
}

func cmdHistory(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	email, pass := credentials(fs)
	id := fs.Int64("chat", 0, "chat id")
	all := fs.Bool("all", false, "page back to the first message")
	_ = fs.Parse(args)
	if err := e.signIn(ctx, *email, *pass); err != nil {
		return err
	}

	s := chat.NewSynchronizer(e.gw, *id, chat.WithSyncLogger(e.logger))
	defer s.Close()
	if err := s.LoadInitial(ctx); err != nil {
		return err
	}
	for *all && s.HasMore() {
		if err := s.LoadOlder(ctx, s.Oldest()); err != nil {
			return err
		}
	}

	snap := s.Snapshot()
	fmt.Fprintf(e.out, "%s about %q\n", snap.Info.CounterpartyName, deref(snap.Info.PostTitle))
	me := e.session.UserID()
	for _, g := range s.Groups(nil) {
		if g.NewDay {
			fmt.Fprintf(e.out, "\n--- %s ---\n", chat.DayLabel(g.Day))
		}
		who := snap.Info.CounterpartyName
		if g.AuthorID == me {
			who = "You"
		}
		for _, m := range g.Messages {
			fmt.Fprintf(e.out, "%s: %s\n", who, m.Body())
		}
		fmt.Fprintf(e.out, "    %s\n", chat.TimeLabel(g.Last().Time()))
	}
	if s.HasMore() {
		fmt.Fprintln(e.out, "(older messages available, use -all)")
	}
	return nil
}

func cmdSend(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	email, pass := credentials(fs)
	id := fs.Int64("chat", 0, "chat id")
	post := fs.Int64("listing", 0, "start a new chat about this listing instead")
	text := fs.String("m", "", "message")
	_ = fs.Parse(args)
	if err := e.signIn(ctx, *email, *pass); err != nil {
		return err
	}

	c := chat.NewClient(e.gw)
	if *post != 0 {
		chatID, err := c.Start(ctx, *post, *text)
		if err != nil {
			return err
		}
		fmt.Fprintln(e.out, "chat", chatID)
		return nil
	}
	return c.Send(ctx, *id, *text)
}

func (e *env) location() (*location.Store, error) {
	dir, err := e.cfg.ProfileDir()
	if err != nil {
		return nil, err
	}
	fs, err := location.OpenFile(filepath.Join(dir, "storage.json"))
	if err != nil {
		return nil, err
	}
	return location.Open(fs)
}

func cmdLocation(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("location", flag.ExitOnError)
	zip := fs.String("zip", "", "set this ZIP code")
	detect := fs.String("detect", "", "resolve LAT,LONG to a ZIP code")
	reset := fs.Bool("clear", false, "search everywhere")
	_ = fs.Parse(args)

	store, err := e.location()
	if err != nil {
		return err
	}
	c := location.NewConfirmer(e.gw)
	switch {
	case *reset:
		err = store.Set("")
	case *zip != "":
		err = c.SetManual(ctx, store, location.Normalize(*zip))
	case *detect != "":
		var pos location.Coordinates
		pos, err = parseCoordinates(*detect)
		if err == nil {
			_, err = c.Detect(ctx, store, location.Fixed(pos))
		}
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, "Location:", store.Label())
	return nil
}

func parseCoordinates(s string) (location.Coordinates, error) {
	lat, long, found := strings.Cut(s, ",")
	if !found {
		return location.Coordinates{}, errors.New("expected LAT,LONG")
	}
	la, err := strconv.ParseFloat(strings.TrimSpace(lat), 64)
	if err != nil {
		return location.Coordinates{}, fmt.Errorf("latitude: %w", err)
	}
	lo, err := strconv.ParseFloat(strings.TrimSpace(long), 64)
	if err != nil {
		return location.Coordinates{}, fmt.Errorf("longitude: %w", err)
	}
	return location.Coordinates{Lat: la, Long: lo}, nil
}

// cmdWatch prints notifications until interrupted.
func cmdWatch(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	email, pass := credentials(fs)
	_ = fs.Parse(args)
	if err := e.signIn(ctx, *email, *pass); err != nil {
		return err
	}

	ch := realtime.New(e.cfg.SocketURL,
		realtime.WebsocketDialer{Jar: e.gw.CookieJar()},
		realtime.GatewayTokens{Req: e.gw},
		realtime.WithLogger(e.logger))
	defer ch.Close()

	d := notify.New(e.session, chat.NewClient(e.gw), func(n internal.Notice) {
		fmt.Fprintf(e.out, "[chat %d] %s: %s\n", n.ChatID, n.Title, n.Body)
	}, e.logger)
	cancel := d.Attach(ctx, ch)
	defer cancel()
	ch.Subscribe(ctx, func(ev realtime.Event) {
		switch ev := ev.(type) {
		case realtime.Connected:
			fmt.Fprintln(e.out, "connected")
		case realtime.Disconnected:
			fmt.Fprintln(e.out, "disconnected:", ev.Err)
		}
	})
	ch.Start()

	<-ctx.Done()
	d.Wait()
	return nil
}

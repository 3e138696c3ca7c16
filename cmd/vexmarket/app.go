package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/account"
	"github.com/rexlx/vexmarket/internal/chat"
	"github.com/rexlx/vexmarket/internal/config"
	"github.com/rexlx/vexmarket/internal/gateway"
	"github.com/rexlx/vexmarket/internal/listing"
	"github.com/rexlx/vexmarket/internal/location"
	"github.com/rexlx/vexmarket/internal/notify"
	"github.com/rexlx/vexmarket/internal/realtime"
	"github.com/rexlx/vexmarket/internal/session"
)

// app owns the window and every long lived component. Fields set in
// build are only touched on the fyne main goroutine.
type app struct {
	fa     fyne.App
	win    fyne.Window
	cfg    *config.Config
	logger *slog.Logger
	ctx    context.Context

	gw       *gateway.Gateway
	session  *session.Store
	location *location.Store
	confirm  *location.Confirmer
	channel  *realtime.Channel
	notify   *notify.Dispatcher
	accounts *account.Service
	listings *listing.Service
	chats    *chat.Client

	body      *fyne.Container
	banners   *fyne.Container
	page      string
	gen       int
	leave     func()
	messages  *widget.Button
	whereBtn  *widget.Button
	authBtn   *widget.Button
	connected *widget.Icon
}

func (a *app) build(ctx context.Context) {
	a.ctx = ctx
	a.body = container.NewStack()
	a.banners = container.NewVBox()

	browse := widget.NewButtonWithIcon("Browse", theme.SearchIcon(), func() { a.showBrowse("") })
	sell := widget.NewButtonWithIcon("Sell", theme.ContentAddIcon(), func() { a.requireLogin(a.showCreate) })
	a.messages = widget.NewButtonWithIcon("Messages", theme.MailComposeIcon(), func() { a.requireLogin(a.showMessages) })
	a.whereBtn = widget.NewButtonWithIcon("", theme.NavigateNextIcon(), a.showLocation)
	a.authBtn = widget.NewButton("Log in", nil)
	settings := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() { a.requireLogin(a.showSettings) })
	a.connected = widget.NewIcon(theme.MediaRecordIcon())
	a.connected.Hide()

	header := container.NewHBox(
		widget.NewLabelWithStyle("VEX Market", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		browse, sell, a.messages,
		layout.NewSpacer(),
		a.connected, a.whereBtn, settings, a.authBtn,
	)
	a.win.SetContent(container.NewBorder(
		container.NewVBox(container.NewPadded(header), widget.NewSeparator()),
		a.banners, nil, nil,
		a.body,
	))

	a.session.Subscribe(func(prev, next internal.Session) {
		fyne.Do(a.refreshHeader)
	})
	a.location.Subscribe(func(string) {
		fyne.Do(a.refreshHeader)
	})
	a.channel.Subscribe(ctx, func(e realtime.Event) {
		fyne.Do(func() {
			if a.channel.State() >= internal.Connected {
				a.connected.Show()
			} else {
				a.connected.Hide()
			}
		})
	})

	a.refreshHeader()
	a.show("", loading("Loading"), nil)
}

// ready replaces the loading page once the first session refresh is in.
func (a *app) ready() {
	a.refreshHeader()
	a.showBrowse("")
}

func (a *app) refreshHeader() {
	a.win.SetTitle(a.session.Title(a.page))
	a.whereBtn.SetText(a.location.Label())

	cur := a.session.Current()
	if n := a.session.Unread(); n > 0 {
		a.messages.SetText(fmt.Sprintf("Messages (%d)", n))
	} else {
		a.messages.SetText("Messages")
	}
	if cur.LoggedIn {
		a.authBtn.SetText("Log out")
		a.authBtn.OnTapped = a.logout
	} else {
		a.authBtn.SetText("Log in")
		a.authBtn.OnTapped = func() { a.showLogin(func() { a.showBrowse("") }) }
	}
}

// show swaps the page. leave runs when the page is replaced.
func (a *app) show(title string, content fyne.CanvasObject, leave func()) {
	if a.leave != nil {
		a.leave()
	}
	a.leave = leave
	a.page = title
	a.gen++
	a.body.Objects = []fyne.CanvasObject{content}
	a.body.Refresh()
	a.win.SetTitle(a.session.Title(title))
}

// requireLogin shows the login page first when nobody is logged in and
// continues to next afterwards.
func (a *app) requireLogin(next func()) {
	if a.session.Current().LoggedIn {
		next()
		return
	}
	a.showLogin(next)
}

func (a *app) logout() {
	go func() {
		err := a.accounts.Logout(a.ctx)
		fyne.Do(func() {
			if err != nil {
				a.toastError(err)
			}
			a.showBrowse("")
		})
	}()
}

// async runs fn off the main goroutine and then done on it. done is
// skipped when the page was replaced in between.
func (a *app) async(fn func(ctx context.Context) error, done func(err error)) {
	gen := a.gen
	go func() {
		err := fn(a.ctx)
		fyne.Do(func() {
			if a.gen == gen {
				done(err)
			}
		})
	}()
}

func (a *app) toastError(err error) {
	dialog.ShowError(errors.New(internal.Describe(err)), a.win)
}

// errorPage is the full page failure view of a page load.
func (a *app) errorPage(title string, err error, retry func()) {
	msg := widget.NewLabel(internal.Describe(err))
	msg.Wrapping = fyne.TextWrapWord
	msg.Alignment = fyne.TextAlignCenter
	box := container.NewVBox(
		widget.NewLabelWithStyle(title, fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		msg,
	)
	buttons := container.NewHBox(widget.NewButton("Back", func() { a.showBrowse("") }))
	if retry != nil && internal.Retryable(err) {
		buttons.Add(widget.NewButtonWithIcon("Try again", theme.ViewRefreshIcon(), retry))
	}
	box.Add(container.NewCenter(buttons))
	a.show(title, container.NewCenter(box), nil)
}

func loading(title string) fyne.CanvasObject {
	return container.NewCenter(container.NewVBox(
		widget.NewLabelWithStyle(title, fyne.TextAlignCenter, fyne.TextStyle{Italic: true}),
		widget.NewProgressBarInfinite(),
	))
}

// absolute turns a backend relative path into a URL.
func (a *app) absolute(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return strings.TrimRight(a.gw.BaseURL(), "/") + "/" + strings.TrimLeft(path, "/")
}

package main

import (
	"context"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/chat"
	"github.com/rexlx/vexmarket/internal/listing"
	"github.com/rexlx/vexmarket/internal/realtime"
)

var chatImageSize = fyne.NewSize(240, 180)

func stamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	return time.UnixMilli(ms).Format("Jan 2 15:04")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// showMessages lists conversations, newest first. It reloads while open
// whenever a chat event arrives.
func (a *app) showMessages() {
	var (
		list   []internal.ChatSummary
		render func()
	)
	rows := widget.NewList(
		func() int { return len(list) },
		func() fyne.CanvasObject {
			return container.NewBorder(nil, nil, nil, widget.NewLabel("stamp"),
				container.NewVBox(widget.NewLabel("name"), widget.NewLabel("preview")))
		},
		func(i widget.ListItemID, o fyne.CanvasObject) {
			c := list[i]
			b := o.(*fyne.Container)
			text := b.Objects[0].(*fyne.Container)
			name := text.Objects[0].(*widget.Label)
			name.SetText(c.CounterpartyName + "  ·  " + deref(c.PostTitle))
			name.TextStyle = fyne.TextStyle{Bold: c.Unread}
			name.Refresh()
			text.Objects[1].(*widget.Label).SetText(deref(c.LastMessage))
			b.Objects[1].(*widget.Label).SetText(stamp(c.LastTimestamp))
		},
	)
	rows.OnSelected = func(i widget.ListItemID) {
		a.showChat(list[i].ChatID)
	}
	empty := container.NewCenter(widget.NewLabel("No messages yet."))
	body := container.NewStack(loading("Loading messages"))

	reload := func() {
		var got []internal.ChatSummary
		a.async(func(ctx context.Context) (err error) {
			got, err = a.chats.List(ctx)
			return err
		}, func(err error) {
			if err != nil {
				a.errorPage("Messages", err, a.showMessages)
				return
			}
			list = got
			render()
		})
	}
	render = func() {
		if len(list) == 0 {
			body.Objects = []fyne.CanvasObject{empty}
		} else {
			body.Objects = []fyne.CanvasObject{rows}
			rows.UnselectAll()
			rows.Refresh()
		}
		body.Refresh()
	}

	cancel := a.channel.Subscribe(a.ctx, func(e realtime.Event) {
		if _, ok := e.(realtime.ChatReceived); ok {
			fyne.Do(reload)
		}
	})
	a.show("Messages", body, cancel)
	reload()
}

// showChat opens one conversation. Live messages reach it through the
// notify dispatcher for as long as the page is on screen.
func (a *app) showChat(chatID int64) {
	box := container.NewVBox()
	scroll := container.NewVScroll(box)
	title := widget.NewLabelWithStyle("", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	subtitle := container.NewHBox()
	older := widget.NewButton("Load older messages", nil)
	older.Hide()
	body := container.NewStack(loading("Loading conversation"))

	left := false
	var (
		conv   *chat.Synchronizer
		render func()
	)
	conv = chat.NewSynchronizer(a.gw, chatID,
		chat.WithViewport(scrollViewport{scroll}),
		chat.WithSyncLogger(a.logger),
		chat.OnChange(func() { fyne.Do(render) }))
	closeView := a.notify.Open(chatID, conv)

	me := a.session.UserID()
	render = func() {
		if left {
			return
		}
		snap := conv.Snapshot()
		switch {
		case snap.Err != nil:
			a.errorPage("Messages", snap.Err, func() { a.showChat(chatID) })
			return
		case !snap.Loaded:
			return
		}

		title.SetText(snap.Info.CounterpartyName)
		subtitle.RemoveAll()
		if snap.Info.PostID != nil {
			post := *snap.Info.PostID
			subtitle.Add(widget.NewButton(deref(snap.Info.PostTitle), func() { a.showListing(post) }))
		}
		if snap.Info.PostArchived != nil && *snap.Info.PostArchived {
			subtitle.Add(widget.NewLabelWithStyle("archived", fyne.TextAlignLeading, fyne.TextStyle{Italic: true}))
		}
		if snap.HasMore {
			older.Show()
		} else {
			older.Hide()
		}
		if snap.Loading {
			older.Disable()
		} else {
			older.Enable()
		}

		box.RemoveAll()
		for _, g := range chat.GroupMessages(snap.Messages, nil) {
			if g.NewDay {
				box.Add(widget.NewLabelWithStyle(chat.DayLabel(g.Day), fyne.TextAlignCenter, fyne.TextStyle{Italic: true}))
			}
			mine := g.AuthorID == me
			for _, m := range g.Messages {
				box.Add(a.bubble(m, mine))
			}
			when := canvas.NewText(chat.TimeLabel(g.Last().Time()), theme.Color(theme.ColorNamePlaceHolder))
			when.TextSize = theme.CaptionTextSize()
			if mine {
				when.Alignment = fyne.TextAlignTrailing
			}
			box.Add(when)
		}
		body.Objects = []fyne.CanvasObject{scroll}
		body.Refresh()
	}

	older.OnTapped = func() {
		before := conv.Oldest()
		go func() { _ = conv.LoadOlder(a.ctx, before) }()
	}

	input := NewSubmitEntry()
	input.SetPlaceHolder("Write a message")
	send := func(text string) {
		input.SetText("")
		a.async(func(ctx context.Context) error {
			return a.chats.Send(ctx, chatID, text)
		}, func(err error) {
			if err != nil {
				input.SetText(text)
				a.toastError(err)
			}
		})
	}
	input.OnSubmit = send
	sendBtn := widget.NewButtonWithIcon("", theme.MailSendIcon(), func() {
		if input.Text != "" {
			send(input.Text)
		}
	})
	imageBtn := widget.NewButtonWithIcon("", theme.FileImageIcon(), func() {
		pickImage(a.win, func(name string, data []byte, err error) {
			if err == nil {
				_, err = listing.NewAttachment(name, data)
			}
			if err != nil {
				a.toastError(err)
				return
			}
			a.async(func(ctx context.Context) error {
				return a.chats.SendImage(ctx, chatID, name, data)
			}, func(err error) {
				if err != nil {
					a.toastError(err)
				}
			})
		})
	})

	header := container.NewVBox(container.NewHBox(
		widget.NewButtonWithIcon("", theme.NavigateBackIcon(), a.showMessages),
		title, subtitle,
	), older)
	compose := container.NewBorder(nil, nil, imageBtn, sendBtn, input)

	a.show("Messages", container.NewBorder(
		container.NewPadded(header),
		container.NewPadded(compose),
		nil, nil,
		container.NewPadded(body),
	), func() {
		left = true
		closeView()
		conv.Close()
	})

	go func() {
		if err := conv.LoadInitial(a.ctx); err != nil {
			return
		}
		if err := a.chats.MarkRead(a.ctx, chatID); err != nil {
			a.logger.Debug("marking chat read", "chat", chatID, "error", err)
		}
		a.session.RefreshNotifications(a.ctx)
	}()
}

// bubble draws one message, right aligned when it is the user's own.
func (a *app) bubble(m internal.Message, mine bool) fyne.CanvasObject {
	var content fyne.CanvasObject
	if m.IsImage() {
		content = remoteImage(a.absolute(*m.ImageURL), chatImageSize)
	} else {
		l := widget.NewLabel(m.Body())
		l.Wrapping = fyne.TextWrapWord
		if mine {
			l.Importance = widget.HighImportance
		}
		content = l
	}
	if mine {
		return container.NewGridWithColumns(2, layout.NewSpacer(), content)
	}
	return container.NewGridWithColumns(2, content, layout.NewSpacer())
}

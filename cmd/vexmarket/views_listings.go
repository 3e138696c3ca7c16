package main

import (
	"context"
	"errors"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/listing"
)

var (
	cardSize  = fyne.NewSize(220, 250)
	thumbSize = fyne.NewSize(200, 140)
	photoSize = fyne.NewSize(480, 360)
)

func deliveryLabel(t internal.DeliveryType) string {
	switch t {
	case internal.DeliveryLocal:
		return "Local pickup"
	case internal.DeliveryShipping:
		return "Shipping"
	case internal.DeliveryBoth:
		return "Pickup or shipping"
	}
	return string(t)
}

func price(l internal.Listing) string {
	if c, err := listing.ParseCents(l.Price.String()); err == nil {
		return "$" + listing.FormatCents(c)
	}
	return "$" + l.Price.String()
}

func (a *app) card(l internal.Listing) fyne.CanvasObject {
	var img fyne.CanvasObject = widget.NewIcon(theme.MediaPhotoIcon())
	if len(l.Images) > 0 {
		img = remoteImage(a.absolute(l.Images[0]), thumbSize)
	}
	open := widget.NewButton("View", func() { a.showListing(l.ID) })
	return widget.NewCard(l.Title, price(l)+"  ·  "+l.ZipFriendly,
		container.NewBorder(nil, open, nil, nil, img))
}

// showBrowse is the search page. Results follow the stored location.
func (a *app) showBrowse(query string) {
	search := widget.NewEntry()
	search.SetPlaceHolder("Search listings")
	search.SetText(query)

	results := container.NewStack()
	pageLabel := widget.NewLabel("")
	prev := widget.NewButtonWithIcon("", theme.NavigateBackIcon(), nil)
	next := widget.NewButtonWithIcon("", theme.NavigateNextIcon(), nil)

	page, pages := 1, 1
	var load func(int)
	load = func(n int) {
		results.Objects = []fyne.CanvasObject{loading("Searching")}
		results.Refresh()
		q := listing.Query{Text: search.Text, Zip: a.location.Zip(), Page: n}
		var res listing.Page
		a.async(func(ctx context.Context) (err error) {
			res, err = a.listings.Search(ctx, q)
			return err
		}, func(err error) {
			if err != nil {
				a.errorPage("Browse", err, func() { a.showBrowse(q.Text) })
				return
			}
			page, pages = n, max(res.EstimatedPages, 1)
			pageLabel.SetText(fmt.Sprintf("Page %d of %d", page, pages))
			prev.Disable()
			next.Disable()
			if page > 1 {
				prev.Enable()
			}
			if page < pages {
				next.Enable()
			}
			if len(res.Listings) == 0 {
				results.Objects = []fyne.CanvasObject{container.NewCenter(widget.NewLabel("No listings found."))}
				results.Refresh()
				return
			}
			cards := container.NewGridWrap(cardSize)
			for _, l := range res.Listings {
				cards.Add(a.card(l))
			}
			results.Objects = []fyne.CanvasObject{container.NewVScroll(cards)}
			results.Refresh()
		})
	}
	prev.OnTapped = func() { load(page - 1) }
	next.OnTapped = func() { load(page + 1) }
	search.OnSubmitted = func(string) { load(1) }

	top := container.NewBorder(nil, nil, nil,
		container.NewHBox(
			widget.NewButtonWithIcon("Search", theme.SearchIcon(), func() { load(1) }),
			widget.NewButton("My listings", func() { a.requireLogin(a.showMine) }),
		),
		search)
	bottom := container.NewCenter(container.NewHBox(prev, pageLabel, next))

	a.show("Browse", container.NewBorder(container.NewPadded(top), bottom, nil, nil, results), nil)
	load(1)
}

func (a *app) showListing(id int64) {
	a.show("Listing", loading("Loading listing"), nil)
	var l internal.Listing
	a.async(func(ctx context.Context) (err error) {
		l, err = a.listings.Get(ctx, id)
		return err
	}, func(err error) {
		if err != nil {
			a.errorPage("Listing", err, func() { a.showListing(id) })
			return
		}
		a.renderListing(l)
	})
}

func (a *app) renderListing(l internal.Listing) {
	var photos fyne.CanvasObject = widget.NewIcon(theme.MediaPhotoIcon())
	if len(l.Images) > 0 {
		shown := container.NewStack(remoteImage(a.absolute(l.Images[0]), photoSize))
		thumbs := container.NewHBox()
		for _, src := range l.Images {
			url := a.absolute(src)
			thumbs.Add(widget.NewButton(fmt.Sprintf("%d", len(thumbs.Objects)+1), func() {
				shown.Objects = []fyne.CanvasObject{remoteImage(url, photoSize)}
				shown.Refresh()
			}))
		}
		photos = container.NewBorder(nil, container.NewHScroll(thumbs), nil, nil, shown)
	}

	desc := widget.NewLabel(l.Description)
	desc.Wrapping = fyne.TextWrapWord
	details := container.NewVBox(
		widget.NewLabelWithStyle(l.Title, fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewLabelWithStyle(price(l), fyne.TextAlignLeading, fyne.TextStyle{Monospace: true}),
		widget.NewLabel(fmt.Sprintf("%s  ·  %s  ·  %s", l.Condition, deliveryLabel(l.Type), l.ZipFriendly)),
		widget.NewSeparator(),
		desc,
	)
	if l.Archived {
		details.Add(widget.NewLabelWithStyle("This listing is archived.", fyne.TextAlignLeading, fyne.TextStyle{Italic: true}))
	}

	uid := a.session.UserID()
	switch {
	case uid != 0 && uid == l.AuthorID:
		details.Add(a.ownerActions(l))
	case uid == 0:
		details.Add(widget.NewButton("Log in to message the seller", func() {
			a.showLogin(func() { a.showListing(l.ID) })
		}))
	case !l.Archived:
		details.Add(a.messageSeller(l))
	}

	a.show(l.Title, container.NewPadded(container.NewHSplit(photos, container.NewVScroll(details))), nil)
}

func (a *app) messageSeller(l internal.Listing) fyne.CanvasObject {
	msg := NewSubmitEntry()
	msg.SetText("Is this still available?")
	var send *widget.Button
	start := func(text string) {
		send.Disable()
		var chatID int64
		a.async(func(ctx context.Context) (err error) {
			chatID, err = a.chats.Start(ctx, l.ID, text)
			return err
		}, func(err error) {
			send.Enable()
			if err != nil {
				a.toastError(err)
				return
			}
			a.showChat(chatID)
		})
	}
	send = widget.NewButtonWithIcon("Message seller", theme.MailSendIcon(), func() { start(msg.Text) })
	send.Importance = widget.HighImportance
	msg.OnSubmit = start
	return container.NewVBox(widget.NewSeparator(), msg, send)
}

func (a *app) ownerActions(l internal.Listing) fyne.CanvasObject {
	edit := widget.NewButtonWithIcon("Edit", theme.DocumentCreateIcon(), func() { a.showEdit(l.ID) })
	label := "Archive"
	if l.Archived {
		label = "Unarchive"
	}
	archive := widget.NewButton(label, func() {
		a.async(func(ctx context.Context) error {
			return a.listings.Archive(ctx, l.ID, !l.Archived)
		}, func(err error) {
			if err != nil {
				a.toastError(err)
				return
			}
			a.showListing(l.ID)
		})
	})
	del := widget.NewButtonWithIcon("Delete", theme.DeleteIcon(), func() {
		dialog.ShowConfirm("Delete listing", "Delete \""+l.Title+"\"? This cannot be undone.", func(ok bool) {
			if !ok {
				return
			}
			a.async(func(ctx context.Context) error {
				return a.listings.Delete(ctx, l.ID)
			}, func(err error) {
				if err != nil {
					a.toastError(err)
					return
				}
				a.showMine()
			})
		}, a.win)
	})
	del.Importance = widget.DangerImportance
	return container.NewHBox(edit, archive, del)
}

func (a *app) showMine() {
	a.show("My listings", loading("Loading your listings"), nil)
	var mine []internal.Listing
	a.async(func(ctx context.Context) (err error) {
		mine, err = a.listings.Mine(ctx)
		return err
	}, func(err error) {
		if err != nil {
			a.errorPage("My listings", err, a.showMine)
			return
		}
		if len(mine) == 0 {
			a.show("My listings", container.NewCenter(container.NewVBox(
				widget.NewLabel("You have not listed anything yet."),
				widget.NewButtonWithIcon("Sell something", theme.ContentAddIcon(), a.showCreate),
			)), nil)
			return
		}
		cards := container.NewGridWrap(cardSize)
		for _, l := range mine {
			cards.Add(a.card(l))
		}
		a.show("My listings", container.NewVScroll(cards), nil)
	})
}

func (a *app) showCreate() {
	a.listingForm("Sell something", listing.Form{}, listing.NewImageSet(nil), func(ctx context.Context, f listing.Form, images *listing.ImageSet) (int64, error) {
		return a.listings.Create(ctx, f, images, a.location.Zip())
	})
}

func (a *app) showEdit(id int64) {
	a.show("Edit listing", loading("Loading listing"), nil)
	var ed *listing.Editor
	a.async(func(ctx context.Context) (err error) {
		ed, err = a.listings.Edit(ctx, id)
		return err
	}, func(err error) {
		if err != nil {
			a.errorPage("Edit listing", err, func() { a.showEdit(id) })
			return
		}
		a.listingForm("Edit listing", ed.Form, ed.Images, func(ctx context.Context, f listing.Form, _ *listing.ImageSet) (int64, error) {
			ed.Form = f
			return ed.ID, ed.Submit(ctx, a.location.Zip())
		})
	})
}

// submitFunc saves a draft and returns the listing id, which is set even
// when only some image uploads failed.
type submitFunc func(ctx context.Context, f listing.Form, images *listing.ImageSet) (int64, error)

// listingFields holds the inputs of the create and edit forms. Save stays
// disabled while the draft breaks any rule, and the rules it breaks are
// listed under the form.
type listingFields struct {
	name     *widget.Entry
	desc     *widget.Entry
	amount   *widget.Entry
	cond     *widget.Select
	delivery *widget.RadioGroup
	errs     *widget.Label
	save     *widget.Button

	images *listing.ImageSet
	zip    func() string
	busy   bool
}

func newListingFields(f listing.Form, images *listing.ImageSet, zip func() string) *listingFields {
	v := &listingFields{images: images, zip: zip}
	v.name = widget.NewEntry()
	v.name.SetText(f.Title)
	v.desc = widget.NewMultiLineEntry()
	v.desc.Wrapping = fyne.TextWrapWord
	v.desc.SetMinRowsVisible(6)
	v.desc.SetText(f.Description)
	v.amount = widget.NewEntry()
	v.amount.SetPlaceHolder("0.00")
	v.amount.SetText(f.Price)
	v.cond = widget.NewSelect(listing.Conditions, nil)
	v.cond.SetSelected(f.Condition)

	labels := make([]string, len(listing.DeliveryTypes))
	for i, t := range listing.DeliveryTypes {
		labels[i] = deliveryLabel(t)
	}
	v.delivery = widget.NewRadioGroup(labels, nil)
	v.delivery.Horizontal = true
	if f.Type != "" {
		v.delivery.SetSelected(deliveryLabel(f.Type))
	}

	v.errs = problemList()
	v.save = widget.NewButton("Save", nil)
	v.save.Importance = widget.HighImportance

	changed := func(string) { v.check() }
	v.name.OnChanged = changed
	v.desc.OnChanged = changed
	v.amount.OnChanged = changed
	v.cond.OnChanged = changed
	v.delivery.OnChanged = changed
	v.check()
	return v
}

func (v *listingFields) draft() listing.Form {
	f := listing.Form{
		Title:       v.name.Text,
		Description: v.desc.Text,
		Price:       v.amount.Text,
		Condition:   v.cond.Selected,
	}
	for _, t := range listing.DeliveryTypes {
		if deliveryLabel(t) == v.delivery.Selected {
			f.Type = t
		}
	}
	return f
}

// check revalidates the draft. It reports whether the draft can be saved.
func (v *listingFields) check() bool {
	p := listing.Check(v.draft(), v.images, v.zip())
	showProblems(v.errs, p)
	if len(p) > 0 || v.busy {
		v.save.Disable()
	} else {
		v.save.Enable()
	}
	return len(p) == 0
}

func (a *app) listingForm(title string, f listing.Form, images *listing.ImageSet, submit submitFunc) {
	v := newListingFields(f, images, a.location.Zip)

	where := widget.NewLabel(a.location.Label())
	gallery := container.NewHBox()
	var redraw func()
	redraw = func() {
		gallery.RemoveAll()
		for i, img := range images.Existing() {
			label := "Remove"
			if img.Deleted {
				label = "Restore"
			}
			gallery.Add(container.NewBorder(nil, widget.NewButton(label, func() {
				if err := images.ToggleDelete(i); err != nil {
					a.toastError(err)
				}
				redraw()
			}), nil, nil, remoteImage(a.absolute(img.URL), fyne.NewSize(120, 90))))
		}
		for i, att := range images.Added() {
			gallery.Add(container.NewBorder(nil, widget.NewButton("Remove", func() {
				images.Remove(i)
				redraw()
			}), nil, nil, localImage(att.Name, att.Data, fyne.NewSize(120, 90))))
		}
		v.check()
	}
	redraw()
	addImage := widget.NewButtonWithIcon("Add image", theme.FileImageIcon(), func() {
		pickImage(a.win, func(name string, data []byte, err error) {
			if err == nil {
				_, err = images.Add(name, data)
			}
			if err != nil {
				a.toastError(err)
				return
			}
			redraw()
		})
	})

	v.save.OnTapped = func() {
		if !v.check() {
			return
		}
		draft := v.draft()
		v.busy = true
		v.save.Disable()
		var id int64
		a.async(func(ctx context.Context) (err error) {
			id, err = submit(ctx, draft, images)
			return err
		}, func(err error) {
			v.busy = false
			v.check()
			var ve *internal.ValidationError
			if id == 0 || errors.As(err, &ve) {
				showError(v.errs, err)
				return
			}
			a.showListing(id)
			if err != nil {
				a.toastError(err)
			}
		})
	}

	// the location can change from the header while the form is open
	cancel := a.location.Subscribe(func(string) {
		fyne.Do(func() {
			where.SetText(a.location.Label())
			v.check()
		})
	})

	form := widget.NewForm(
		widget.NewFormItem("Title", v.name),
		widget.NewFormItem("Description", v.desc),
		widget.NewFormItem("Price ($)", v.amount),
		widget.NewFormItem("Condition", v.cond),
		widget.NewFormItem("Delivery", v.delivery),
		widget.NewFormItem("Location", container.NewHBox(where, widget.NewButton("Change", a.showLocation))),
		widget.NewFormItem("Images", container.NewVBox(container.NewHScroll(gallery), addImage)),
	)
	a.show(title, container.NewVScroll(container.NewPadded(container.NewVBox(
		widget.NewLabelWithStyle(title, fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		form, v.errs, v.save,
	))), cancel)
}

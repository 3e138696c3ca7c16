package main

import (
	"context"
	"errors"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/rexlx/vexmarket/internal"
	"github.com/rexlx/vexmarket/internal/location"
)

func (a *app) showSettings() {
	s := a.session.Current()
	name := deref(s.FirstName) + " " + deref(s.LastName)

	pass := widget.NewPasswordEntry()
	pass.SetPlaceHolder("New password")
	confirm := widget.NewPasswordEntry()
	confirm.SetPlaceHolder("Confirm password")
	reqs := newRequirementsView()
	pass.OnChanged = reqs.update
	errs := problemList()
	saved := widget.NewLabel("Your password has been changed.")
	saved.Hide()

	var save *widget.Button
	save = widget.NewButton("Change password", func() {
		saved.Hide()
		save.Disable()
		a.async(func(ctx context.Context) error {
			return a.accounts.ChangePassword(ctx, pass.Text, confirm.Text)
		}, func(err error) {
			save.Enable()
			showError(errs, err)
			if err == nil {
				pass.SetText("")
				confirm.SetText("")
				saved.Show()
			}
		})
	})
	save.Importance = widget.HighImportance

	a.show("Settings", formPage("Settings",
		widget.NewForm(
			widget.NewFormItem("Name", widget.NewLabel(name)),
			widget.NewFormItem("Email", widget.NewLabel(deref(s.Email))),
			widget.NewFormItem("Location", widget.NewLabel(a.location.Label())),
		),
		widget.NewSeparator(),
		pass, reqs.box, confirm, errs, saved, save,
	), nil)
}

// showLocation sets the search location. Only ZIP codes the backend
// confirms are stored.
func (a *app) showLocation() {
	current := widget.NewLabel("Current location: " + a.location.Label())
	zip := widget.NewEntry()
	zip.SetPlaceHolder("ZIP code")
	zip.SetText(a.location.Zip())
	errs := problemList()

	var set *widget.Button
	set = widget.NewButton("Set location", func() {
		z := location.Normalize(zip.Text)
		if !location.Valid(z) || z == "" {
			showError(errs, location.ErrInvalidZip)
			return
		}
		set.Disable()
		a.async(func(ctx context.Context) error {
			return a.confirm.SetManual(ctx, a.location, z)
		}, func(err error) {
			set.Enable()
			if err != nil {
				showError(errs, err)
				return
			}
			a.showBrowse("")
		})
	})
	set.Importance = widget.HighImportance
	zip.OnSubmitted = func(string) { set.OnTapped() }

	// the desktop has no position source; detection reports that.
	detect := widget.NewButtonWithIcon("Use my location", theme.NavigateNextIcon(), func() {
		a.async(func(ctx context.Context) error {
			_, err := a.confirm.Detect(ctx, a.location, nil)
			return err
		}, func(err error) {
			if errors.Is(err, location.ErrDetectUnavailable) {
				showProblems(errs, []string{"Location detection is not available. Enter a ZIP code instead."})
				return
			}
			showError(errs, err)
			if err == nil {
				a.showBrowse("")
			}
		})
	})
	everywhere := widget.NewButton("Search everywhere", func() {
		if err := a.location.Set(""); err != nil {
			showError(errs, err)
			return
		}
		a.showBrowse("")
	})

	a.show("Location", formPage("Location", current, zip, errs, set, detect, everywhere), nil)
}

// toast shows n as a system notification and as a banner with an Open
// action. It must run on the main goroutine.
func (a *app) toast(n internal.Notice) {
	a.fa.SendNotification(fyne.NewNotification(n.Title, n.Body))

	text := widget.NewLabel(n.Title + ": " + n.Body)
	text.Truncation = fyne.TextTruncateEllipsis
	var banner *fyne.Container
	hide := func() {
		a.banners.Remove(banner)
	}
	banner = container.NewBorder(nil, nil, nil,
		container.NewHBox(
			widget.NewButton("Open", func() {
				hide()
				a.requireLogin(func() { a.showChat(n.ChatID) })
			}),
			widget.NewButtonWithIcon("", theme.CancelIcon(), hide),
		),
		text)
	a.banners.Add(banner)
	time.AfterFunc(8*time.Second, func() { fyne.Do(hide) })
}

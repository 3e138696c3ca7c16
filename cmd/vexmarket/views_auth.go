package main

import (
	"context"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/rexlx/vexmarket/internal/account"
)

// formPage centres a narrow form.
func formPage(title string, objs ...fyne.CanvasObject) fyne.CanvasObject {
	head := widget.NewLabelWithStyle(title, fyne.TextAlignCenter, fyne.TextStyle{Bold: true})
	box := container.NewVBox(append([]fyne.CanvasObject{head, widget.NewSeparator()}, objs...)...)
	width := canvas.NewRectangle(color.Transparent)
	width.SetMinSize(fyne.NewSize(380, 0))
	return container.NewCenter(container.NewStack(width, box))
}

// showLogin continues with next once the user is logged in.
func (a *app) showLogin(next func()) {
	email := widget.NewEntry()
	email.SetPlaceHolder("Email")
	pass := widget.NewPasswordEntry()
	pass.SetPlaceHolder("Password")
	errs := problemList()

	var login *widget.Button
	login = widget.NewButton("Log in", func() {
		login.Disable()
		a.async(func(ctx context.Context) error {
			return a.accounts.Login(ctx, email.Text, pass.Text)
		}, func(err error) {
			login.Enable()
			if err != nil {
				showError(errs, err)
				return
			}
			next()
		})
	})
	login.Importance = widget.HighImportance
	pass.OnSubmitted = func(string) { login.OnTapped() }

	a.show("Log in", formPage("Log in",
		email, pass, errs, login,
		widget.NewButton("Create an account", func() { a.showRegister(next) }),
		container.NewHBox(
			widget.NewButton("Forgot password?", a.showForgot),
			widget.NewButton("Verify email", a.showVerify),
		),
	), nil)
}

// requirementsView is the live password checklist.
type requirementsView struct {
	box    *fyne.Container
	checks [4]*widget.Check
}

func newRequirementsView() *requirementsView {
	v := &requirementsView{}
	labels := [4]string{"8 to 200 characters", "An uppercase letter", "A lowercase letter", "A number"}
	for i, l := range labels {
		c := widget.NewCheck(l, nil)
		c.Disable()
		v.checks[i] = c
	}
	v.box = container.NewVBox(v.checks[0], v.checks[1], v.checks[2], v.checks[3])
	return v
}

func (v *requirementsView) update(pw string) {
	r := account.PasswordRequirements(pw)
	for i, met := range [4]bool{r.Length, r.Upper, r.Lower, r.Number} {
		v.checks[i].SetChecked(met)
	}
}

func (a *app) showRegister(next func()) {
	first := widget.NewEntry()
	first.SetPlaceHolder("First name")
	last := widget.NewEntry()
	last.SetPlaceHolder("Last name")
	email := widget.NewEntry()
	email.SetPlaceHolder("Email")
	pass := widget.NewPasswordEntry()
	pass.SetPlaceHolder("Password")
	confirm := widget.NewPasswordEntry()
	confirm.SetPlaceHolder("Confirm password")
	reqs := newRequirementsView()
	pass.OnChanged = reqs.update
	errs := problemList()

	var create *widget.Button
	create = widget.NewButton("Create account", func() {
		r := account.Registration{
			FirstName: first.Text,
			LastName:  last.Text,
			Email:     email.Text,
			Password:  pass.Text,
			Confirm:   confirm.Text,
		}
		create.Disable()
		a.async(func(ctx context.Context) error {
			return a.accounts.Register(ctx, r)
		}, func(err error) {
			create.Enable()
			if err != nil {
				showError(errs, err)
				return
			}
			a.showVerify()
		})
	})
	create.Importance = widget.HighImportance

	a.show("Create an account", formPage("Create an account",
		container.NewGridWithColumns(2, first, last),
		email, pass, reqs.box, confirm, errs, create,
		widget.NewButton("I already have an account", func() { a.showLogin(next) }),
	), nil)
}

// showVerify takes the code from the verification email.
func (a *app) showVerify() {
	token := widget.NewEntry()
	token.SetPlaceHolder("Verification code")
	note := widget.NewLabel("We sent a verification code to your email.")
	note.Wrapping = fyne.TextWrapWord
	errs := problemList()

	verify := widget.NewButton("Verify", func() {
		a.async(func(ctx context.Context) error {
			return a.accounts.Verify(ctx, token.Text)
		}, func(err error) {
			if err != nil {
				showError(errs, err)
				return
			}
			a.showLogin(func() { a.showBrowse("") })
		})
	})
	verify.Importance = widget.HighImportance
	a.show("Verify email", formPage("Verify email", note, token, errs, verify), nil)
}

func (a *app) showForgot() {
	email := widget.NewEntry()
	email.SetPlaceHolder("Email")
	errs := problemList()

	send := widget.NewButton("Send reset link", func() {
		if !account.ValidEmail(email.Text) {
			showProblems(errs, []string{"Invalid email address"})
			return
		}
		a.async(func(ctx context.Context) error {
			return a.accounts.RequestReset(ctx, email.Text)
		}, func(err error) {
			if err != nil {
				showError(errs, err)
				return
			}
			a.showResetToken()
		})
	})
	send.Importance = widget.HighImportance
	a.show("Reset password", formPage("Reset password",
		email, errs, send,
		widget.NewButton("I already have a reset code", a.showResetToken),
	), nil)
}

// showResetToken checks the reset code before asking for a new password.
func (a *app) showResetToken() {
	token := widget.NewEntry()
	token.SetPlaceHolder("Reset code")
	errs := problemList()

	check := widget.NewButton("Continue", func() {
		code := token.Text
		a.async(func(ctx context.Context) error {
			return a.accounts.CheckResetToken(ctx, code)
		}, func(err error) {
			if err != nil {
				showError(errs, err)
				return
			}
			a.showResetPassword(code)
		})
	})
	check.Importance = widget.HighImportance
	a.show("Reset password", formPage("Reset password",
		widget.NewLabel("Enter the code from the reset email."), token, errs, check), nil)
}

func (a *app) showResetPassword(token string) {
	pass := widget.NewPasswordEntry()
	pass.SetPlaceHolder("New password")
	confirm := widget.NewPasswordEntry()
	confirm.SetPlaceHolder("Confirm password")
	reqs := newRequirementsView()
	pass.OnChanged = reqs.update
	errs := problemList()

	save := widget.NewButton("Reset password", func() {
		a.async(func(ctx context.Context) error {
			return a.accounts.ResetPassword(ctx, token, pass.Text, confirm.Text)
		}, func(err error) {
			if err != nil {
				showError(errs, err)
				return
			}
			a.showLogin(func() { a.showBrowse("") })
		})
	})
	save.Importance = widget.HighImportance
	a.show("Reset password", formPage("Choose a new password", pass, reqs.box, confirm, errs, save), nil)
}

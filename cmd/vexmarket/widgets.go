package main

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/driver/mobile"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"github.com/rexlx/vexmarket/internal"
)

// SubmitEntry is a multi line entry that submits on Enter and adds a
// newline on Shift+Enter.
type SubmitEntry struct {
	widget.Entry
	OnSubmit func(string)
}

func NewSubmitEntry() *SubmitEntry {
	e := &SubmitEntry{}
	e.ExtendBaseWidget(e)
	e.MultiLine = true
	e.Wrapping = fyne.TextWrapWord
	return e
}

func (e *SubmitEntry) TypedKey(key *fyne.KeyEvent) {
	if key.Name != fyne.KeyReturn && key.Name != fyne.KeyEnter {
		e.Entry.TypedKey(key)
		return
	}
	// mobile drivers have no modifiers, so Enter always submits there
	if drv, ok := fyne.CurrentApp().Driver().(desktop.Driver); ok {
		if drv.CurrentKeyModifiers()&fyne.KeyModifierShift != 0 {
			e.Entry.TypedKey(key)
			return
		}
	}
	if e.OnSubmit != nil && e.Text != "" {
		e.OnSubmit(e.Text)
	}
}

func (e *SubmitEntry) Keyboard() mobile.KeyboardType {
	return mobile.DefaultKeyboard
}

// bottomSlack absorbs float rounding in scroll offsets.
const bottomSlack = 1

// atBottom reports whether a viewport of height view scrolled to offset
// reaches the end of content.
func atBottom(offset, view, content float32) bool {
	return offset+view >= content-bottomSlack
}

// scrollViewport lets a chat.Synchronizer follow a container.Scroll from
// any goroutine.
type scrollViewport struct {
	scroll *container.Scroll
}

func (v scrollViewport) AtBottom() bool {
	var at bool
	fyne.DoAndWait(func() {
		at = atBottom(v.scroll.Offset.Y, v.scroll.Size().Height, v.scroll.Content.MinSize().Height)
	})
	return at
}

func (v scrollViewport) ScrollToBottom() {
	fyne.Do(v.scroll.ScrollToBottom)
}

// remoteImage shows an image served by the backend.
func remoteImage(url string, size fyne.Size) fyne.CanvasObject {
	uri, err := storage.ParseURI(url)
	if err != nil {
		return widget.NewLabel(url)
	}
	img := canvas.NewImageFromURI(uri)
	img.FillMode = canvas.ImageFillContain
	img.SetMinSize(size)
	return img
}

// localImage previews an attachment that has not been uploaded yet.
func localImage(name string, data []byte, size fyne.Size) fyne.CanvasObject {
	img := canvas.NewImageFromReader(bytes.NewReader(data), name)
	img.FillMode = canvas.ImageFillContain
	img.SetMinSize(size)
	return img
}

// pickImage asks for a png or jpg and hands its bytes to fn on the main
// goroutine. Cancelling calls nothing.
func pickImage(win fyne.Window, fn func(name string, data []byte, err error)) {
	fd := dialog.NewFileOpen(func(r fyne.URIReadCloser, err error) {
		if err != nil {
			fn("", nil, err)
			return
		}
		if r == nil {
			return
		}
		defer r.Close()
		data, err := io.ReadAll(r)
		fn(r.URI().Name(), data, err)
	}, win)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg"}))
	fd.Show()
}

// problemList renders validation problems one per line.
func problemList() *widget.Label {
	l := widget.NewLabel("")
	l.Importance = widget.DangerImportance
	l.Wrapping = fyne.TextWrapWord
	l.Hide()
	return l
}

func showProblems(l *widget.Label, problems []string) {
	if len(problems) == 0 {
		l.Hide()
		return
	}
	l.SetText("• " + strings.Join(problems, "\n• "))
	l.Show()
}

// showError puts err in l, one line per problem for validation errors.
func showError(l *widget.Label, err error) {
	if err == nil {
		l.Hide()
		return
	}
	var ve *internal.ValidationError
	if errors.As(err, &ve) {
		showProblems(l, ve.Problems)
		return
	}
	showProblems(l, []string{internal.Describe(err)})
}

package main

import (
	"image/color"
	"testing"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
)

func TestAtBottom(t *testing.T) {
	cases := []struct {
		offset, view, content float32
		want                  bool
	}{
		{800, 200, 1000, true},
		{799.5, 200, 1000, true},
		{790, 200, 1000, false},
		{0, 200, 1000, false},
		{0, 200, 150, true},
		{850, 200, 1000, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, atBottom(c.offset, c.view, c.content), "%+v", c)
	}
}

func TestScrollViewportAtBottom(t *testing.T) {
	test.NewTempApp(t)
	content := canvas.NewRectangle(color.Transparent)
	content.SetMinSize(fyne.NewSize(100, 1000))
	scroll := container.NewVScroll(content)
	scroll.Resize(fyne.NewSize(100, 200))
	v := scrollViewport{scroll}

	scroll.Offset.Y = 780
	assert.False(t, v.AtBottom())
	scroll.Offset.Y = 800
	assert.True(t, v.AtBottom())
}

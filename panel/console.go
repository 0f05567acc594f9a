// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package panel

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// ConsoleOpts represents the options available for the console display.
type ConsoleOpts struct {
	W, H    int
	Palette *ansi256.Palette
	// Out is where frames are written. Default is stdout.
	Out io.Writer

	_ struct{}
}

// Console is a 2D monochrome display emulator that outputs to the terminal
// using ANSI color codes.
//
// Useful while the OLED is still in the mail.
type Console struct {
	w       io.Writer
	palette ansi256.Palette
	on, off color.NRGBA

	img *image.NRGBA
	buf bytes.Buffer
}

// NewConsole returns a Console with the given size. The ConsoleOpts can be
// nil, in which case it emulates a 128x64 panel.
func NewConsole(opts *ConsoleOpts) *Console {
	o := ConsoleOpts{W: 128, H: 64}
	if opts != nil {
		o = *opts
	}
	p := o.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := o.Out
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Console{
		w:       w,
		palette: *p,
		on:      color.NRGBA{R: 0x40, G: 0xc0, B: 0xff, A: 0xff},
		off:     color.NRGBA{A: 0xff},
		img:     image.NewNRGBA(image.Rect(0, 0, o.W, o.H)),
	}
}

func (c *Console) String() string {
	return fmt.Sprintf("Console(%dx%d)", c.img.Rect.Dx(), c.img.Rect.Dy())
}

// Halt implements conn.Resource.
//
// It resets the terminal colors so it is not corrupted.
func (c *Console) Halt() error {
	_, err := c.w.Write([]byte("\n\033[0m"))
	return err
}

// ColorModel implements display.Drawer.
func (c *Console) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (c *Console) Bounds() image.Rectangle {
	return c.img.Rect
}

// Draw implements display.Drawer.
func (c *Console) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	draw.Draw(c.img, r.Intersect(c.Bounds()), src, sp, draw.Src)
	return c.refresh()
}

// refresh redraws the whole frame from the top left corner, one terminal
// row per pixel row.
func (c *Console) refresh() error {
	// This code is designed to minimize the amount of memory allocated per call.
	c.buf.Reset()
	_, _ = c.buf.WriteString("\033[H\033[0m")
	b := c.img.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, _ = io.WriteString(&c.buf, c.palette.Block(c.pixel(x, y)))
		}
		_, _ = c.buf.WriteString("\033[0m\n")
	}
	_, err := c.buf.WriteTo(c.w)
	return err
}

func (c *Console) pixel(x, y int) color.NRGBA {
	if gray := color.GrayModel.Convert(c.img.At(x, y)).(color.Gray); gray.Y >= 0x80 {
		return c.on
	}
	return c.off
}

var _ display.Drawer = &Console{}
var _ fmt.Stringer = &Console{}

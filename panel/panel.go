// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package panel renders lines of text on a small monochrome display.Drawer,
// like an SSD1306 OLED or the terminal emulator in this package.
package panel

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/display"
	"periph.io/x/devices/v3/ssd1306/image1bit"
)

// Opts holds the configuration options for the panel.
type Opts struct {
	// Face is the font. Default is basicfont.Face7x13, which fits four lines
	// on a 128x64 display.
	Face font.Face
}

// Panel is a text framebuffer in front of a display.
type Panel struct {
	dst  display.Drawer
	face font.Face

	mu  sync.Mutex
	img *image1bit.VerticalLSB
}

// New returns a Panel drawing on dst. The Opts can be nil.
func New(dst display.Drawer, opts *Opts) *Panel {
	p := &Panel{dst: dst, face: basicfont.Face7x13}
	if opts != nil && opts.Face != nil {
		p.face = opts.Face
	}
	p.img = image1bit.NewVerticalLSB(dst.Bounds())
	return p
}

// TrueTypeFace returns the Go Regular font at size points, for displays
// larger than the built-in bitmap font suits.
func TrueTypeFace(size float64) (font.Face, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("panel: %w", err)
	}
	return truetype.NewFace(f, &truetype.Options{Size: size}), nil
}

// Render clears the framebuffer, writes one line of text per entry from the
// top and sends the frame to the display. Lines that do not fit are cut.
func (p *Panel) Render(lines ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.img.Bounds()
	draw.Draw(p.img, b, &image.Uniform{image1bit.Off}, image.Point{}, draw.Src)
	m := p.face.Metrics()
	drawer := font.Drawer{
		Dst:  p.img,
		Src:  &image.Uniform{image1bit.On},
		Face: p.face,
	}
	for i, l := range lines {
		drawer.Dot = fixed.Point26_6{
			X: fixed.I(b.Min.X),
			Y: fixed.I(b.Min.Y) + m.Ascent + fixed.Int26_6(i)*m.Height,
		}
		drawer.DrawString(l)
	}
	return p.dst.Draw(b, p.img, b.Min)
}

// Image returns a copy of the last rendered frame.
func (p *Panel) Image() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	img := image1bit.NewVerticalLSB(p.img.Bounds())
	copy(img.Pix, p.img.Pix)
	return img
}

// SavePNG writes the last rendered frame to path.
func (p *Panel) SavePNG(path string) error {
	if err := gg.SavePNG(path, p.Image()); err != nil {
		return fmt.Errorf("panel: %w", err)
	}
	return nil
}

func (p *Panel) String() string {
	return fmt.Sprintf("panel(%s)", p.dst)
}

// Halt implements conn.Resource. It halts the display.
func (p *Panel) Halt() error {
	return p.dst.Halt()
}

package card

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mitchellh/go-wordwrap"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"review_bot/internal/browser"
)

// Raster layout in 1x pixels. The canvas is drawn at scale and downsampled.
const (
	Width     = 580
	LineWidth = 58

	padH     = 32
	padTop   = 28
	padBot   = 24
	scale    = 2
	lineH    = 24
	avatar   = 40
	starR    = 7.0
	starIn   = 3.0
	starStep = 17
	pinSize  = 14
	pinDot   = 4
	maxStore = 29

	// fixedHeight is every section except the body lines.
	fixedHeight = padTop + (26 + 14) + (1 + 16) + (avatar + 16) + (18 + 14) + (14 + 1 + 14) + 18 + padBot
)

var (
	colPageBG  = color.RGBA{241, 243, 244, 255}
	colBG      = color.RGBA{255, 255, 255, 255}
	colSep     = color.RGBA{232, 234, 237, 255}
	colDark    = color.RGBA{32, 33, 36, 255}
	colGray    = color.RGBA{95, 99, 104, 255}
	colLGray   = color.RGBA{128, 134, 139, 255}
	colStarOn  = color.RGBA{251, 188, 4, 255}
	colStarOff = color.RGBA{218, 220, 224, 255}
	colAvatar  = color.RGBA{66, 133, 244, 255}
	colPin     = color.RGBA{234, 67, 53, 255}
	colWhite   = color.RGBA{255, 255, 255, 255}

	brand = []struct {
		s string
		c color.RGBA
	}{
		{"G", color.RGBA{66, 133, 244, 255}},
		{"o", color.RGBA{234, 67, 53, 255}},
		{"o", color.RGBA{251, 188, 4, 255}},
		{"g", color.RGBA{66, 133, 244, 255}},
		{"l", color.RGBA{52, 168, 83, 255}},
		{"e", color.RGBA{234, 67, 53, 255}},
	}
)

// System font locations probed in order before the built-in Go fonts.
var (
	RegularFonts = []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
		"/usr/share/fonts/truetype/liberation/LiberationSans-Regular.ttf",
		"/usr/share/fonts/truetype/freefont/FreeSans.ttf",
		"/usr/share/fonts/truetype/ubuntu/Ubuntu-R.ttf",
		"/usr/share/fonts/TTF/DejaVuSans.ttf",
		"/Library/Fonts/Arial.ttf",
		"/System/Library/Fonts/Helvetica.ttc",
	}
	BoldFonts = []string{
		"/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf",
		"/usr/share/fonts/truetype/liberation/LiberationSans-Bold.ttf",
		"/usr/share/fonts/truetype/freefont/FreeSansBold.ttf",
		"/usr/share/fonts/truetype/ubuntu/Ubuntu-B.ttf",
		"/usr/share/fonts/TTF/DejaVuSans.ttf",
		"/Library/Fonts/Arial.ttf",
		"/System/Library/Fonts/Helvetica.ttc",
	}
)

// Wrap breaks text into lines of at most width characters, collapsing runs
// of whitespace. Words longer than width are split. Empty text yields one
// empty line.
func Wrap(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{""}
	}
	wrapped := wordwrap.WrapString(strings.Join(words, " "), uint(width))

	var lines []string
	for _, line := range strings.Split(wrapped, "\n") {
		for utf8.RuneCountInString(line) > width {
			r := []rune(line)
			lines = append(lines, string(r[:width]))
			line = string(r[width:])
		}
		lines = append(lines, line)
	}
	return lines
}

// Height is the 1x card height for text.
func Height(text string) int {
	return fixedHeight + lineH*len(Wrap(text, LineWidth))
}

// Initials returns up to two uppercased leading letters of name, or "U".
func Initials(name string) string {
	var out []rune
	for _, w := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(w)
		out = append(out, unicode.ToUpper(r))
		if len(out) == 2 {
			break
		}
	}
	if len(out) == 0 {
		return "U"
	}
	return string(out)
}

func storeLabel(store string) string {
	r := []rune(store)
	if len(r) > maxStore {
		return string(r[:maxStore-1]) + "…"
	}
	return store
}

// Raster draws the card procedurally.
type Raster struct {
	regular *opentype.Font
	bold    *opentype.Font
	log     *slog.Logger
}

// NewRaster loads the first usable system fonts, falling back to the
// built-in Go fonts.
func NewRaster(log *slog.Logger) *Raster {
	r := &Raster{log: log}
	var src string
	r.regular, src = loadFont(RegularFonts, goregular.TTF)
	log.Debug("raster font", "style", "regular", "source", src)
	r.bold, src = loadFont(BoldFonts, gobold.TTF)
	log.Debug("raster font", "style", "bold", "source", src)
	return r
}

func loadFont(paths []string, fallback []byte) (*opentype.Font, string) {
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if f, err := parseFont(data); err == nil {
			return f, p
		}
	}
	f, err := opentype.Parse(fallback)
	if err != nil {
		panic(fmt.Sprintf("parse built-in font: %v", err))
	}
	return f, "builtin"
}

func parseFont(data []byte) (*opentype.Font, error) {
	if f, err := opentype.Parse(data); err == nil {
		return f, nil
	}
	c, err := opentype.ParseCollection(data)
	if err != nil {
		return nil, err
	}
	return c.Font(0)
}

func (r *Raster) Name() string { return "raster" }

func (r *Raster) Available(_ context.Context) error { return nil }

func (r *Raster) Render(_ context.Context, c Card, path string) error {
	img, err := r.Draw(c)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode card: %w", err)
	}
	return browser.WriteFile(path, buf.Bytes())
}

// Draw returns the card image at 1x.
func (r *Raster) Draw(c Card) (image.Image, error) {
	f, err := r.faces()
	if err != nil {
		return nil, err
	}
	defer f.close()

	lines := Wrap(c.Text, LineWidth)
	w, h := s(Width), s(fixedHeight+lineH*len(lines))
	cv := &canvas{img: image.NewRGBA(image.Rect(0, 0, w, h))}
	draw.Draw(cv.img, cv.img.Bounds(), image.NewUniform(colPageBG), image.Point{}, draw.Src)
	cv.roundRect(0, 0, float32(w-1), float32(h-1), float32(s(12)), colBG)

	// Header.
	y := s(padTop)
	x := s(padH)
	for _, b := range brand {
		x += cv.text(f.brand, x, y, b.s, b.c)
	}
	cv.text(f.maps, x+s(4), y+s(3), "Maps", colGray)
	label := storeLabel(c.Store)
	cv.text(f.store, w-s(padH)-measure(f.store, label), y+s(3), label, colGray)
	y += s(26)
	cv.hline(s(padH), w-s(padH), y, colSep)
	y += s(16)

	// Reviewer.
	av := s(avatar)
	cv.ellipse(float32(s(padH)), float32(y), float32(av), float32(av), colAvatar)
	ini := Initials(c.Name)
	iw := measure(f.initials, ini)
	capH := capHeight(f.initials)
	cv.textBaseline(f.initials, s(padH)+av/2-iw/2, y+av/2+capH/2, ini, colWhite)
	nameX := s(padH + avatar + 14)
	cv.text(f.name, nameX, y, c.Name, colDark)
	cv.text(f.badge, nameX, y+s(20), c.badge(), colLGray)
	y += s(avatar + 16)

	// Stars and date.
	starCY := y + s(8)
	for i := 0; i < 5; i++ {
		col := colStarOff
		if i < c.Rating {
			col = colStarOn
		}
		cx := float64(padH+i*starStep) + starR
		cv.star(cx*scale, float64(starCY), starR*scale, starIn*scale, col)
	}
	cv.text(f.date, s(padH+5*starStep+6), starCY-s(2), c.Date, colLGray)
	y += s(18 + 14)

	// Body.
	for _, line := range lines {
		cv.text(f.body, s(padH), y, line, colDark)
		y += s(lineH)
	}

	// Footer.
	y += s(14)
	cv.hline(s(padH), w-s(padH), y, colSep)
	y += s(14)
	pin, dot := s(pinSize), s(pinDot)
	cv.ellipse(float32(s(padH)), float32(y), float32(pin), float32(pin), colPin)
	cv.ellipse(float32(s(padH)+pin/2-dot/2), float32(y+pin/2-dot/2), float32(dot), float32(dot), colWhite)
	cv.text(f.footer, s(padH)+pin+s(6), y+s(1), "Posted on Google Maps", colLGray)

	out := image.NewRGBA(image.Rect(0, 0, Width, h/scale))
	draw.CatmullRom.Scale(out, out.Bounds(), cv.img, cv.img.Bounds(), draw.Src, nil)
	return out, nil
}

func s(v int) int { return v * scale }

type faceSet struct {
	brand, maps, store, name, badge, initials, body, date, footer font.Face
}

func (r *Raster) faces() (*faceSet, error) {
	var err error
	face := func(f *opentype.Font, size int) font.Face {
		if err != nil {
			return nil
		}
		var fc font.Face
		fc, err = opentype.NewFace(f, &opentype.FaceOptions{Size: float64(s(size)), DPI: 72, Hinting: font.HintingFull})
		return fc
	}
	set := &faceSet{
		brand:    face(r.bold, 18),
		maps:     face(r.regular, 13),
		store:    face(r.regular, 13),
		name:     face(r.bold, 15),
		badge:    face(r.regular, 12),
		initials: face(r.bold, 18),
		body:     face(r.regular, 15),
		date:     face(r.regular, 12),
		footer:   face(r.regular, 11),
	}
	if err != nil {
		set.close()
		return nil, fmt.Errorf("create font face: %w", err)
	}
	return set, nil
}

func (f *faceSet) close() {
	for _, fc := range []font.Face{f.brand, f.maps, f.store, f.name, f.badge, f.initials, f.body, f.date, f.footer} {
		if fc != nil {
			_ = fc.Close()
		}
	}
}

func measure(face font.Face, str string) int {
	return font.MeasureString(face, str).Ceil()
}

func capHeight(face font.Face) int {
	m := face.Metrics()
	if m.CapHeight > 0 {
		return m.CapHeight.Ceil()
	}
	return m.Ascent.Ceil() * 7 / 10
}

type canvas struct {
	img *image.RGBA
}

// text draws str with its ascender line at y and returns the advance.
func (cv *canvas) text(face font.Face, x, y int, str string, col color.Color) int {
	return cv.textBaseline(face, x, y+face.Metrics().Ascent.Ceil(), str, col)
}

func (cv *canvas) textBaseline(face font.Face, x, baseline int, str string, col color.Color) int {
	d := font.Drawer{
		Dst:  cv.img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, baseline),
	}
	d.DrawString(str)
	return (d.Dot.X - fixed.I(x)).Ceil()
}

func (cv *canvas) hline(x0, x1, y int, col color.Color) {
	r := image.Rect(x0, y-scale/2, x1, y-scale/2+scale)
	draw.Draw(cv.img, r, image.NewUniform(col), image.Point{}, draw.Src)
}

func (cv *canvas) fill(z *vector.Rasterizer, col color.Color) {
	z.Draw(cv.img, cv.img.Bounds(), image.NewUniform(col), image.Point{})
}

func (cv *canvas) rasterizer() *vector.Rasterizer {
	b := cv.img.Bounds()
	return vector.NewRasterizer(b.Dx(), b.Dy())
}

// kappa places cubic control points for a quarter ellipse.
const kappa = 0.5522847

func (cv *canvas) ellipse(x, y, w, h float32, col color.Color) {
	rx, ry := w/2, h/2
	cx, cy := x+rx, y+ry
	kx, ky := rx*kappa, ry*kappa
	z := cv.rasterizer()
	z.MoveTo(cx+rx, cy)
	z.CubeTo(cx+rx, cy+ky, cx+kx, cy+ry, cx, cy+ry)
	z.CubeTo(cx-kx, cy+ry, cx-rx, cy+ky, cx-rx, cy)
	z.CubeTo(cx-rx, cy-ky, cx-kx, cy-ry, cx, cy-ry)
	z.CubeTo(cx+kx, cy-ry, cx+rx, cy-ky, cx+rx, cy)
	z.ClosePath()
	cv.fill(z, col)
}

func (cv *canvas) roundRect(x0, y0, x1, y1, r float32, col color.Color) {
	z := cv.rasterizer()
	z.MoveTo(x0+r, y0)
	z.LineTo(x1-r, y0)
	z.QuadTo(x1, y0, x1, y0+r)
	z.LineTo(x1, y1-r)
	z.QuadTo(x1, y1, x1-r, y1)
	z.LineTo(x0+r, y1)
	z.QuadTo(x0, y1, x0, y1-r)
	z.LineTo(x0, y0+r)
	z.QuadTo(x0, y0, x0+r, y0)
	z.ClosePath()
	cv.fill(z, col)
}

// star fills a five-pointed star alternating outer and inner radii.
func (cv *canvas) star(cx, cy, outer, inner float64, col color.Color) {
	z := cv.rasterizer()
	for i := 0; i < 10; i++ {
		a := (-90 + float64(i)*36) * math.Pi / 180
		rad := outer
		if i%2 == 1 {
			rad = inner
		}
		px, py := float32(cx+rad*math.Cos(a)), float32(cy+rad*math.Sin(a))
		if i == 0 {
			z.MoveTo(px, py)
			continue
		}
		z.LineTo(px, py)
	}
	z.ClosePath()
	cv.fill(z, col)
}

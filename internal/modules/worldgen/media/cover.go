package media

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
)

const (
	CoverWidth  = 1200
	CoverHeight = 630
)

// Palette is the color set chosen by the design phase. Values are #RRGGBB.
type Palette struct {
	Primary    string `json:"primary"`
	Secondary  string `json:"secondary"`
	Accent     string `json:"accent"`
	Background string `json:"background"`
}

var defaultPalette = Palette{
	Primary:    "#2F5D8A",
	Secondary:  "#F2B134",
	Accent:     "#ED553B",
	Background: "#0F1B2B",
}

type CoverRenderer struct {
	titleFont font.Face
	subFont   font.Face
}

// NewCoverRenderer loads the TTF at fontPath, or the bundled Go Bold face when empty.
func NewCoverRenderer(fontPath string) (*CoverRenderer, error) {
	raw := gobold.TTF
	if p := strings.TrimSpace(fontPath); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read font file: %w", err)
		}
		raw = b
	}
	parsed, err := truetype.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return &CoverRenderer{
		titleFont: truetype.NewFace(parsed, &truetype.Options{Size: 72, DPI: 72, Hinting: font.HintingNone}),
		subFont:   truetype.NewFace(parsed, &truetype.Options{Size: 32, DPI: 72, Hinting: font.HintingNone}),
	}, nil
}

// Render draws a PNG cover: background, two palette bands and the wrapped title.
func (r *CoverRenderer) Render(title, subtitle string, p Palette) ([]byte, error) {
	p = p.withDefaults()
	w, h := float64(CoverWidth), float64(CoverHeight)

	dc := gg.NewContext(CoverWidth, CoverHeight)
	dc.SetColor(mustColor(p.Background))
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()

	dc.SetColor(mustColor(p.Primary))
	dc.DrawRectangle(0, h*0.72, w, h*0.28)
	dc.Fill()

	dc.SetColor(mustColor(p.Secondary))
	dc.DrawRectangle(0, h*0.70, w, h*0.02)
	dc.Fill()

	dc.SetColor(mustColor(p.Accent))
	dc.DrawCircle(w*0.88, h*0.22, h*0.12)
	dc.Fill()

	title = strings.TrimSpace(title)
	if title == "" {
		title = "?"
	}
	dc.SetFontFace(r.titleFont)
	dc.SetColor(color.White)
	dc.DrawStringWrapped(title, 80, h*0.36, 0, 0.5, w*0.7, 1.2, gg.AlignLeft)

	if sub := strings.TrimSpace(subtitle); sub != "" {
		dc.SetFontFace(r.subFont)
		dc.SetColor(contrastOn(p.Primary))
		dc.DrawStringAnchored(sub, 80, h*0.86, 0, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func (p Palette) withDefaults() Palette {
	if NormalizeHex(p.Primary) == "" {
		p.Primary = defaultPalette.Primary
	}
	if NormalizeHex(p.Secondary) == "" {
		p.Secondary = defaultPalette.Secondary
	}
	if NormalizeHex(p.Accent) == "" {
		p.Accent = defaultPalette.Accent
	}
	if NormalizeHex(p.Background) == "" {
		p.Background = defaultPalette.Background
	}
	return p
}

// NormalizeHex returns s as #RRGGBB, or "" when it is not a 6-digit hex color.
func NormalizeHex(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	s = strings.ToUpper(s)
	if len(s) != 7 {
		return ""
	}
	if _, _, _, err := parseHexRGB(s); err != nil {
		return ""
	}
	return s
}

func parseHexRGB(s string) (r, g, b uint8, err error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("expected 6 hex chars")
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid hex")
	}
	return raw[0], raw[1], raw[2], nil
}

func mustColor(s string) color.NRGBA {
	r, g, b, err := parseHexRGB(NormalizeHex(s))
	if err != nil {
		return color.NRGBA{A: 255}
	}
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

// contrastOn picks black or white text for the given background.
func contrastOn(bg string) color.Color {
	c := mustColor(bg)
	lum := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	if lum > 150 {
		return color.Black
	}
	return color.White
}

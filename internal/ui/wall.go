package ui

import (
	"image"
	"image/draw"

	"github.com/veandco/go-sdl2/sdl"
	"golang.org/x/image/font"

	"github.com/tesselslate/waywall-sub001/internal/cpu"
	"github.com/tesselslate/waywall-sub001/internal/instance"
	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// TileColors maps each scheduler group to a background color, adapted
// from ContextMenu's normal/selected ColorPair pair into a four-way
// palette (spec.md "Wall mode" grid semantics).
type TileColors struct {
	Idle, Low, High, Active *image.Uniform
	Text                    *image.Uniform
}

// Grid is the wall-mode instance overlay: one SDL window with one
// renderer, one tile per instance slot, redrawn on each Draw call
// (cmd/waywall calls Draw from a 16 ms loop ticker). Its window lifecycle (CreateWindow/CreateRenderer,
// resize-in-place rather than recreate) follows Menu.updateWindow.
type Grid struct {
	log *logging.Logger

	win    *sdl.Window
	render *sdl.Renderer
	face   font.Face
	colors TileColors

	cols, rows     int
	tileW, tileH   int
	states         []instance.State
	groups         []cpu.Group

	// background, when set, is drawn beneath every tile: the GL surface's
	// per-frame readback (spec.md §4.4), composited under this overlay's
	// own tile/text drawing rather than presented directly.
	background *image.RGBA
}

// NewGrid creates the overlay window sized for rows*cols tiles of
// tileW x tileH pixels each, at the given screen offset.
func NewGrid(x, y, cols, rows, tileW, tileH int, face font.Face, colors TileColors) (*Grid, error) {
	w := cols * tileW
	h := rows * tileH

	win, err := sdl.CreateWindow("waywall-wall", int32(x), int32(y), int32(w), int32(h), sdl.WINDOW_SHOWN|sdl.WINDOW_BORDERLESS)
	if err != nil {
		return nil, err
	}
	render, err := sdl.CreateRenderer(win, -1, sdl.RENDERER_ACCELERATED)
	if err != nil {
		win.Destroy()
		return nil, err
	}

	return &Grid{
		log:    logging.New("ui"),
		win:    win,
		render: render,
		face:   face,
		colors: colors,
		cols:   cols,
		rows:   rows,
		tileW:  tileW,
		tileH:  tileH,
		states: make([]instance.State, cols*rows),
		groups: make([]cpu.Group, cols*rows),
	}, nil
}

// SetTile records instance id's current state and scheduler group;
// the next Draw call will reflect it. id must be within [0, cols*rows).
func (g *Grid) SetTile(id int, st instance.State, group cpu.Group) {
	if id < 0 || id >= len(g.states) {
		return
	}
	g.states[id] = st
	g.groups[id] = group
}

// PixelSize reports the overlay's current back-buffer dimensions, for
// sizing the GL composition surface's off-screen target to match
// (spec.md §4.4).
func (g *Grid) PixelSize() (int, int) {
	return g.cols * g.tileW, g.rows * g.tileH
}

// SetBackground installs the frame to draw beneath the tile grid on the
// next Draw call, e.g. the GL surface's readback of the composited game
// output (spec.md §4.4). A nil background falls back to each tile's flat
// group color.
func (g *Grid) SetBackground(img *image.RGBA) {
	g.background = img
}

func (g *Grid) backgroundFor(group cpu.Group) *image.Uniform {
	switch group {
	case cpu.GroupLow:
		return g.colors.Low
	case cpu.GroupHigh:
		return g.colors.High
	case cpu.GroupActive:
		return g.colors.Active
	default:
		return g.colors.Idle
	}
}

// Draw rasterizes every tile via the DrawMask glyph path onto an RGBA
// back buffer, then uploads it as a single streaming texture rather
// than drawing primitives directly with the renderer, one texture
// update per frame.
func (g *Grid) Draw() error {
	img := image.NewRGBA(image.Rect(0, 0, g.cols*g.tileW, g.rows*g.tileH))
	if g.background != nil {
		draw.Draw(img, img.Bounds(), g.background, g.background.Bounds().Min, draw.Src)
	}

	for row := 0; row < g.rows; row++ {
		for col := 0; col < g.cols; col++ {
			id := row*g.cols + col
			tileRect := image.Rect(col*g.tileW, row*g.tileH, (col+1)*g.tileW, (row+1)*g.tileH)
			if g.background == nil {
				draw.Draw(img, tileRect, g.backgroundFor(g.groups[id]), image.Point{}, draw.Src)
			}

			label := g.states[id].Screen.String()
			textW := measureText(g.face, label)
			originX := tileRect.Min.X + (g.tileW-textW)/2
			drawText(img, g.face, label, originX, tileRect.Min.Y)
		}
	}

	tex, err := g.render.CreateTexture(uint32(sdl.PIXELFORMAT_ABGR8888), sdl.TEXTUREACCESS_STREAMING, int32(img.Rect.Dx()), int32(img.Rect.Dy()))
	if err != nil {
		return err
	}
	defer tex.Destroy()

	if err := tex.Update(nil, img.Pix, img.Stride); err != nil {
		return err
	}
	if err := g.render.Clear(); err != nil {
		return err
	}
	if err := g.render.Copy(tex, nil, nil); err != nil {
		return err
	}
	g.render.Present()
	return nil
}

// Resize relocates and resizes the window in place, following
// Menu.updateWindow's "else" branch rather than recreating the window.
func (g *Grid) Resize(x, y, cols, rows int) {
	g.cols, g.rows = cols, rows
	g.states = make([]instance.State, cols*rows)
	g.groups = make([]cpu.Group, cols*rows)
	g.win.SetSize(int32(cols*g.tileW), int32(rows*g.tileH))
	g.win.SetPosition(int32(x), int32(y))
}

// Close destroys the renderer and window.
func (g *Grid) Close() {
	g.render.Destroy()
	g.win.Destroy()
}

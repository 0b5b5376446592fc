// Package pool implements the shared-memory buffer pool described in
// spec.md §3 "Pool slot" / §2 "Shared buffer pool": a single grow-only
// memfd-backed mmap region holding small internal buffers — 1x1 solid
// colors and decoded/resized icon images — with reference-counted slots.
package pool

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sync"

	"github.com/KononK/resize"
	"github.com/daaku/swizzle"
	"golang.org/x/sys/unix"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

// growChunk matches spec.md §8 property 9: growth happens in batches of
// 64 colors (256 bytes, 4 bytes/color) at a time.
const (
	bytesPerColor = 4
	colorsPerGrow = 64
	growChunk     = colorsPerGrow * bytesPerColor // 256
)

// Slot is one offset range inside the pool's single region.
type Slot struct {
	Offset   int64
	Size     int64
	refcount int
}

type colorKey = color.NRGBA

// Pool is the grow-only shared-memory region. Mutated only by the
// façade goroutine (spec.md §5 "Shared resources"); no internal locking
// beyond what's needed for the mutex guarding the memfd resize.
type Pool struct {
	mu       sync.Mutex
	file     *os.File
	data     []byte
	size     int64
	initial  int64
	slots    []*Slot
	colorIdx map[colorKey]*Slot
	log      *logging.Logger
}

// New creates an empty pool backed by a close-on-exec memfd, with no initial
// allocation beyond bookkeeping overhead.
func New() (*Pool, error) {
	fd, err := unix.MemfdCreate("waywall-pool", unix.MFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("pool: memfd_create: %w", err)
	}
	file := os.NewFile(uintptr(fd), "waywall-pool")

	return &Pool{
		file:     file,
		colorIdx: make(map[colorKey]*Slot),
		log:      logging.New("pool"),
	}, nil
}

// Fd returns the pool's backing fd, handed to wl_shm.create_pool on the
// remote connection.
func (p *Pool) Fd() uintptr {
	return p.file.Fd()
}

// grow extends the region by at least n bytes, in growChunk increments,
// and remaps it. Must be called with p.mu held.
func (p *Pool) grow(n int64) error {
	needed := p.size + n
	chunks := (needed + growChunk - 1) / growChunk
	newSize := chunks * growChunk
	if newSize <= p.size {
		return nil
	}
	if err := p.file.Truncate(newSize); err != nil {
		return fmt.Errorf("pool: ftruncate: %w", err)
	}
	if p.data != nil {
		if err := unix.Munmap(p.data); err != nil {
			return fmt.Errorf("pool: munmap: %w", err)
		}
	}
	data, err := unix.Mmap(int(p.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("pool: mmap: %w", err)
	}
	p.data = data
	p.size = newSize
	return nil
}

// alloc reserves n bytes at the tail of the region, growing as needed.
// Must be called with p.mu held.
func (p *Pool) alloc(n int64) (*Slot, error) {
	var tail int64
	for _, s := range p.slots {
		if end := s.Offset + s.Size; end > tail {
			tail = end
		}
	}
	if tail+n > p.size {
		if err := p.grow(n); err != nil {
			return nil, err
		}
	}
	slot := &Slot{Offset: tail, Size: n, refcount: 0}
	p.slots = append(p.slots, slot)
	return slot, nil
}

// AllocColor returns a (possibly shared) 1x1 solid-color slot, reusing an
// existing slot for an identical color (spec.md §8 "Color buffer reuse").
// Each call increments the slot's refcount by one.
func (p *Pool) AllocColor(c color.NRGBA) (*Slot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if slot, ok := p.colorIdx[c]; ok {
		slot.refcount++
		return slot, nil
	}

	slot, err := p.alloc(bytesPerColor)
	if err != nil {
		return nil, err
	}
	buf := p.data[slot.Offset : slot.Offset+slot.Size]
	// Wayland ABGR8888 byte order: R,G,B,A little-endian word == A<<24|B<<16|G<<8|R
	buf[0] = c.R
	buf[1] = c.G
	buf[2] = c.B
	buf[3] = c.A

	slot.refcount = 1
	p.colorIdx[c] = slot
	return slot, nil
}

// AllocImage decodes img into an ARGB8888 slot of exactly targetSize,
// resizing with Lanczos3 (KononK/resize) and swizzling RGBA->BGRA byte
// order (daaku/swizzle) to match wl_shm's WL_SHM_FORMAT_ARGB8888. Its
// slots differ in format from AllocColor's, which are ABGR8888.
func (p *Pool) AllocImage(img image.Image, targetSize image.Point) (*Slot, error) {
	resized := resize.Resize(uint(targetSize.X), uint(targetSize.Y), img, resize.Lanczos3)

	rgba := image.NewRGBA(resized.Bounds())
	draw.Draw(rgba, rgba.Bounds(), resized, image.Point{}, draw.Src)
	swizzle.BGRA(rgba.Pix) // R,G,B,A bytes in place -> B,G,R,A: little-endian word A<<24|R<<16|G<<8|B, i.e. ARGB8888

	p.mu.Lock()
	defer p.mu.Unlock()

	slot, err := p.alloc(int64(len(rgba.Pix)))
	if err != nil {
		return nil, err
	}
	copy(p.data[slot.Offset:slot.Offset+slot.Size], rgba.Pix)
	slot.refcount = 1
	return slot, nil
}

// Deref decrements slot's refcount. Per spec.md §3 invariant, the slot's
// backing bytes are never reclaimed (grow-only pool) but dropping to zero
// makes the offset eligible for the color dedup index to be evicted.
// remote_buffer_deref in the original source panics on double-free; we
// mirror that with an explicit panic, per spec.md §9 design notes.
func (p *Pool) Deref(slot *Slot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slot.refcount <= 0 {
		panic("pool: slot refcount underflow (double deref)")
	}
	slot.refcount--
	if slot.refcount == 0 {
		for k, v := range p.colorIdx {
			if v == slot {
				delete(p.colorIdx, k)
			}
		}
	}
}

// Size reports the current region size, for the growth-bound test
// (spec.md §8 property 9).
func (p *Pool) Size() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

// Close releases the memfd and mapping.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.data != nil {
		_ = unix.Munmap(p.data)
	}
	return p.file.Close()
}

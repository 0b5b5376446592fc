// Package gl implements the GL composition surface of spec.md §4.4: an
// EGL/GLESv2 context that renders into an off-screen pbuffer whose
// pixels are read back as the background of the SDL2-rendered wall
// overlay. It creates no wl_egl_window on the remote connection and does
// not import guest dmabuf buffers as textures: the EGLImage entry points
// are bound, but nothing calls them. Library entry points are
// bound dynamically via github.com/ebitengine/purego rather than cgo,
// following the dlopen/RegisterLibFunc idiom used for native libraries
// throughout this codebase's ambient stack.
package gl

import (
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/tesselslate/waywall-sub001/internal/logging"
)

const (
	eglNoDisplay = 0
	eglNoContext = 0
	eglNoSurface = 0

	eglOpenglEsAPI = 0x30A0

	eglSurfaceType  = 0x3033
	eglWindowBit    = 0x0004
	eglPbufferBit   = 0x0001
	eglRenderableTy = 0x3040
	eglOpenglEs2Bit = 0x0004
	eglRedSize      = 0x3024
	eglGreenSize    = 0x3023
	eglBlueSize     = 0x3022
	eglAlphaSize    = 0x3021
	eglNone         = 0x3038

	eglContextClientVersion = 0x3098

	eglWidth  = 0x3057
	eglHeight = 0x3056

	glColorBufferBit = 0x4000
	glRGBA           = 0x1908
	glUnsignedByte   = 0x1401
)

// requiredExtensions are probed at init time; their absence disables
// dmabuf-backed texture import but not EGL/GLES2 rendering itself
// (spec.md §4.4 "Capability probing").
var requiredExtensions = []string{
	"EGL_EXT_image_dma_buf_import",
	"EGL_KHR_image_base",
	"EGL_MESA_image_dma_buf_export",
	"GL_OES_EGL_image",
}

type eglFuncs struct {
	GetDisplay        func(nativeDisplay uintptr) uintptr
	Initialize        func(display uintptr, major, minor *int32) uint32
	BindAPI           func(api uint32) uint32
	ChooseConfig      func(display uintptr, attribs *int32, configs *uintptr, configSize int32, numConfig *int32) uint32
	CreateContext     func(display, config, shareContext uintptr, attribs *int32) uintptr
	CreateWindowSurf  func(display, config uintptr, win uintptr, attribs *int32) uintptr
	CreatePbufferSurf func(display, config uintptr, attribs *int32) uintptr
	MakeCurrent       func(display, draw, read, ctx uintptr) uint32
	SwapBuffers       func(display, surface uintptr) uint32
	QueryString       func(display uintptr, name int32) uintptr
	DestroyContext    func(display, ctx uintptr) uint32
	DestroySurface    func(display, surface uintptr) uint32
	Terminate         func(display uintptr) uint32
	CreateImageKHR    func(display, ctx uintptr, target uint32, buffer uintptr, attribs *int32) uintptr
	DestroyImageKHR   func(display, image uintptr) uint32
}

type glesFuncs struct {
	EGLImageTargetTexture2DOES func(target uint32, image uintptr)
	GenTextures                func(n int32, textures *uint32)
	BindTexture                func(target uint32, texture uint32)
	Clear                       func(mask uint32)
	ClearColor                  func(r, g, b, a float32)
	Viewport                    func(x, y, width, height int32)
	Flush                       func()
	ReadPixels                  func(x, y, width, height int32, format, typ uint32, data unsafe.Pointer)
}

// Context owns one EGL display/context pair and the GLESv2 function
// table bound against it.
type Context struct {
	log *logging.Logger

	libEGL, libGLESv2 uintptr

	egl  eglFuncs
	gles glesFuncs

	display uintptr
	config  uintptr
	context uintptr
	surface uintptr

	width, height int32

	extensions map[string]bool
}

// NewContext dynamically loads libEGL.so.1 and libGLESv2.so.2, creates
// an EGL display over nativeDisplay (the remote client's wl_display),
// and establishes a GLES2 context. nativeDisplay is an opaque pointer
// value obtained from the remote connection's underlying wl_display
// object.
func NewContext(nativeDisplay uintptr) (*Context, error) {
	c := &Context{log: logging.New("gl"), extensions: make(map[string]bool)}

	var err error
	c.libEGL, err = purego.Dlopen("libEGL.so.1", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		c.libEGL, err = purego.Dlopen("libEGL.so", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			return nil, fmt.Errorf("gl: dlopen libEGL: %w", err)
		}
	}
	c.libGLESv2, err = purego.Dlopen("libGLESv2.so.2", purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		c.libGLESv2, err = purego.Dlopen("libGLESv2.so", purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			return nil, fmt.Errorf("gl: dlopen libGLESv2: %w", err)
		}
	}

	purego.RegisterLibFunc(&c.egl.GetDisplay, c.libEGL, "eglGetDisplay")
	purego.RegisterLibFunc(&c.egl.Initialize, c.libEGL, "eglInitialize")
	purego.RegisterLibFunc(&c.egl.BindAPI, c.libEGL, "eglBindAPI")
	purego.RegisterLibFunc(&c.egl.ChooseConfig, c.libEGL, "eglChooseConfig")
	purego.RegisterLibFunc(&c.egl.CreateContext, c.libEGL, "eglCreateContext")
	purego.RegisterLibFunc(&c.egl.CreateWindowSurf, c.libEGL, "eglCreateWindowSurface")
	purego.RegisterLibFunc(&c.egl.CreatePbufferSurf, c.libEGL, "eglCreatePbufferSurface")
	purego.RegisterLibFunc(&c.egl.MakeCurrent, c.libEGL, "eglMakeCurrent")
	purego.RegisterLibFunc(&c.egl.SwapBuffers, c.libEGL, "eglSwapBuffers")
	purego.RegisterLibFunc(&c.egl.QueryString, c.libEGL, "eglQueryString")
	purego.RegisterLibFunc(&c.egl.DestroyContext, c.libEGL, "eglDestroyContext")
	purego.RegisterLibFunc(&c.egl.DestroySurface, c.libEGL, "eglDestroySurface")
	purego.RegisterLibFunc(&c.egl.Terminate, c.libEGL, "eglTerminate")
	purego.RegisterLibFunc(&c.egl.CreateImageKHR, c.libEGL, "eglCreateImageKHR")
	purego.RegisterLibFunc(&c.egl.DestroyImageKHR, c.libEGL, "eglDestroyImageKHR")

	purego.RegisterLibFunc(&c.gles.EGLImageTargetTexture2DOES, c.libGLESv2, "glEGLImageTargetTexture2DOES")
	purego.RegisterLibFunc(&c.gles.GenTextures, c.libGLESv2, "glGenTextures")
	purego.RegisterLibFunc(&c.gles.BindTexture, c.libGLESv2, "glBindTexture")
	purego.RegisterLibFunc(&c.gles.Clear, c.libGLESv2, "glClear")
	purego.RegisterLibFunc(&c.gles.ClearColor, c.libGLESv2, "glClearColor")
	purego.RegisterLibFunc(&c.gles.Viewport, c.libGLESv2, "glViewport")
	purego.RegisterLibFunc(&c.gles.Flush, c.libGLESv2, "glFlush")
	purego.RegisterLibFunc(&c.gles.ReadPixels, c.libGLESv2, "glReadPixels")

	c.display = c.egl.GetDisplay(nativeDisplay)
	if c.display == eglNoDisplay {
		return nil, fmt.Errorf("gl: eglGetDisplay failed")
	}
	var major, minor int32
	if c.egl.Initialize(c.display, &major, &minor) == 0 {
		return nil, fmt.Errorf("gl: eglInitialize failed")
	}
	c.log.Printf("EGL %d.%d initialized", major, minor)

	if c.egl.BindAPI(eglOpenglEsAPI) == 0 {
		return nil, fmt.Errorf("gl: eglBindAPI(EGL_OPENGL_ES_API) failed")
	}

	attribs := []int32{
		eglSurfaceType, eglPbufferBit,
		eglRenderableTy, eglOpenglEs2Bit,
		eglRedSize, 8, eglGreenSize, 8, eglBlueSize, 8, eglAlphaSize, 8,
		eglNone,
	}
	var numConfigs int32
	if c.egl.ChooseConfig(c.display, &attribs[0], &c.config, 1, &numConfigs) == 0 || numConfigs == 0 {
		return nil, fmt.Errorf("gl: eglChooseConfig found no matching config")
	}

	ctxAttribs := []int32{eglContextClientVersion, 2, eglNone}
	c.context = c.egl.CreateContext(c.display, c.config, eglNoContext, &ctxAttribs[0])
	if c.context == eglNoContext {
		return nil, fmt.Errorf("gl: eglCreateContext failed")
	}

	c.probeExtensions()
	return c, nil
}

func (c *Context) probeExtensions() {
	ptr := c.egl.QueryString(c.display, 0x3055) // EGL_EXTENSIONS
	raw := cString(ptr)
	for _, ext := range requiredExtensions {
		if containsToken(raw, ext) {
			c.extensions[ext] = true
		} else {
			c.log.Warnf("missing EGL/GLES extension %s; dmabuf texture import disabled", ext)
		}
	}
}

// CreatePbufferSurface creates an off-screen EGL pbuffer surface and makes
// it current. A pbuffer stands in for the on-screen wl_egl_window surface
// spec.md §4.4 describes: the remote connection here is a pure-Go
// wl_display with no C-compatible proxy pointer a dlopen'd
// libwayland-egl.so could accept, so this core renders off-screen and
// reads the frame back for the on-screen UI subsurface to composite
// (see DESIGN.md).
func (c *Context) CreatePbufferSurface(width, height int32) error {
	attribs := []int32{eglWidth, width, eglHeight, height, eglNone}
	c.surface = c.egl.CreatePbufferSurf(c.display, c.config, &attribs[0])
	if c.surface == eglNoSurface {
		return fmt.Errorf("gl: eglCreatePbufferSurface failed")
	}
	if c.egl.MakeCurrent(c.display, c.surface, c.surface, c.context) == 0 {
		return fmt.Errorf("gl: eglMakeCurrent failed")
	}
	c.gles.Viewport(0, 0, width, height)
	c.width, c.height = width, height
	return nil
}

// RenderFrame clears the pbuffer to the given color and flushes. Guest
// surface content is composited on top by the UI layer's texture upload,
// not by this step; this is the per-frame tick spec.md §4.4 requires the
// GL surface to drive regardless of what it is compositing.
func (c *Context) RenderFrame(r, g, b, a float32) error {
	if c.surface == eglNoSurface {
		return fmt.Errorf("gl: RenderFrame called before CreatePbufferSurface")
	}
	c.gles.ClearColor(r, g, b, a)
	c.gles.Clear(glColorBufferBit)
	c.gles.Flush()
	return nil
}

// ReadPixels reads the current pbuffer back as tightly packed RGBA8 rows,
// bottom-to-top per the glReadPixels convention (origin at the
// bottom-left; a caller that needs top-down rows must flip them).
func (c *Context) ReadPixels() []byte {
	if c.surface == eglNoSurface {
		return nil
	}
	buf := make([]byte, int(c.width)*int(c.height)*4)
	c.gles.ReadPixels(0, 0, c.width, c.height, glRGBA, glUnsignedByte, unsafe.Pointer(&buf[0]))
	return buf
}

// SupportsDmabufImport reports whether every extension required for
// dmabuf-to-GL-texture import (spec.md §4.4 "Buffer import") is
// present.
func (c *Context) SupportsDmabufImport() bool {
	for _, ext := range requiredExtensions {
		if !c.extensions[ext] {
			return false
		}
	}
	return true
}

// cString reads a NUL-terminated string out of C memory returned by a
// dynamically bound function, the same byte-at-a-time walk used
// elsewhere in the corpus for reading native string return values.
func cString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	var buf []byte
	for i := uintptr(0); ; i++ {
		b := *(*byte)(unsafe.Pointer(ptr + i))
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

func containsToken(haystack, token string) bool {
	for i := 0; i+len(token) <= len(haystack); i++ {
		if haystack[i:i+len(token)] == token {
			return true
		}
	}
	return false
}

// Close tears down the context and terminates the display connection.
func (c *Context) Close() {
	if c.surface != eglNoSurface {
		c.egl.DestroySurface(c.display, c.surface)
	}
	if c.context != eglNoContext {
		c.egl.DestroyContext(c.display, c.context)
	}
	if c.display != eglNoDisplay {
		c.egl.Terminate(c.display)
	}
}

//go:build js && wasm

package main

import (
	"fmt"
	"image"
	"image/draw"
	"syscall/js"
)

// canvasSurface presents frames on an HTML canvas looked up by element ID
// at draw time, so a page may replace the element between runs.
type canvasSurface struct {
	id string
}

func (c canvasSurface) element() (js.Value, bool) {
	el := js.Global().Get("document").Call("getElementById", c.id)
	if el.IsNull() || el.IsUndefined() {
		return js.Value{}, false
	}
	return el, true
}

// Size returns 0x0 for a missing canvas; the renderer rejects that as a
// bad surface.
func (c canvasSurface) Size() (int, int) {
	el, ok := c.element()
	if !ok {
		return 0, 0
	}
	return el.Get("width").Int(), el.Get("height").Int()
}

func (c canvasSurface) Present(img image.Image) error {
	el, ok := c.element()
	if !ok {
		return fmt.Errorf("canvas %q not found", c.id)
	}
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	pix := js.Global().Get("Uint8ClampedArray").New(len(rgba.Pix))
	js.CopyBytesToJS(pix, rgba.Pix)
	frame := js.Global().Get("ImageData").New(pix, b.Dx(), b.Dy())

	ctx := el.Call("getContext", "2d")
	if ctx.IsNull() {
		return fmt.Errorf("canvas %q has no 2d context", c.id)
	}
	ctx.Call("putImageData", frame, 0, 0)
	return nil
}

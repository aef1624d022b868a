package transform

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/bianoble/sitepipe/internal/pipeline"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 4), B: 128, A: 255})
		}
	}
	return img
}

func TestImageOptimizePNG(t *testing.T) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.NoCompression}
	if err := enc.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	orig := buf.Bytes()

	im := &Image{}
	f, err := im.Optimize(pipeline.File{Source: "assets/img/a.png", Path: "a.png", Contents: orig})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Contents) >= len(orig) {
		t.Errorf("png not smaller: %d >= %d", len(f.Contents), len(orig))
	}
	if _, err := png.Decode(bytes.NewReader(f.Contents)); err != nil {
		t.Errorf("output is not a valid png: %v", err)
	}
	if f.Path != "a.png" {
		t.Errorf("image stage must not rename, got %q", f.Path)
	}
}

func TestImageOptimizeJPEG(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	orig := buf.Bytes()

	f, err := (&Image{JPEGQuality: 40}).Optimize(pipeline.File{Source: "assets/img/a.JPG", Contents: orig})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Contents) >= len(orig) {
		t.Errorf("jpeg not smaller: %d >= %d", len(f.Contents), len(orig))
	}
}

func TestImageKeepsSmallerOriginal(t *testing.T) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(), &jpeg.Options{Quality: 10}); err != nil {
		t.Fatal(err)
	}
	orig := buf.Bytes()

	f, err := (&Image{JPEGQuality: 100}).Optimize(pipeline.File{Source: "a.jpg", Contents: orig})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(f.Contents, orig) {
		t.Error("a larger re-encode must not replace the original")
	}
}

func TestImageOptimizeGIF(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 8, 8), color.Palette{color.Black, color.White})
	var buf bytes.Buffer
	if err := gif.Encode(&buf, pal, nil); err != nil {
		t.Fatal(err)
	}
	f, err := (&Image{}).Optimize(pipeline.File{Source: "a.gif", Contents: buf.Bytes()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gif.DecodeAll(bytes.NewReader(f.Contents)); err != nil {
		t.Errorf("output is not a valid gif: %v", err)
	}
}

func TestImageOptimizeSVG(t *testing.T) {
	src := []byte(`<?xml version="1.0"?>
<!-- exported -->
<svg xmlns="http://www.w3.org/2000/svg" width="10" height="10">
    <rect x="0" y="0" width="10" height="10" fill="#ff0000"/>
</svg>
`)
	f, err := (&Image{Minifier: NewMinifier()}).Optimize(pipeline.File{Source: "logo.svg", Contents: src})
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Contents) >= len(src) {
		t.Errorf("svg not minified: %s", f.Contents)
	}
	if bytes.Contains(f.Contents, []byte("exported")) {
		t.Errorf("comment kept: %s", f.Contents)
	}
}

func TestImagePassThroughAndErrors(t *testing.T) {
	im := &Image{}
	f, err := im.Optimize(pipeline.File{Source: "a.webp", Contents: []byte("RIFF")})
	if err != nil || string(f.Contents) != "RIFF" {
		t.Errorf("unknown type should pass through: %q, %v", f.Contents, err)
	}

	if _, err := im.Optimize(pipeline.File{Source: "bad.png", Contents: []byte("not a png")}); err == nil {
		t.Error("expected decode error")
	}
}

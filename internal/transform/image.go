package transform

import (
	"bytes"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"path"
	"strings"

	"github.com/tdewolff/minify/v2"

	"github.com/bianoble/sitepipe/internal/pipeline"
)

// Image recompresses raster images and minifies SVG. The re-encoded bytes
// are kept only when smaller than the original, so the stage never grows a
// file. Unknown types pass through untouched.
type Image struct {
	JPEGQuality int
	Minifier    *minify.M
}

// Optimize is the image stage.
func (im *Image) Optimize(f pipeline.File) (pipeline.File, error) {
	var (
		out []byte
		err error
	)
	switch strings.ToLower(path.Ext(f.Source)) {
	case ".jpg", ".jpeg":
		out, err = im.jpeg(f.Contents)
	case ".png":
		out, err = recodePNG(f.Contents)
	case ".gif":
		out, err = recodeGIF(f.Contents)
	case ".svg":
		if im.Minifier == nil {
			return f, nil
		}
		out, err = im.Minifier.Bytes(mediaSVG, f.Contents)
	default:
		return f, nil
	}
	if err != nil {
		return pipeline.File{}, err
	}

	if len(out) < len(f.Contents) {
		f.Contents = out
	}
	return f, nil
}

func (im *Image) jpeg(data []byte) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding jpeg: %w", err)
	}
	quality := im.JPEGQuality
	if quality <= 0 {
		quality = jpeg.DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func recodePNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding png: %w", err)
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding png: %w", err)
	}
	return buf.Bytes(), nil
}

func recodeGIF(data []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding gif: %w", err)
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, fmt.Errorf("encoding gif: %w", err)
	}
	return buf.Bytes(), nil
}

// Package tagging writes ID3 metadata and cover art into extracted audio.
package tagging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/bogem/id3v2"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const DefaultCoverMaxSize = 500

type Meta struct {
	Title  string
	Artist string
	// Cover is JPEG data; nil leaves any existing picture alone.
	Cover []byte
}

// Cover decodes a thumbnail (JPEG, PNG or WebP), shrinks it to fit inside a
// maxSize square and re-encodes it as JPEG.
func Cover(data []byte, maxSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	if maxSize <= 0 {
		maxSize = DefaultCoverMaxSize
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode cover: %w", err)
	}

	bounds := img.Bounds()
	width, height := fitWithin(bounds.Dx(), bounds.Dy(), maxSize)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode cover: %w", err)
	}
	return buf.Bytes(), nil
}

func fitWithin(width, height, maxSize int) (int, int) {
	if width <= maxSize && height <= maxSize {
		return width, height
	}
	if width >= height {
		h := max(1, height*maxSize/width)
		return maxSize, h
	}
	w := max(1, width*maxSize/height)
	return w, maxSize
}

// TagMP3 sets title, artist and front cover on an MP3 file in place.
func TagMP3(path string, meta Meta) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open tags %s: %w", path, err)
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	if title := strings.TrimSpace(meta.Title); title != "" {
		tag.SetTitle(title)
	}
	if artist := strings.TrimSpace(meta.Artist); artist != "" {
		tag.SetArtist(artist)
	}
	if len(meta.Cover) > 0 {
		tag.DeleteFrames(tag.CommonID("Attached picture"))
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/jpeg",
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     meta.Cover,
		})
	}
	if err := tag.Save(); err != nil {
		return fmt.Errorf("save tags %s: %w", path, err)
	}
	return nil
}

// IsMP3 reports whether path looks like an MP3 by extension.
func IsMP3(path string) bool {
	return strings.EqualFold(extension(path), ".mp3")
}

func extension(path string) string {
	i := strings.LastIndexByte(path, '.')
	if i < 0 || strings.ContainsAny(path[i:], `/\`) {
		return ""
	}
	return path[i:]
}

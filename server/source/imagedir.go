package source

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ImageDir plays the images in a directory, in filename order.
// Timestamps are synthetic, spaced 1/fps apart.
type ImageDir struct {
	Loop bool // Start again from the first image after the last one

	dir   string
	files []string
	fps   float64
	start time.Time
	next  int   // Index into files
	frame int64 // Number of frames produced, including loops
}

func NewImageDir(dir string, fps float64) (*ImageDir, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	files := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images in %v", ErrSourceUnavailable, dir)
	}
	slices.Sort(files)
	return &ImageDir{
		dir:   dir,
		files: files,
		fps:   fps,
		start: time.Now(),
	}, nil
}

func (d *ImageDir) String() string {
	return "images:" + d.dir
}

func (d *ImageDir) Close() {
	d.next = len(d.files)
	d.Loop = false
}

func (d *ImageDir) Next(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.next >= len(d.files) {
		if !d.Loop {
			return nil, ErrSourceExhausted
		}
		d.next = 0
	}
	fn := d.files[d.next]
	d.next++
	img, err := loadImage(fn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	t := d.start.Add(time.Duration(float64(d.frame) * float64(time.Second) / d.fps))
	d.frame++
	return &Frame{
		Image: img,
		Time:  t,
	}, nil
}

func loadImage(filename string) (image.Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("Failed to decode %v: %w", filename, err)
	}
	return img, nil
}

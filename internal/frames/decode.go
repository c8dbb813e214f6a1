package frames

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"golang.org/x/image/draw"
)

// Thumbnail is a frame scaled down for half-block terminal rendering.
type Thumbnail struct {
	Img *image.RGBA
}

var errEmptyImage = errors.New("empty image")

// Decode turns a job into a Result. It touches no pipeline state, so it can
// run on any goroutine.
func Decode(job Job) Result {
	res := Result{
		CameraID:   job.CameraID,
		Seq:        job.Seq,
		Data:       job.Data,
		Timestamp:  job.Timestamp,
		Detections: job.Detections,
	}
	thumb, err := decodeThumbnail(job.Data, job.Width, job.Height)
	if err != nil {
		res.Err = err
		return res
	}
	res.Thumbnail = thumb
	return res
}

func decodeThumbnail(data string, width, height int) (*Thumbnail, error) {
	if i := strings.Index(data, "base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len("base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errEmptyImage
	}

	w, h := fit(b.Dx(), b.Dy(), width, height)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return &Thumbnail{Img: dst}, nil
}

// fit scales srcW x srcH into maxW x maxH keeping the aspect ratio.
func fit(srcW, srcH, maxW, maxH int) (int, int) {
	if srcW <= maxW && srcH <= maxH {
		return srcW, srcH
	}
	w, h := maxW, srcH*maxW/srcW
	if h > maxH {
		w, h = srcW*maxH/srcH, maxH
	}
	return max(w, 1), max(h, 1)
}

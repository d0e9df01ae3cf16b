package orchestrator

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"stepleague/internal/common"
)

const (
	// CompressThreshold is the size above which proofs are re-encoded before upload.
	CompressThreshold = 2 << 20
	// MaxProofBytes is the hard cap; larger files never leave the machine.
	MaxProofBytes = 20 << 20

	maxDimension = 2048
	minDimension = 512
)

var jpegQualities = []int{82, 68, 55}

var proofTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Proof is a screenshot of the member's step counter.
type Proof struct {
	Data        []byte
	ContentType string // sniffed when empty
}

func checkProof(p Proof) (string, error) {
	if len(p.Data) == 0 {
		return "", fmt.Errorf("proof image is empty: %w", common.ErrValidation)
	}
	if len(p.Data) > MaxProofBytes {
		return "", fmt.Errorf("proof image is %.1f MB, the limit is %d MB: %w",
			float64(len(p.Data))/(1<<20), MaxProofBytes>>20, common.ErrValidation)
	}
	ct := strings.ToLower(strings.TrimSpace(p.ContentType))
	if ct == "" {
		ct = http.DetectContentType(p.Data)
	}
	if !proofTypes[ct] {
		return "", fmt.Errorf("unsupported proof type %q: %w", ct, common.ErrValidation)
	}
	return ct, nil
}

// PrepareProof validates p and shrinks anything above CompressThreshold to a JPEG.
// If no setting gets under the threshold the smallest encoding is returned.
func PrepareProof(p Proof) (Proof, error) {
	ct, err := checkProof(p)
	if err != nil {
		return Proof{}, err
	}
	if len(p.Data) <= CompressThreshold {
		return Proof{Data: p.Data, ContentType: ct}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(p.Data))
	if err != nil {
		return Proof{}, fmt.Errorf("could not read proof image: %v: %w", err, common.ErrValidation)
	}

	var best []byte
	for limit := maxDimension; limit >= minDimension; limit /= 2 {
		scaled := fit(img, limit)
		for _, q := range jpegQualities {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, scaled, &jpeg.Options{Quality: q}); err != nil {
				return Proof{}, fmt.Errorf("compress proof: %w", err)
			}
			if best == nil || buf.Len() < len(best) {
				best = buf.Bytes()
			}
			if buf.Len() <= CompressThreshold {
				return Proof{Data: buf.Bytes(), ContentType: "image/jpeg"}, nil
			}
		}
	}
	if len(best) >= len(p.Data) {
		return Proof{Data: p.Data, ContentType: ct}, nil
	}
	return Proof{Data: best, ContentType: "image/jpeg"}, nil
}

// fit scales img down so neither side exceeds limit, flattening onto white.
func fit(img image.Image, limit int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > limit || h > limit {
		if w >= h {
			h = h * limit / w
			w = limit
		} else {
			w = w * limit / h
			h = limit
		}
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

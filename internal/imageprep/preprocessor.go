package imageprep

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/webp" // registers the webp decoder with image.Decode

	"solarbill/internal/config"
	"solarbill/internal/domain"
)

// encodeChunkSize bounds each base64 write; a multiple of 3 keeps chunks
// free of padding.
const encodeChunkSize = 48 * 1024

// Image is a validated bill image ready for transport.
type Image struct {
	Type        domain.ImageType
	ContentType string
	Data        []byte
}

// Optimized is the transport form of an image.
type Optimized struct {
	Encoded     string
	ContentType string
	Resized     bool
	Width       int
	Height      int
	SizeBytes   int
}

// Preprocessor validates and optimizes raw bill images.
type Preprocessor struct {
	cfg config.ProcessingConfig
	log zerolog.Logger
}

// NewPreprocessor creates a Preprocessor with its own copy of cfg.
func NewPreprocessor(cfg config.ProcessingConfig, log zerolog.Logger) *Preprocessor {
	return &Preprocessor{cfg: cfg, log: log}
}

// Validate checks the declared type and size of an upload.
func (p *Preprocessor) Validate(data []byte, contentType, filename string) (*Image, error) {
	imgType, ok := domain.DetectImageType(contentType, filename)
	if !ok {
		return nil, fmt.Errorf("%w: content type %q, file %q", domain.ErrInvalidFormat, contentType, filename)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidFormat)
	}
	if limit := p.cfg.MaxImageBytes(); limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %d bytes (limit %d MB)", domain.ErrSizeExceeded, len(data), p.cfg.MaxImageSizeMB)
	}

	return &Image{Type: imgType, ContentType: "image/" + string(imgType), Data: data}, nil
}

// Optimize encodes the image for transport, downscaling it first when it is
// above the resize threshold. Resize failures fall back to the original
// bytes; Optimize never returns an error.
func (p *Preprocessor) Optimize(ctx context.Context, img *Image) *Optimized {
	out := &Optimized{ContentType: img.ContentType, SizeBytes: len(img.Data)}
	data := img.Data

	if int64(len(data)) > p.cfg.ResizeThresholdBytes {
		resized, w, h, err := p.resizeWithTimeout(ctx, data)
		if err != nil {
			p.log.Warn().Err(err).Int("size_bytes", len(data)).Msg("image resize failed, using original bytes")
		} else {
			data = resized
			out.ContentType = "image/jpeg"
			out.Resized = true
			out.Width, out.Height = w, h
			out.SizeBytes = len(resized)
			p.log.Debug().Int("original_bytes", len(img.Data)).Int("resized_bytes", len(resized)).
				Int("width", w).Int("height", h).Msg("image downscaled")
		}
	}

	out.Encoded = EncodeBase64(data)
	return out
}

type resizeResult struct {
	data []byte
	w, h int
	err  error
}

func (p *Preprocessor) resizeWithTimeout(ctx context.Context, data []byte) ([]byte, int, int, error) {
	if p.cfg.ConversionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConversionTimeout)
		defer cancel()
	}

	done := make(chan resizeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- resizeResult{err: fmt.Errorf("resize panicked: %v", r)}
			}
		}()
		b, w, h, err := p.resize(data)
		done <- resizeResult{data: b, w: w, h: h, err: err}
	}()

	select {
	case r := <-done:
		return r.data, r.w, r.h, r.err
	case <-ctx.Done():
		return nil, 0, 0, fmt.Errorf("resize: %w", ctx.Err())
	}
}

func (p *Preprocessor) resize(data []byte) ([]byte, int, int, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decoding image: %w", err)
	}

	dst := src
	b := src.Bounds()
	if b.Dx() > p.cfg.MaxImageWidth || b.Dy() > p.cfg.MaxImageHeight {
		dst = imaging.Fit(src, p.cfg.MaxImageWidth, p.cfg.MaxImageHeight, imaging.Lanczos)
	}

	quality := p.cfg.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, 0, 0, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), dst.Bounds().Dx(), dst.Bounds().Dy(), nil
}

// EncodeBase64 encodes data with the standard alphabet in bounded chunks.
func EncodeBase64(data []byte) string {
	var sb strings.Builder
	sb.Grow(base64.StdEncoding.EncodedLen(len(data)))
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	for off := 0; off < len(data); off += encodeChunkSize {
		end := off + encodeChunkSize
		if end > len(data) {
			end = len(data)
		}
		// strings.Builder writes never fail.
		_, _ = enc.Write(data[off:end])
	}
	_ = enc.Close()
	return sb.String()
}

package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"mime"
	"net/http"
	"strings"
	"time"

	"canopy/internal/blobstore"
	"canopy/internal/config"
	"canopy/internal/featureflags"
	"canopy/internal/models"
	"canopy/internal/observability"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultImageMaxUploadSizeMB = 10
	MasterMaxSize               = 2048
	JPEGQuality                 = 82
	WebPQuality                 = 70
)

// UploadImageInput is a raw file received from a client.
type UploadImageInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// StoredImage describes a normalized image after upload.
type StoredImage struct {
	URL     string
	WebPURL string
	Width   int
	Height  int
}

// ImageService normalizes tree photos and uploads them to blob storage.
type ImageService struct {
	store              blobstore.Store
	flags              *featureflags.Manager
	maxUploadSizeBytes int64
	now                func() time.Time
}

// NewImageService returns an image service. A nil store disables uploads.
func NewImageService(store blobstore.Store, flags *featureflags.Manager, cfg *config.Config) *ImageService {
	maxUploadSizeMB := DefaultImageMaxUploadSizeMB
	if cfg != nil && cfg.ImageMaxUploadMB > 0 {
		maxUploadSizeMB = cfg.ImageMaxUploadMB
	}
	return &ImageService{
		store:              store,
		flags:              flags,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
		now:                time.Now,
	}
}

// Configured reports whether a blob store is available.
func (s *ImageService) Configured() bool {
	return s != nil && s.store != nil
}

// Upload validates and re-encodes the image as JPEG, uploads it and, when the
// webp_variants flag is on, uploads a WebP copy next to it.
func (s *ImageService) Upload(ctx context.Context, in UploadImageInput) (_ *StoredImage, err error) {
	if !s.Configured() {
		return nil, models.NewUpstreamError("blob storage", blobstore.ErrNotConfigured)
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detectedType := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detectedType) {
		return nil, models.NewValidationError("Invalid image type")
	}

	decoded, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	sourceMimeType := decodedFormatToMime(format)
	if sourceMimeType == "" {
		return nil, models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, sourceMimeType) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	master := resizeToFit(decoded, MasterMaxSize, MasterMaxSize)
	encoded, err := encodeJPEG(master, JPEGQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	ctx, span := observability.StartSpan(ctx, "ImageService", "Upload")
	start := time.Now()
	defer func() {
		observability.ObserveUpload(s.store.Provider(), start, err)
		observability.EndSpan(span, err)
	}()

	name := blobstore.ObjectName(jpegName(in.Filename), s.now())
	url, err := s.store.Put(ctx, name, "image/jpeg", encoded)
	if err != nil {
		return nil, models.NewUpstreamError("blob storage", err)
	}

	b := master.Bounds()
	out := &StoredImage{URL: url, Width: b.Dx(), Height: b.Dy()}

	if s.flags.Enabled(featureflags.WebPVariants, 0) {
		variant, encErr := encodeWebP(master, WebPQuality)
		if encErr == nil {
			webpName := strings.TrimSuffix(name, ".jpg") + ".webp"
			if webpURL, putErr := s.store.Put(ctx, webpName, "image/webp", variant); putErr == nil {
				out.WebPURL = webpURL
			}
		}
	}

	return out, nil
}

// jpegName swaps the extension of the client's file name for .jpg, since the
// stored master is always JPEG.
func jpegName(filename string) string {
	base := strings.TrimSpace(filename)
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	if base == "" {
		base = "image"
	}
	return base + ".jpg"
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := float64(maxWidth) / float64(w)
	if scaleH := float64(maxHeight) / float64(h); scaleH < scale {
		scale = scaleH
	}
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

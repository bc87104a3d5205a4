// Package avatars stores and serves user profile images. Every avatar,
// whatever its source (upload, federated profile photo, generated
// placeholder), is normalized to a 256px PNG on disk so the rest of the
// application never cares where it came from.
package avatars

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	// Register decoders for the accepted source formats.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"

	"github.com/google/uuid"

	"github.com/halverson/stackpad/internal/apperror"
)

// avatarDim is the edge length of the stored image.
const avatarDim = 256

// fetchTimeout bounds the download of a federated profile photo.
const fetchTimeout = 5 * time.Second

// SizeLimiter reports the maximum accepted upload size in bytes. Implemented
// by the settings plugin so admins can tune the limit at runtime; nil falls
// back to the configured default.
type SizeLimiter interface {
	MaxAvatarSize(ctx context.Context) (int64, error)
}

// Service handles avatar storage operations.
type Service interface {
	// Store validates and saves an uploaded image, returning the stored
	// file's path relative to the media root.
	Store(ctx context.Context, data []byte, declaredMIME string) (string, error)

	// GeneratePlaceholder renders a deterministic identicon for the seed.
	GeneratePlaceholder(ctx context.Context, seed string) (string, error)

	// FetchRemote downloads a profile photo from a federated provider.
	FetchRemote(ctx context.Context, url string) (string, error)

	// Remove deletes a stored avatar. Best-effort: a missing file is fine.
	Remove(relPath string)

	// AbsolutePath resolves a stored relative path against the media root.
	AbsolutePath(relPath string) string
}

type service struct {
	mediaPath      string
	defaultMaxSize int64
	limits         SizeLimiter
	client         *http.Client
}

// NewService creates the avatar service. mediaPath is the storage root;
// avatars live in an avatars/ subdirectory beneath it.
func NewService(mediaPath string, defaultMaxSize int64, limits SizeLimiter) Service {
	return &service{
		mediaPath:      mediaPath,
		defaultMaxSize: defaultMaxSize,
		limits:         limits,
		client:         &http.Client{Timeout: fetchTimeout},
	}
}

func (s *service) Store(ctx context.Context, data []byte, declaredMIME string) (string, error) {
	maxSize := s.maxSize(ctx)
	if int64(len(data)) > maxSize {
		return "", apperror.NewBadRequest(fmt.Sprintf("Image too large; maximum size is %d MB.", maxSize/(1024*1024)))
	}

	if !validateMagicBytes(data, declaredMIME) {
		return "", apperror.NewBadRequest("File content does not match its declared type.")
	}

	return s.normalize(data)
}

func (s *service) GeneratePlaceholder(_ context.Context, seed string) (string, error) {
	img := renderIdenticon(seed)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("encoding placeholder: %w", err))
	}
	return s.write(buf.Bytes())
}

func (s *service) FetchRemote(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperror.NewBadRequest("Invalid profile photo URL.")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching profile photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching profile photo: unexpected status %d", resp.StatusCode)
	}

	// One byte past the limit proves the body is too big.
	maxSize := s.maxSize(ctx)
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSize+1))
	if err != nil {
		return "", fmt.Errorf("reading profile photo: %w", err)
	}
	if int64(len(data)) > maxSize {
		return "", fmt.Errorf("profile photo exceeds %d bytes", maxSize)
	}

	return s.normalize(data)
}

func (s *service) Remove(relPath string) {
	if relPath == "" {
		return
	}
	if err := os.Remove(s.AbsolutePath(relPath)); err != nil && !os.IsNotExist(err) {
		slog.Warn("removing avatar file failed",
			slog.String("path", relPath),
			slog.Any("error", err),
		)
	}
}

func (s *service) AbsolutePath(relPath string) string {
	return filepath.Join(s.mediaPath, filepath.FromSlash(relPath))
}

func (s *service) maxSize(ctx context.Context) int64 {
	if s.limits != nil {
		if size, err := s.limits.MaxAvatarSize(ctx); err == nil && size > 0 {
			return size
		}
	}
	return s.defaultMaxSize
}

// normalize decodes an image, scales it down to at most 256px on its longer
// edge, and stores the result as PNG.
func (s *service) normalize(data []byte) (string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", apperror.NewBadRequest("The file is not a readable image.")
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	dst := src
	if w > avatarDim || h > avatarDim {
		newW, newH := avatarDim, avatarDim
		if w > h {
			newH = h * avatarDim / w
		} else {
			newW = w * avatarDim / h
		}
		scaled := image.NewRGBA(image.Rect(0, 0, newW, newH))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), src, bounds, draw.Over, nil)
		dst = scaled
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("encoding avatar: %w", err))
	}
	return s.write(buf.Bytes())
}

// write stores encoded PNG bytes under a fresh UUID filename and returns the
// path relative to the media root.
func (s *service) write(data []byte) (string, error) {
	dir := filepath.Join(s.mediaPath, "avatars")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("creating avatar directory: %w", err))
	}

	filename := uuid.NewString() + ".png"
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0644); err != nil {
		return "", apperror.NewInternal(fmt.Errorf("writing avatar file: %w", err))
	}

	return "avatars/" + filename, nil
}

// validateMagicBytes checks that the file content's magic bytes match the
// declared MIME type. Prevents uploading non-image files with a spoofed
// Content-Type header.
func validateMagicBytes(data []byte, declaredMIME string) bool {
	if len(data) < 4 {
		return false
	}
	switch declaredMIME {
	case "image/jpeg":
		return len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF
	case "image/png":
		return len(data) >= 8 &&
			data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 &&
			data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A
	case "image/gif":
		return len(data) >= 6 && string(data[:3]) == "GIF"
	case "image/webp":
		return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP"
	default:
		return false
	}
}

// renderIdenticon draws a deterministic 5x5 symmetric block pattern seeded by
// the input string. Same seed, same image.
func renderIdenticon(seed string) image.Image {
	hasher := fnv.New64a()
	hasher.Write([]byte(seed))
	hash := hasher.Sum64()

	fg := color.RGBA{
		R: uint8(hash >> 16),
		G: uint8(hash >> 24),
		B: uint8(hash >> 32),
		A: 255,
	}
	bg := color.RGBA{R: 0xEE, G: 0xEE, B: 0xEE, A: 255}

	const cells = 5
	cell := avatarDim / cells

	img := image.NewRGBA(image.Rect(0, 0, avatarDim, avatarDim))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	bit := 0
	for col := 0; col < (cells+1)/2; col++ {
		for row := 0; row < cells; row++ {
			if hash>>(bit%64)&1 == 1 {
				paintCell(img, col, row, cell, fg)
				// Mirror across the vertical axis.
				paintCell(img, cells-1-col, row, cell, fg)
			}
			bit++
		}
	}
	return img
}

func paintCell(img *image.RGBA, col, row, cell int, c color.Color) {
	rect := image.Rect(col*cell, row*cell, (col+1)*cell, (row+1)*cell)
	draw.Draw(img, rect, image.NewUniform(c), image.Point{}, draw.Src)
}

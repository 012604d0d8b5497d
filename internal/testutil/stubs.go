// Package testutil provides shared test doubles and fixtures for backend tests.
package testutil

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"sync"
)

// BlobStoreStub is an in-memory blob store. Set Err to make every upload fail.
type BlobStoreStub struct {
	mu      sync.Mutex
	Err     error
	BaseURL string
	Objects map[string][]byte
	Types   map[string]string
}

// NewBlobStoreStub creates an empty stub serving URLs under https://blobs.test.
func NewBlobStoreStub() *BlobStoreStub {
	return &BlobStoreStub{
		BaseURL: "https://blobs.test/plants",
		Objects: make(map[string][]byte),
		Types:   make(map[string]string),
	}
}

// Put records the object in memory.
func (s *BlobStoreStub) Put(_ context.Context, name, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	s.Objects[name] = append([]byte(nil), data...)
	s.Types[name] = contentType
	return s.BaseURL + "/" + name, nil
}

// Provider names the stub in metrics labels.
func (s *BlobStoreStub) Provider() string { return "stub" }

// Count returns how many objects were stored.
func (s *BlobStoreStub) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Objects)
}

// TinyPNG returns an in-memory PNG byte slice with the requested dimensions.
func TinyPNG(t interface {
	Helper()
	Fatalf(string, ...any)
}, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 34, G: 139, B: 34, A: 255})
		}
	}
	buf := bytes.NewBuffer(nil)
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

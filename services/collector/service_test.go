package collector

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payradar/payradar/config"
	"github.com/payradar/payradar/internal/logger"
	"github.com/payradar/payradar/internal/models"
)

func testLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{DevMode: true})
	appLogger.InitLogger()
	return appLogger
}

func testConfig() *config.CollectorConfig {
	return &config.CollectorConfig{
		MaxFiles:               5,
		MaxPDFs:                2,
		MaxPDFBytes:            5 * 1024 * 1024,
		MinImageBytes:          64,
		MaxImageBytes:          4 * 1024 * 1024,
		MinImageDimension:      200,
		DownloadTimeoutSeconds: 5,
	}
}

type fakeAttachmentRepo struct {
	attachments []*models.Attachment
	payloads    map[string][]byte
}

func (r *fakeAttachmentRepo) Create(ctx context.Context, attachment *models.Attachment) (string, error) {
	return attachment.ID, nil
}

func (r *fakeAttachmentRepo) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	return nil, nil
}

func (r *fakeAttachmentRepo) ListByMessage(ctx context.Context, messageID string) ([]*models.Attachment, error) {
	return r.attachments, nil
}

func (r *fakeAttachmentRepo) GetPayload(ctx context.Context, id string) ([]byte, error) {
	return r.payloads[id], nil
}

// pngBytes renders a width x height PNG with some pixel variance so it
// comfortably clears the minimum byte bound.
func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: uint8((x + y) % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newCollector(cfg *config.CollectorConfig, repo *fakeAttachmentRepo) *collectorService {
	return NewCollectorService(cfg, repo, testLogger()).(*collectorService)
}

type countingServer struct {
	*httptest.Server
	mu   sync.Mutex
	hits map[string]int
}

func newImageServer(t *testing.T) *countingServer {
	t.Helper()
	cs := &countingServer{hits: make(map[string]int)}
	big := pngBytes(t, 300, 300)
	small := pngBytes(t, 150, 150)
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.mu.Lock()
		cs.hits[r.URL.Path]++
		cs.mu.Unlock()
		switch r.URL.Path {
		case "/big.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(big)
		case "/small.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(small)
		case "/notimage.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	return cs
}

func (cs *countingServer) hitCount(path string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.hits[path]
}

func TestCollect_RemoteImages(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()

	html := fmt.Sprintf(
		`<html><body>
			<img src="%s/big.png">
			<img src="%s/small.png">
			<img src="%s/tracking-pixel.gif">
			<img src="%s/notimage.html">
		</body></html>`,
		server.URL, server.URL, server.URL, server.URL)

	svc := newCollector(testConfig(), &fakeAttachmentRepo{})
	files, err := svc.Collect(context.Background(), &models.Message{ID: "msg-1", BodyHTML: html})

	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "big.png", files[0].Filename)
	assert.Equal(t, "image/png", files[0].MimeType)

	// The tracking pixel is rejected before any request goes out.
	assert.Equal(t, 0, server.hitCount("/tracking-pixel.gif"))
	assert.Equal(t, 1, server.hitCount("/small.png"))
}

func TestCollect_PDFsComeFirst(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()

	repo := &fakeAttachmentRepo{
		attachments: []*models.Attachment{
			{ID: "att-pdf", Filename: "invoice.pdf", ContentType: "application/pdf", Size: 100},
		},
		payloads: map[string][]byte{"att-pdf": []byte("%PDF-1.4 fake invoice body")},
	}
	html := fmt.Sprintf(`<img src="%s/big.png">`, server.URL)

	svc := newCollector(testConfig(), repo)
	files, err := svc.Collect(context.Background(), &models.Message{ID: "msg-1", BodyHTML: html})

	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "invoice.pdf", files[0].Filename)
	assert.Equal(t, "application/pdf", files[0].MimeType)
	assert.Equal(t, "big.png", files[1].Filename)
}

func TestCollect_PDFLimits(t *testing.T) {
	cfg := testConfig()
	cfg.MaxPDFs = 1
	repo := &fakeAttachmentRepo{
		attachments: []*models.Attachment{
			{ID: "att-1", Filename: "a.pdf", ContentType: "application/pdf", Size: 100},
			{ID: "att-2", Filename: "b.pdf", ContentType: "application/pdf", Size: 100},
			{ID: "att-3", Filename: "huge.pdf", ContentType: "application/pdf", Size: cfg.MaxPDFBytes + 1},
		},
		payloads: map[string][]byte{
			"att-1": []byte("%PDF a"),
			"att-2": []byte("%PDF b"),
		},
	}

	svc := newCollector(cfg, repo)
	files, err := svc.Collect(context.Background(), &models.Message{ID: "msg-1"})

	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.pdf", files[0].Filename)
}

func TestCollect_InlineImages(t *testing.T) {
	large := pngBytes(t, 250, 250)
	tiny := pngBytes(t, 40, 40)
	repo := &fakeAttachmentRepo{
		attachments: []*models.Attachment{
			{ID: "att-large", Filename: "receipt.png", ContentType: "image/png", IsInline: true, Size: len(large)},
			{ID: "att-tiny", Filename: "icon.png", ContentType: "image/png", IsInline: true, Size: len(tiny)},
			{ID: "att-photo", Filename: "photo.png", ContentType: "image/png", IsInline: false, Size: len(large)},
		},
		payloads: map[string][]byte{
			"att-large": large,
			"att-tiny":  tiny,
			"att-photo": large,
		},
	}

	svc := newCollector(testConfig(), repo)
	files, err := svc.Collect(context.Background(), &models.Message{ID: "msg-1"})

	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "receipt.png", files[0].Filename)
}

func TestCollect_MaxFilesCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxFiles = 1
	repo := &fakeAttachmentRepo{
		attachments: []*models.Attachment{
			{ID: "att-1", Filename: "a.pdf", ContentType: "application/pdf", Size: 100},
			{ID: "att-2", Filename: "b.pdf", ContentType: "application/pdf", Size: 100},
		},
		payloads: map[string][]byte{
			"att-1": []byte("%PDF a"),
			"att-2": []byte("%PDF b"),
		},
	}

	svc := newCollector(cfg, repo)
	files, err := svc.Collect(context.Background(), &models.Message{ID: "msg-1"})

	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestImageAcceptable(t *testing.T) {
	svc := newCollector(testConfig(), &fakeAttachmentRepo{})

	assert.True(t, svc.imageAcceptable(pngBytes(t, 300, 300)))
	assert.False(t, svc.imageAcceptable(pngBytes(t, 150, 150)))
	assert.False(t, svc.imageAcceptable([]byte("tiny")))

	// Undecodable data over the byte floor is kept.
	undecodable := bytes.Repeat([]byte{0xde, 0xad}, 100)
	assert.True(t, svc.imageAcceptable(undecodable))
}

func TestExtractImageURLs(t *testing.T) {
	html := `<html><body>
		<img src="https://cdn.example.com/a.png">
		<img src="https://cdn.example.com/a.png">
		<img src="cid:inline-ref">
		<div style="background-image: url('https://cdn.example.com/bg.jpg')"></div>
	</body></html>`

	urls := extractImageURLs(html)

	assert.Equal(t, []string{
		"https://cdn.example.com/a.png",
		"https://cdn.example.com/bg.jpg",
	}, urls)
}

func TestIsLikelyTrackingPixel(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/open.gif", true},
		{"https://t.example.com/track/abc123", true},
		{"https://example.com/img/spacer.png", true},
		{"https://example.com/receipt.png?utm_source=mail", true},
		{"https://cdn.example.com/receipt-large.png", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isLikelyTrackingPixel(tt.url), tt.url)
	}
}

func TestFilenameFromURL(t *testing.T) {
	assert.Equal(t, "a.png", filenameFromURL("https://cdn.example.com/img/a.png"))
	assert.Equal(t, "a.png", filenameFromURL("https://cdn.example.com/img/a.png?size=large"))
	assert.Equal(t, "image", filenameFromURL("https://cdn.example.com/"))
}

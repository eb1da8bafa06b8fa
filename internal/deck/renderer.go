package deck

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlanHootman/ppt-assistant-sub000/internal/common"
	"github.com/AlanHootman/ppt-assistant-sub000/internal/interfaces"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
)

// Renderer rasterizes deck slides to PNGs with a headless Chrome
// instance. One browser serves the whole batch; each slide becomes a
// standalone HTML page loaded over file://.
type Renderer struct {
	width   int
	height  int
	timeout time.Duration
	logger  arbor.ILogger
}

// NewRenderer creates a renderer with the configured slide geometry.
func NewRenderer(config *common.RenderConfig, logger arbor.ILogger) *Renderer {
	width := config.Width
	if width <= 0 {
		width = 1280
	}
	height := config.Height
	if height <= 0 {
		height = 720
	}
	return &Renderer{
		width:   width,
		height:  height,
		timeout: common.ParseDuration(config.Timeout, 60*time.Second),
		logger:  logger,
	}
}

// RenderDeck renders every slide of the saved deck into outDir as
// slide-{position}.png, returning position to image path. The whole
// batch shares one browser and one timeout budget.
func (r *Renderer) RenderDeck(ctx context.Context, deckPath string, outDir string) (map[int]string, error) {
	d, err := Load(deckPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create render output directory: %w", err)
	}

	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer allocatorCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	defer browserCancel()

	batchCtx, batchCancel := context.WithTimeout(browserCtx, r.timeout)
	defer batchCancel()

	startTime := time.Now()
	result := make(map[int]string, len(d.Slides))

	for i := range d.Slides {
		htmlPath := filepath.Join(outDir, fmt.Sprintf("slide-%d.html", i))
		if err := os.WriteFile(htmlPath, []byte(r.slideHTML(&d.Slides[i])), 0644); err != nil {
			return nil, fmt.Errorf("failed to write slide html: %w", err)
		}

		imagePath := filepath.Join(outDir, fmt.Sprintf("slide-%d.png", i))
		if err := r.renderSlide(batchCtx, htmlPath, imagePath); err != nil {
			return nil, fmt.Errorf("failed to render slide %d: %w", i, err)
		}
		result[i] = imagePath
	}

	r.logger.Debug().
		Int("slides", len(d.Slides)).
		Dur("duration", time.Since(startTime)).
		Msg("Deck rendered")

	return result, nil
}

func (r *Renderer) renderSlide(ctx context.Context, htmlPath, imagePath string) error {
	var buf []byte
	err := chromedp.Run(ctx,
		emulation.SetDeviceMetricsOverride(int64(r.width), int64(r.height), 1, false),
		chromedp.Navigate("file://"+htmlPath),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatPng).
				WithClip(&page.Viewport{
					X:      0,
					Y:      0,
					Width:  float64(r.width),
					Height: float64(r.height),
					Scale:  1,
				}).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return err
	}
	return os.WriteFile(imagePath, buf, 0644)
}

// slideHTML lays the slide's elements out as absolutely positioned divs
// matching the deck's pixel geometry.
func (r *Renderer) slideHTML(s *Slide) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><style>")
	fmt.Fprintf(&b, "body{margin:0;width:%dpx;height:%dpx;background:#fff;font-family:Helvetica,Arial,sans-serif;overflow:hidden}", r.width, r.height)
	b.WriteString(".el{position:absolute;box-sizing:border-box;white-space:pre-wrap;word-wrap:break-word}")
	b.WriteString(".el img{width:100%;height:100%;object-fit:cover}")
	b.WriteString("</style></head><body>")

	for _, el := range s.Elements {
		fontSize := el.FontSize
		if fontSize <= 0 {
			fontSize = 18
		}
		fmt.Fprintf(&b, `<div class="el" style="left:%.1fpx;top:%.1fpx;width:%.1fpx;height:%.1fpx;font-size:%.1fpx">`,
			el.X, el.Y, el.W, el.H, fontSize)
		if el.ImageRef != "" {
			fmt.Fprintf(&b, `<img src="%s">`, html.EscapeString(el.ImageRef))
		}
		if el.Text != "" {
			b.WriteString(html.EscapeString(el.Text))
		}
		b.WriteString("</div>")
	}

	b.WriteString("</body></html>")
	return b.String()
}

var _ interfaces.SlideRenderer = (*Renderer)(nil)

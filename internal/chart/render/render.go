// Package render rasterizes Vega-Lite documents in a headless browser. The
// browser is launched once and shared; each Render call gets its own page.
package render

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	logx "github.com/crmlens/engine/pkg/logger"
)

// Config tunes the rendering browser.
type Config struct {
	BrowserBin string `envconfig:"CHART_BROWSER_BIN"`
	Headless   bool   `envconfig:"CHART_BROWSER_HEADLESS" default:"true"`
}

const shellHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<script src="https://cdn.jsdelivr.net/npm/vega@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-lite@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-embed@6"></script>
<style>body { margin: 0; background: #fff; }</style>
</head>
<body><div id="vis"></div></body>
</html>`

const embedJS = `spec => vegaEmbed("#vis", JSON.parse(spec), { actions: false }).then(() => "ok")`

// Browser renders specs in a shared headless Chromium instance.
type Browser struct {
	browser  *rod.Browser
	shellURL string
}

// New launches the browser. Callers own Close.
func New(ctx context.Context, cfg Config) (*Browser, error) {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.BrowserBin != "" {
		l = l.Bin(cfg.BrowserBin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch rendering browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect rendering browser: %w", err)
	}
	logx.Debug().Bool("headless", cfg.Headless).Msg("rendering browser ready")

	shellURL := "data:text/html;base64," +
		base64.StdEncoding.EncodeToString([]byte(shellHTML))
	return &Browser{browser: browser, shellURL: shellURL}, nil
}

// Render embeds the document in a fresh page and screenshots it. Embed
// rejections surface as errors carrying the Vega-Lite diagnostic, which is
// what structural validation feeds back to the model.
func (b *Browser) Render(ctx context.Context, specJSON string) ([]byte, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: b.shellURL})
	if err != nil {
		return nil, fmt.Errorf("open rendering page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width: 1600, Height: 1000, DeviceScaleFactor: 1,
	}).Call(page); err != nil {
		return nil, fmt.Errorf("size rendering page: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("load rendering shell: %w", err)
	}

	if _, err := page.Evaluate(rod.Eval(embedJS, specJSON).ByPromise()); err != nil {
		return nil, fmt.Errorf("embed chart: %w", err)
	}
	if err := page.WaitIdle(30 * time.Second); err != nil {
		return nil, fmt.Errorf("settle chart: %w", err)
	}

	png, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot chart: %w", err)
	}
	return png, nil
}

func (b *Browser) Close() error {
	return b.browser.Close()
}

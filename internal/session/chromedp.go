package session

import (
	"context"
	"fmt"
	"time"

	"kintai/internal/config"

	"github.com/chromedp/chromedp"
)

// ChromeDriver runs a headless Chrome via chromedp.
type ChromeDriver struct {
	cfg        config.AutomationConfig
	browserCtx context.Context
	cancels    []context.CancelFunc
	timeout    time.Duration
}

func NewChromeDriver(cfg config.AutomationConfig) *ChromeDriver {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &ChromeDriver{cfg: cfg, timeout: timeout}
}

// ChromeFactory returns a DriverFactory producing fresh Chrome drivers.
func ChromeFactory(cfg config.AutomationConfig) DriverFactory {
	return func() Driver { return NewChromeDriver(cfg) }
}

func (d *ChromeDriver) Start(ctx context.Context) error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.cfg.Headless),
		chromedp.WindowSize(1280, 960),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	d.browserCtx = browserCtx
	d.cancels = []context.CancelFunc{cancelBrowser, cancelAlloc}

	// Force the browser process up before the first navigation.
	if err := chromedp.Run(browserCtx); err != nil {
		d.Stop()
		return fmt.Errorf("start browser: %w", err)
	}
	return nil
}

func (d *ChromeDriver) Stop() error {
	for _, cancel := range d.cancels {
		cancel()
	}
	d.cancels = nil
	return nil
}

func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if d.browserCtx == nil {
		return fmt.Errorf("driver not started")
	}
	runCtx, cancel := context.WithTimeout(d.browserCtx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, chromedp.Location(&url))
	return url, err
}

func (d *ChromeDriver) WaitVisible(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	return d.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (d *ChromeDriver) Fill(ctx context.Context, selector, value string) error {
	return d.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (d *ChromeDriver) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := d.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery))
	return text, err
}

func (d *ChromeDriver) PageText(ctx context.Context) (string, error) {
	var text string
	err := d.run(ctx, chromedp.Text("body", &text, chromedp.ByQuery))
	return text, err
}

func (d *ChromeDriver) Enabled(ctx context.Context, selector string) (bool, error) {
	var enabled bool
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return !!el && !el.disabled && el.offsetParent !== null; })()`,
		selector)
	err := d.run(ctx, chromedp.Evaluate(script, &enabled))
	if err != nil {
		return false, err
	}
	return enabled, nil
}

func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

var _ Driver = (*ChromeDriver)(nil)

package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"order-sla-extractor/internal/types"
)

// BrowserClient drives one long-lived headless browser tab. It implements types.Page.
type BrowserClient struct {
	config *types.Config
	logger types.Logger

	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
}

var _ types.Page = (*BrowserClient)(nil)

// NewBrowserClient creates a browser client. Chrome is launched on first use.
func NewBrowserClient(config *types.Config, logger types.Logger) *BrowserClient {
	// Suppress chromedp debug logging
	log.SetOutput(io.Discard)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		chromedp.UserAgent(config.UserAgent),
		chromedp.WindowSize(1600, 1000),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	return &BrowserClient{
		config:      config,
		logger:      logger,
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// run executes actions in the tab, bounded by the request timeout and by ctx.
func (b *BrowserClient) run(ctx context.Context, actions ...chromedp.Action) error {
	timeout := b.config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the document to be ready
func (b *BrowserClient) Navigate(ctx context.Context, url string) error {
	if err := b.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	b.logger.Debugf("Navigated to %s", url)
	return nil
}

func (b *BrowserClient) Reload(ctx context.Context) error {
	if err := b.run(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("failed to reload page: %w", err)
	}
	return nil
}

func (b *BrowserClient) Back(ctx context.Context) error {
	if err := b.run(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("failed to navigate back: %w", err)
	}
	return nil
}

func (b *BrowserClient) Location(ctx context.Context) (string, error) {
	var url string
	if err := b.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return url, nil
}

// Evaluate executes JavaScript code on the page
func (b *BrowserClient) Evaluate(ctx context.Context, script string, res interface{}) error {
	if err := b.run(ctx, chromedp.Evaluate(script, res)); err != nil {
		return fmt.Errorf("failed to execute JavaScript: %w", err)
	}
	return nil
}

func (b *BrowserClient) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	script := fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(selector))
	if err := b.Evaluate(ctx, script, &found); err != nil {
		return false, err
	}
	return found, nil
}

func (b *BrowserClient) Visible(ctx context.Context, selector string) (bool, error) {
	var visible bool
	script := fmt.Sprintf(`(function(el) {
  if (!el) { return false; }
  var s = window.getComputedStyle(el);
  return el.offsetWidth > 0 && el.offsetHeight > 0 && s.visibility !== 'hidden' && s.display !== 'none';
})(document.querySelector(%s))`, jsString(selector))
	if err := b.Evaluate(ctx, script, &visible); err != nil {
		return false, err
	}
	return visible, nil
}

func (b *BrowserClient) Click(ctx context.Context, selector string) error {
	if err := b.run(ctx,
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}

func (b *BrowserClient) SendKeys(ctx context.Context, selector, text string) error {
	if err := b.run(ctx,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to type into %s: %w", selector, err)
	}
	return nil
}

// Text retrieves the text content of a specific element
func (b *BrowserClient) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := b.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to get element text for %s: %w", selector, err)
	}
	return text, nil
}

func (b *BrowserClient) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string
	if err := b.run(ctx, chromedp.OuterHTML(selector, &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to get outer HTML for %s: %w", selector, err)
	}
	return html, nil
}

// Cookies returns the cookies visible to the current page
func (b *BrowserClient) Cookies(ctx context.Context) ([]types.Cookie, error) {
	var raw []*network.Cookie
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		raw, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}

	cookies := make([]types.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, types.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return cookies, nil
}

func (b *BrowserClient) SetCookies(ctx context.Context, cookies []types.Cookie) error {
	return b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Path != "" {
				params = params.WithPath(c.Path)
			}
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				params = params.WithExpires(&expires)
			}
			if err := params.Do(ctx); err != nil {
				b.logger.Debugf("Skipping cookie %s: %v", c.Name, err)
			}
		}
		return nil
	}))
}

// Close shuts the tab and the browser process
func (b *BrowserClient) Close() {
	if b.cancel != nil {
		b.cancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Package pdf печатает HTML документы в PDF через headless Chrome.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ErrUnavailable возвращается, когда Chrome не найден.
var ErrUnavailable = errors.New("pdf: headless chrome недоступен")

var chromeCandidates = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"}

// Renderer печатает HTML в PDF формата A4.
type Renderer struct {
	chromePath string
	timeout    time.Duration

	once     sync.Once
	execPath string
}

// NewRenderer создаёт рендерер. Пустой chromePath означает поиск в PATH.
func NewRenderer(chromePath string, timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Renderer{chromePath: chromePath, timeout: timeout}
}

func (r *Renderer) resolve() string {
	r.once.Do(func() {
		if r.chromePath != "" {
			if info, err := os.Stat(r.chromePath); err == nil && !info.IsDir() {
				r.execPath = r.chromePath
			}
			return
		}
		for _, name := range chromeCandidates {
			if path, err := exec.LookPath(name); err == nil {
				r.execPath = path
				return
			}
		}
	})
	return r.execPath
}

// Available сообщает, найден ли исполняемый файл Chrome.
func (r *Renderer) Available() bool {
	return r.resolve() != ""
}

// Render загружает HTML в пустую вкладку и печатает её в PDF.
func (r *Renderer) Render(ctx context.Context, html string) ([]byte, error) {
	execPath := r.resolve()
	if execPath == "" {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(execPath),
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var out []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			// A4 в дюймах
			out, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.6).
				WithMarginBottom(0.6).
				WithMarginLeft(0.6).
				WithMarginRight(0.6).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("pdf: печать через chrome: %w", err)
	}
	return out, nil
}

package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/avolkov/docpipe/internal/core/domain"
	"github.com/avolkov/docpipe/internal/infrastructure/resilience"
)

const (
	renderDPI     = 300
	renderQuality = 0.95
)

// Renderer produces a raster image of a document's first page. The page is
// isolated locally first, so only one page's worth of bytes ever crosses the
// wire to the rasterizer.
type Renderer struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Renderer {
	return &Renderer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (r *Renderer) RenderFirstPage(ctx context.Context, pdf []byte) ([]byte, error) {
	page, err := firstPage(pdf)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "isolate first page", err)
	}
	return r.rasterize(ctx, page)
}

// firstPage trims the document down to page one. pdfcpu's trim API is
// file-based, so the bytes take a round trip through a scratch directory.
func firstPage(pdf []byte) ([]byte, error) {
	dir, err := os.MkdirTemp("", "docpipe-render-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.pdf")
	out := filepath.Join(dir, "page1.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("write scratch pdf: %w", err)
	}
	if err := api.TrimFile(in, out, []string{"1"}, nil); err != nil {
		return nil, fmt.Errorf("trim to first page: %w", err)
	}
	page, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read trimmed page: %w", err)
	}
	return page, nil
}

func (r *Renderer) rasterize(ctx context.Context, page []byte) ([]byte, error) {
	doRender := func(callCtx context.Context) ([]byte, error) {
		url := fmt.Sprintf("%s/v1/render?dpi=%d&quality=%.2f", r.baseURL, renderDPI, renderQuality)
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(page))
		if err != nil {
			return nil, fmt.Errorf("create render request: %w", err)
		}
		req.Header.Set("Content-Type", "application/pdf")

		resp, err := r.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("render request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return nil, &HTTPStatusError{
				Operation:  "render",
				StatusCode: resp.StatusCode,
				Status:     resp.Status,
				Body:       string(body),
			}
		}
		image, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read rendered image: %w", err)
		}
		return image, nil
	}

	var image []byte
	run := func(callCtx context.Context) error {
		var err error
		image, err = doRender(callCtx)
		return err
	}

	var err error
	if r.executor != nil {
		err = r.executor.Execute(ctx, "render.first-page", run, classifyRenderError)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("render first page", err)
	}
	return image, nil
}

package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/phuslu/log"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"localcog/internal/inference"
)

const (
	DefaultModel = "llama3.2-vision"
	// Unreadable is reported for downloaded bytes that are not a known image.
	Unreadable = "(could not read image)"

	describePrompt = "Describe the image."
	maxImageBytes  = 20 << 20
)

// Chatter sends one prompt to one model.
type Chatter interface {
	Chat(ctx context.Context, req inference.ChatRequest) (string, error)
}

// Describer turns image URLs into short text descriptions.
type Describer struct {
	client     Chatter
	model      string
	httpClient *http.Client
	logger     *log.Logger
}

func NewDescriber(client Chatter, model string, logger *log.Logger) *Describer {
	if model == "" {
		model = DefaultModel
	}
	return &Describer{
		client:     client,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

// Describe never fails; problems are reported in the returned text.
func (d *Describer) Describe(ctx context.Context, url string) string {
	data, err := d.download(ctx, url)
	if err != nil {
		d.logger.Warn().Err(err).Str("url", url).Msg("image download failed")
		return fmt.Sprintf("Image analysis failed for %s.", url)
	}

	answer, err := d.client.Chat(ctx, inference.ChatRequest{
		Model:  d.model,
		Prompt: describePrompt,
		Images: []string{base64.StdEncoding.EncodeToString(data)},
	})
	if err == nil && strings.TrimSpace(answer) != "" {
		return strings.TrimSpace(answer)
	}
	if err != nil {
		d.logger.Warn().Err(err).Str("model", d.model).Msg("vision model unavailable, using pixel statistics")
	}
	return Stats(data)
}

// DescribeAll describes every URL concurrently. Results keep the order of
// urls.
func (d *Describer) DescribeAll(ctx context.Context, urls []string) []string {
	out := make([]string, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			out[i] = d.Describe(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Stats reports the size and mean colour of an encoded image.
func Stats(data []byte) string {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Unreadable
	}
	b := img.Bounds()
	var r, g, bl uint64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += uint64(pr >> 8)
			g += uint64(pg >> 8)
			bl += uint64(pb >> 8)
		}
	}
	n := uint64(b.Dx() * b.Dy())
	if n == 0 {
		return fmt.Sprintf("Image %dx%d, mean RGB=[0 0 0]", b.Dx(), b.Dy())
	}
	return fmt.Sprintf("Image %dx%d, mean RGB=[%d %d %d]", b.Dx(), b.Dy(), r/n, g/n, bl/n)
}

func (d *Describer) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	return data, nil
}

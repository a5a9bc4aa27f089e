package translate

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/gif"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"

	// Register the decoders image.DecodeConfig consults.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/eternisai/cursor-bridge/internal/aiserver"
	"github.com/eternisai/cursor-bridge/internal/config"
)

const maxImageBytes = 20 << 20

// attachmentIDs hands out the short ordinal uuid strings the upstream
// expects on images and external links: a random base in [256, 384),
// incremented per attachment within one request.
type attachmentIDs struct {
	next int
}

func newAttachmentIDs() *attachmentIDs {
	return &attachmentIDs{next: 256 + rand.Intn(128)}
}

func (a *attachmentIDs) take() string {
	s := strconv.Itoa(a.next)
	a.next++
	return s
}

// ImageHandler validates and converts client image parts into upstream
// ImageProto attachments according to the configured vision ability.
type ImageHandler struct {
	policy config.VisionAbility
	client *http.Client
	ids    *attachmentIDs
}

func NewImageHandler(policy config.VisionAbility, client *http.Client) *ImageHandler {
	if client == nil {
		client = http.DefaultClient
	}
	return &ImageHandler{policy: policy, client: client, ids: newAttachmentIDs()}
}

// FromDataURI handles a data: URI image part.
func (h *ImageHandler) FromDataURI(uri string) (aiserver.ImageProto, error) {
	if h.policy == config.VisionNone {
		return aiserver.ImageProto{}, inputErrorf("vision_disabled", "image input is disabled on this deployment")
	}

	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return aiserver.ImageProto{}, inputErrorf("invalid_image_url", "image url is neither a data: URI nor http(s)")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return aiserver.ImageProto{}, inputErrorf("invalid_image_url", "only base64 data: URIs are supported")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return aiserver.ImageProto{}, inputErrorf("invalid_base64", "image payload is not valid base64")
	}
	return h.fromBytes(data)
}

// FromBase64 handles a bare base64 payload (Anthropic image source).
func (h *ImageHandler) FromBase64(payload string) (aiserver.ImageProto, error) {
	if h.policy == config.VisionNone {
		return aiserver.ImageProto{}, inputErrorf("vision_disabled", "image input is disabled on this deployment")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return aiserver.ImageProto{}, inputErrorf("invalid_base64", "image payload is not valid base64")
	}
	return h.fromBytes(data)
}

// FromURL fetches an http(s) image, allowed only under the "all" policy.
func (h *ImageHandler) FromURL(ctx context.Context, url string) (aiserver.ImageProto, error) {
	switch h.policy {
	case config.VisionNone:
		return aiserver.ImageProto{}, inputErrorf("vision_disabled", "image input is disabled on this deployment")
	case config.VisionBase64Only:
		return aiserver.ImageProto{}, inputErrorf("vision_disabled", "http image urls are disabled; inline the image as base64")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return aiserver.ImageProto{}, inputErrorf("invalid_image_url", "image url is neither a data: URI nor http(s)")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return aiserver.ImageProto{}, inputErrorf("invalid_image_url", "invalid image url: %v", err)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return aiserver.ImageProto{}, inputErrorf("invalid_image_url", "image fetch failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return aiserver.ImageProto{}, inputErrorf("invalid_image_url", "image fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return aiserver.ImageProto{}, inputErrorf("invalid_image_url", "image fetch failed: %v", err)
	}
	if len(data) > maxImageBytes {
		return aiserver.ImageProto{}, inputErrorf("invalid_image_url", "image exceeds %d bytes", maxImageBytes)
	}
	return h.fromBytes(data)
}

// Resolve dispatches on the URL scheme.
func (h *ImageHandler) Resolve(ctx context.Context, url string) (aiserver.ImageProto, error) {
	if strings.HasPrefix(url, "data:") {
		return h.FromDataURI(url)
	}
	return h.FromURL(ctx, url)
}

func (h *ImageHandler) fromBytes(data []byte) (aiserver.ImageProto, error) {
	format, err := sniffImageFormat(data)
	if err != nil {
		return aiserver.ImageProto{}, err
	}
	if format == "gif" && isAnimatedGIF(data) {
		return aiserver.ImageProto{}, inputErrorf("unsupported_animated_gif", "animated GIFs are not supported")
	}

	proto := aiserver.ImageProto{Data: data, UUID: h.ids.take()}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		proto.Dimension = &aiserver.Dimension{Width: int32(cfg.Width), Height: int32(cfg.Height)}
	}
	return proto, nil
}

// sniffImageFormat accepts PNG, JPEG, WEBP, and GIF by magic bytes.
func sniffImageFormat(data []byte) (string, error) {
	switch {
	case len(data) >= 8 && bytes.Equal(data[:8], []byte("\x89PNG\r\n\x1a\n")):
		return "png", nil
	case len(data) >= 3 && bytes.Equal(data[:3], []byte("\xff\xd8\xff")):
		return "jpeg", nil
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "webp", nil
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "gif", nil
	default:
		return "", inputErrorf("unsupported_image_format", "unsupported image format; expected PNG, JPEG, WEBP, or GIF")
	}
}

// isAnimatedGIF decodes every frame of the GIF; a frame count above one
// means animation regardless of policy.
func isAnimatedGIF(data []byte) bool {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return len(g.Image) > 1
}

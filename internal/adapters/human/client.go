// Package human is the HTTP client of the avatar backend: the chat endpoint
// and the speaking-state query.
package human

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/AvatarCall/internal/domain"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "http://127.0.0.1:8010"
	defaultTimeout = 30 * time.Second

	chatPath     = "/human"
	speakingPath = "/is_speaking"

	// videoFilename is the part name the backend sees for the frame blob.
	videoFilename = "user_video.mjpeg"
	videoMIME     = "video/x-motion-jpeg"
)

type Client struct {
	baseURL string
	client  *http.Client
	variant domain.MediaVariant
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithVariant selects how frames are attached to chat requests.
func WithVariant(v domain.MediaVariant) Option {
	return func(cl *Client) { cl.variant = v }
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		variant: domain.VariantImages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatPayload struct {
	Text      string `json:"text"`
	Type      string `json:"type"`
	Interrupt bool   `json:"interrupt"`
	SessionID int    `json:"sessionid"`
}

// imagesPayload always carries the images field, empty or not.
type imagesPayload struct {
	chatPayload
	Images []string `json:"images"`
}

// SendChat posts one request to /human. The body never carries more than one
// utterance; failures come back as *domain.DispatchError.
func (c *Client) SendChat(ctx context.Context, req domain.ChatRequest) error {
	var (
		body        io.Reader
		contentType string
		err         error
	)
	if c.variant == domain.VariantVideo && len(req.Frames) > 0 {
		body, contentType, err = videoBody(req)
	} else {
		body, contentType, err = c.jsonBody(req)
	}
	if err != nil {
		return &domain.DispatchError{Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, body)
	if err != nil {
		return &domain.DispatchError{Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return &domain.DispatchError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode/100 != 2 {
		return &domain.DispatchError{Status: resp.StatusCode, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	log.Debug().Str("module", "human").Int("sessionid", int(req.SessionID)).Int("frames", len(req.Frames)).Msg("chat delivered")
	return nil
}

func (c *Client) jsonBody(req domain.ChatRequest) (io.Reader, string, error) {
	base := chatPayload{
		Text:      req.Text,
		Type:      req.Type,
		Interrupt: req.Interrupt,
		SessionID: int(req.SessionID),
	}
	var v any = base
	if c.variant == domain.VariantImages {
		images := make([]string, 0, len(req.Frames))
		for _, f := range req.Frames {
			images = append(images, DataURL(f))
		}
		v = imagesPayload{chatPayload: base, Images: images}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("encode chat: %w", err)
	}
	return bytes.NewReader(b), "application/json", nil
}

// videoBody joins the sampled frames into one motion-JPEG blob and sends it
// as the "video" part of a multipart form.
func videoBody(req domain.ChatRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("text", req.Text); err != nil {
		return nil, "", fmt.Errorf("write text field: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename="%s"`, videoFilename))
	h.Set("Content-Type", videoMIME)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("create video part: %w", err)
	}
	for _, f := range req.Frames {
		if _, err := part.Write(f); err != nil {
			return nil, "", fmt.Errorf("write video part: %w", err)
		}
	}

	fields := [][2]string{
		{"type", req.Type},
		{"interrupt", strconv.FormatBool(req.Interrupt)},
		{"sessionid", strconv.Itoa(int(req.SessionID))},
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", fmt.Errorf("write %s field: %w", kv[0], err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// DataURL renders a JPEG frame the way a canvas would.
func DataURL(f domain.Frame) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(f)
}

// IsSpeaking asks whether the avatar is talking. Any failure comes back as
// *domain.QueryError.
func (c *Client) IsSpeaking(ctx context.Context, sid domain.SessionID) (bool, error) {
	b, err := json.Marshal(map[string]int{"sessionid": int(sid)})
	if err != nil {
		return false, &domain.QueryError{Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+speakingPath, bytes.NewReader(b))
	if err != nil {
		return false, &domain.QueryError{Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return false, &domain.QueryError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return false, &domain.QueryError{Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}
	var out struct {
		Data bool `json:"data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return false, &domain.QueryError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return out.Data, nil
}

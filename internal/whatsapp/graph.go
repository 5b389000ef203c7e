package whatsapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"wagate/internal/domain"
)

const maxMediaDownload = 100 << 20

// APIError is an error response from the Graph API.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp API %d: %s (code %d)", e.Status, e.Message, e.Code)
}

// Unauthorized reports whether the token was rejected.
func (e *APIError) Unauthorized() bool {
	return e.Status == http.StatusUnauthorized || e.Code == 190 || (e.Type == "OAuthException" && e.Status == http.StatusForbidden)
}

type phoneNumber struct {
	ID                 string `json:"id"`
	DisplayPhoneNumber string `json:"display_phone_number"`
	VerifiedName       string `json:"verified_name"`
}

func (c *Client) fetchPhoneNumber(ctx context.Context) (*phoneNumber, error) {
	var out phoneNumber
	if err := c.get(ctx, c.phoneNumberID+"?fields=id,display_phone_number,verified_name", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// outbound is a built /messages payload. mediaID is set for uploaded media.
type outbound struct {
	body    map[string]any
	mediaID string
}

func (c *Client) buildPayload(ctx context.Context, to string, content domain.Content, opts *domain.SendOptions) (*outbound, error) {
	out := &outbound{body: map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                to,
	}}
	var caption string
	if opts != nil {
		caption = opts.Caption
		if opts.QuotedMessageID != "" {
			out.body["context"] = map[string]string{"message_id": opts.QuotedMessageID}
		}
	}

	switch v := content.(type) {
	case domain.Text:
		out.body["type"] = "text"
		out.body["text"] = map[string]any{"body": string(v), "preview_url": false}

	case *domain.MediaRef:
		id, err := c.uploadMedia(ctx, v)
		if err != nil {
			return nil, err
		}
		out.mediaID = id
		kind := mediaKind(v.MimeType)
		obj := map[string]any{"id": id}
		if caption != "" && kind != "audio" {
			obj["caption"] = caption
		}
		if kind == "document" && v.Filename != "" {
			obj["filename"] = v.Filename
		}
		out.body["type"] = kind
		out.body[kind] = obj

	case domain.Location:
		name, address, _ := strings.Cut(v.Description, "\n")
		out.body["type"] = "location"
		out.body["location"] = map[string]any{
			"latitude":  v.Latitude,
			"longitude": v.Longitude,
			"name":      name,
			"address":   address,
		}

	case domain.Buttons:
		buttons := make([]map[string]any, 0, len(v.Buttons))
		for i, b := range v.Buttons {
			id := b.ID
			if id == "" {
				id = fmt.Sprintf("btn-%d", i+1)
			}
			buttons = append(buttons, map[string]any{
				"type":  "reply",
				"reply": map[string]string{"id": id, "title": b.Body},
			})
		}
		out.body["type"] = "interactive"
		out.body["interactive"] = interactive("button", v.Title, v.Body, v.Footer, map[string]any{"buttons": buttons})

	case domain.List:
		sections := make([]map[string]any, 0, len(v.Sections))
		n := 0
		for _, s := range v.Sections {
			rows := make([]map[string]string, 0, len(s.Rows))
			for _, r := range s.Rows {
				n++
				id := r.ID
				if id == "" {
					id = fmt.Sprintf("row-%d", n)
				}
				row := map[string]string{"id": id, "title": r.Title}
				if r.Description != "" {
					row["description"] = r.Description
				}
				rows = append(rows, row)
			}
			sections = append(sections, map[string]any{"title": s.Title, "rows": rows})
		}
		out.body["type"] = "interactive"
		out.body["interactive"] = interactive("list", v.Title, v.Body, v.Footer, map[string]any{
			"button":   v.ButtonText,
			"sections": sections,
		})

	default:
		return nil, fmt.Errorf("content kind %q: %w", content.Kind(), domain.ErrUnsupported)
	}
	return out, nil
}

func interactive(kind, title, body, footer string, action map[string]any) map[string]any {
	obj := map[string]any{
		"type":   kind,
		"body":   map[string]string{"text": body},
		"action": action,
	}
	if title != "" {
		obj["header"] = map[string]string{"type": "text", "text": title}
	}
	if footer != "" {
		obj["footer"] = map[string]string{"text": footer}
	}
	return obj
}

func mediaKind(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return "document"
	}
}

func (c *Client) postMessage(ctx context.Context, out *outbound) (string, error) {
	var resp struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := c.sendLimiter.Wait(ctx); err != nil {
		return "", err
	}
	err := c.withRetry(ctx, "send message", func() error {
		return c.post(ctx, c.phoneNumberID+"/messages", out.body, &resp)
	})
	if err != nil {
		return "", err
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("whatsapp API: no message id in response")
	}
	return resp.Messages[0].ID, nil
}

// markRead marks messageID read, optionally showing a typing indicator.
func (c *Client) markRead(ctx context.Context, messageID string, typing bool) error {
	body := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	if typing {
		body["typing_indicator"] = map[string]string{"type": "text"}
	}
	return c.post(ctx, c.phoneNumberID+"/messages", body, nil)
}

func (c *Client) react(ctx context.Context, to, messageID, emoji string) error {
	_, err := c.postMessage(ctx, &outbound{body: map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                domain.UserPart(to),
		"type":              "reaction",
		"reaction":          map[string]string{"message_id": messageID, "emoji": emoji},
	}})
	return err
}

func (c *Client) rejectCall(ctx context.Context, callID string) error {
	return c.post(ctx, c.phoneNumberID+"/calls", map[string]any{
		"messaging_product": "whatsapp",
		"call_id":           callID,
		"action":            "reject",
	}, nil)
}

// uploadMedia stores ref on the API and returns its media id.
func (c *Client) uploadMedia(ctx context.Context, ref *domain.MediaRef) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ref.Data)
	if err != nil {
		return "", fmt.Errorf("decode media: %w", err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("messaging_product", "whatsapp")
	mw.WriteField("type", ref.MimeType)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, ref.Filename))
	h.Set("Content-Type", ref.MimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}
	part.Write(data)
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload: %w", err)
	}

	body := buf.Bytes()

	var resp struct {
		ID string `json:"id"`
	}
	err = c.withRetry(ctx, "upload media", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.phoneNumberID+"/media"), bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return c.do(req, &resp)
	})
	if err != nil {
		return "", fmt.Errorf("upload media: %w", err)
	}
	return resp.ID, nil
}

// downloadMedia resolves a media id and fetches its bytes.
func (c *Client) downloadMedia(ctx context.Context, mediaID, filename string) (*domain.MediaRef, error) {
	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := c.get(ctx, mediaID, &meta); err != nil {
		return nil, fmt.Errorf("resolve media %s: %w", mediaID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download media: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaDownload))
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	return &domain.MediaRef{
		MimeType: meta.MimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
		Filename: filename,
	}, nil
}

func (c *Client) url(path string) string {
	return c.apiBase + "/" + path
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// do sends an authorized request and decodes a JSON response into out.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		var env struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(respBody, &env) == nil && env.Error != nil {
			env.Error.Status = resp.StatusCode
			return env.Error
		}
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

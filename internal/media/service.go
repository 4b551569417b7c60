package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// serviceStrategy delegates resolution to the external resolver service. The
// service answers either with a download URL, inline base64 content, or the
// raw asset bytes.
type serviceStrategy struct {
	baseURL string
	client  *http.Client
}

type serviceResponse struct {
	DownloadURL   string `json:"download_url"`
	ContentBase64 string `json:"content_base64"`
	ContentType   string `json:"content_type"`
	Error         string `json:"error"`
}

func (*serviceStrategy) Name() string { return "service" }

func (s *serviceStrategy) Resolve(ctx context.Context, d Descriptor) (*Resolution, error) {
	if d.Resolver == "" {
		return nil, nil
	}

	payload := map[string]string{
		"media_type": string(d.Type),
		"caption":    d.Caption,
	}
	if d.SourceURL != "" {
		payload["source_url"] = d.SourceURL
	}
	for key, value := range d.Reference {
		payload[key] = value
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/resolve/%s", strings.TrimRight(s.baseURL, "/"), d.Resolver)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("resolver service returned HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "json") {
		// Raw asset bytes straight off the wire.
		content, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if len(content) == 0 {
			return nil, fmt.Errorf("resolver service returned an empty body")
		}
		return &Resolution{Content: content, ContentType: contentType}, nil
	}

	var parsed serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("resolver service: %s", parsed.Error)
	}
	if parsed.DownloadURL != "" {
		return &Resolution{DownloadURL: parsed.DownloadURL}, nil
	}
	if parsed.ContentBase64 != "" {
		content, err := base64.StdEncoding.DecodeString(parsed.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("decoding resolver content: %w", err)
		}
		return &Resolution{Content: content, ContentType: parsed.ContentType}, nil
	}
	return nil, fmt.Errorf("resolver service answered without an asset")
}

package collab

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
)

// maxAudioSize bounds a synthesized clip.
const maxAudioSize = 32 * 1024 * 1024

// Audio is a synthesized clip.
type Audio struct {
	Data   []byte
	Format string // wav, mp3, ogg or unknown
}

// Synthesize sends text to /text-to-speech. The server may answer with raw
// audio bytes or with {"audio": "<base64>"}.
func (c *Client) Synthesize(ctx context.Context, text string) (Audio, error) {
	payload, err := json.Marshal(map[string]string{"text": text, "lang": c.lang})
	if err != nil {
		return Audio{}, fmt.Errorf("marshal tts request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/text-to-speech"), bytes.NewReader(payload))
	if err != nil {
		return Audio{}, fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Audio{}, fmt.Errorf("/text-to-speech: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Audio{}, responseError("/text-to-speech", resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioSize))
	if err != nil {
		return Audio{}, fmt.Errorf("read tts response: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var reply struct {
			Audio string `json:"audio"`
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &reply); err != nil {
			return Audio{}, fmt.Errorf("decode tts response: %w", err)
		}
		if reply.Audio == "" {
			if reply.Error != "" {
				return Audio{}, fmt.Errorf("/text-to-speech: %s", reply.Error)
			}
			return Audio{}, fmt.Errorf("/text-to-speech: %w", ErrEmptyResponse)
		}
		body, err = base64.StdEncoding.DecodeString(reply.Audio)
		if err != nil {
			return Audio{}, fmt.Errorf("decode tts audio: %w", err)
		}
	}
	if len(body) == 0 {
		return Audio{}, fmt.Errorf("/text-to-speech: %w", ErrEmptyResponse)
	}
	return Audio{Data: body, Format: SniffAudioFormat(body)}, nil
}

// SniffAudioFormat guesses the container from the leading bytes.
func SniffAudioFormat(data []byte) string {
	switch {
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return "wav"
	case len(data) >= 3 && string(data[0:3]) == "ID3":
		return "mp3"
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return "mp3"
	case len(data) >= 4 && string(data[0:4]) == "OggS":
		return "ogg"
	}
	return "unknown"
}

// Transcribe uploads a WAV recording to /speech-to-text as the multipart
// field "audio".
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", "recording.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := writer.WriteField("lang", c.lang); err != nil {
		return "", fmt.Errorf("write lang field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/speech-to-text"), &buf)
	if err != nil {
		return "", fmt.Errorf("create stt request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var result struct {
		Text string `json:"text"`
	}
	if err := c.doJSON(req, "/speech-to-text", &result); err != nil {
		return "", err
	}
	return result.Text, nil
}

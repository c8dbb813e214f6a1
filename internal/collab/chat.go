package collab

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"
)

const chatReadSize = 4 * 1024

// StreamMode says how a plain-text /chat body is framed.
type StreamMode string

const (
	// StreamIncremental bodies carry only new text; chunk boundaries are
	// meaningless.
	StreamIncremental StreamMode = "incremental"
	// StreamCumulative bodies carry one newline-terminated snapshot of the
	// whole reply per line. A line starting with a quote is a JSON string,
	// which lets a snapshot contain newlines.
	StreamCumulative StreamMode = "cumulative"
)

// ParseStreamMode maps a config value to a StreamMode.
func ParseStreamMode(s string) (StreamMode, error) {
	switch m := StreamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", StreamIncremental:
		return StreamIncremental, nil
	case StreamCumulative:
		return m, nil
	}
	return "", fmt.Errorf("unknown chat stream mode %q", s)
}

// ChatStream reads a streamed /chat response. Each call to Next returns the
// full text received so far.
type ChatStream struct {
	body     io.ReadCloser
	isJSON   bool
	mode     StreamMode
	lines    *bufio.Reader
	buf      []byte
	pending  []byte
	text     string
	finished bool
}

// OpenChat posts message to /chat and returns the response stream.
func (c *Client) OpenChat(ctx context.Context, message string) (*ChatStream, error) {
	payload, err := json.Marshal(map[string]string{"message": message, "language": c.lang})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/chat"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("/chat: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, responseError("/chat", resp)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	s := &ChatStream{
		body:   resp.Body,
		isJSON: mediaType == "application/json",
		mode:   c.streamMode,
	}
	if s.mode == StreamCumulative {
		s.lines = bufio.NewReaderSize(resp.Body, chatReadSize)
	} else {
		s.buf = make([]byte, chatReadSize)
	}
	return s, nil
}

// Next blocks for the next chunk and returns the cumulative text. It returns
// io.EOF once the response is complete.
func (s *ChatStream) Next() (string, error) {
	if s.finished {
		return s.text, io.EOF
	}
	if s.isJSON {
		return s.readJSON()
	}
	if s.mode == StreamCumulative {
		return s.nextSnapshot()
	}

	for {
		n, err := s.body.Read(s.buf)
		if n > 0 {
			data := append(s.pending, s.buf[:n]...)
			cut := validPrefix(data)
			s.pending = append([]byte(nil), data[cut:]...)
			if cut > 0 {
				s.text += string(data[:cut])
				if errors.Is(err, io.EOF) {
					s.text += string(s.pending)
					s.pending = nil
					s.finish()
				}
				return s.text, nil
			}
		}
		if err != nil {
			s.finish()
			if errors.Is(err, io.EOF) {
				if len(s.pending) > 0 {
					s.text += string(s.pending)
					s.pending = nil
				}
				return s.text, io.EOF
			}
			return s.text, fmt.Errorf("read chat stream: %w", err)
		}
	}
}

func (s *ChatStream) readJSON() (string, error) {
	defer s.finish()
	var reply struct {
		Response string `json:"response"`
		Error    string `json:"error"`
	}
	if err := json.NewDecoder(s.body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if reply.Response == "" && reply.Error != "" {
		return "", errors.New(reply.Error)
	}
	s.text = reply.Response
	return s.text, nil
}

// Close releases the response body.
func (s *ChatStream) Close() error {
	s.finished = true
	return s.body.Close()
}

func (s *ChatStream) finish() {
	if !s.finished {
		s.finished = true
		s.body.Close()
	}
}

// nextSnapshot returns the next non-empty line. An unterminated last line
// still counts as a snapshot.
func (s *ChatStream) nextSnapshot() (string, error) {
	for {
		line, err := s.lines.ReadString('\n')
		frame := strings.TrimRight(line, "\r\n")
		if err != nil && !errors.Is(err, io.EOF) {
			s.finish()
			return s.text, fmt.Errorf("read chat stream: %w", err)
		}
		if frame != "" {
			s.text = decodeSnapshot(frame)
			if err != nil {
				s.finish()
			}
			return s.text, nil
		}
		if err != nil {
			s.finish()
			return s.text, io.EOF
		}
	}
}

func decodeSnapshot(frame string) string {
	if strings.HasPrefix(frame, `"`) {
		var text string
		if json.Unmarshal([]byte(frame), &text) == nil {
			return text
		}
	}
	return frame
}

// validPrefix returns the length of data that ends on a rune boundary.
func validPrefix(data []byte) int {
	end := len(data)
	for i := 1; i <= utf8.UTFMax && i <= len(data); i++ {
		b := data[len(data)-i]
		if !utf8.RuneStart(b) {
			continue
		}
		if !utf8.FullRune(data[len(data)-i:]) {
			end = len(data) - i
		}
		break
	}
	return end
}

// ChatReply is the non-streaming /api/chat answer.
type ChatReply struct {
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`
}

// Chat sends message to /api/chat and waits for the whole reply.
func (c *Client) Chat(ctx context.Context, message string) (ChatReply, error) {
	var reply ChatReply
	if err := c.postJSON(ctx, "/api/chat", map[string]string{"message": message}, &reply); err != nil {
		return ChatReply{}, err
	}
	return reply, nil
}

// Package deepgram opens a live streaming recognition session with a
// Deepgram-compatible provider and decodes its result events.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/obiente/interviewd/internal/transcript"
)

// Options configures the streaming session. Diarization and smart
// formatting are always on; filler words and interim results are off.
type Options struct {
	URL        string
	APIKey     string
	Model      string
	Language   string
	Encoding   string
	SampleRate int
	Channels   int
}

// Endpoint returns the streaming URL with recognition parameters applied.
func (o Options) Endpoint() (string, error) {
	u, err := url.Parse(o.URL)
	if err != nil {
		return "", fmt.Errorf("parse deepgram url: %w", err)
	}
	q := u.Query()
	q.Set("diarize", "true")
	q.Set("smart_format", "true")
	q.Set("filler_words", "false")
	q.Set("interim_results", "false")
	if o.Model != "" {
		q.Set("model", o.Model)
	}
	if o.Language != "" {
		q.Set("language", o.Language)
	}
	if o.Encoding != "" {
		q.Set("encoding", o.Encoding)
	}
	if o.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(o.SampleRate))
	}
	if o.Channels > 0 {
		q.Set("channels", strconv.Itoa(o.Channels))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Conn is an open streaming session. Writes are serialized; reads must
// come from a single goroutine.
type Conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Dial opens a streaming session. Failures are not retried.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	endpoint, err := opts.Endpoint()
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	if opts.APIKey != "" {
		header.Set("Authorization", "Token "+opts.APIKey)
	}
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial deepgram: %w (http %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial deepgram: %w", err)
	}
	return &Conn{ws: ws}, nil
}

// SendAudio forwards one audio chunk unmodified.
func (c *Conn) SendAudio(chunk []byte) error {
	return c.write(websocket.BinaryMessage, chunk)
}

// KeepAlive tells the provider the stream is still open during silence.
func (c *Conn) KeepAlive() error {
	return c.write(websocket.TextMessage, []byte(`{"type":"KeepAlive"}`))
}

// Finish asks the provider to flush pending results and close the stream.
func (c *Conn) Finish() error {
	return c.write(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
}

// ReadMessage blocks for the next provider event payload.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	return data, err
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.ws.Close()
}

func (c *Conn) write(mt int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(mt, data)
}

// ErrMalformed marks a result event without the expected shape.
var ErrMalformed = errors.New("malformed provider event")

type resultEvent struct {
	Type     string          `json:"type"`
	Start    float64         `json:"start"`
	Duration float64         `json:"duration"`
	Channel  json.RawMessage `json:"channel"`
}

type resultChannel struct {
	Alternatives []struct {
		Transcript string  `json:"transcript"`
		Confidence float64 `json:"confidence"`
		Words      []struct {
			Speaker int `json:"speaker"`
		} `json:"words"`
	} `json:"alternatives"`
}

// ParseResult decodes one provider event. ok is false for events that
// carry no speech: non-result events (metadata, utterance end) and results
// whose transcript is one character or shorter. A result event that cannot
// be decoded returns an error wrapping ErrMalformed.
func ParseResult(data []byte) (frag transcript.Fragment, ok bool, err error) {
	var ev resultEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return frag, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if ev.Type != "" && ev.Type != "Results" {
		return frag, false, nil
	}
	if len(ev.Channel) == 0 {
		if ev.Type == "Results" {
			return frag, false, fmt.Errorf("%w: result without channel", ErrMalformed)
		}
		return frag, false, nil
	}

	var ch resultChannel
	if err := json.Unmarshal(ev.Channel, &ch); err != nil {
		return frag, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(ch.Alternatives) == 0 {
		return frag, false, fmt.Errorf("%w: no alternatives", ErrMalformed)
	}
	alt := ch.Alternatives[0]

	frag = transcript.Fragment{
		Start:      ev.Start,
		Duration:   ev.Duration,
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Channel:    transcript.NoChannel,
	}
	if len(alt.Words) > 0 {
		frag.Speaker = alt.Words[0].Speaker
	}
	if !transcript.Accept(frag.Text) {
		return frag, false, nil
	}
	return frag, true, nil
}

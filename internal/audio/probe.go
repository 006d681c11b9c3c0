// Package audio inspects inbound audio chunks. Audio is relayed to the
// speech provider byte-for-byte; probing checks that what the client sends
// matches how the provider session was configured.
package audio

import (
	"bytes"
	"fmt"

	"github.com/go-audio/wav"
)

// Format describes the container detected at the start of a stream.
type Format struct {
	Container  string
	SampleRate int
	Channels   int
	BitDepth   int
}

var magics = []struct {
	prefix    []byte
	container string
}{
	{[]byte{0x1A, 0x45, 0xDF, 0xA3}, "webm"},
	{[]byte("OggS"), "ogg"},
	{[]byte("fLaC"), "flac"},
	{[]byte("ID3"), "mp3"},
}

// Probe guesses the container of the first chunk of a stream. For WAV it
// also reads sample rate, channel count and bit depth from the header.
// Unknown data is reported as "raw".
func Probe(chunk []byte) Format {
	if bytes.HasPrefix(chunk, []byte("RIFF")) {
		dec := wav.NewDecoder(bytes.NewReader(chunk))
		if dec.IsValidFile() {
			return Format{
				Container:  "wav",
				SampleRate: int(dec.SampleRate),
				Channels:   int(dec.NumChans),
				BitDepth:   int(dec.BitDepth),
			}
		}
	}
	for _, m := range magics {
		if bytes.HasPrefix(chunk, m.prefix) {
			return Format{Container: m.container}
		}
	}
	return Format{Container: "raw"}
}

// Expect is the audio format a provider session was opened for. An empty
// Encoding means the provider detects the container itself.
type Expect struct {
	Encoding   string
	SampleRate int
	Channels   int
}

// Mismatches lists the ways f disagrees with e. Containerized audio must
// be sent without a raw encoding, headerless audio needs one, and a WAV
// header must agree with any configured sample rate and channel count.
func (f Format) Mismatches(e Expect) []string {
	var out []string
	switch {
	case f.Container != "raw" && e.Encoding != "":
		out = append(out, fmt.Sprintf("%s container sent to a session configured for raw %s audio", f.Container, e.Encoding))
	case f.Container == "raw" && e.Encoding == "":
		out = append(out, "headerless audio sent but no encoding is configured")
	}
	if f.Container == "wav" {
		if e.SampleRate > 0 && f.SampleRate != e.SampleRate {
			out = append(out, fmt.Sprintf("sample rate %d, session expects %d", f.SampleRate, e.SampleRate))
		}
		if e.Channels > 0 && f.Channels != e.Channels {
			out = append(out, fmt.Sprintf("%d channels, session expects %d", f.Channels, e.Channels))
		}
	}
	return out
}

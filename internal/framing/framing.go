// ABOUTME: Content-Length framing for the query-server stdio stream
// ABOUTME: Encodes payloads and decodes complete bodies from a byte stream with resync

package framing

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/harper/codeql-relay/internal/errors"
)

// MaxFrameSize bounds the declared body length of a single frame.
const MaxFrameSize = 64 << 20

const headerContentLength = "content-length"

// resyncToken is matched case-insensitively when realigning on a frame start.
const resyncToken = headerContentLength + ":"

// Encode marshals payload to JSON and prefixes the Content-Length header.
// A json.RawMessage is written as the body unchanged.
func Encode(payload interface{}) ([]byte, error) {
	var body []byte
	if raw, ok := payload.(json.RawMessage); ok {
		body = raw
	} else {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(err, "marshal frame body")
		}
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(body))
	buf.Write(body)
	return buf.Bytes(), nil
}

// Decoder yields one frame body per call to Next.
type Decoder struct {
	r *bufio.Reader

	// pending is a body length already read from a header block that was
	// reported as malformed; the body is still in the stream.
	pending int
	// resync is set when the stream position relative to frame boundaries
	// is unknown and must be realigned on the next Content-Length header.
	resync bool
	// carry is header text consumed while realigning.
	carry string
}

// NewDecoder returns a Decoder reading frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024), pending: -1}
}

// Next reads the next complete frame body. Framing problems are returned as
// *errors.FramingError with the stream positioned so the following call can
// still succeed. io.EOF is returned once the stream ends between frames.
func (d *Decoder) Next() (json.RawMessage, error) {
	if d.resync {
		d.resync = false
		if err := d.seekHeader(); err != nil {
			return nil, err
		}
	}

	length := d.pending
	if length >= 0 {
		d.pending = -1
	} else {
		var err error
		if length, err = d.readHeader(); err != nil {
			return nil, err
		}
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	if !json.Valid(body) {
		return nil, errors.NewFramingError("body is not valid JSON", "", nil)
	}
	return body, nil
}

// readHeader consumes a header block up to the blank line and returns the
// declared length. A bad block with a usable length leaves that body pending
// for the next call; without one the decoder realigns on the next header.
func (d *Decoder) readHeader() (int, error) {
	length := -1
	var bad *errors.FramingError
	sawLine := false

	for {
		line, err := d.r.ReadString('\n')
		if d.carry != "" {
			line = d.carry + line
			d.carry = ""
		}
		if err != nil {
			if err == io.EOF && !sawLine && line == "" {
				return 0, io.EOF
			}
			if err == io.EOF {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !sawLine {
				// stray blank line between frames
				continue
			}
			break
		}
		sawLine = true

		name, value, ok := strings.Cut(line, ":")
		if !ok {
			if bad == nil {
				bad = errors.NewFramingError("malformed header line", line, nil)
			}
			continue
		}
		if strings.ToLower(strings.TrimSpace(name)) != headerContentLength {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(value))
		switch {
		case err != nil:
			if bad == nil {
				bad = errors.NewFramingError("invalid Content-Length", line, err)
			}
		case n < 0:
			if bad == nil {
				bad = errors.NewFramingError("negative Content-Length", line, nil)
			}
		default:
			length = n
		}
	}

	if length < 0 {
		d.resync = true
		if bad != nil {
			return 0, bad
		}
		return 0, errors.NewFramingError("missing Content-Length header", "", nil)
	}
	if length > MaxFrameSize {
		if _, err := d.r.Discard(length); err != nil {
			return 0, err
		}
		return 0, errors.NewFramingError(fmt.Sprintf("frame of %d bytes exceeds limit of %d", length, MaxFrameSize), "", nil)
	}
	if bad != nil {
		d.pending = length
		return 0, bad
	}
	return length, nil
}

// seekHeader skips bytes up to and including the next Content-Length token
// and carries the token into the following header read. It returns io.EOF
// when the stream ends first.
func (d *Decoder) seekHeader() error {
	window := make([]byte, 0, len(resyncToken))
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		if 'A' <= b && b <= 'Z' {
			b += 'a' - 'A'
		}
		if len(window) == len(resyncToken) {
			copy(window, window[1:])
			window = window[:len(window)-1]
		}
		window = append(window, b)
		if string(window) == resyncToken {
			d.carry = "Content-Length:"
			return nil
		}
	}
}

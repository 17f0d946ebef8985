// Package chunked decodes HTTP/1.1 chunked transfer coding.
//
// Decoding is lenient about where it stops: on malformed input it keeps the
// bytes decoded before the fault and reports the fault alongside them.
package chunked

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxLineLength = 4096

var (
	ErrMalformedSize  = errors.New("chunked: malformed chunk size")
	ErrMissingCRLF    = errors.New("chunked: missing chunk terminator")
	ErrLineTooLong    = errors.New("chunked: header line too long")
	ErrUnexpectedEOF  = errors.New("chunked: unexpected end of stream")
	ErrSizeOutOfRange = errors.New("chunked: chunk size out of range")
)

// Reader decodes a chunked stream read from an underlying reader.
type Reader struct {
	r    *bufio.Reader
	left uint64 // bytes left in the current chunk
	err  error
	// inChunk is false while the next read must start with a size line.
	inChunk bool
}

// NewReader returns a Reader decoding the chunked stream in r.
func NewReader(r io.Reader) *Reader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Reader{r: br}
}

// Read implements io.Reader. It returns io.EOF after the terminating
// zero-length chunk and its trailer section.
func (cr *Reader) Read(p []byte) (int, error) {
	if cr.err != nil {
		return 0, cr.err
	}
	if len(p) == 0 {
		return 0, nil
	}

	if !cr.inChunk {
		size, err := cr.readSize()
		if err != nil {
			cr.err = err
			return 0, err
		}
		if size == 0 {
			cr.err = cr.skipTrailer()
			return 0, cr.err
		}
		cr.left = size
		cr.inChunk = true
	}

	if uint64(len(p)) > cr.left {
		p = p[:cr.left]
	}
	n, err := cr.r.Read(p)
	cr.left -= uint64(n)
	if err == io.EOF {
		err = ErrUnexpectedEOF
	}
	if err != nil {
		cr.err = err
		return n, err
	}

	if cr.left == 0 {
		if err := cr.readCRLF(); err != nil {
			cr.err = err
			return n, err
		}
		cr.inChunk = false
	}
	return n, nil
}

func (cr *Reader) readSize() (uint64, error) {
	line, err := cr.readLine()
	if err != nil {
		return 0, err
	}

	// Chunk extensions are ignored.
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, ErrMalformedSize
	}

	var size uint64
	for i := 0; i < len(line); i++ {
		d, ok := hexDigit(line[i])
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrMalformedSize, line)
		}
		if i >= 16 {
			return 0, ErrSizeOutOfRange
		}
		size = size<<4 | uint64(d)
	}
	return size, nil
}

// skipTrailer consumes trailer header lines up to the final empty line.
// A stream ending right after the last chunk is accepted.
func (cr *Reader) skipTrailer() error {
	for {
		line, err := cr.readLine()
		if errors.Is(err, ErrUnexpectedEOF) {
			return io.EOF
		}
		if err != nil {
			return err
		}
		if line == "" {
			return io.EOF
		}
	}
}

func (cr *Reader) readCRLF() error {
	b, err := cr.r.ReadByte()
	if err != nil {
		return ErrMissingCRLF
	}
	if b == '\r' {
		b, err = cr.r.ReadByte()
		if err != nil {
			return ErrMissingCRLF
		}
	}
	if b != '\n' {
		return ErrMissingCRLF
	}
	return nil
}

// readLine returns a line without its CRLF (or bare LF) terminator.
func (cr *Reader) readLine() (string, error) {
	line, err := cr.r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) || len(line) > maxLineLength {
		return "", ErrLineTooLong
	}
	if err == io.EOF {
		return "", ErrUnexpectedEOF
	}
	if err != nil {
		return "", err
	}
	line = bytes.TrimSuffix(line[:len(line)-1], []byte{'\r'})
	return string(line), nil
}

func hexDigit(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Decode decodes a complete chunked payload. On malformed input it returns
// the bytes decoded before the fault together with the error.
func Decode(data []byte) ([]byte, error) {
	out, err := io.ReadAll(NewReader(bytes.NewReader(data)))
	return out, err
}

// ReadBody reads resp.Body, undoing chunked framing when the response header
// still advertises it. http.Transport removes the header whenever it has
// already decoded the body itself, so a remaining header means the body is
// framed.
func ReadBody(resp *http.Response) ([]byte, error) {
	if IsChunked(resp.Header.Get("Transfer-Encoding")) {
		return io.ReadAll(NewReader(resp.Body))
	}
	return io.ReadAll(resp.Body)
}

// IsChunked reports whether a Transfer-Encoding value ends with chunked.
func IsChunked(te string) bool {
	codings := strings.Split(te, ",")
	return strings.EqualFold(strings.TrimSpace(codings[len(codings)-1]), "chunked")
}

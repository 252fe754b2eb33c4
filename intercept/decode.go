package intercept

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/ysmood/gson"
	"golang.org/x/net/html/charset"
)

// MaxDecodedBytes bounds a decompressed body.
const MaxDecodedBytes = 32 << 20

// Stage names the decode step that failed.
type Stage string

const (
	StageDecompress Stage = "decompress"
	StageText       Stage = "text"
	StageJSON       Stage = "json"
)

// DecodeError records one undecodable response. It never aborts a URL.
type DecodeError struct {
	URL   string
	Stage Stage
	Err   error
}

func (e *DecodeError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("intercept: %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("intercept: %s %s: %v", e.Stage, e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// hijackPrefixes are anti-JSON-hijacking guards servers put before a body.
var hijackPrefixes = []string{"for (;;);", "for(;;);", ")]}'", "while(1);"}

var (
	errTooLarge  = errors.New("decoded body exceeds limit")
	errNotUTF8   = errors.New("body is not valid UTF-8")
	errEmptyBody = errors.New("empty body")

	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	bom       = []byte{0xef, 0xbb, 0xbf}
)

// zstdDecoder is shared; DecodeAll is safe for concurrent use.
var zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))

// Decode turns a raw response body into a JSON tree: decompress, validate
// text, strip anti-hijacking prefixes, parse. Errors are *DecodeError.
func Decode(headers http.Header, raw []byte) (gson.JSON, error) {
	body, err := decompress(headers, raw)
	if err != nil {
		return gson.JSON{}, &DecodeError{Stage: StageDecompress, Err: err}
	}

	text, err := toText(headers.Get("Content-Type"), body)
	if err != nil {
		return gson.JSON{}, &DecodeError{Stage: StageText, Err: err}
	}

	text = stripHijackPrefix(text)
	if text == "" {
		return gson.JSON{}, &DecodeError{Stage: StageJSON, Err: errEmptyBody}
	}

	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return gson.JSON{}, &DecodeError{Stage: StageJSON, Err: err}
	}
	return gson.New(v), nil
}

// decompress honours Content-Encoding, then falls back to magic bytes for
// bodies served with a compressed content type and no encoding header.
func decompress(headers http.Header, raw []byte) ([]byte, error) {
	enc := strings.ToLower(strings.TrimSpace(headers.Get("Content-Encoding")))
	if enc == "" || enc == "identity" {
		ct := strings.ToLower(headers.Get("Content-Type"))
		switch {
		case bytes.HasPrefix(raw, gzipMagic) && (strings.Contains(ct, "gzip") || !looksLikeText(raw)):
			enc = "gzip"
		case bytes.HasPrefix(raw, zstdMagic):
			enc = "zstd"
		case strings.Contains(ct, "brotli"):
			enc = "br"
		default:
			return raw, nil
		}
	}

	var r io.Reader
	switch enc {
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			r = zr
		} else {
			fr := flate.NewReader(bytes.NewReader(raw))
			defer fr.Close()
			r = fr
		}
	case "br":
		r = brotli.NewReader(bytes.NewReader(raw))
	case "zstd":
		if zstdDecoder == nil {
			return nil, errors.New("zstd decoder unavailable")
		}
		out, err := zstdDecoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, err
		}
		if len(out) > MaxDecodedBytes {
			return nil, errTooLarge
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported content-encoding %q", enc)
	}

	out, err := io.ReadAll(io.LimitReader(r, MaxDecodedBytes+1))
	if err != nil {
		return nil, err
	}
	if len(out) > MaxDecodedBytes {
		return nil, errTooLarge
	}
	return out, nil
}

// toText converts a body to UTF-8. A declared non-UTF-8 charset is
// transcoded; everything else must already be valid UTF-8.
func toText(contentType string, body []byte) (string, error) {
	body = bytes.TrimPrefix(body, bom)

	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		if cs := strings.ToLower(params["charset"]); cs != "" && cs != "utf-8" && cs != "utf8" {
			r, err := charset.NewReaderLabel(cs, bytes.NewReader(body))
			if err != nil {
				return "", err
			}
			out, err := io.ReadAll(r)
			if err != nil {
				return "", err
			}
			return string(out), nil
		}
	}

	if !utf8.Valid(body) {
		return "", errNotUTF8
	}
	return string(body), nil
}

func stripHijackPrefix(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range hijackPrefixes {
		if strings.HasPrefix(s, p) {
			return strings.TrimSpace(s[len(p):])
		}
	}
	return s
}

func looksLikeText(b []byte) bool {
	n := min(len(b), 64)
	return utf8.Valid(b[:n])
}

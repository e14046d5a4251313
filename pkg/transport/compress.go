package transport

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// minCompressSize is the smallest known body length worth compressing.
const minCompressSize = 32

// Supported content codings, in server preference order.
const (
	encodingBrotli  = "br"
	encodingGzip    = "gzip"
	encodingDeflate = "deflate"
)

var supportedEncodings = []string{encodingBrotli, encodingGzip, encodingDeflate}

// skippedContentTypes are never compressed. Event streams must reach the
// client unbuffered; the others are already compressed or framed.
var skippedContentTypes = []string{
	"text/event-stream",
	"image/",
	"application/grpc",
}

var (
	gzipPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	}}
	flatePool = sync.Pool{New: func() any {
		w, _ := flate.NewWriter(io.Discard, flate.DefaultCompression)
		return w
	}}
)

// encoder is the common surface of the gzip, flate and brotli writers.
type encoder interface {
	io.WriteCloser
	Flush() error
}

// Compress returns middleware that compresses response bodies with br,
// gzip or deflate, as negotiated from the request Accept-Encoding header.
// Responses that already carry a Content-Encoding, event streams, images,
// gRPC, bodiless statuses, HEAD responses and bodies with a known length
// below 32 bytes are passed through unchanged.
func Compress() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")

			encoding := negotiateEncoding(r.Header.Get("Accept-Encoding"))
			if encoding == "" || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			cw := &compressWriter{ResponseWriter: w, encoding: encoding}
			defer cw.close()
			next.ServeHTTP(cw, r)
		})
	}
}

// compressWriter defers the compression decision until the headers are
// committed, since only then are Content-Type and Content-Length known.
type compressWriter struct {
	http.ResponseWriter
	encoding    string
	enc         encoder
	wroteHeader bool
}

func (w *compressWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true

	h := w.Header()
	if w.shouldCompress(status, h) {
		h.Set("Content-Encoding", w.encoding)
		h.Del("Content-Length")
		w.enc = w.newEncoder()
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		// Sniff before compressing, or net/http would sniff the
		// compressed bytes.
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", http.DetectContentType(b))
		}
		w.WriteHeader(http.StatusOK)
	}
	if w.enc != nil {
		return w.enc.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

// Flush pushes buffered compressed output to the client.
func (w *compressWriter) Flush() {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if w.enc != nil {
		w.enc.Flush()
	}
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap returns the underlying ResponseWriter for http.NewResponseController.
func (w *compressWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func (w *compressWriter) shouldCompress(status int, h http.Header) bool {
	if h.Get("Content-Encoding") != "" {
		return false
	}
	if status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified {
		return false
	}
	ct := h.Get("Content-Type")
	for _, prefix := range skippedContentTypes {
		if strings.HasPrefix(ct, prefix) {
			return false
		}
	}
	if cl := h.Get("Content-Length"); cl != "" {
		if n, err := strconv.Atoi(cl); err == nil && n < minCompressSize {
			return false
		}
	}
	return true
}

func (w *compressWriter) newEncoder() encoder {
	switch w.encoding {
	case encodingGzip:
		gz := gzipPool.Get().(*gzip.Writer)
		gz.Reset(w.ResponseWriter)
		return gz
	case encodingDeflate:
		fl := flatePool.Get().(*flate.Writer)
		fl.Reset(w.ResponseWriter)
		return fl
	default:
		return brotli.NewWriterLevel(w.ResponseWriter, brotli.DefaultCompression)
	}
}

// close finishes the compressed stream and returns pooled writers.
func (w *compressWriter) close() {
	if w.enc == nil {
		return
	}
	w.enc.Close()
	switch enc := w.enc.(type) {
	case *gzip.Writer:
		gzipPool.Put(enc)
	case *flate.Writer:
		flatePool.Put(enc)
	}
	w.enc = nil
}

// negotiateEncoding picks the supported coding with the highest q-value
// from an Accept-Encoding header. Ties go to server preference. An empty
// result means the body is sent as is.
func negotiateEncoding(header string) string {
	if header == "" {
		return ""
	}

	accepted := make(map[string]float64)
	for part := range strings.SplitSeq(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		accepted[name] = parseQValue(params)
	}

	best, bestQ := "", 0.0
	for _, enc := range supportedEncodings {
		q, ok := accepted[enc]
		if !ok {
			q, ok = accepted["*"]
		}
		if ok && q > bestQ {
			best, bestQ = enc, q
		}
	}
	return best
}

// parseQValue extracts q from "q=0.5" style parameters. A missing q counts
// as 1 and an unparsable one as 0.
func parseQValue(params string) float64 {
	for param := range strings.SplitSeq(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.TrimSpace(key) != "q" {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || q < 0 {
			return 0
		}
		return min(q, 1)
	}
	return 1
}

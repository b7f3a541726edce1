package streamserver

import (
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// serveFileRange implements spec.md §4.4's byte-range semantics for the
// "stream" route: full-body 200 when no Range header, 206 Partial Content
// for a genuine sub-range, 200 when the computed range happens to cover the
// whole file, and 416 for an unsatisfiable range. Bodies are streamed in
// chunkSize chunks.
func serveFileRange(w http.ResponseWriter, r *http.Request, path string, chunkSize int) {
	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError)
		return
	}
	size := info.Size()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Connection", "close")

	rangeHeader := r.Header.Get("Range")
	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		streamChunks(w, f, size, chunkSize)
		return
	}

	start, end, ok := parseRange(rangeHeader, size)
	if !ok {
		writeError(w, http.StatusRequestedRangeNotSatisfiable)
		return
	}

	length := end - start + 1

	status := http.StatusPartialContent
	if start == 0 && end == size-1 {
		status = http.StatusOK
	} else {
		w.Header().Set("Content-Range", "bytes "+strconv.FormatInt(start, 10)+"-"+strconv.FormatInt(end, 10)+"/"+strconv.FormatInt(size, 10))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)

	if _, err := f.Seek(start, io.SeekStart); err != nil {
		return
	}
	streamChunks(w, io.LimitReader(f, length), length, chunkSize)
}

// parseRange parses a "bytes=a-b" header per spec.md §4.4:
//   - "bytes=-N" means the last N bytes.
//   - "bytes=a-" means a..size-1.
//   - "bytes=a-b" clamps end to size-1.
//
// Returns ok=false when start > end or start >= size (416 case).
func parseRange(header string, size int64) (start, end int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, prefix)
	// Only the first range is honored; multi-range requests are not
	// required by spec.md.
	spec = strings.Split(spec, ",")[0]
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}

	startStr, endStr := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

	switch {
	case startStr == "" && endStr != "":
		// bytes=-N: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	case startStr != "" && endStr == "":
		// bytes=a-: a..size-1.
		a, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			return 0, 0, false
		}
		start = a
		end = size - 1
	case startStr != "" && endStr != "":
		a, err1 := strconv.ParseInt(startStr, 10, 64)
		b, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil {
			return 0, 0, false
		}
		start = a
		end = b
	default:
		return 0, 0, false
	}

	if end > size-1 {
		end = size - 1
	}
	if start > end || start >= size || start < 0 {
		return 0, 0, false
	}

	return start, end, true
}

// streamChunks copies exactly total bytes from r to w in chunkSize pieces,
// flushing between chunks so back-pressure is observed per chunk (spec.md
// §5's "each chunk scheduled only after the previous send completes").
func streamChunks(w http.ResponseWriter, r io.Reader, total int64, chunkSize int) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, chunkSize)
	var sent int64
	for sent < total {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			sent += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

// Package ingest implements document acquisition for print jobs: inline
// HTTP body spooling, file: URI validation against an allow-list, and
// bounded http(s): URI fetch, per the O_CREAT|O_EXCL spool-allocation
// discipline and filename-safety rules of the job submission path.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
)

var (
	ErrAccessDenied  = errors.New("document access denied")
	ErrUnsupported   = errors.New("unsupported document source")
	ErrTooManyHops   = errors.New("too many redirects fetching document")
	ErrNonRegular    = errors.New("file uri does not resolve to a regular file")
	ErrBadStatusCode = errors.New("document fetch returned a non-2xx status")
)

const (
	maxRedirects  = 5
	fetchTimeout  = 30 * time.Second
	connectBudget = 30 * time.Second
)

// Store allocates and retains spooled document files under a single
// directory, one file per job, named by printer+job+format the way the
// spool allocator in §5 ("Shared resources") requires.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates (if necessary) dir and returns a Store rooted there.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		d, err := os.MkdirTemp("", "ipp-spool-")
		if err != nil {
			return nil, fmt.Errorf("ingest: create temp spool dir: %w", err)
		}
		dir = d
	} else if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ingest: create spool dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the path a job's document would be spooled at, without
// creating it.
func (st *Store) Path(printerName string, jobID int, format string) string {
	ext := extensionFor(format)
	return filepath.Join(st.dir, fmt.Sprintf("%s-%d%s", printerName, jobID, ext))
}

func extensionFor(format string) string {
	switch format {
	case "application/pdf":
		return ".pdf"
	case "application/postscript":
		return ".ps"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/pwg-raster":
		return ".ras"
	case "image/urf":
		return ".urf"
	default:
		return ".bin"
	}
}

// SpoolInline streams r into a freshly allocated file for (printerName,
// jobID, format), opened O_CREAT|O_EXCL|O_TRUNC 0600 to rule out TOCTOU
// (§5). On any I/O error the partial file is unlinked (§4.6 item 1).
func (st *Store) SpoolInline(printerName string, jobID int, format string, r io.Reader) (path string, n int64, err error) {
	path = st.uniquePath(printerName, jobID, format)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return "", 0, fmt.Errorf("ingest: allocate spool file: %w", err)
	}
	n, copyErr := io.Copy(f, r)
	syncErr := f.Sync()
	closeErr := f.Close()
	if copyErr != nil || syncErr != nil || closeErr != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("ingest: spool write failed: %w", firstNonNil(copyErr, syncErr, closeErr))
	}
	return path, n, nil
}

func firstNonNil(errs ...error) error {
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

func (st *Store) uniquePath(printerName string, jobID int, format string) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	base := st.Path(printerName, jobID, format)
	path := base
	for i := 1; fileExists(path); i++ {
		path = fmt.Sprintf("%s.%d", base, i)
	}
	return path
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Remove deletes a previously spooled file, ignoring a not-exist error.
func (st *Store) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Prune removes spooled files older than retention for which keep
// returns false (a job is no longer referencing the file).
func (st *Store) Prune(retention time.Duration, keep func(path string) bool) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(st.dir, e.Name())
		if time.Since(info.ModTime()) > retention && !keep(path) {
			os.Remove(path)
		}
	}
}

// ResolveFileURI validates a file: URI against §6's filename-safety rule
// and §4.6 item 2: the resolved path must lie under one of roots (a
// configured allow-list), contain no "/../" or "/./" segment, and name a
// regular file opened with O_NOFOLLOW.
func ResolveFileURI(rawURI string, roots []string) (*os.File, string, error) {
	u, err := url.Parse(rawURI)
	if err != nil || u.Scheme != "file" {
		return nil, "", fmt.Errorf("%w: not a file: uri", ErrUnsupported)
	}
	path := u.Path
	if strings.Contains(path, "/../") || strings.Contains(path, "/./") ||
		strings.HasPrefix(path, "../") || strings.HasSuffix(path, "/..") {
		return nil, "", fmt.Errorf("%w: path traversal segment", ErrAccessDenied)
	}

	allowed := false
	for _, root := range roots {
		root = strings.TrimSuffix(root, "/")
		if path == root || strings.HasPrefix(path, root+"/") {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, "", fmt.Errorf("%w: path not under an allow-listed directory", ErrAccessDenied)
	}

	f, err := openNoFollow(path)
	if err != nil {
		return nil, "", fmt.Errorf("ingest: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, "", err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, "", ErrNonRegular
	}
	return f, path, nil
}

func openNoFollow(path string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_NOFOLLOW, 0)
	if err != nil {
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}

// FetchHTTPDocument follows up to maxRedirects 301/302/303 redirects
// within http/https schemes and spools the final 2xx body (§4.6 item 3).
func (st *Store) FetchHTTPDocument(ctx context.Context, printerName string, jobID int, rawURI, format string) (path string, n int64, err error) {
	u, err := url.Parse(rawURI)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", 0, fmt.Errorf("%w: not an http(s) uri", ErrUnsupported)
	}

	client := &http.Client{
		Timeout: fetchTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return ErrTooManyHops
			}
			if req.Response != nil {
				switch req.Response.StatusCode {
				case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
				default:
					return http.ErrUseLastResponse
				}
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return fmt.Errorf("%w: redirect left http(s)", ErrAccessDenied)
			}
			return nil
		},
	}

	cctx, cancel := context.WithTimeout(ctx, connectBudget)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodGet, rawURI, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("%w: status %d", ErrBadStatusCode, resp.StatusCode)
	}

	return st.SpoolInline(printerName, jobID, format, resp.Body)
}

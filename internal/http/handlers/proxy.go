package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultProxyTimeout  = 30 * time.Second
	defaultProxyMaxBytes = 25 << 20
	proxyUserAgent       = "adstudio-image-proxy/1.0"
)

var (
	errProxyForbidden = errors.New("image host is not allowed")
	errProxyUpstream  = errors.New("upstream image fetch failed")
)

// ImageProxy streams result images from allowlisted hosts so browsers can
// download them from this origin.
type ImageProxy struct {
	client   *http.Client
	allowed  map[string]struct{}
	maxBytes int64
}

func NewImageProxy(allowedHosts []string, client *http.Client) *ImageProxy {
	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = struct{}{}
		}
	}
	p := &ImageProxy{allowed: allowed, maxBytes: defaultProxyMaxBytes}
	if client == nil {
		client = &http.Client{Timeout: defaultProxyTimeout}
	}
	clone := *client
	clone.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= 5 {
			return errors.New("too many redirects")
		}
		if !p.allowedURL(req.URL) {
			return errProxyForbidden
		}
		return nil
	}
	p.client = &clone
	return p
}

func (p *ImageProxy) allowedURL(u *url.URL) bool {
	if u == nil || (u.Scheme != "http" && u.Scheme != "https") || u.User != nil {
		return false
	}
	_, ok := p.allowed[strings.ToLower(u.Hostname())]
	return ok
}

// Target validates a raw proxy target.
func (p *ImageProxy) Target(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, errors.New("url must be absolute")
	}
	if !p.allowedURL(u) {
		return nil, errProxyForbidden
	}
	return u, nil
}

func (p *ImageProxy) fetch(ctx context.Context, target *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", proxyUserAgent)
	req.Header.Set("Accept", "image/*")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errProxyUpstream, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: http %d", errProxyUpstream, resp.StatusCode)
	}
	return resp, nil
}

func (a *App) ProxyImage(w http.ResponseWriter, r *http.Request) {
	if a.Proxy == nil {
		a.error(w, http.StatusNotFound, "not_found", "image proxy disabled")
		return
	}
	target, err := a.Proxy.Target(r.URL.Query().Get("url"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	resp, err := a.Proxy.fetch(r.Context(), target)
	if err != nil {
		a.Logger.Warn().Err(err).Str("host", target.Host).Msg("image proxy fetch failed")
		a.error(w, http.StatusBadGateway, "upstream_error", "error fetching image")
		return
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if resp.ContentLength >= 0 && resp.ContentLength <= a.Proxy.maxBytes {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, io.LimitReader(resp.Body, a.Proxy.maxBytes)); err != nil {
		a.Logger.Debug().Err(err).Msg("image proxy copy interrupted")
	}
}

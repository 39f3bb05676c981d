package fetcher

import (
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/rehttp"
)

// ErrPoolClosed is returned by Acquire once the pool has been closed.
var ErrPoolClosed = errors.New("fetcher: client pool closed")

const defaultUserAgent = "crawlkit/1.0 (+https://github.com/codepr/crawlkit)"

// ClientPool is the client pool contract of spec §6: a fixed-size pool of
// *http.Client, each wrapped in the teacher's retrying, jittered-backoff
// rehttp.Transport, from which the fetch stage acquires and releases a
// client per job. Cookies and redirect policy are conceptually frozen for
// the duration of a crawl (spec §5) but are re-applied to a client at
// every Acquire, so a reconfiguration between crawl runs (after
// hardPause/hardUnpause) takes effect without rebuilding the pool.
type ClientPool struct {
	mutex      sync.Mutex
	clients    chan *http.Client
	size       int
	timeout    time.Duration
	closed     bool
	userAgent  string
	jar        http.CookieJar
	noRedirect bool
	javascript bool
}

// NewClientPool creates a pool of size pre-warmed clients, each with
// timeout applied per-request.
func NewClientPool(size int, timeout time.Duration) (*ClientPool, error) {
	if size < 1 {
		return nil, errors.New("fetcher: client pool size must be >= 1")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	p := &ClientPool{
		clients:   make(chan *http.Client, size),
		size:      size,
		timeout:   timeout,
		userAgent: defaultUserAgent,
		jar:       jar,
	}
	for i := 0; i < size; i++ {
		p.clients <- p.buildClient()
	}
	return p, nil
}

func (p *ClientPool) buildClient() *http.Client {
	transport := rehttp.NewTransport(
		&http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		rehttp.RetryAll(rehttp.RetryMaxRetries(3), rehttp.RetryTemporaryErr()),
		rehttp.ExpJitterDelay(1*time.Second, 10*time.Second),
	)
	return &http.Client{Timeout: p.timeout, Transport: transport}
}

// Acquire takes a client from the pool, applying the pool's current
// cookie jar and redirect policy before handing it back. It fails only
// with ErrPoolClosed.
func (p *ClientPool) Acquire() (*http.Client, error) {
	p.mutex.Lock()
	if p.closed {
		p.mutex.Unlock()
		return nil, ErrPoolClosed
	}
	p.mutex.Unlock()

	client, ok := <-p.clients
	if !ok {
		return nil, ErrPoolClosed
	}

	p.mutex.Lock()
	client.Jar = p.jar
	if p.noRedirect {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else {
		client.CheckRedirect = nil
	}
	p.mutex.Unlock()

	return client, nil
}

// Release returns a client to the pool. It is a no-op once the pool has
// been closed.
func (p *ClientPool) Release(client *http.Client) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return
	}
	select {
	case p.clients <- client:
	default:
		// pool buffer is already full; drop the client rather than block
	}
}

// Close releases all clients and rejects subsequent Acquire calls.
func (p *ClientPool) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.clients)
}

// DisableRedirects makes every subsequently acquired client stop
// following redirects, surfacing the first redirect response instead.
func (p *ClientPool) DisableRedirects() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.noRedirect = true
}

// EnableRedirects restores the default following-redirects behavior.
func (p *ClientPool) EnableRedirects() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.noRedirect = false
}

// EnableJavaScript records that script execution is desired. Rendering
// JavaScript is explicitly out of scope (spec §1 Non-goals): this flag is
// only plumbed through the contract so callers can inspect it; no
// component in this repo renders a page as a result of it.
func (p *ClientPool) EnableJavaScript() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.javascript = true
}

// JavaScriptEnabled reports the current script-execution policy.
func (p *ClientPool) JavaScriptEnabled() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.javascript
}

// AddCookie attaches a cookie to every subsequently acquired client, by
// inserting it into the pool's shared cookie jar for domain.
func (p *ClientPool) AddCookie(name, value, domain string) error {
	return p.AddRawCookie(&http.Cookie{Name: name, Value: value, Domain: domain}, domain)
}

// AddRawCookie attaches a pre-built *http.Cookie to every subsequently
// acquired client.
func (p *ClientPool) AddRawCookie(cookie *http.Cookie, domain string) error {
	u := &url.URL{Scheme: "https", Host: domain}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.jar.SetCookies(u, []*http.Cookie{cookie})
	return nil
}

// ClearCookies replaces the pool's cookie jar with an empty one. Clients
// already acquired keep whatever jar they were handed; the new jar
// applies from the next Acquire onward.
func (p *ClientPool) ClearCookies() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.jar = jar
	return nil
}

// SetName records a User-Agent value, reported by UserAgent. The
// fetcher that draws clients from this pool sends its own configured
// User-Agent and does not read this value.
func (p *ClientPool) SetName(name string) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.userAgent = name
}

// UserAgent returns the currently configured User-Agent.
func (p *ClientPool) UserAgent() string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.userAgent
}

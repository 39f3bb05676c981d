// Package crawler implements the crawl coordinator: the concurrency
// engine that marries a network-bound fetch stage to a CPU-bound
// page-processing stage while enforcing scope, deduplication,
// backpressure, pause/resume and graceful shutdown.
package crawler

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/codepr/crawlkit/crawler/fetcher"
	"github.com/codepr/crawlkit/env"
)

const (
	// defaultMaxProcessWaiting is the backpressure threshold: the
	// coordinator pauses dispatch while linksScheduled exceeds it.
	defaultMaxProcessWaiting = 2000
	// reportEveryNVisits is how often the coordinator emits a progress
	// line, de-duplicated per visit bucket.
	reportEveryNVisits = 2000
	// pollTimeout is the fixed 5-second suspension used by every wait in
	// the system, so the stop flag is re-checked within a bounded
	// interval without an explicit wakeup mechanism.
	pollTimeout = 5 * time.Second
	// shutdownGrace is the per-pool termination grace period.
	shutdownGrace = 2 * time.Minute
	// parseWidthRatio is a design constant, not a tuning knob: the parse
	// stage is intentionally half as wide as the fetch stage.
	parseWidthRatio = 0.5

	defaultUserAgent    = "crawlkit/1.0"
	defaultFetchTimeout = 10 * time.Second
)

// State is the lifecycle state of a Crawler instance.
type State int

const (
	StateConfigured State = iota
	StateRunning
	StatePaused
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Settings holds the Crawler's full configuration surface, mutated
// through functional options in the style of the teacher's CrawlerOpt.
type Settings struct {
	BaseURL           string
	BaseURLSecure     string
	Actions           []Action
	ThreadLimit       int
	MaxProcessWaiting int
	ShortCircuitAfter int
	FetchTimeout      time.Duration
	UserAgent         string
	Logger            *log.Logger
	Clock             clock.Clock
}

// Option mutates Settings at construction time.
type Option func(*Settings)

// WithThreadLimit sets the fetch stage's worker count W (default: number
// of CPUs).
func WithThreadLimit(n int) Option { return func(s *Settings) { s.ThreadLimit = n } }

// WithMaxProcessWaiting sets the backpressure threshold (default 2000).
func WithMaxProcessWaiting(n int) Option { return func(s *Settings) { s.MaxProcessWaiting = n } }

// WithShortCircuitAfter sets the short-circuit dispatch bound; 0 disables
// it.
func WithShortCircuitAfter(n int) Option { return func(s *Settings) { s.ShortCircuitAfter = n } }

// WithFetchTimeout sets the per-request HTTP timeout.
func WithFetchTimeout(d time.Duration) Option { return func(s *Settings) { s.FetchTimeout = d } }

// WithUserAgent sets the User-Agent header sent by every pooled client.
func WithUserAgent(ua string) Option { return func(s *Settings) { s.UserAgent = ua } }

// WithLogger overrides the default stderr logger.
func WithLogger(l *log.Logger) Option { return func(s *Settings) { s.Logger = l } }

// WithClock overrides the time source used for the frontier poll, the
// coordinator's sleeps and the stage shutdown grace, primarily for
// deterministic tests (github.com/benbjohnson/clock). The fetch and
// parse completion polls always run on the real clock.
func WithClock(c clock.Clock) Option { return func(s *Settings) { s.Clock = c } }

func defaultSettings() Settings {
	return Settings{
		ThreadLimit:       runtime.NumCPU(),
		MaxProcessWaiting: defaultMaxProcessWaiting,
		FetchTimeout:      defaultFetchTimeout,
		UserAgent:         defaultUserAgent,
	}
}

// clientPoolConfig buffers client-pool-facing settings applied before a
// pool exists, so they can be replayed against a freshly (re)created
// pool on every Navigate/HardUnpause.
type clientPoolConfig struct {
	disableRedirects bool
	javascript       bool
	cookies          []*http.Cookie
	name             string
}

// Crawler is the crawl coordinator: it owns the frontier, the dedup
// sets, the four counters, and the two worker-pool stages, and exposes
// the public Control API.
type Crawler struct {
	mu       sync.Mutex // guards settings and lifecycle transitions
	settings Settings
	logger   *log.Logger
	clock    clock.Clock
	poolCfg  *clientPoolConfig

	scope     *ScopePolicy
	visited   *visitedSet
	scheduled *scheduledSet
	frontier  *frontier
	counters  *counters

	clientPool  *fetcher.ClientPool
	fetcherImpl fetcher.Fetcher
	parser      *fetcher.GoqueryParser

	fetchStage *stage[fetchResult]
	parseStage *stage[parseResult]

	state            State
	forcePause       bool
	stopFlag         bool
	discoveryEnabled bool

	consumersWG   sync.WaitGroup
	consumersStop chan struct{}
}

// New creates a Crawler for baseURL (and, optionally, its https variant
// baseURLSecure), invoking actions on every fetched page. It returns
// ErrConfig synchronously if baseURL is empty or an option is invalid;
// no crawler state is mutated in that case.
func New(baseURL, baseURLSecure string, actions []Action, opts ...Option) (*Crawler, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: base URL must not be empty", ErrConfig)
	}

	settings := defaultSettings()
	settings.BaseURL = baseURL
	settings.BaseURLSecure = baseURLSecure
	settings.Actions = actions
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.ThreadLimit < 1 {
		return nil, fmt.Errorf("%w: thread limit must be >= 1", ErrConfig)
	}
	if settings.MaxProcessWaiting < 1 {
		return nil, fmt.Errorf("%w: max process waiting must be >= 1", ErrConfig)
	}
	if settings.ShortCircuitAfter < 0 {
		return nil, fmt.Errorf("%w: short circuit after must be >= 0", ErrConfig)
	}

	logger := settings.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "crawlkit: ", log.LstdFlags)
	}
	clk := settings.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Crawler{
		settings:         settings,
		logger:           logger,
		clock:            clk,
		scope:            NewScopePolicy(baseURL, baseURLSecure),
		visited:          newVisitedSet(),
		scheduled:        newScheduledSet(),
		frontier:         newFrontier(clk),
		counters:         &counters{},
		state:            StateConfigured,
		discoveryEnabled: true,
	}, nil
}

// NewFromEnv mirrors the teacher's NewFromEnv, seeding Settings from
// environment variables before opts are applied.
func NewFromEnv(baseURL, baseURLSecure string, actions []Action, opts ...Option) (*Crawler, error) {
	envOpts := []Option{
		WithThreadLimit(env.GetEnvAsInt("CRAWLKIT_THREAD_LIMIT", runtime.NumCPU())),
		WithMaxProcessWaiting(env.GetEnvAsInt("CRAWLKIT_MAX_PROCESS_WAITING", defaultMaxProcessWaiting)),
		WithShortCircuitAfter(env.GetEnvAsInt("CRAWLKIT_SHORT_CIRCUIT_AFTER", 0)),
		WithFetchTimeout(env.GetEnvAsDuration("CRAWLKIT_FETCH_TIMEOUT", defaultFetchTimeout)),
		WithUserAgent(env.GetEnv("CRAWLKIT_USER_AGENT", defaultUserAgent)),
	}
	return New(baseURL, baseURLSecure, actions, append(envOpts, opts...)...)
}

// State returns the crawler's current lifecycle state.
func (c *Crawler) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetThreadLimit changes the fetch stage's worker count. It rejects n < 1
// with ErrConfig and triggers Reset if the crawler is currently running.
func (c *Crawler) SetThreadLimit(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: thread limit must be >= 1", ErrConfig)
	}
	c.mu.Lock()
	c.settings.ThreadLimit = n
	running := c.state == StateRunning
	c.mu.Unlock()
	if running {
		return c.Reset()
	}
	return nil
}

// GetThreadLimit returns the configured fetch worker count.
func (c *Crawler) GetThreadLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.ThreadLimit
}

// SetMaxProcessWaiting changes the backpressure threshold. It rejects
// n < 1 with ErrConfig.
func (c *Crawler) SetMaxProcessWaiting(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: max process waiting must be >= 1", ErrConfig)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.MaxProcessWaiting = n
	return nil
}

// GetMaxProcessWaiting returns the configured backpressure threshold.
func (c *Crawler) GetMaxProcessWaiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.MaxProcessWaiting
}

// SetShortCircuitAfter sets the dispatch bound after which the crawl
// stops discovering new work; 0 disables it.
func (c *Crawler) SetShortCircuitAfter(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: short circuit after must be >= 0", ErrConfig)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.ShortCircuitAfter = n
	return nil
}

// SetIncludePath seeds the frontier with additional URLs, filtering out
// anything already excluded or already scheduled.
func (c *Crawler) SetIncludePath(urls []string) {
	c.mu.Lock()
	base := c.settings.BaseURL
	c.mu.Unlock()
	for _, raw := range urls {
		u := prependBaseURLIfNeeded(raw, base)
		if c.scope.IsExcluded(u, c.visited) {
			continue
		}
		if !c.scheduled.Add(u) {
			continue
		}
		c.frontier.Put(u)
	}
}

// SetBlocked sets the blocked-pattern list; any URL containing one of
// these patterns as a substring is excluded.
func (c *Crawler) SetBlocked(patterns []string) {
	c.scope.Blocked = append([]string(nil), patterns...)
}

// GetAllowedSuffixes returns the live allowed-suffix slice. Its elements
// may be replaced in place before calling Navigate; appending to the
// returned slice does not change the crawler's allow-list.
func (c *Crawler) GetAllowedSuffixes() []string {
	return c.scope.AllowedSuffixes
}

// DisableCrawling stops discovery of new links: in-flight work finishes,
// but shouldContinueCrawling will return false once the frontier and
// both scheduled counters drain.
func (c *Crawler) DisableCrawling() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discoveryEnabled = false
}

// GetCrawlProgress renders the stable human-readable progress string.
func (c *Crawler) GetCrawlProgress() string {
	return c.counters.Progress(c.threadLimit(), c.frontier.Len())
}

func (c *Crawler) userAgent() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.UserAgent
}

func (c *Crawler) actions() []Action {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.Actions
}

func (c *Crawler) threadLimit() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.ThreadLimit
}

func (c *Crawler) fetchTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.FetchTimeout
}

func (c *Crawler) maxProcessWaiting() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(c.settings.MaxProcessWaiting)
}

func (c *Crawler) shortCircuitAfter() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(c.settings.ShortCircuitAfter)
}

func (c *Crawler) baseURLs() (string, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.BaseURL, c.settings.BaseURLSecure
}

func (c *Crawler) isDiscoveryEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.discoveryEnabled
}

func (c *Crawler) isForcePaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forcePause
}

func (c *Crawler) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopFlag
}

func (c *Crawler) ensurePoolCfg() *clientPoolConfig {
	if c.poolCfg == nil {
		c.poolCfg = &clientPoolConfig{}
	}
	return c.poolCfg
}

func (c *Crawler) applyPoolConfig(pool *fetcher.ClientPool) {
	c.mu.Lock()
	cfg := c.poolCfg
	c.mu.Unlock()
	if cfg == nil {
		return
	}
	if cfg.disableRedirects {
		pool.DisableRedirects()
	}
	if cfg.javascript {
		pool.EnableJavaScript()
	}
	if cfg.name != "" {
		pool.SetName(cfg.name)
	}
	for _, ck := range cfg.cookies {
		_ = pool.AddRawCookie(ck, ck.Domain)
	}
}

// EnableRedirects restores default redirect-following behavior.
func (c *Crawler) EnableRedirects() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensurePoolCfg().disableRedirects = false
	if c.clientPool != nil {
		c.clientPool.EnableRedirects()
	}
}

// DisableRedirects stops pooled clients from following redirects.
func (c *Crawler) DisableRedirects() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensurePoolCfg().disableRedirects = true
	if c.clientPool != nil {
		c.clientPool.DisableRedirects()
	}
}

// EnableJavaScript records the script-execution policy carried by pooled
// clients. Rendering JavaScript itself is out of scope; this flag is
// only plumbed through the external collaborator seam.
func (c *Crawler) EnableJavaScript() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensurePoolCfg().javascript = true
	if c.clientPool != nil {
		c.clientPool.EnableJavaScript()
	}
}

// AddCookie attaches a cookie to every pooled client.
func (c *Crawler) AddCookie(name, value, domain string) {
	c.AddCookieRaw(&http.Cookie{Name: name, Value: value, Domain: domain})
}

// AddCookieRaw attaches a pre-built *http.Cookie to every pooled client.
func (c *Crawler) AddCookieRaw(cookie *http.Cookie) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg := c.ensurePoolCfg()
	cfg.cookies = append(cfg.cookies, cookie)
	if c.clientPool != nil {
		_ = c.clientPool.AddRawCookie(cookie, cookie.Domain)
	}
}

// ClearCookies removes every configured cookie.
func (c *Crawler) ClearCookies() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensurePoolCfg().cookies = nil
	if c.clientPool != nil {
		_ = c.clientPool.ClearCookies()
	}
}

// SetName sets the User-Agent string sent with every fetch. The fetcher
// reads it when the pools are created (Navigate, HardUnpause); a crawl
// already running keeps its current User-Agent until then.
func (c *Crawler) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.UserAgent = name
	c.ensurePoolCfg().name = name
	if c.clientPool != nil {
		c.clientPool.SetName(name)
	}
}

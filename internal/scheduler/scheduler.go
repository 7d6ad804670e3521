package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/contextcrawl/contextcrawl/internal/assets"
	"github.com/contextcrawl/contextcrawl/internal/catalogue"
	"github.com/contextcrawl/contextcrawl/internal/changedetect"
	"github.com/contextcrawl/contextcrawl/internal/config"
	"github.com/contextcrawl/contextcrawl/internal/enhancement"
	"github.com/contextcrawl/contextcrawl/internal/extractor"
	"github.com/contextcrawl/contextcrawl/internal/fetcher"
	"github.com/contextcrawl/contextcrawl/internal/frontier"
	"github.com/contextcrawl/contextcrawl/internal/llmclient"
	"github.com/contextcrawl/contextcrawl/internal/mdconvert"
	"github.com/contextcrawl/contextcrawl/internal/metadata"
	"github.com/contextcrawl/contextcrawl/internal/normalize"
	"github.com/contextcrawl/contextcrawl/internal/robots"
	"github.com/contextcrawl/contextcrawl/internal/sanitizer"
	"github.com/contextcrawl/contextcrawl/internal/sitemap"
	"github.com/contextcrawl/contextcrawl/internal/storage"
	"github.com/contextcrawl/contextcrawl/pkg/failure"
	"github.com/contextcrawl/contextcrawl/pkg/limiter"
	"github.com/contextcrawl/contextcrawl/pkg/retry"
	"github.com/contextcrawl/contextcrawl/pkg/timeutil"
	"github.com/contextcrawl/contextcrawl/pkg/urlutil"
)

/*
 Scheduler is the sole control-plane authority of the crawl.

 Determinism and admission guarantees:
 - Scheduler is the ONLY component allowed to decide whether a URL
   may enter the crawl frontier.
 - All semantic admission checks (robots.txt, scope, depth, limits)
   MUST be completed before submitting a URL to the frontier.
 - No other component may enqueue, reject, or reorder URLs.
 - The frontier should only accept already-admitted URLs.
 - Pipeline stages may detect and classify failure, but must never decide retry, continuation, or abortion.

 The scheduler coordinates pipeline execution but does not delegate
 control-flow decisions to downstream stages.

 Metadata emission is observational only and MUST NOT influence
 scheduling, retries, or crawl termination.

 Scheduler Responsibilities:
 - Coordinate crawl lifecycle
 - Enforce global limits (pages, depth)
 - Manage graceful shutdown
 - Aggregate crawl statistics
 - Decide whether a robots outcome proceeds to the frontier.
 - The sole authority on:
	- retry
	- continue
	- abort

 ExecuteCrawling runs a fixed-size crawl worker pool; the shared frontier,
 rate limiter, and metadata sink are all safe for concurrent use by design.
*/

type Scheduler struct {
	ctx                    context.Context
	metadataSink           metadata.MetadataSink
	crawlFinalizer         metadata.CrawlFinalizer
	robot                  robots.Robot
	frontier               *frontier.Frontier
	htmlFetcher            fetcher.Fetcher
	domExtractor           extractor.Extractor
	htmlSanitizer          sanitizer.Sanitizer
	markdownConversionRule mdconvert.ConvertRule
	assetResolver          assets.Resolver
	markdownConstraint     normalize.MarkdownConstraint
	storageSink            storage.Sink
	catalogue              *catalogue.Catalogue
	resultsMu              sync.Mutex
	writeResults           []storage.WriteResult
	currentHost            string
	rateLimiter            limiter.RateLimiter
	sleeper                timeutil.Sleeper
}

// crawlWorkerPoolIdlePoll is how long an idle worker waits before re-checking
// the frontier for work another worker may have just enqueued.
const crawlWorkerPoolIdlePoll = 10 * time.Millisecond

func NewScheduler() Scheduler {
	recorder := metadata.NewRecorder("sample-single-sync-worker")
	cachedRobot := robots.NewCachedRobot(&recorder)
	frontier := frontier.NewFrontier()
	fetcher := fetcher.NewHtmlFetcher(&recorder)
	ext := extractor.NewDomExtractor(&recorder)
	sanitizer := sanitizer.NewHTMLSanitizer(&recorder)
	conversionRule := mdconvert.NewRule(&recorder)
	resolver := assets.NewLocalResolver(&recorder, &http.Client{}, "docs-crawler/1.0")
	markdownConstraint := normalize.NewMarkdownConstraint(&recorder)
	storageSink := storage.NewLocalSink(&recorder)
	rateLimiter := limiter.NewConcurrentRateLimiter()
	sleeper := timeutil.NewRealSleeper()
	return Scheduler{
		metadataSink:           &recorder,
		crawlFinalizer:         &recorder,
		robot:                  &cachedRobot,
		frontier:               &frontier,
		htmlFetcher:            &fetcher,
		domExtractor:           &ext,
		htmlSanitizer:          &sanitizer,
		markdownConversionRule: conversionRule,
		assetResolver:          &resolver,
		markdownConstraint:     markdownConstraint,
		storageSink:            &storageSink,
		rateLimiter:            rateLimiter,
		sleeper:                &sleeper,
	}
}

// NewSchedulerWithDeps creates a Scheduler with injected dependencies for testing.
// This constructor allows tests to provide mock implementations of metadata interfaces
// to verify behavior without relying on real infrastructure.
func NewSchedulerWithDeps(
	ctx context.Context,
	crawlFinalizer metadata.CrawlFinalizer,
	metadataSink metadata.MetadataSink,
	rateLimiter limiter.RateLimiter,
	fetcher fetcher.Fetcher,
	robot robots.Robot,
	domExtractor extractor.Extractor,
	sanitizer sanitizer.Sanitizer,
	rule mdconvert.ConvertRule,
	resolver assets.Resolver,
	sleeper timeutil.Sleeper,
) Scheduler {
	markdownConstraint := normalize.NewMarkdownConstraint(metadataSink)
	storageSink := storage.NewLocalSink(metadataSink)
	frontier := frontier.NewFrontier()
	return Scheduler{
		ctx:                    ctx,
		metadataSink:           metadataSink,
		crawlFinalizer:         crawlFinalizer,
		robot:                  robot,
		frontier:               &frontier,
		htmlFetcher:            fetcher,
		domExtractor:           domExtractor,
		htmlSanitizer:          sanitizer,
		markdownConversionRule: rule,
		assetResolver:          resolver,
		markdownConstraint:     markdownConstraint,
		storageSink:            &storageSink,
		rateLimiter:            rateLimiter,
		sleeper:                sleeper,
	}
}

// SubmitUrlForAdmission performs all semantic checks required for a URL
// to enter the crawl frontier.
//
// This function is the single admission choke point for the system.
// If this function returns nil, the URL is guaranteed to be admissible
// and safe to submit to the frontier.
//
// No other code path may call Frontier.Submit.
// - Only the scheduler imports frontier
// - Only the scheduler constructs CrawlAdmissionCandidate
// - Pipeline stages never see frontier types
func (s *Scheduler) SubmitUrlForAdmission(
	url url.URL,
	sourceContext frontier.SourceContext,
	depth int,
) failure.ClassifiedError {
	// Fetch robots.txt
	robotsDecision, robotsError := s.robot.Decide(url)
	// Robots infrastructure failure → scheduler-level error
	if robotsError != nil {
		return robotsError
	}

	// Reset backoff after successful robots request
	if s.rateLimiter != nil {
		s.rateLimiter.ResetBackoff(url.Host)
	}

	if robotsDecision.CrawlDelay > 0 && s.rateLimiter != nil {
		s.rateLimiter.SetCrawlDelay(url.Host, robotsDecision.CrawlDelay)
	}

	// Robots explicitly disallowed → normal, terminal outcome
	if !robotsDecision.Allowed {
		// Important:
		// - metadata already emitted by robots
		// - NO retry
		// - NO abort
		// - NO frontier submission
		// TODO: record to metadataSink that robots explcitly disallowed the URL
		return nil
	}

	// Only submit to frontier if robots allowed
	candidate := frontier.NewCrawlAdmissionCandidate(
		robotsDecision.Url,
		sourceContext,
		frontier.DiscoveryMetadata{
			Depth: depth,
		},
	)

	// Submit Allowed URL for Admission by Frontier
	s.frontier.Submit(candidate)
	return nil
}

// ExecuteCrawling drains the frontier with a fixed-size worker pool bounded
// by the crawl's configured concurrency. Ordering across URLs is not
// guaranteed once more than one worker is active; only per-URL catalogue
// transitions are linearised.
func (s *Scheduler) ExecuteCrawling(configPath string) (CrawlingExecution, error) {
	// Track crawl start time for duration calculation
	crawlStartTime := time.Now()

	// Statistics tracking. Workers in the crawl pool mutate these
	// concurrently, so both are plain atomics rather than the bare ints a
	// single-threaded loop would use.
	var totalErrors atomic.Int64
	var totalAssets atomic.Int64

	// Ensure final stats are recorded even if errors occur
	defer func() {
		crawlDuration := time.Since(crawlStartTime)
		totalPages := s.frontier.VisitedCount()
		s.crawlFinalizer.RecordFinalCrawlStats(
			totalPages,
			int(totalErrors.Load()),
			int(totalAssets.Load()),
			crawlDuration,
		)
	}()

	// 1. Prepare config File
	cfg, err := config.WithConfigFile(configPath)
	if err != nil {
		s.metadataSink.RecordError(
			time.Now(),
			"config",
			"config.WithConfigFile",
			metadata.CauseContentInvalid,
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrField, fmt.Sprintf("field: %v", "theFieldError")),
			},
		)
		return CrawlingExecution{}, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()
	if s.ctx == nil {
		s.ctx = ctx
	}

	// Validate that at least one seed URL exists
	if len(cfg.SeedURLs()) == 0 {
		err := fmt.Errorf("no seed URLs configured")
		s.metadataSink.RecordError(
			time.Now(),
			"config",
			"config validation",
			metadata.CauseContentInvalid,
			err.Error(),
			[]metadata.Attribute{},
		)
		return CrawlingExecution{}, err
	}

	// 1.0 Open the catalogue. Recovery from a killed previous run happens
	// inside Open; from here on every page decision consults and updates
	// this same handle, and Commit publishes it once the crawl finishes.
	cat, catErr := catalogue.Open(filepath.Join(cfg.OutputDir(), cfg.CatalogueDir()), s.metadataSink)
	if catErr != nil {
		return CrawlingExecution{}, catErr
	}
	s.catalogue = cat
	defer func() {
		if commitErr := s.catalogue.Commit(); commitErr != nil {
			s.metadataSink.RecordError(
				time.Now(),
				"catalogue",
				"Commit",
				metadata.CauseStorageFailure,
				commitErr.Error(),
				[]metadata.Attribute{},
			)
		}
	}()

	// 1.1 Initialize rate limiter
	s.rateLimiter.SetBaseDelay(cfg.BaseDelay())
	s.rateLimiter.SetJitter(cfg.Jitter())
	s.rateLimiter.SetRandomSeed(cfg.RandomSeed())

	// 1.2 Initialize Robots and Frontier
	s.robot.Init(cfg.UserAgent())
	s.frontier.Init(cfg)

	// 1.3 Configure DOM Extractor with extraction parameters from config
	extractParam := extractor.ExtractParam{
		BodySpecificityBias:  cfg.BodySpecificityBias(),
		LinkDensityThreshold: cfg.LinkDensityThreshold(),
		ScoreMultiplier: extractor.ContentScoreMultiplier{
			NonWhitespaceDivisor: cfg.ScoreMultiplierNonWhitespaceDivisor(),
			Paragraphs:           cfg.ScoreMultiplierParagraphs(),
			Headings:             cfg.ScoreMultiplierHeadings(),
			CodeBlocks:           cfg.ScoreMultiplierCodeBlocks(),
			ListItems:            cfg.ScoreMultiplierListItems(),
		},
		Threshold: extractor.MeaningfulThreshold{
			MinNonWhitespace:    cfg.ThresholdMinNonWhitespace(),
			MinHeadings:         cfg.ThresholdMinHeadings(),
			MinParagraphsOrCode: cfg.ThresholdMinParagraphsOrCode(),
			MaxLinkDensity:      cfg.ThresholdMaxLinkDensity(),
		},
	}
	s.domExtractor.SetExtractParam(extractParam)

	// 2. Fetch robots.txt & decide the crawling policy for this hostname based on that
	s.currentHost = cfg.SeedURLs()[0].Host
	seedScheme := cfg.SeedURLs()[0].Scheme
	err = s.SubmitUrlForAdmission(cfg.SeedURLs()[0], frontier.SourceSeed, 0)
	if err != nil {
		// Check if this is a robots error that requires backoff
		if robotsErr, ok := err.(*robots.RobotsError); ok {
			s.recordRobotsErrorAndBackoff(robotsErr, cfg.SeedURLs()[0])
		}
		return CrawlingExecution{}, err
	}

	// 2.5 Sitemap discovery. Robots admission just warmed the robots cache
	// for this host, so Sitemaps reads it rather than issuing another
	// fetch. Discovered URLs go through the same admission choke point as
	// any other URL; sitemap discovery never bypasses scope or robots.
	if cfg.SitemapEnabled() {
		s.discoverSitemapURLs(ctx, cfg, seedScheme)
	}

	// Apply rate limiting delay after successful robots check
	delay := s.rateLimiter.ResolveDelay(s.currentHost)
	s.sleeper.Sleep(delay)

	// 3-9. Drain the frontier with a fixed-size worker set bounded by
	// cfg.Concurrency(). Workers share the frontier and compete for tokens;
	// a crawl-wide cancel fires once the page budget is exhausted, aborting
	// every in-flight fetch and draining the remaining workers.
	crawlCtx, cancelCrawl := context.WithCancel(s.ctx)
	defer cancelCrawl()

	numWorkers := cfg.Concurrency()
	if numWorkers < 1 {
		numWorkers = 1
	}
	maxPages := cfg.MaxPages()

	var fatalErr atomic.Value // stores failure.ClassifiedError
	var idleWorkers atomic.Int32
	var wg sync.WaitGroup

	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-crawlCtx.Done():
					return
				default:
				}

				nextCrawlToken, ok := s.frontier.Dequeue()
				if !ok {
					// No work right now, but a sibling worker mid-pipeline
					// may still enqueue links. Only stop once every worker
					// observes an empty frontier at the same time.
					idle := idleWorkers.Add(1)
					if idle >= int32(numWorkers) {
						cancelCrawl()
						return
					}
					select {
					case <-crawlCtx.Done():
						idleWorkers.Add(-1)
						return
					case <-time.After(crawlWorkerPoolIdlePoll):
					}
					idleWorkers.Add(-1)
					continue
				}
				idleWorkers.Store(0)

				if done := s.crawlOne(crawlCtx, cfg, nextCrawlToken, seedScheme, &totalErrors, &totalAssets, maxPages, &fatalErr); done {
					cancelCrawl()
					return
				}
			}
		}()
	}
	wg.Wait()

	if cause := fatalErr.Load(); cause != nil {
		return CrawlingExecution{}, cause.(failure.ClassifiedError)
	}

	// 10. Drain the enhancement pool over whatever this run left raw, before
	// the catalogue commits. This is the batch call site over Claim; a
	// standalone `enhance` invocation uses the same Pool.RunBatch
	// concurrently without either one double-processing a page.
	if cfg.EnhancementEnabled() {
		llmClient := llmclient.NewClientFromConfig(
			cfg.LLMProvider(), cfg.LLMModel(), cfg.LLMBaseURL(), cfg.LLMAPIKeyEnv(),
			cfg.LLMFallbackOrder(), cfg.LLMAutoFallback(), s.metadataSink,
		)
		enhancement.NewPool(s.catalogue, &llmClient, s.metadataSink, cfg).RunBatch(ctx)
	}

	// Stats are recorded by defer - return successful execution result
	s.resultsMu.Lock()
	results := s.writeResults
	s.resultsMu.Unlock()
	return CrawlingExecution{
		WriteResults: results,
	}, nil
}

// crawlOne runs the fetch-through-write pipeline for a single frontier token.
// It reports done=true once the crawl-wide page budget has been reached, so
// the calling worker can stop pulling further tokens.
func (s *Scheduler) crawlOne(
	ctx context.Context,
	cfg config.Config,
	nextCrawlToken frontier.CrawlToken,
	seedScheme string,
	totalErrors *atomic.Int64,
	totalAssets *atomic.Int64,
	maxPages int,
	fatalErr *atomic.Value,
) (done bool) {
	abort := func(err failure.ClassifiedError) bool {
		fatalErr.Store(err)
		return true
	}

	// 2.5 Look up any prior catalogue record for this URL so the fetch can
	// carry conditional-request validators, and so a 304 or an unchanged
	// body hash can skip the rewrite entirely.
	pageURL := nextCrawlToken.URL().String()
	priorPage, hasPrior, catGetErr := s.catalogue.Get(pageURL)
	if catGetErr != nil {
		totalErrors.Add(1)
	}
	prior := changedetect.PriorRecord{
		Exists:        hasPrior,
		ETag:          priorPage.ETag,
		LastModified:  priorPage.LastModified,
		ContentHash:   priorPage.ContentHash,
		LastCrawled:   priorPage.LastCrawled,
		ContentStatus: string(priorPage.ContentStatus),
	}
	ifNoneMatch, ifModifiedSince := changedetect.ConditionalHeaders(prior, cfg.Update())

	// 3. Fetch Page URL
	fetchParam := fetcher.NewConditionalFetchParam(
		nextCrawlToken.URL(),
		cfg.UserAgent(),
		ifNoneMatch,
		ifModifiedSince,
	)
	fetchResult, err := s.htmlFetcher.Fetch(ctx, nextCrawlToken.Depth(), fetchParam, RetryParam(cfg))
	if err != nil {
		if err.Severity() == failure.SeverityFatal {
			return abort(err)
		}
		totalErrors.Add(1)
		return false
	}

	if fetchResult.NotModified() {
		// The prior body is still current: advance last_crawled without
		// touching content_status or rewriting the file.
		priorPage.LastCrawled = fetchResult.FetchedAt()
		if upsertErr := s.catalogue.Upsert(priorPage); upsertErr != nil {
			totalErrors.Add(1)
		}
		delay := s.rateLimiter.ResolveDelay(nextCrawlToken.URL().Host)
		s.sleeper.Sleep(delay)
		return false
	}

	// 4. Extract HTML DOM
	extractionResult, err := s.domExtractor.Extract(fetchResult.URL(), fetchResult.Body())
	if err != nil {
		if err.Severity() == failure.SeverityFatal {
			return abort(err)
		}
		totalErrors.Add(1)
		return false
	}

	// 5. Sanitize extracted HTML
	sanitizedHtml, err := s.htmlSanitizer.Sanitize(extractionResult.ContentNode)
	if err != nil {
		if err.Severity() == failure.SeverityFatal {
			return abort(err)
		}
		totalErrors.Add(1)
		return false
	}

	// 5.2 Resolve relative URLs to absolute URLs and filter by host
	discoveredURLs := sanitizedHtml.GetDiscoveredURLs()

	// 5.3 Resolve all URLs to absolute form using the seed scheme and the
	// host of the page that was just fetched, not a crawl-wide field: with
	// multiple hosts in flight concurrently a shared "current host" would
	// interleave unrelated pages' links.
	pageHost := fetchResult.URL().Host
	resolvedURLs := make([]url.URL, 0, len(discoveredURLs))
	for _, u := range discoveredURLs {
		resolved := urlutil.Resolve(u, seedScheme, pageHost)
		resolvedURLs = append(resolvedURLs, resolved)
	}

	// 5.4 Filter to only keep URLs from the page's own host
	filteredURLs := urlutil.FilterByHost(pageHost, resolvedURLs)

	// 5.5 submit all discovered links through robots checking to frontier
	for _, discoveredurl := range filteredURLs {
		submissionErr := s.SubmitUrlForAdmission(discoveredurl, frontier.SourceCrawl, nextCrawlToken.Depth()+1)
		if submissionErr != nil {
			// Check if this is a robots error that requires backoff
			if robotsErr, ok := submissionErr.(*robots.RobotsError); ok {
				s.recordRobotsErrorAndBackoff(robotsErr, discoveredurl)
			}
			// Submission errors are scheduler-level errors, count them
			totalErrors.Add(1)
			// Continue processing other URLs, don't abort the crawl
		}
	}

	// 6. HTML → Markdown Conversion
	markdownDoc, err := s.markdownConversionRule.Convert(sanitizedHtml)
	if err != nil {
		if err.Severity() == failure.SeverityFatal {
			return abort(err)
		}
		totalErrors.Add(1)
		return false
	}

	// 7. Assets Resolution
	resolveParam := assets.NewResolveParam(cfg.OutputDir(), cfg.MaxAssetSize(), cfg.HashAlgo())
	assetfulMarkdown, err := s.assetResolver.Resolve(
		ctx,
		fetchResult.URL(),
		markdownDoc,
		resolveParam,
		RetryParam(cfg),
	)
	if err != nil {
		if err.Severity() == failure.SeverityFatal {
			return abort(err)
		}
		totalErrors.Add(1)
		// Continue to process the markdown even if asset resolution had errors
	}
	// Count assets processed - use the actual count of successfully resolved local assets
	totalAssets.Add(int64(len(assetfulMarkdown.LocalAssets())))

	// 8. Markdown Normalization
	normalizeParam := normalize.NewNormalizeParam(
		cfg.AppVersion(),
		fetchResult.FetchedAt(),
		cfg.HashAlgo(),
		nextCrawlToken.Depth(),
		cfg.AllowedPathPrefix(),
	)
	normalizedMarkdown, err := s.markdownConstraint.Normalize(fetchResult.URL(), assetfulMarkdown, normalizeParam)
	if err != nil {
		if err.Severity() == failure.SeverityFatal {
			return abort(err)
		}
		totalErrors.Add(1)
		return false
	}

	// 8.5 Decide, from the hash of the markdown actually produced, whether
	// this page needs writing at all. This runs after normalization because
	// the body hash is computed over the normalized bytes, not the source
	// HTML.
	newBodyHash := normalizedMarkdown.Frontmatter().ContentHash()
	validators := changedetect.ResponseValidators{
		ETag:         fetchResult.Headers()["ETag"],
		LastModified: fetchResult.Headers()["Last-Modified"],
	}
	decision := changedetect.Evaluate(prior, validators, newBodyHash, fetchResult.FetchedAt(), 0)

	if decision.Skipped() {
		priorPage.LastCrawled = fetchResult.FetchedAt()
		if upsertErr := s.catalogue.Upsert(priorPage); upsertErr != nil {
			totalErrors.Add(1)
		}
		delay := s.rateLimiter.ResolveDelay(pageHost)
		s.sleeper.Sleep(delay)
		return false
	}

	// 9. Write Artifact
	writeResult, err := s.storageSink.Write(cfg.OutputDir(), normalizedMarkdown, cfg.HashAlgo())
	if err != nil {
		if err.Severity() == failure.SeverityFatal {
			return abort(err)
		}
		totalErrors.Add(1)
		return false
	}

	if upsertErr := s.catalogue.Upsert(catalogue.Page{
		URL:           pageURL,
		ETag:          validators.ETag,
		LastModified:  validators.LastModified,
		ContentHash:   newBodyHash,
		LastCrawled:   fetchResult.FetchedAt(),
		Status:        fetchResult.Code(),
		Title:         normalizedMarkdown.Frontmatter().Title(),
		FilePath:      writeResult.Path(),
		ContentStatus: catalogue.StatusRaw,
		Language:      priorPage.Language,
	}); upsertErr != nil {
		totalErrors.Add(1)
	}

	s.resultsMu.Lock()
	s.writeResults = append(s.writeResults, writeResult)
	written := len(s.writeResults)
	s.resultsMu.Unlock()

	// Apply rate limiting delay before this worker picks up its next token.
	delay := s.rateLimiter.ResolveDelay(pageHost)
	s.sleeper.Sleep(delay)

	if maxPages > 0 && written >= maxPages {
		return true
	}
	return false
}

// recordRobotsErrorAndBackoff records a robots error using metadataSink and
// triggers exponential backoff on the rate limiter if the error cause warrants it.
// This method handles ErrCauseHttpTooManyRequests (429) and ErrCauseHttpServerError (5xx)
// by recording the error and applying backoff to the current host.
func (s *Scheduler) recordRobotsErrorAndBackoff(robotsErr *robots.RobotsError, targetURL url.URL) {
	// Only record and backoff for specific HTTP error causes
	if robotsErr.Cause == robots.ErrCauseHttpTooManyRequests ||
		robotsErr.Cause == robots.ErrCauseHttpServerError {
		s.metadataSink.RecordError(
			time.Now(),
			"scheduler",
			"SubmitUrlForAdmission",
			metadata.CauseNetworkFailure,
			robotsErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, targetURL.String()),
				metadata.NewAttr(metadata.AttrHost, targetURL.Host),
				metadata.NewAttr(metadata.AttrPath, targetURL.Path),
			},
		)
		if s.rateLimiter != nil {
			s.rateLimiter.Backoff(targetURL.Host)
		}
	}
}

// discoverSitemapURLs fetches every sitemap declared (or defaulted) for the
// seed host and admits each entry through the same choke point as ordinary
// discovered links. Fetch, parse, and individual admission failures are
// non-fatal: sitemap discovery only supplements link-based crawling.
func (s *Scheduler) discoverSitemapURLs(ctx context.Context, cfg config.Config, seedScheme string) {
	discoverer := sitemap.NewDiscoverer(&http.Client{}, cfg.UserAgent(), s.metadataSink, s.sleeper)
	roots := s.robot.Sitemaps(s.currentHost)
	entries := discoverer.Discover(ctx, seedScheme, s.currentHost, roots, RetryParam(cfg))

	for _, entry := range entries {
		parsed, parseErr := url.Parse(entry.URL)
		if parseErr != nil || parsed.Host == "" {
			s.metadataSink.RecordError(time.Now(), "sitemap", "discoverSitemapURLs", metadata.CauseContentInvalid,
				fmt.Sprintf("unparsable sitemap entry: %v", parseErr),
				[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, entry.URL)})
			continue
		}

		if upsertErr := s.catalogue.UpsertSitemapURL(catalogue.SitemapURL{
			URL:                   entry.URL,
			Priority:              entry.Priority,
			LastMod:               entry.LastMod,
			ChangeFreq:            entry.ChangeFreq,
			DiscoveredFromSitemap: entry.FromIndex,
		}); upsertErr != nil {
			s.metadataSink.RecordError(time.Now(), "sitemap", "UpsertSitemapURL", metadata.CauseStorageFailure,
				upsertErr.Error(), []metadata.Attribute{metadata.NewAttr(metadata.AttrURL, entry.URL)})
		}

		if submitErr := s.SubmitUrlForAdmission(*parsed, frontier.SourceSitemap, 0); submitErr != nil {
			if robotsErr, ok := submitErr.(*robots.RobotsError); ok {
				s.recordRobotsErrorAndBackoff(robotsErr, *parsed)
			}
			continue
		}
		if markErr := s.catalogue.MarkSitemapURLProcessed(entry.URL); markErr != nil {
			s.metadataSink.RecordError(time.Now(), "sitemap", "MarkSitemapURLProcessed", metadata.CauseStorageFailure,
				markErr.Error(), []metadata.Attribute{metadata.NewAttr(metadata.AttrURL, entry.URL)})
		}
	}
}

func RetryParam(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(
			cfg.BackoffInitialDuration(),
			cfg.BackoffMultiplier(),
			cfg.BackoffMaxDuration(),
		),
	)
}

// ---------------------------------------------------------------------------
// Test Helper Methods
// These methods are exported to enable testing of SubmitUrlForAdmission()
// and other scheduler internals. They are not part of the public API.
// ---------------------------------------------------------------------------

// InitWith initializes the dependencies with the given data.
// This is a test helper method.
func (s *Scheduler) InitWith(userAgent string, baseDelay time.Duration, jitter time.Duration, randomSeed int64) {
	s.robot.Init(userAgent)
	s.rateLimiter.SetBaseDelay(baseDelay)
	s.rateLimiter.SetJitter(jitter)
	s.rateLimiter.SetRandomSeed(randomSeed)
}

// SetCurrentHost sets the current host.
// This is a test helper method to simulate the host context.
func (s *Scheduler) SetCurrentHost(host string) {
	s.currentHost = host
	// s.rateLimiter.RegisterHost(host)
}

// FrontierVisitedCount returns the number of URLs in the frontier's visited set.
// This is a test helper method to verify frontier state.
func (s *Scheduler) FrontierVisitedCount() int {
	if s.frontier == nil {
		return 0
	}
	return s.frontier.VisitedCount()
}

// DequeueFromFrontier dequeues a token from the frontier.
// This is a test helper method to verify frontier contents.
func (s *Scheduler) DequeueFromFrontier() (frontier.CrawlToken, bool) {
	if s.frontier == nil {
		return frontier.CrawlToken{}, false
	}
	return s.frontier.Dequeue()
}

// SetConvertRule sets the markdown conversion rule for testing.
// This is a test helper method to inject mock conversion rules.
func (s *Scheduler) SetConvertRule(rule mdconvert.ConvertRule) {
	s.markdownConversionRule = rule
}

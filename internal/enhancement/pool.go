package enhancement

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/contextcrawl/contextcrawl/internal/catalogue"
	"github.com/contextcrawl/contextcrawl/internal/config"
	"github.com/contextcrawl/contextcrawl/internal/llmclient"
	"github.com/contextcrawl/contextcrawl/internal/metadata"
	"github.com/contextcrawl/contextcrawl/pkg/fileutil"
)

/*
Pool is the enhancement pool: a supervisor that periodically claims raw
pages from the Catalogue and a bounded set of workers that annotate them.

Duplication safety: the only way a page leaves content_status=raw is
Claim, an atomic catalogue transaction. Run (the continuous supervisor)
and RunBatch (a one-shot drain, used as a post-crawl pass) both go through
tick, which calls Claim exactly once per round. Whether the caller is the
long-lived pool or a batch invocation running concurrently with it, at
most one of them ever holds a given URL in processing at a time.
*/
type Pool struct {
	catalogue      *catalogue.Catalogue
	llm            *llmclient.Client
	metadataSink   metadata.MetadataSink
	maxPending     int
	batchSize      int
	checkInterval  time.Duration
	minBlockChars  int
	stuckThreshold time.Duration
	model          string

	mu       sync.Mutex
	inFlight map[string]struct{}
	wg       sync.WaitGroup
}

func NewPool(cat *catalogue.Catalogue, llm *llmclient.Client, metadataSink metadata.MetadataSink, cfg config.Config) *Pool {
	return &Pool{
		catalogue:      cat,
		llm:            llm,
		metadataSink:   metadataSink,
		maxPending:     cfg.EnhancementMaxPending(),
		batchSize:      cfg.EnhancementBatchSize(),
		checkInterval:  cfg.EnhancementCheckInterval(),
		minBlockChars:  cfg.EnhancementMinBlockChars(),
		stuckThreshold: cfg.EnhancementStuckThreshold(),
		model:          cfg.LLMModel(),
		inFlight:       make(map[string]struct{}),
	}
}

// Run is the continuous supervisor loop: resetStuck, claim, dispatch,
// sleep, repeat, until ctx is cancelled. It joins every in-flight worker
// before returning, so a caller that cancels ctx observes a fully quiesced
// pool on return.
func (p *Pool) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		default:
		}
		p.tick(ctx)
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		case <-time.After(p.checkInterval):
		}
	}
}

// RunBatch drains every currently-raw page once and returns; it never
// sleeps between rounds and stops as soon as a claim comes back empty.
// This is the call site a post-crawl enhancement pass uses, distinct from
// but safe to run alongside Run per the duplication-safety argument above.
func (p *Pool) RunBatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return
		default:
		}
		claimed := p.tick(ctx)
		p.wg.Wait()
		if claimed == 0 {
			return
		}
	}
}

// tick runs one supervisor round and returns how many pages it claimed.
func (p *Pool) tick(ctx context.Context) int {
	if n, err := p.catalogue.ResetStuck(p.stuckThreshold); err == nil && n > 0 {
		p.metadataSink.RecordError(time.Now(), "enhancement", "ResetStuck",
			metadata.CauseUnknown, fmt.Sprintf("reset %d stuck pages to raw", n), nil)
	}

	p.mu.Lock()
	capacity := p.maxPending - len(p.inFlight)
	p.mu.Unlock()
	if capacity <= 0 {
		return 0
	}

	limit := p.batchSize
	if limit > capacity {
		limit = capacity
	}
	if limit <= 0 {
		return 0
	}

	workerID := uuid.NewString()
	claimed, err := p.catalogue.Claim(limit, workerID)
	if err != nil {
		p.metadataSink.RecordError(time.Now(), "enhancement", "Claim",
			metadata.CauseStorageFailure, err.Error(), nil)
		return 0
	}

	for _, page := range claimed {
		p.dispatch(ctx, page)
	}
	return len(claimed)
}

func (p *Pool) dispatch(ctx context.Context, page catalogue.Page) {
	p.mu.Lock()
	p.inFlight[page.URL] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.inFlight, page.URL)
			p.mu.Unlock()
		}()
		p.process(ctx, page)
	}()
}

// process is the worker task: read, strip front-matter, split into blocks,
// call the LLM on the eligible ones, splice the reply back in, and rewrite
// the file atomically. Every exit path ends in exactly one MarkContexted
// or MarkFailed call.
func (p *Pool) process(ctx context.Context, page catalogue.Page) {
	raw, readErr := os.ReadFile(page.FilePath)
	if readErr != nil {
		p.fail(page.URL, &EnhancementError{Message: readErr.Error(), Retryable: true, Cause: ErrCauseFileReadFailure, URL: page.URL})
		return
	}

	frontmatter, body, hasFrontmatter := StripFrontmatter(raw)
	blocks := SplitBlocks(body)
	eligible := EligibleIndices(blocks, p.minBlockChars)

	if len(eligible) == 0 {
		p.succeed(page.URL)
		return
	}

	prompt := BuildPrompt(page.Title, page.URL, blocks, eligible)
	reply, llmErr := p.llm.GenerateWithFallback(ctx, prompt, llmclient.NewGenerateOptions(p.model, 0, 0, 60*time.Second))
	if llmErr != nil {
		p.fail(page.URL, &EnhancementError{Message: llmErr.Error(), Retryable: llmErr.IsRetryable(), Cause: ErrCauseLLMFailure, URL: page.URL})
		return
	}

	annotations := ParseAnnotations(reply, len(eligible))
	spliced := SpliceAnnotations(blocks, eligible, annotations)
	newBody := JoinBlocks(spliced)

	final := newBody
	if hasFrontmatter {
		final = ReattachFrontmatter(frontmatter, newBody)
	}

	if err := fileutil.WriteFileAtomic(page.FilePath, final, 0644); err != nil {
		p.fail(page.URL, &EnhancementError{Message: err.Error(), Retryable: err.IsRetryable(), Cause: ErrCauseFileWriteFailure, URL: page.URL})
		return
	}

	p.metadataSink.RecordArtifact(metadata.ArtifactMarkdown, page.FilePath,
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, page.URL)})
	p.succeed(page.URL)
}

func (p *Pool) succeed(url string) {
	if err := p.catalogue.MarkContexted(url); err != nil {
		p.metadataSink.RecordError(time.Now(), "enhancement", "MarkContexted",
			metadata.CauseStorageFailure, err.Error(), []metadata.Attribute{metadata.NewAttr(metadata.AttrURL, url)})
	}
}

func (p *Pool) fail(url string, cause *EnhancementError) {
	p.metadataSink.RecordError(time.Now(), "enhancement", "process",
		mapEnhancementErrorToMetadataCause(cause.Cause), cause.Error(),
		[]metadata.Attribute{metadata.NewAttr(metadata.AttrURL, url)})
	if err := p.catalogue.MarkFailed(url, cause.Error()); err != nil {
		p.metadataSink.RecordError(time.Now(), "enhancement", "MarkFailed",
			metadata.CauseStorageFailure, err.Error(), []metadata.Attribute{metadata.NewAttr(metadata.AttrURL, url)})
	}
}

func mapEnhancementErrorToMetadataCause(cause EnhancementErrorCause) metadata.ErrorCause {
	switch cause {
	case ErrCauseFileReadFailure, ErrCauseFileWriteFailure, ErrCauseCatalogueFailure:
		return metadata.CauseStorageFailure
	case ErrCauseLLMFailure:
		return metadata.CauseNetworkFailure
	default:
		return metadata.CauseUnknown
	}
}

package mediastore

import (
	"context"
	"sync"
	"time"

	"github.com/keyxmakerx/atlas/internal/entity"
	"github.com/keyxmakerx/atlas/internal/mediaapi"
)

// DefaultSearchDebounce is the quiet period before a search is issued.
const DefaultSearchDebounce = 500 * time.Millisecond

// SearchFunc queries the global catalog.
type SearchFunc func(ctx context.Context, params mediaapi.SearchParams) ([]mediaapi.File, error)

// Searcher finds catalog files that are not yet attached to one entity.
// Rapid Query calls are debounced: only the last query of a burst is sent,
// and a response that arrives after a newer query was issued is dropped.
type Searcher struct {
	search   SearchFunc
	exclude  entity.Ref
	delay    time.Duration
	log      *DiagnosticLog
	onResult func([]mediaapi.File, error)

	mu     sync.Mutex
	timer  *time.Timer
	seq    uint64
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSearcher creates a Searcher excluding files attached to exclude.
// onResult receives every delivered result on the searching goroutine.
func NewSearcher(search SearchFunc, exclude entity.Ref, delay time.Duration, log *DiagnosticLog, onResult func([]mediaapi.File, error)) *Searcher {
	if delay <= 0 {
		delay = DefaultSearchDebounce
	}
	if log == nil {
		log = NewDiagnosticLog(0, nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Searcher{
		search:   search,
		exclude:  exclude,
		delay:    delay,
		log:      log,
		onResult: onResult,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Query schedules a search for text and fileType ("" for any). It replaces
// any query still waiting out the debounce.
func (s *Searcher) Query(text string, fileType mediaapi.FileType, limit int) {
	params := mediaapi.SearchParams{
		Search:            text,
		FileType:          fileType,
		ExcludeEntityType: string(s.exclude.Type),
		ExcludeEntityID:   s.exclude.ID,
		Limit:             limit,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	seq := s.seq
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.wg.Add(1)
	s.timer = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		s.run(seq, params)
	})
}

func (s *Searcher) run(seq uint64, params mediaapi.SearchParams) {
	if !s.current(seq) {
		return
	}
	files, err := s.search(s.ctx, params)
	if !s.current(seq) {
		return
	}
	if err == nil && files == nil {
		files = []mediaapi.File{}
	}
	s.log.Record(s.exclude.String(), "search", err, "%q: %d results", params.Search, len(files))
	if s.onResult != nil {
		s.onResult(files, err)
	}
}

func (s *Searcher) current(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && seq == s.seq
}

// Flush waits until the pending query, if any, has been delivered.
func (s *Searcher) Flush() {
	s.wg.Wait()
}

// Close cancels pending and in-flight searches and waits for them to stop.
// No result is delivered after Close returns.
func (s *Searcher) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil && s.timer.Stop() {
		s.wg.Done()
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

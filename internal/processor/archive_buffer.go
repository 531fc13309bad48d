package processor

import (
	"context"
	"sync"
	"time"

	"croesus/internal/clock"
	"croesus/internal/model"

	"github.com/rs/zerolog/log"
)

const (
	DEFAULT_ARCHIVE_FLUSH_INTERVAL = 30 * time.Second
	DEFAULT_ARCHIVE_BUFFER_SIZE    = 100
)

// GameArchiver stores finished games; the mongo game database implements it
type GameArchiver interface {
	ArchiveGames(ctx context.Context, games []model.GameDocument) (int64, error)
}

// ArchiveBuffer batches finished games so a startup replay does not cost a
// database round trip per game
type ArchiveBuffer struct {
	games      []model.GameDocument
	archiver   GameArchiver
	bufferSize int
	bufferChan chan model.GameDocument
	ctx        context.Context
	mu         sync.Mutex
	done       chan struct{}
	stopped    chan struct{}
	closeOnce  sync.Once
}

func NewArchiveBuffer(ctx context.Context, archiver GameArchiver, clk clock.Clock, size int) *ArchiveBuffer {
	if size <= 0 {
		size = DEFAULT_ARCHIVE_BUFFER_SIZE
	}
	buffer := &ArchiveBuffer{
		games:      make([]model.GameDocument, 0, size),
		archiver:   archiver,
		bufferSize: size,
		bufferChan: make(chan model.GameDocument, size*2),
		ctx:        ctx,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}

	go buffer.processGames(clk.NewTicker(DEFAULT_ARCHIVE_FLUSH_INTERVAL))

	return buffer
}

// Add queues a game for archiving
func (b *ArchiveBuffer) Add(doc model.GameDocument) {
	select {
	case b.bufferChan <- doc:
	case <-b.done:
		log.Warn().Str("name", doc.Name).Msg("Archive buffer closed, dropping game")
	case <-b.ctx.Done():
	}
}

// Close flushes pending games and waits for the flush to finish
func (b *ArchiveBuffer) Close() {
	b.closeOnce.Do(func() { close(b.done) })
	<-b.stopped
}

func (b *ArchiveBuffer) processGames(ticker *clock.Ticker) {
	defer close(b.stopped)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			b.drain()
			b.flush(context.Background())
			return
		case <-b.done:
			b.drain()
			b.flush(b.ctx)
			return
		case doc := <-b.bufferChan:
			b.mu.Lock()
			b.games = append(b.games, doc)
			full := len(b.games) >= b.bufferSize
			b.mu.Unlock()
			if full {
				b.flush(b.ctx)
			}
		case <-ticker.C:
			b.flush(b.ctx)
		}
	}
}

// drain moves queued games into the buffer without blocking
func (b *ArchiveBuffer) drain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		select {
		case doc := <-b.bufferChan:
			b.games = append(b.games, doc)
		default:
			return
		}
	}
}

func (b *ArchiveBuffer) flush(ctx context.Context) {
	b.mu.Lock()
	if len(b.games) == 0 {
		b.mu.Unlock()
		return
	}
	batch := make([]model.GameDocument, len(b.games))
	copy(batch, b.games)
	b.games = b.games[:0]
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	inserted, err := b.archiver.ArchiveGames(ctx, batch)
	if err != nil {
		log.Error().Err(err).Int("games", len(batch)).Msg("Failed to archive games")
		return
	}

	log.Debug().
		Int("games", len(batch)).
		Int64("inserted", inserted).
		Msg("Archived games")
}

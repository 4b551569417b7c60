package posting

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"postline-bot/internal/database"
)

// claimLimit bounds how many due posts one tick takes on.
const claimLimit = 16

// Dispatcher publishes a single claimed post.
type Dispatcher interface {
	Dispatch(ctx context.Context, postID primitive.ObjectID) error
}

// Housekeeper runs the maintenance sweep.
type Housekeeper interface {
	Run(ctx context.Context, now time.Time)
}

// Worker polls for due posts and dispatches them across a bounded pool. The
// housekeeping sweep runs at the start of every tick, so expired drafts and
// stale schedules are cleared before anything is claimed.
type Worker struct {
	posts        database.PostRepository
	dispatcher   Dispatcher
	housekeeping Housekeeper
	interval     time.Duration
	poolSize     int
}

func NewWorker(posts database.PostRepository, dispatcher Dispatcher, housekeeping Housekeeper,
	interval time.Duration, poolSize int) *Worker {
	if poolSize < 1 {
		poolSize = 1
	}
	return &Worker{
		posts:        posts,
		dispatcher:   dispatcher,
		housekeeping: housekeeping,
		interval:     interval,
		poolSize:     poolSize,
	}
}

// Run blocks until the context is cancelled. The first tick fires
// immediately.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("[Worker] Publish loop started (every %v, pool %d)", w.interval, w.poolSize)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Worker] Publish loop stopped: %v", ctx.Err())
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	now := time.Now()
	if w.housekeeping != nil {
		w.housekeeping.Run(ctx, now)
	}

	claimed, err := w.posts.ClaimDuePosts(ctx, now, claimLimit)
	if err != nil {
		log.Printf("[Worker] Claiming due posts failed: %v", err)
		sentry.CaptureException(err)
		return
	}
	if len(claimed) == 0 {
		return
	}
	log.Printf("[Worker] Claimed %d due post(s)", len(claimed))

	sem := make(chan struct{}, w.poolSize)
	var wg sync.WaitGroup
	for _, post := range claimed {
		wg.Add(1)
		sem <- struct{}{}
		go func(postID primitive.ObjectID) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := w.dispatcher.Dispatch(ctx, postID); err != nil {
				log.Printf("[Worker] Dispatch failed for post %s: %v", postID.Hex(), err)
			}
		}(post.ID)
	}
	wg.Wait()
}

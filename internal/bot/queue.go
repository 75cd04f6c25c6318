package bot

import (
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// userQueues runs jobs for the same key one after another in arrival order.
// Different keys run concurrently.
type userQueues struct {
	mu     sync.Mutex
	queues map[int64][]func()
	wg     sync.WaitGroup
}

func newUserQueues() *userQueues {
	return &userQueues{queues: make(map[int64][]func())}
}

func (q *userQueues) dispatch(key int64, job func()) {
	q.mu.Lock()
	pending, running := q.queues[key]
	q.queues[key] = append(pending, job)
	q.mu.Unlock()
	if running {
		return
	}
	q.wg.Add(1)
	go q.drain(key)
}

func (q *userQueues) drain(key int64) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		pending := q.queues[key]
		if len(pending) == 0 {
			delete(q.queues, key)
			q.mu.Unlock()
			return
		}
		job := pending[0]
		q.queues[key] = pending[1:]
		q.mu.Unlock()
		job()
	}
}

// wait blocks until every dispatched job has finished.
func (q *userQueues) wait() {
	q.wg.Wait()
}

func updateKey(u *tgbotapi.Update) int64 {
	switch {
	case u.CallbackQuery != nil && u.CallbackQuery.From != nil:
		return u.CallbackQuery.From.ID
	case u.Message != nil && u.Message.From != nil:
		return u.Message.From.ID
	case u.Message != nil && u.Message.Chat != nil:
		return u.Message.Chat.ID
	}
	return 0
}

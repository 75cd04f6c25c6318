package autochat

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"aris/internal/model"
)

// PromptSource picks what the assistant talks about unprompted.
type PromptSource interface {
	NextPrompt(ctx context.Context, history []model.HistoryMessage) (string, error)
}

var defaultTopics = []string{
	"интересный факт о космосе",
	"новости науки, которые могли бы удивить",
	"чем можно заняться вечером",
	"любимые книги и почему их стоит перечитать",
	"как прошёл день",
	"маленькие радости, которые легко не заметить",
	"что нового можно выучить за 10 минут",
	"музыка под настроение",
	"планы на выходные",
	"природа Байкала",
}

// TopicPrompter either follows up on the last thing the user said or picks a
// built-in topic.
type TopicPrompter struct {
	mu     sync.Mutex
	rng    *rand.Rand
	topics []string
}

func NewTopicPrompter(seed int64, topics []string) *TopicPrompter {
	if len(topics) == 0 {
		topics = defaultTopics
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &TopicPrompter{rng: rand.New(rand.NewSource(seed)), topics: topics}
}

func (p *TopicPrompter) NextPrompt(_ context.Context, history []model.HistoryMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastUser string
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == model.RoleUser {
			lastUser = history[i].Content
			break
		}
	}
	if lastUser != "" && p.rng.Intn(2) == 0 {
		return fmt.Sprintf("Продолжи разговор сам, без вопроса собеседника. Недавно он писал: %q. Скажи что-нибудь по этой теме.", lastUser), nil
	}
	topic := p.topics[p.rng.Intn(len(p.topics))]
	return fmt.Sprintf("Начни разговор первым на тему: %s. Одно-два предложения.", topic), nil
}

package chat

import (
	"context"
	"strings"
)

// FactSource supplies a short fact about a topic.
type FactSource interface {
	Fact(ctx context.Context, topic string) (string, bool)
}

// KeywordFacts matches words of the topic against a fixed table.
type KeywordFacts map[string]string

// DefaultFacts is a small built-in table used when no external source is configured.
var DefaultFacts = KeywordFacts{
	"кот":     "Кошки спят до 16 часов в сутки.",
	"кошка":   "Кошки спят до 16 часов в сутки.",
	"собака":  "Нос собаки различает запахи в десятки тысяч раз лучше человеческого.",
	"космос":  "В космосе абсолютная тишина, звуку не в чем распространяться.",
	"луна":    "Луна удаляется от Земли примерно на 3,8 см в год.",
	"кофе":    "Кофе был открыт в Эфиопии, по легенде благодаря козам.",
	"море":    "Более 80% мирового океана не исследовано.",
	"музыка":  "Музыка активирует те же области мозга, что и вкусная еда.",
	"книга":   "Самая старая печатная книга с датой, Алмазная сутра, издана в 868 году.",
	"байкал":  "Байкал хранит около 20% мировых запасов пресной поверхностной воды.",
	"cat":     "Cats sleep up to 16 hours a day.",
	"dog":     "A dog's nose is tens of thousands of times more sensitive than ours.",
	"space":   "Space is completely silent because sound has nothing to travel through.",
	"coffee":  "Legend says coffee was discovered in Ethiopia thanks to goats.",
	"music":   "Music activates the same reward areas of the brain as good food.",
}

func (k KeywordFacts) Fact(_ context.Context, topic string) (string, bool) {
	for _, w := range strings.FieldsFunc(strings.ToLower(topic), func(r rune) bool {
		return !(r == '-' || r >= 'a' && r <= 'z' || r >= 'а' && r <= 'я' || r == 'ё')
	}) {
		if fact, ok := k[w]; ok {
			return fact, true
		}
	}
	return "", false
}

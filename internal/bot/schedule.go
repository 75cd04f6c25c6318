package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"aris/internal/model"

	"github.com/rs/zerolog"
)

const scheduleUsage = "Пожалуйста, укажите расписание в формате:\n" +
	"/schedule add 9:00 Встреча\n" +
	"/schedule list\n" +
	"/schedule remove 1\n" +
	"/schedule clear\n\n" +
	"Или списком:\n" +
	"/schedule\n" +
	"9:00 Встреча\n" +
	"13:30 Обед\n" +
	"15:00 Созвон"

// handleSchedule dispatches /schedule subcommands. Arguments that start with
// a time are read as one "HH:MM task" entry per line.
func (b *Bot) handleSchedule(ctx context.Context, chatID, userID int64, args string) {
	sub, rest := splitFirst(args)
	switch strings.ToLower(sub) {
	case "":
		if len(b.settings.ListSchedule(ctx, userID)) == 0 {
			b.reply(ctx, chatID, scheduleUsage)
			return
		}
		b.renderSchedule(ctx, chatID, userID, 0, 0)
	case "list":
		b.renderSchedule(ctx, chatID, userID, 0, 0)
	case "add":
		b.addScheduleLines(ctx, chatID, userID, rest)
	case "remove", "del", "delete":
		n, err := strconv.Atoi(strings.TrimSpace(rest))
		if err != nil || n < 1 {
			b.reply(ctx, chatID, "Использование: /schedule remove N")
			return
		}
		b.removeScheduleEntry(ctx, chatID, userID, n-1)
	case "clear":
		if err := b.settings.ClearSchedule(ctx, userID); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Msg("schedule clear failed")
			b.reply(ctx, chatID, "Не удалось очистить расписание")
			return
		}
		b.reply(ctx, chatID, "🗑 Расписание очищено")
	default:
		if _, _, err := model.ParseScheduleTime(sub); err == nil {
			b.addScheduleLines(ctx, chatID, userID, args)
			return
		}
		b.reply(ctx, chatID, scheduleUsage)
	}
}

// addScheduleLines adds every valid line and reports the broken ones.
func (b *Bot) addScheduleLines(ctx context.Context, chatID, userID int64, text string) {
	entries, bad := parseScheduleLines(text)
	for _, line := range bad {
		b.reply(ctx, chatID, fmt.Sprintf("Ошибка в строке: %s", line))
	}
	if len(entries) == 0 {
		b.reply(ctx, chatID, "Не удалось создать расписание. Проверьте формат.")
		return
	}
	for _, e := range entries {
		if _, err := b.settings.AddScheduleEntry(ctx, userID, e); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("entry", e.String()).Msg("schedule entry not added")
			b.reply(ctx, chatID, fmt.Sprintf("Не удалось добавить: %s", e))
		}
	}
	b.renderSchedule(ctx, chatID, userID, 0, 0)
}

func (b *Bot) removeScheduleEntry(ctx context.Context, chatID, userID int64, index int) {
	removed, err := b.settings.RemoveScheduleEntry(ctx, userID, index)
	if err != nil {
		b.reply(ctx, chatID, fmt.Sprintf("Нет задачи с номером %d", index+1))
		return
	}
	b.reply(ctx, chatID, fmt.Sprintf("Удалено: %s", removed))
}

func (b *Bot) handleScheduleDeleteCallback(ctx context.Context, chatID, userID int64, messageID int, data string) {
	index, err := strconv.Atoi(data)
	if err != nil {
		return
	}
	if _, err := b.settings.RemoveScheduleEntry(ctx, userID, index); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int("index", index).Msg("schedule entry not removed")
	}
	b.renderSchedule(ctx, chatID, userID, index/schedulePageSize, messageID)
}

func (b *Bot) handleSchedulePageCallback(ctx context.Context, chatID, userID int64, messageID int, data string) {
	page, err := strconv.Atoi(data)
	if err != nil {
		return
	}
	b.renderSchedule(ctx, chatID, userID, page, messageID)
}

// parseScheduleLines reads "HH:MM task" lines, skipping blanks.
func parseScheduleLines(text string) (entries []model.ScheduleEntry, bad []string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		hhmm, task := splitFirst(line)
		e, err := model.NewScheduleEntry(hhmm, task)
		if err != nil {
			bad = append(bad, line)
			continue
		}
		entries = append(entries, e)
	}
	return entries, bad
}

func splitFirst(s string) (head, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t\n")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

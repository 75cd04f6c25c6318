package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const schedulePageSize = 8

// renderSchedule shows one page of the time-sorted schedule with a delete
// button per entry. A non-zero messageID edits that message in place.
func (b *Bot) renderSchedule(ctx context.Context, chatID, userID int64, page, messageID int) {
	entries := b.settings.ListSchedule(ctx, userID)

	pages := (len(entries) + schedulePageSize - 1) / schedulePageSize
	if pages == 0 {
		pages = 1
	}
	if page >= pages {
		page = pages - 1
	}
	if page < 0 {
		page = 0
	}
	startIdx := page * schedulePageSize
	endIdx := startIdx + schedulePageSize
	if endIdx > len(entries) {
		endIdx = len(entries)
	}

	var message strings.Builder
	message.WriteString("📅 Ваше расписание на сегодня:\n\n")
	if len(entries) == 0 {
		message.WriteString("Расписание пусто.\n")
	}
	if pages > 1 {
		message.WriteString(fmt.Sprintf("Страница %d из %d\n\n", page+1, pages))
	}

	var keyboard [][]tgbotapi.InlineKeyboardButton
	for i, e := range entries[startIdx:endIdx] {
		n := startIdx + i
		message.WriteString(fmt.Sprintf("%d. %s\n", n+1, e))
		keyboard = append(keyboard, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🗑 %d. %s", n+1, e.Time()), fmt.Sprintf("sched:del:%d", n)),
		))
	}

	var navButtons []tgbotapi.InlineKeyboardButton
	if page > 0 {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("⬅️ Назад", fmt.Sprintf("sched:page:%d", page-1)))
	}
	if endIdx < len(entries) {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("Вперед ➡️", fmt.Sprintf("sched:page:%d", page+1)))
	}
	if len(navButtons) > 0 {
		keyboard = append(keyboard, navButtons)
	}

	text := message.String()
	if messageID != 0 {
		if len(keyboard) == 0 {
			b.send(ctx, tgbotapi.NewEditMessageText(chatID, messageID, text))
			return
		}
		b.send(ctx, tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, tgbotapi.NewInlineKeyboardMarkup(keyboard...)))
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if len(keyboard) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	}
	b.send(ctx, msg)
}

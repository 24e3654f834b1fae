package telegram

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"calcium-cam/api/internal/apiclient"
	"calcium-cam/api/internal/mealstore"
)

// Router drives the capture → questions → submit → result flow for each
// chat. It is the on-device half of the pipeline: all estimation happens
// behind the API client.
type Router struct {
	Bot    *tgbotapi.BotAPI
	API    *apiclient.Client
	Meals  *mealstore.Store
	Locale string
}

func (r *Router) HandleUpdate(upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		r.handleCallback(*upd.CallbackQuery)
		return
	}
	if upd.Message == nil {
		return
	}
	if upd.Message.IsCommand() {
		r.HandleCommand(upd)
		return
	}
	if len(upd.Message.Photo) > 0 {
		r.acceptPhoto(*upd.Message)
		return
	}
}

func (r *Router) HandleCommand(upd tgbotapi.Update) {
	cid := upd.Message.Chat.ID
	switch upd.Message.Command() {
	case "start":
		r.send(cid, "Send a photo of your meal and answer three quick questions — I'll estimate its calcium.\nCommands: /health, /log, /today")
	case "health":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		st, err := r.API.Status(ctx)
		if err != nil {
			r.send(cid, "Can't reach the server: "+err.Error())
			return
		}
		r.send(cid, "Server: "+st.Message)
	case "log":
		r.showLog(cid)
	case "today":
		r.showToday(cid)
	default:
		r.send(cid, "Unknown command")
	}
}

func (r *Router) showLog(cid int64) {
	if r.Meals == nil {
		r.send(cid, "Meal log is not available.")
		return
	}
	entries, err := r.Meals.Recent(cid, 5)
	if err != nil {
		r.send(cid, "Couldn't read the meal log: "+err.Error())
		return
	}
	if len(entries) == 0 {
		r.send(cid, "No meals logged yet.")
		return
	}
	text := "Recent meals:\n"
	for _, e := range entries {
		text += fmt.Sprintf("• %s — %d mg (%s)\n",
			e.CapturedAt.Format("Jan 2 15:04"), e.CalciumMg, e.ConfidenceLabel)
	}
	r.send(cid, text)
}

func (r *Router) showToday(cid int64) {
	if r.Meals == nil {
		r.send(cid, "Meal log is not available.")
		return
	}
	total, err := r.Meals.TodayTotal(cid, time.Now())
	if err != nil {
		r.send(cid, "Couldn't read the meal log: "+err.Error())
		return
	}
	r.send(cid, fmt.Sprintf("Calcium logged today: %d mg", total))
}

func (r *Router) send(chatID int64, text string) {
	_, _ = r.Bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	_, _ = r.Bot.Send(msg)
}

func (r *Router) clearKeyboard(chatID int64, msgID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, msgID, tgbotapi.InlineKeyboardMarkup{
		InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{},
	})
	_, _ = r.Bot.Send(edit)
}

package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (r *Router) handleCallback(cb tgbotapi.CallbackQuery) {
	cid := cb.Message.Chat.ID
	data := cb.Data
	_, _ = r.Bot.Request(tgbotapi.NewCallback(cb.ID, "")) // ack

	switch {
	case strings.HasPrefix(data, "q_portion:"):
		r.onPortion(cid, cb.Message.MessageID, strings.TrimPrefix(data, "q_portion:"))
	case strings.HasPrefix(data, "q_dairy:"):
		r.onDairy(cid, cb.Message.MessageID, strings.TrimPrefix(data, "q_dairy:"))
	case strings.HasPrefix(data, "q_tofu:"):
		r.onTofu(cid, cb.Message.MessageID, strings.TrimPrefix(data, "q_tofu:"))
	case data == "submit_retry":
		r.onRetry(cid, cb.Message.MessageID)
	case data == "submit_cancel":
		r.onCancel(cid, cb.Message.MessageID)
	}
}

func (r *Router) onPortion(cid int64, msgID int, v string) {
	s := getSession(cid)
	s.mu.Lock()
	if s.Stage != stageAwaitPortion {
		s.mu.Unlock()
		return
	}
	s.Answers.PortionSize = v
	s.Stage = stageAwaitDairy
	s.mu.Unlock()

	r.clearKeyboard(cid, msgID)
	r.sendWithKeyboard(cid, "Does the meal contain dairy?", triKeyboard("q_dairy"))
}

func (r *Router) onDairy(cid int64, msgID int, v string) {
	s := getSession(cid)
	s.mu.Lock()
	if s.Stage != stageAwaitDairy {
		s.mu.Unlock()
		return
	}
	s.Answers.ContainsDairy = v
	s.Stage = stageAwaitTofu
	s.mu.Unlock()

	r.clearKeyboard(cid, msgID)
	r.sendWithKeyboard(cid, "Any tofu, or small fish eaten with bones?", triKeyboard("q_tofu"))
}

func (r *Router) onTofu(cid int64, msgID int, v string) {
	s := getSession(cid)
	s.mu.Lock()
	if s.Stage != stageAwaitTofu {
		s.mu.Unlock()
		return
	}
	s.Answers.ContainsTofuOrSmallFishBones = v
	s.Stage = stageIdle
	s.mu.Unlock()

	r.clearKeyboard(cid, msgID)
	r.startSubmit(cid)
}

func (r *Router) onRetry(cid int64, msgID int) {
	r.clearKeyboard(cid, msgID)

	s := getSession(cid)
	s.mu.Lock()
	if s.Submitting {
		s.mu.Unlock()
		return
	}
	req := s.Pending
	photo := s.Photo
	answers := s.Answers
	if req == nil && (photo == nil || len(photo.Bytes) == 0) {
		s.mu.Unlock()
		r.send(cid, "Nothing to retry — please send a new photo.")
		return
	}
	s.Submitting = true
	s.mu.Unlock()

	r.send(cid, "Retrying…")
	if req != nil {
		go r.submitPrepared(cid, req)
		return
	}
	// The failure happened before the request was built (liveness check);
	// rerun the whole sequence.
	go r.runSubmit(cid, photo, answers)
}

// onCancel returns to the idle state without touching the meal log or any
// other local state.
func (r *Router) onCancel(cid int64, msgID int) {
	r.clearKeyboard(cid, msgID)

	s := getSession(cid)
	s.mu.Lock()
	s.Pending = nil
	s.Photo = nil
	s.Stage = stageIdle
	s.Submitting = false
	s.mu.Unlock()

	r.send(cid, "Cancelled. Send another photo whenever you're ready.")
}

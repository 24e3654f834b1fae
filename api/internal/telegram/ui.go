package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"calcium-cam/api/internal/apiclient"
)

func portionKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Small", "q_portion:small"),
		tgbotapi.NewInlineKeyboardButtonData("Medium", "q_portion:medium"),
		tgbotapi.NewInlineKeyboardButtonData("Large", "q_portion:large"),
	))
}

func triKeyboard(prefix string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Yes", prefix+":yes"),
		tgbotapi.NewInlineKeyboardButtonData("No", prefix+":no"),
		tgbotapi.NewInlineKeyboardButtonData("Not sure", prefix+":not_sure"),
	))
}

func retryCancelKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Retry", "submit_retry"),
		tgbotapi.NewInlineKeyboardButtonData("Cancel", "submit_cancel"),
	))
}

func formatResult(res apiclient.EstimateResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Estimated calcium: %d mg\n", res.CalciumMg)
	fmt.Fprintf(&b, "Confidence: %s (%.2f)\n", res.ConfidenceLabel, res.Confidence)
	if res.ExplanationShort != "" {
		b.WriteString(res.ExplanationShort)
		b.WriteString("\n")
	}
	for _, w := range res.Warnings {
		b.WriteString("⚠ " + w + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatFailure gives a short human message plus the trace id for support;
// never a stack trace.
func formatFailure(err *apiclient.Error) string {
	var msg string
	switch err.Kind {
	case apiclient.KindNetwork:
		msg = "Can't reach the server."
	case apiclient.KindTimeout:
		msg = "The server took too long to answer."
	case apiclient.KindCancelled:
		msg = "The request was cancelled."
	case apiclient.KindHTTP:
		msg = "The server rejected the request (" + err.Code + ")."
	default:
		msg = "Something went wrong."
	}
	if err.TraceID != "" {
		msg += "\nTrace id: " + err.TraceID
	}
	return msg
}

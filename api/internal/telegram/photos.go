package telegram

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"calcium-cam/api/internal/estimate"
)

// acceptPhoto downloads the capture and starts the question flow. A new
// photo always overwrites the previous capture context.
func (r *Router) acceptPhoto(msg tgbotapi.Message) {
	cid := msg.Chat.ID
	s := getSession(cid)

	s.mu.Lock()
	if s.Submitting {
		s.mu.Unlock()
		r.send(cid, "Hold on — the previous photo is still being estimated.")
		return
	}
	s.mu.Unlock()

	captureID := uuid.NewString()

	// Watchdog: surfaces a stuck transfer in the logs without cancelling it.
	wd := time.AfterFunc(captureWatchdog, func() {
		log.Printf("capture appears stuck chat=%d capture=%s", cid, captureID)
	})
	defer wd.Stop()

	ph := msg.Photo[len(msg.Photo)-1]
	file, err := r.Bot.GetFile(tgbotapi.FileConfig{FileID: ph.FileID})
	if err != nil {
		r.send(cid, "Couldn't fetch the photo: "+err.Error())
		return
	}
	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", r.Bot.Token, file.FilePath)
	imgBytes, err := download(url)
	if err != nil {
		r.send(cid, "Couldn't download the photo: "+err.Error())
		return
	}
	if len(imgBytes) > maxImageBytes {
		r.send(cid, "That photo is too large, please try a smaller one.")
		return
	}

	s.mu.Lock()
	s.Photo = &capture{
		Bytes:     imgBytes,
		CaptureID: captureID,
		Source:    "camera",
		TakenAt:   time.Now(),
	}
	s.Answers = estimate.Answers{}
	s.Pending = nil
	s.Stage = stageAwaitPortion
	s.mu.Unlock()

	r.sendWithKeyboard(cid, "Got the photo. How big is the portion?", portionKeyboard())
}

func download(url string) ([]byte, error) {
	resp, err := httpClient().Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	return io.ReadAll(resp.Body)
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

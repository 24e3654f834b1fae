package telegram

import (
	"sync"
	"time"

	"calcium-cam/api/internal/apiclient"
	"calcium-cam/api/internal/estimate"
)

const (
	// captureWatchdog only logs when a photo transfer looks stuck; it never
	// kills the transfer.
	captureWatchdog = 20 * time.Second

	maxImageBytes = 8 << 20
)

const (
	stageIdle         = ""
	stageAwaitPortion = "await_portion"
	stageAwaitDairy   = "await_dairy"
	stageAwaitTofu    = "await_tofu"
)

// capture is the current photo context. Overwritten on each new photo;
// downstream stages read it, nothing persists it.
type capture struct {
	Bytes     []byte
	CaptureID string
	Source    string // "camera" | "debug-remote"
	TakenAt   time.Time
}

// session is one chat's in-memory flow state.
type session struct {
	mu sync.Mutex

	Stage      string
	Photo      *capture
	Answers    estimate.Answers
	Submitting bool

	// pending holds the last request while the retry/cancel choice is open.
	Pending *apiclient.EstimateRequest
}

var sessions sync.Map // chatID -> *session

func getSession(chatID int64) *session {
	v, _ := sessions.LoadOrStore(chatID, &session{})
	return v.(*session)
}

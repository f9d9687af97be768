package transcribe

import "fmt"

// Error is a structured Deepgram response indicating a non-2xx HTTP reply.
type Error struct {
	Code      string `json:"err_code"`
	Message   string `json:"err_msg"`
	RequestID string `json:"request_id"`
	Status    int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("deepgram: status=%d", e.Status)
	}
	return fmt.Sprintf("deepgram: status=%d %s: %s", e.Status, e.Code, e.Message)
}

package handler

import (
	"net/http"

	"camwatch/internal/logger"
	"camwatch/internal/service/alert"
)

// IncomingSMSHandler is the webhook for operator replies. It always answers 200 with an
// empty body so the SMS provider never retries.
func IncomingSMSHandler(replies *alert.ReplyService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer w.WriteHeader(http.StatusOK)

		if err := r.ParseForm(); err != nil {
			logger.Error("Error parsing incoming message: %v", err)
			return
		}

		from := r.PostForm.Get("From")
		body := r.PostForm.Get("Body")
		logger.Info("Received message from %s: %q (ID: %s)", from, body, r.PostForm.Get("MessageSid"))

		outcome := replies.Handle(r.Context(), from, body)
		logger.Info("Incoming message handled: %s", outcome)
	}
}

package api

import (
	"log"
	"net/http"

	"terminal-core/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamTopics are forwarded to every websocket client.
var streamTopics = []events.Topic{
	events.TopicCycleCompleted,
	events.TopicPassFailed,
	events.TopicPassSkipped,
	events.TopicOrderSubmitted,
	events.TopicWorkerStarted,
	events.TopicWorkerStopped,
}

type wsEnvelope struct {
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	merged := make(chan wsEnvelope, 100)
	done := make(chan struct{})
	defer close(done)

	for _, topic := range streamTopics {
		stream, unsub := s.Bus.Subscribe(topic, 100)
		defer unsub()
		go func(topic events.Topic, stream <-chan any) {
			for msg := range stream {
				select {
				case merged <- wsEnvelope{Topic: string(topic), Data: msg}:
				case <-done:
					return
				default: // drop when the client is slow
				}
			}
		}(topic, stream)
	}

	for env := range merged {
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}

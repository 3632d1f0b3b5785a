package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mendlyio/LaCabrade-V4/internal/domain/integration"
	"github.com/mendlyio/LaCabrade-V4/internal/infrastructure/logger"
)

const progressBufferSize = 64

// progressStream relays the progress events of a run to an SSE response.
// Each event is one "data:" frame holding the event JSON.
type progressStream struct {
	c         *gin.Context
	events    chan integration.ProgressEvent
	heartbeat time.Duration
	logger    *zap.Logger
}

func newProgressStream(c *gin.Context, heartbeat time.Duration) *progressStream {
	return &progressStream{
		c:         c,
		events:    make(chan integration.ProgressEvent, progressBufferSize),
		heartbeat: heartbeat,
		logger:    logger.GetGinLogger(c),
	}
}

// emit is the ProgressFunc handed to the run
func (s *progressStream) emit(event integration.ProgressEvent) {
	s.events <- event
}

// close is called by the run once it emitted its last event
func (s *progressStream) close() {
	close(s.events)
}

// serve writes events until the run closes the stream or the client leaves.
// When the client leaves, the remaining events are drained so the run never
// blocks.
func (s *progressStream) serve() {
	w := s.c.Writer
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// A batched run outlasts the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	gone := s.c.Request.Context().Done()

	for {
		select {
		case event, ok := <-s.events:
			if !ok {
				return
			}
			if err := writeProgressEvent(w, event); err != nil {
				s.logger.Warn("failed to write progress event", zap.Error(err))
				s.drain()
				return
			}
			w.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				s.drain()
				return
			}
			w.Flush()
		case <-gone:
			s.logger.Info("progress stream client disconnected, run continues")
			s.drain()
			return
		}
	}
}

func (s *progressStream) drain() {
	go func() {
		for range s.events {
		}
	}()
}

func writeProgressEvent(w io.Writer, event integration.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event.EventType(), err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

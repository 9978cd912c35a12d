package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/parleylabs/parley/internal/orchestrator"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 30 * time.Second

// streamEvents serves one negotiation's lifecycle as Server-Sent Events.
// A client disconnect stops delivery but never aborts the in-flight run.
func streamEvents(w http.ResponseWriter, r *http.Request, run *Run) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	events, cancel := run.Subscribe()
	defer cancel()

	log.Printf("[server] client subscribed to negotiation %s", run.ID)

	writeSSE(w, map[string]any{"type": "connected", "negotiation_id": run.ID})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			log.Printf("[server] client disconnected from negotiation %s", run.ID)
			return

		case event := <-events:
			writeEvent(w, event)
			flusher.Flush()

		case <-run.Done():
			// Drain whatever the fan-out buffered before termination.
			for {
				select {
				case event := <-events:
					writeEvent(w, event)
				default:
					terminal := map[string]any{"type": "done"}
					if err := run.Err(); err != nil {
						terminal["error"] = err.Error()
					}
					writeSSE(w, terminal)
					flusher.Flush()
					return
				}
			}

		case <-heartbeat.C:
			writeSSE(w, map[string]any{"type": "heartbeat", "timestamp": time.Now().Format(time.RFC3339)})
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event orchestrator.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[server] encoding event: %v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func writeSSE(w http.ResponseWriter, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[server] encoding payload: %v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

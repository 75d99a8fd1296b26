// Command segmentviewer shows published translation segments and session
// outcomes live in a browser. It consumes both event topics from Kafka and
// forwards every message to websocket clients.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"wav-translate/internal/config"
	"wav-translate/internal/observability/logging"
)

func main() {
	addr := flag.String("addr", ":8081", "HTTP listen address")
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicSegments := flag.String("topic-segments", "speech.translation.segment", "Segment event topic")
	topicSessions := flag.String("topic-sessions", "speech.translation.session", "Session event topic")
	lookback := flag.Duration("lookback", time.Hour, "Replay messages newer than this on start")
	flag.Parse()

	logger := logging.Init(logging.DefaultConfig()).With().Str("component", "segmentviewer").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := newHub(logger)
	go hub.run(ctx)

	brokerList := config.ParseList(*brokers)
	for _, topic := range []string{*topicSegments, *topicSessions} {
		go consume(ctx, logger, hub, brokerList, topic, *lookback)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	})
	r.Get("/ws", wsHandler(hub))
	r.Get("/status", statusHandler(hub))

	srv := &http.Server{Addr: *addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("addr", *addr).
		Strs("brokers", brokerList).
		Str("segments", *topicSegments).
		Str("sessions", *topicSessions).
		Msg("Segment viewer starting")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server error")
	}
}

// consume reads partition 0 of topic without a consumer group.
func consume(ctx context.Context, logger zerolog.Logger, hub *Hub, brokers []string, topic string, lookback time.Duration) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	log := logger.With().Str("topic", topic).Logger()
	if err := reader.SetOffsetAt(ctx, time.Now().Add(-lookback)); err != nil {
		log.Warn().Err(err).Msg("Failed to seek, reading from the start")
	}
	log.Info().Dur("lookback", lookback).Msg("Consuming")

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("Kafka read failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		ev, err := decodeEvent(msg)
		if err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("Skipping malformed event")
			continue
		}
		log.Debug().Str("eventType", ev.EventType).Str("key", ev.Key).Msg("Received event")

		select {
		case hub.broadcast <- ev:
		case <-ctx.Done():
			return
		}
	}
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Translation segments</title>
<style>
body { font-family: sans-serif; margin: 2em; background: #fafafa; }
.seg { background: #fff; border-left: 4px solid #4a7; padding: .5em 1em; margin: .5em 0; }
.seg .src { color: #666; }
.session { background: #eef; border-left: 4px solid #47a; padding: .5em 1em; margin: .5em 0; }
.session.canceled, .session.timed_out { border-color: #c44; }
#status { color: #999; }
</style>
</head>
<body>
<h1>Translation segments</h1>
<p id="status">connecting...</p>
<div id="events"></div>
<script>
const events = document.getElementById("events");
const status = document.getElementById("status");

function add(cls, html) {
  const div = document.createElement("div");
  div.className = cls;
  div.innerHTML = html;
  events.prepend(div);
}

function esc(s) {
  const d = document.createElement("div");
  d.textContent = s || "";
  return d.innerHTML;
}

function connect() {
  const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onopen = () => { status.textContent = "connected"; };
  ws.onclose = () => { status.textContent = "disconnected, retrying..."; setTimeout(connect, 2000); };
  ws.onmessage = (m) => {
    const ev = JSON.parse(m.data);
    const p = ev.payload || {};
    if (ev.eventType === "segment" || ev.eventType === "speech.translation.segment") {
      add("seg", "<div>#" + p.sequence + " [" + esc(p.targetLanguage) + "] " + esc(p.translatedText) + "</div>" +
        "<div class=\"src\">" + esc(p.sourceLanguage) + ": " + esc(p.sourceText) + "</div>");
    } else {
      add("session " + esc(p.status), "<b>session " + esc(p.sessionId) + "</b> " + esc(p.status) +
        " (" + p.segments + " segments, " + p.durationMs + " ms) " + esc(p.errorDetails));
    }
  };
}
connect();
</script>
</body>
</html>
`

// Package graphqlsrv exposes the GraphQL surface. Queries and mutations
// resolve against the HTTP/JSON surface over loopback so both surfaces share
// one implementation of the business rules; live updates are bridged from the
// event bus over websocket and SSE.
package graphqlsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/sirupsen/logrus"

	"rockboxd/internal/config"
	"rockboxd/internal/events"
)

// subscriptionTopics are the bus topics the live endpoints expose.
var subscriptionTopics = []events.Topic{events.Player, events.Mixer, events.Playlist, events.Device}

type Server struct {
	config     *config.Config
	bus        *events.Bus
	schema     graphql.Schema
	logger     *logrus.Logger
	httpServer *http.Server
}

func New(cfg *config.Config, bus *events.Bus, logger *logrus.Logger) (*Server, error) {
	lb := newLoopback(cfg.Server.HTTPPort)
	schema, err := buildSchema(lb)
	if err != nil {
		return nil, fmt.Errorf("building graphql schema: %w", err)
	}
	return &Server{
		config: cfg,
		bus:    bus,
		schema: schema,
		logger: logger,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/graphql", handler.New(&handler.Config{
		Schema:   &s.schema,
		Pretty:   true,
		GraphiQL: true,
	}))
	mux.HandleFunc("GET /subscriptions", s.handleWebsocket)
	mux.HandleFunc("GET /events", s.handleSSE)
	return mux
}

func (s *Server) Start() error {
	addr := s.config.GraphQLAddress()
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
	}

	s.logger.WithField("address", addr).Info("GraphQL server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("graphql server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// busEvent is the wire form of one bus event on both live endpoints.
type busEvent struct {
	Topic   string      `json:"topic"`
	At      time.Time   `json:"at"`
	Lagged  bool        `json:"lagged,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// requestedTopics parses the comma separated topics query parameter, falling
// back to every exposed topic.
func requestedTopics(r *http.Request) []events.Topic {
	raw := r.URL.Query().Get("topics")
	if raw == "" {
		return subscriptionTopics
	}
	var topics []events.Topic
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		topics = append(topics, events.Topic(name))
	}
	if len(topics) == 0 {
		return subscriptionTopics
	}
	return topics
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.WithError(err).Debug("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closed")

	sub := s.bus.Subscribe(requestedTopics(r)...)
	defer sub.Close()

	ctx := r.Context()
	// Reads only serve to detect the client going away.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				sub.Close()
				return
			}
		}
	}()

	for ev := range sub.C {
		msg := busEvent{
			Topic:   string(ev.Topic),
			At:      ev.At,
			Lagged:  ev.Lagged,
			Payload: ev.Payload,
		}
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := wsjson.Write(writeCtx, conn, msg)
		cancel()
		if err != nil {
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	flusher.Flush()

	sub := s.bus.Subscribe(requestedTopics(r)...)
	defer sub.Close()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			msg := busEvent{
				Topic:   string(ev.Topic),
				At:      ev.At,
				Lagged:  ev.Lagged,
				Payload: ev.Payload,
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, data)
			flusher.Flush()
		}
	}
}

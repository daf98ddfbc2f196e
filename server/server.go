package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/tmc/langchaingo/chains"
	"github.com/xhad/ragpage/internal/types"
)

// Message types exchanged over /ws.
const (
	TypeQuestion = "question"
	TypeIngest   = "ingest"
	TypeResponse = "response"
	TypeStream   = "stream"
	TypeStatus   = "status"
	TypeError    = "error"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Message struct {
	Type    string      `json:"type"`
	Content string      `json:"content"`
	Data    interface{} `json:"data,omitempty"`
}

type WSServer struct {
	asker types.Asker

	// Streaming sends "stream" chunks before the final response.
	Streaming bool
	// CallOptions are passed to every question.
	CallOptions []chains.ChainCallOption
}

func NewWSServer(asker types.Asker) *WSServer {
	return &WSServer{asker: asker}
}

// Handler serves /ws and /health.
func (s *WSServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// conn serialises writes, gorilla connections allow one concurrent writer.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func (s *WSServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &conn{ws: ws}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Error reading message: %v", err)
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.send(Message{Type: TypeError, Content: fmt.Sprintf("invalid message: %v", err)})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, c, msg)
		}()
	}
}

func (s *WSServer) handleMessage(ctx context.Context, c *conn, msg Message) {
	switch msg.Type {
	case TypeQuestion, "":
		s.answer(ctx, c, msg.Content)
	case TypeIngest:
		n, err := s.asker.Ingest(ctx)
		if err != nil {
			c.send(Message{Type: TypeError, Content: fmt.Sprintf("ingest failed: %v", err)})
			return
		}
		c.send(Message{Type: TypeStatus, Content: fmt.Sprintf("Stored %d chunks", n), Data: n})
	default:
		c.send(Message{Type: TypeError, Content: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

func (s *WSServer) answer(ctx context.Context, c *conn, question string) {
	question = strings.TrimSpace(question)

	opts := append([]chains.ChainCallOption{}, s.CallOptions...)
	if s.Streaming {
		opts = append(opts, chains.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			c.send(Message{Type: TypeStream, Content: string(chunk)})
			return nil
		}))
	}

	resp, err := s.asker.Ask(ctx, question, opts...)
	if err != nil {
		c.send(Message{Type: TypeError, Content: fmt.Sprintf("Error: %v", err)})
		return
	}
	c.send(Message{Type: TypeResponse, Content: resp.Answer, Data: resp})
}

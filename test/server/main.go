package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

type frame struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9280", "Listen address")
	notifyEvery := flag.Duration("notify", 5*time.Second, "Status notification period (0=off)")
	flag.Parse()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Printf("accept failed: %v", err)
			return
		}
		fmt.Println("peer connected: ", r.RemoteAddr)
		serve(r.Context(), conn, *notifyEvery)
	})

	log.Printf("listening on ws://%s/ws", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func serve(ctx context.Context, conn *websocket.Conn, notifyEvery time.Duration) {
	defer conn.Close(websocket.StatusNormalClosure, "")

	if notifyEvery > 0 {
		go func() {
			ticker := time.NewTicker(notifyEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-ticker.C:
					push := frame{
						JSONRPC: "2.0",
						Method:  "status",
						Params:  json.RawMessage(fmt.Sprintf(`{"uptime":%q}`, now.Format(time.RFC3339))),
					}
					payload, _ := json.Marshal(push)
					if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
						return
					}
				}
			}
		}()
	}

	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			fmt.Println("peer gone: ", err)
			return
		}
		fmt.Println("recv: ", string(payload))

		if bytes.Equal(bytes.TrimSpace(payload), []byte("ping")) {
			if err := conn.Write(ctx, websocket.MessageText, []byte("pong")); err != nil {
				return
			}
			continue
		}

		var req frame
		if err := json.Unmarshal(payload, &req); err != nil || req.ID == "" {
			continue
		}
		reply := frame{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result: map[string]any{
				"method": req.Method,
				"echo":   req.Params,
			},
		}
		out, _ := json.Marshal(reply)
		if err := conn.Write(ctx, websocket.MessageText, out); err != nil {
			return
		}
	}
}

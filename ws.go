package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024 * 1024
)

// Setup an upgrader with our configuration.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// A standard message sent or received from the client.
type WSMessage struct {
	MessageType string      `json:"type"`
	Message     interface{} `json:"msg"`
}

// A general websocket response.
type WSGeneralResp struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// The websocket hub used to push ingestion events to the UI. Connected
//  dashboards learn of newly processed report emails without polling.
type WS struct {
	clients    map[*WSClient]bool
	message    chan []byte
	register   chan *WSClient
	unregister chan *WSClient
}

// Setup the websocket hub and start its channel loop.
func WSInit() *WS {
	ws := &WS{
		message:    make(chan []byte),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		clients:    make(map[*WSClient]bool),
	}
	go ws.run()
	return ws
}

// Main websocket channel handler.
func (ws *WS) run() {
	for {
		select {
		case client := <-ws.register:
			ws.clients[client] = true
		case client := <-ws.unregister:
			if _, ok := ws.clients[client]; ok {
				delete(ws.clients, client)
				close(client.send)
			}
		case message := <-ws.message:
			for client := range ws.clients {
				// Send message to client if possible.
				select {
				case client.send <- message:
				default:
					// If we were unable to send, the client is no longer connected.
					close(client.send)
					delete(ws.clients, client)
				}
			}
		}
	}
}

// Send an event to all subscribed clients.
func (ws *WS) sendMessage(msgType string, msg interface{}) error {
	message, err := json.Marshal(WSMessage{MessageType: msgType, Message: msg})
	if err != nil {
		return err
	}
	ws.message <- message
	return nil
}

// Send an event to a single client.
func (ws *WS) sendMessageToClient(msgType string, msg interface{}, c *WSClient) error {
	message, err := json.Marshal(WSMessage{MessageType: msgType, Message: msg})
	if err != nil {
		return err
	}
	c.send <- message
	return nil
}

// Websocket client structure.
type WSClient struct {
	ws   *WS
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte
}

// Read messages from the client.
func (c *WSClient) reader() {
	// When we are unable to read from the client, we need to unregister and close the connection.
	defer func() {
		c.ws.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	// The client must send us keep alive messages, otherwise the connection is dead.
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
		c.ws.handleMessage(message, c)
	}
}

// Watches the message send channel for new messages to send to the client.
func (c *WSClient) writer() {
	// We need to ping the client every now and then.
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			// If the message received is closing the channel, we need to send a close message.
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Handle a message from a client. The UI only ever asks for the current
//  email count, everything else flows server to client.
func (ws *WS) handleMessage(message []byte, c *WSClient) {
	wsMessage := WSMessage{}
	err := json.Unmarshal(message, &wsMessage)
	if err != nil {
		resp := WSGeneralResp{
			Status: APIERR,
			Error:  fmt.Sprintf("Unable to decode request %v", err),
		}
		ws.sendMessageToClient("error", resp, c)
		return
	}

	switch wsMessage.MessageType {
	case "getEmailCount":
		ws.sendMessageToClient("updateEmailCount", app.emailCount, c)
	default:
		resp := WSGeneralResp{
			Status: APIERR,
			Error:  fmt.Sprintf("No handler of type %v", wsMessage.MessageType),
		}
		ws.sendMessageToClient("error", resp, c)
	}
}

// New connection handler for websockets that creates a client and upgrades the connection.
func (ws *WS) Handler(w http.ResponseWriter, r *http.Request) {
	log.Println("New websocket connection from ", r.RemoteAddr)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}

	// Create a new client and register it.
	client := &WSClient{ws: ws, conn: conn, send: make(chan []byte, 256)}
	ws.register <- client

	// Start the reader and writer.
	go client.reader()
	go client.writer()
}

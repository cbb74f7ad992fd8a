// Package main provides a simple CLI client for talking to a running mesh:
// it submits questions over HTTP and listens for pushed results on the
// WebSocket endpoint.
package main

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SubmitRequest is the body of POST /submit.
type SubmitRequest struct {
	Request string `json:"request"`
	User    string `json:"user,omitempty"`
}

// SubmitResponse is the answer for one submitted question.
type SubmitResponse struct {
	User        string `json:"user"`
	Response    string `json:"response,omitempty"`
	ImageData   string `json:"image_data,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Client talks to the mesh's HTTP and WebSocket boundary.
type Client struct {
	baseURL  string
	userAddr string
	http     *http.Client
	ws       *websocket.Conn
	done     chan struct{}
}

// NewClient connects the WebSocket subscription for the user address.
func NewClient(baseURL, userAddr string) (*Client, error) {
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws?user=" + userAddr
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		baseURL:  baseURL,
		userAddr: userAddr,
		http:     &http.Client{Timeout: 5 * time.Minute},
		ws:       conn,
		done:     make(chan struct{}),
	}, nil
}

// Close shuts the client down.
func (c *Client) Close() error {
	close(c.done)
	return c.ws.Close()
}

// Submit posts one question and returns the final answer.
func (c *Client) Submit(question string) (*SubmitResponse, error) {
	body, err := json.Marshal(SubmitRequest{Request: question, User: c.userAddr})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+"/submit", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var out SubmitResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, out.Error)
	}
	return &out, nil
}

// SetToken registers Canvas credentials with the mesh and triggers
// indexing of the course materials.
func (c *Client) SetToken(token, school string) error {
	body, _ := json.Marshal(map[string]string{"token": token, "school": school})
	resp, err := c.http.Post(c.baseURL+"/api/canvas-token", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("canvas-token: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}
	fmt.Printf("Indexing done: %s\n", string(data))
	return nil
}

// ReadPushed prints results pushed over the WebSocket.
func (c *Client) ReadPushed() {
	for {
		select {
		case <-c.done:
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
				return
			}

			var msg map[string]interface{}
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if text, ok := msg["text"].(string); ok {
				fmt.Printf("\n[pushed] %s\n> ", text)
			}
		}
	}
}

func saveImage(data, path string) error {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return os.WriteFile(path, decoded, 0o644)
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "mesh base URL")
	token := flag.String("token", "", "Canvas API token (registers before chatting)")
	school := flag.String("school", "", "Canvas school domain")
	flag.Parse()

	log.SetFlags(log.Ltime)

	userAddr := "user://cli-" + uuid.New().String()[:8]
	fmt.Printf("Connecting to %s as %s...\n", *addr, userAddr)

	client, err := NewClient(*addr, userAddr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	if *token != "" && *school != "" {
		fmt.Println("Registering Canvas credentials...")
		if err := client.SetToken(*token, *school); err != nil {
			log.Fatalf("Failed to register credentials: %v", err)
		}
	}

	go client.ReadPushed()

	fmt.Println("Type a question and press Enter. Commands: /quit to exit")

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		default:
			if !scanner.Scan() {
				return
			}

			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}
			if input == "/quit" {
				fmt.Println("Bye!")
				return
			}

			resp, err := client.Submit(input)
			if err != nil {
				log.Printf("Submit error: %v", err)
				continue
			}

			if resp.ImageData != "" {
				path := fmt.Sprintf("chart_%d.png", time.Now().Unix())
				if err := saveImage(resp.ImageData, path); err != nil {
					log.Printf("Failed to save image: %v", err)
					continue
				}
				fmt.Printf("Visualization saved to %s\n", path)
				continue
			}
			fmt.Println(resp.Response)
		}
	}
}

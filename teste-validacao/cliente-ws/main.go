package main

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
)

// Cliente de validação manual: conecta num shard, imprime cada frame recebido
// e, se -send for informado, envia um documento depois do snapshot inicial.
func main() {
	addr := flag.String("url", envOr("HUB_URL", "ws://localhost:8080/todos"), "WebSocket endpoint")
	user := flag.String("user", os.Getenv("HUB_USER"), "shard identity (query param)")
	send := flag.String("send", "", "document JSON to send after the first frame")
	flag.Parse()

	u, err := url.Parse(*addr)
	if err != nil {
		fmt.Printf("URL inválida: %s\n", err)
		os.Exit(1)
	}
	if *user != "" {
		q := u.Query()
		q.Set("user", *user)
		u.RawQuery = q.Encode()
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			fmt.Printf("Erro ao conectar (%s): %s\n", resp.Status, err)
		} else {
			fmt.Printf("Erro ao conectar: %s\n", err)
		}
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("Conectado em %s\n", u.String())
	for _, c := range resp.Cookies() {
		fmt.Printf("Cookie recebido: %s=%s\n", c.Name, c.Value)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	frames := make(chan []byte)
	go func() {
		defer close(frames)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				fmt.Printf("Leitura encerrada: %s\n", err)
				return
			}
			frames <- data
		}
	}()

	first := true
	for {
		select {
		case data, ok := <-frames:
			if !ok {
				return
			}
			fmt.Printf("Frame: %s\n", data)
			if first && *send != "" {
				if err := conn.WriteMessage(websocket.TextMessage, []byte(*send)); err != nil {
					fmt.Printf("Erro ao enviar: %s\n", err)
					return
				}
				fmt.Println("Documento enviado")
			}
			first = false
		case <-interrupt:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return
		}
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Example demonstrates parsing a simulated chat stream with buffers drawn
// from the shared byte pool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alesr/bucketpool"
	"github.com/alesr/bucketpool/buffers"
	"github.com/alesr/bucketpool/irc"
	units "github.com/docker/go-units"
)

const highlightCommand = "!highlight"

func main() {
	fmt.Println("Bucket Pool Example: Chat Highlight Reader")
	fmt.Println("Press Ctrl+C to exit or wait for simulation to complete")
	fmt.Println("------------------------------------------------")

	// context for coordinating graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// handle interrupt signal (ctrl+c)
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	go func() {
		<-signalChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	pr, pw := io.Pipe()
	go simulateChat(ctx, pw, 5*time.Second)

	reader := irc.NewReader(pr)
	defer reader.Close()

	counts := make(map[string]int)
	for {
		msg, err := reader.ReadMessage()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Printf("❌ Reader stopped: %v\n", err)
			}
			break
		}
		counts[msg.Command]++

		if msg.Command == "PRIVMSG" && strings.HasPrefix(msg.Trailing(), highlightCommand) {
			fmt.Println("💬 " + formatHighlight(msg))
		}
	}

	// display pool summary
	m := bucketpool.Shared[byte]().Metrics()
	fmt.Println("\nFinal Metrics:")
	fmt.Printf("Messages:        %d PRIVMSG, %d PING, %d USERNOTICE\n", counts["PRIVMSG"], counts["PING"], counts["USERNOTICE"])
	fmt.Printf("Arrays rented:   %d (local %d, shared %d, allocated %d)\n", m.Rented, m.LocalHits, m.SharedHits, m.Allocated)
	fmt.Printf("Arrays returned: %d (dropped %d)\n", m.Returned, m.Dropped)
	fmt.Printf("Pooled (shared): %d arrays, %s\n", m.PooledArrays, units.BytesSize(float64(m.PooledBytes)))
}

var (
	chatters = []string{"Alice", "bob_", "CarolPlays", "dave42", "Eve"}
	colors   = []string{"#1E90FF", "#FF4500", "", "#9ACD32"}
	phrases  = []string{"gg", "what a play", "LUL", "first time here", "that was close", "PogChamp"}
)

// simulateChat writes Twitch-style IRC lines to w until duration elapses.
func simulateChat(ctx context.Context, w *io.PipeWriter, duration time.Duration) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(duration)

	fmt.Printf("Starting chat simulation (%v)\n", duration)

	var sent int
	for {
		select {
		case <-ctx.Done():
			w.CloseWithError(ctx.Err())
			return
		case <-deadline:
			fmt.Printf("Chat simulation completed after %d lines\n", sent)
			w.Close()
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, generateLine(sent)); err != nil {
				return
			}
			sent++
		}
	}
}

// generateLine returns one CR LF terminated chat line.
func generateLine(n int) string {
	switch {
	case n%50 == 49:
		return "PING :tmi.twitch.tv\r\n"
	case n%97 == 96:
		return `@msg-id=raid;system-msg=5\sraiders\sfrom\sEve\shave\sjoined! :tmi.twitch.tv USERNOTICE #volley` + "\r\n"
	}

	nick := chatters[rand.Intn(len(chatters))]
	text := phrases[rand.Intn(len(phrases))]
	if rand.Intn(10) == 0 {
		text = highlightCommand + " " + text
	}
	return fmt.Sprintf("@color=%s;display-name=%s;mod=0 :%s!%s@%s.tmi.twitch.tv PRIVMSG #volley :%s\r\n",
		colors[rand.Intn(len(colors))], nick, strings.ToLower(nick), strings.ToLower(nick), strings.ToLower(nick), text)
}

// formatHighlight renders a highlighted chat message using a pooled builder.
func formatHighlight(msg irc.Message) string {
	sb := buffers.NewStringBuilder(nil, 64)
	defer sb.Close()

	if len(msg.Params) > 1 {
		sb.WriteByte('[')
		sb.WriteString(msg.Params[0])
		sb.WriteString("] ")
	}

	name := msg.Tags["display-name"]
	if name == "" {
		name = msg.Nick()
	}
	sb.WriteString(name)
	if color := msg.Tags["color"]; color != "" {
		fmt.Fprintf(sb, " (%s)", color)
	}
	sb.WriteString(": ")

	text := strings.TrimSpace(strings.TrimPrefix(msg.Trailing(), highlightCommand))
	if text == "" {
		text = "(no text)"
	}
	sb.WriteString(text)
	return sb.String()
}

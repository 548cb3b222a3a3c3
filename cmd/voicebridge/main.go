package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	ossignal "os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/aegisvoice/voicebridge/internal/channel"
	"github.com/aegisvoice/voicebridge/internal/chat"
	"github.com/aegisvoice/voicebridge/internal/config"
	"github.com/aegisvoice/voicebridge/internal/domain"
	"github.com/aegisvoice/voicebridge/internal/rtc"
	"github.com/aegisvoice/voicebridge/internal/session"
	"github.com/aegisvoice/voicebridge/internal/signaling"
	"github.com/aegisvoice/voicebridge/internal/turn"
)

const helpText = `voicebridge - terminal chat client for the voicebridge proxy

Reads turns from stdin, one per line, and streams the assistant's reply to
stdout as it arrives.

Environment Variables:
  VOICEBRIDGE_SERVER         Proxy base URL (default http://localhost:8787)
  OPENAI_API_BASE            Conversational endpoint base (default https://api.openai.com)
  VOICEBRIDGE_SYSTEM_PROMPT  System turn for text mode

Options:
  -mode       text | realtime    (default text)
  -transport  webrtc | websocket realtime transport (default webrtc)
  -h, --help  Show this help message
`

func main() {
	flag.Usage = func() { fmt.Print(helpText) }
	mode := flag.String("mode", "text", "text or realtime")
	transport := flag.String("transport", "webrtc", "webrtc or websocket")
	flag.Parse()

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %s, shutting down", sig)
		cancel()
	}()

	render := newRenderer(os.Stdout)

	switch *mode {
	case "text":
		runText(ctx, cfg, render)
	case "realtime":
		runRealtime(ctx, cfg, *transport, render)
	default:
		log.Fatalf("[main] unknown mode %q", *mode)
	}
}

func runText(ctx context.Context, cfg *config.Client, render *renderer) {
	client := chat.NewClient(cfg.ServerURL)
	sess := chat.NewSession(client, cfg.SystemPrompt, render.Update)

	log.Printf("[main] text mode via %s", cfg.ServerURL)
	repl(ctx, func(line string) {
		sess.Send(line)
		sess.Wait()
		render.EndTurn()
	})
	sess.Cancel()
}

func runRealtime(ctx context.Context, cfg *config.Client, transport string, render *renderer) {
	sessions := session.NewClient(cfg.ServerURL)

	var ctrl *turn.Controller
	onMessage := func(data []byte) { ctrl.HandleMessage(data) }

	var ensurer turn.Ensurer
	switch transport {
	case "webrtc":
		neg := rtc.NewNegotiator(sessions, signaling.NewExchanger(cfg.APIBase),
			func(onMsg func([]byte)) (domain.Peer, error) { return rtc.NewPeer(onMsg) },
			onMessage)
		defer neg.Close()
		ensurer = neg
	case "websocket":
		ens := channel.NewEnsurer(sessions, cfg.APIBase, onMessage)
		defer ens.Close()
		ensurer = ens
	default:
		log.Fatalf("[main] unknown transport %q", transport)
	}

	ctrl = turn.NewController(ensurer, render.Update)

	log.Printf("[main] realtime mode via %s transport", transport)
	repl(ctx, func(line string) {
		if err := ctrl.SendTurn(ctx, line); err != nil {
			log.Printf("[main] send turn: %v", err)
		}
	})
}

// repl reads one turn per line until stdin closes or ctx is canceled.
func repl(ctx context.Context, send func(string)) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		fmt.Print("> ")
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case line, ok := <-lines:
			if !ok {
				fmt.Println()
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			send(line)
		}
	}
}

// renderer prints the last assistant turn incrementally: extensions of what
// is already on screen append in place, replacements start a fresh line.
type renderer struct {
	mu      sync.Mutex
	out     io.Writer
	seen    int
	printed string
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) Update(turns []domain.Turn) {
	if len(turns) == 0 {
		return
	}
	last := turns[len(turns)-1]
	if last.Role != domain.RoleAssistant {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(turns) != r.seen {
		r.seen = len(turns)
		r.printed = ""
	}
	content := last.Content
	if content == "…" {
		return
	}
	switch {
	case r.printed == "":
		fmt.Fprint(r.out, content)
	case strings.HasPrefix(content, r.printed):
		fmt.Fprint(r.out, content[len(r.printed):])
	default:
		fmt.Fprintf(r.out, "\n%s", content)
	}
	r.printed = content
}

// EndTurn terminates the current reply line, if one is on screen.
func (r *renderer) EndTurn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.printed != "" {
		fmt.Fprintln(r.out)
	}
}

package main

import (
	"bufio"
	"chat-relay/client"
	"chat-relay/domain"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const help = `Comandos:
  <texto>                 mensaje a todos
  /w <alias> <texto>      mensaje privado
  /file <ruta> [alias]    enviar archivo (a todos por defecto)
  /users                  usuarios conectados
  /quit                   salir`

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Load configuration from .env and the environment.
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Connect to the relay.
	var c *client.Client
	var err error
	if config.WebSocket {
		c, err = client.DialWebSocket(ctx, log, config.ServerAddress, config.MaxFrameBytes)
	} else {
		c, err = client.Dial(log, config.ServerAddress, config.MaxFrameBytes)
	}
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() { _ = c.Close() }()

	view := newTerminal(os.Stdout, config.Colours)
	input := bufio.NewScanner(os.Stdin)

	// 4. Alias handshake. CHAT_ALIAS is tried first, then the user is asked.
	alias, err := c.Handshake(ctx, func(prompt string, taken bool) (string, error) {
		if taken {
			view.warn("El alias ya está en uso. Intente con otro.")
		} else if config.Alias != "" {
			alias := config.Alias
			config.Alias = ""
			return alias, nil
		}
		view.prompt(prompt)
		if !input.Scan() {
			return "", io.EOF
		}
		return input.Text(), nil
	})
	if err != nil {
		return exitRuntime, err
	}
	view.info(fmt.Sprintf("Conectado como %s. /help para ver los comandos.", alias))

	// 5. Receive in the background, read commands in the foreground.
	received := make(chan struct{})
	go func() {
		c.Receiver(config.InboxDir, view).Run()
		close(received)
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for input.Scan() {
			lines <- input.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = c.Leave()
			return exitOK, nil
		case <-received:
			view.warn("Conexión cerrada por el servidor.")
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				_ = c.Leave()
				return exitOK, nil
			}
			if quit := execute(c, view, line); quit {
				_ = c.Leave()
				select {
				case <-received:
				case <-ctx.Done():
				}
				return exitOK, nil
			}
		}
	}
}

// execute runs one input line and reports whether the user asked to quit.
func execute(c *client.Client, view *terminal, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if err := c.SendPublic(line); err != nil {
			view.warn(fmt.Sprintf("No se pudo enviar el mensaje: %v", err))
			return false
		}
		view.own(fmt.Sprintf("(Tú a %s): %s", domain.BroadcastDestination, line))
		return false
	}

	command, rest, _ := strings.Cut(line, " ")
	switch command {
	case "/quit", "/salir":
		return true
	case "/help":
		view.info(help)
	case "/users":
		view.showUsers()
	case "/w":
		to, text, ok := strings.Cut(strings.TrimSpace(rest), " ")
		if !ok || strings.TrimSpace(text) == "" {
			view.warn("Uso: /w <alias> <texto>")
			return false
		}
		if err := c.SendPrivate(to, text); err != nil {
			view.warn(fmt.Sprintf("No se pudo enviar el mensaje privado: %v", err))
			return false
		}
		view.own(fmt.Sprintf("(Tú a %s): %s", to, text))
	case "/file":
		path, to, _ := strings.Cut(strings.TrimSpace(rest), " ")
		if path == "" {
			view.warn("Uso: /file <ruta> [alias]")
			return false
		}
		to = lo.Ternary(strings.TrimSpace(to) == "", domain.BroadcastDestination, strings.TrimSpace(to))
		if err := c.SendFile(to, path); err != nil {
			view.warn(fmt.Sprintf("No se pudo enviar el archivo: %v", err))
			return false
		}
		view.own(fmt.Sprintf("📤 Archivo '%s' enviado a %s.", filepath.Base(path), to))
	default:
		view.warn("Comando desconocido. /help para ver los comandos.")
	}
	return false
}

// terminal prints relay events; it is the Callbacks of the receive loop.
type terminal struct {
	mu      sync.Mutex
	out     io.Writer
	colours bool
	users   []domain.UserEntry
}

var _ client.Callbacks = (*terminal)(nil)

func newTerminal(out io.Writer, colours bool) *terminal {
	return &terminal{out: out, colours: colours}
}

func (t *terminal) OnUsers(users []domain.UserEntry) {
	t.mu.Lock()
	t.users = users
	t.mu.Unlock()
	t.showUsers()
}

func (t *terminal) OnFile(file client.ReceivedFile) {
	t.print(color.New(color.FgMagenta), fmt.Sprintf("📁 Archivo recibido de %s: %s (%s, %d bytes)\nGuardado en: %s",
		file.Sender, file.Filename, file.MimeType, file.Size, file.Path))
}

func (t *terminal) OnText(text string) {
	style := color.New(color.FgDefault)
	if strings.HasPrefix(text, "Bienvenido") {
		style = color.New(color.FgCyan, color.OpBold)
	}
	t.print(style, text)
}

func (t *terminal) showUsers() {
	t.mu.Lock()
	names := lo.Map(t.users, func(u domain.UserEntry, _ int) string { return u.String() })
	t.mu.Unlock()
	t.print(color.New(color.FgGreen), "Usuarios conectados: "+strings.Join(names, ", "))
}

func (t *terminal) prompt(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprint(t.out, text)
}

func (t *terminal) info(text string) { t.print(color.New(color.FgCyan), text) }
func (t *terminal) warn(text string) { t.print(color.New(color.FgYellow), "⚠ "+text) }
func (t *terminal) own(text string)  { t.print(color.New(color.FgGray), text) }

func (t *terminal) print(style color.Style, text string) {
	if t.colours {
		text = style.Render(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, _ = fmt.Fprintln(t.out, text)
}

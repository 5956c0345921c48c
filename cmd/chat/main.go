package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hearthhq/hearth/internal/client"
	"github.com/hearthhq/hearth/internal/config"
	"github.com/hearthhq/hearth/internal/domain"
)

func main() {
	room := flag.String("room", "hearth", "room to join")
	name := flag.String("name", "", "display name")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "usage: chat -name <display name> [-room <room>]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	id := client.Identity{
		RoomID:   domain.RoomID(*room),
		UserID:   domain.UserID(uuid.NewString()),
		UserName: *name,
	}

	asm := client.NewAssembly(id.UserID)
	typing := client.NewTypingTracker(id.UserID, cfg.TypingTTL, nil)
	defer typing.Stop()

	h := client.Handlers{
		OnHistory: func(roomID domain.RoomID, msgs []domain.Message) {
			asm.SetHistory(msgs)
			if len(msgs) > 0 {
				setLast(msgs[len(msgs)-1].ID)
			}
			fmt.Printf("-- joined %s (%d messages) --\n", roomID, len(msgs))
			for _, m := range msgs {
				printMessage(m)
			}
		},
		OnMessage: func(m domain.Message) {
			if !asm.Ingest(m) {
				return
			}
			setLast(m.ID)
			typing.Clear(m.SenderID)
			printMessage(m)
		},
		OnMessageUpdate: func(m domain.Message) {
			if asm.ApplyUpdate(m) {
				printMessage(m)
			}
		},
		OnReactions: func(id domain.MessageID, facts []domain.ReactionFact) {
			asm.SetReactions(id, facts)
		},
		OnTyping: func(userID domain.UserID, userName string) {
			typing.Observe(userID, userName)
			if names := typing.ActiveNames(); len(names) > 0 {
				fmt.Printf("(%s typing...)\n", strings.Join(names, ", "))
			}
		},
		OnState: func(s client.State) {
			fmt.Printf("-- connection %s --\n", s)
		},
	}

	tr, err := client.New(ctx, cfg, id, h)
	if err != nil {
		log.Fatal().Err(err).Msg("transport setup")
	}
	defer tr.Teardown()

	if err := tr.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("connect")
	}

	go readInput(ctx, cancel, tr, asm, *name)
	<-ctx.Done()
	fmt.Println("bye")
}

var (
	lastMu sync.Mutex
	lastID domain.MessageID
)

func setLast(id domain.MessageID) {
	lastMu.Lock()
	if id > lastID {
		lastID = id
	}
	lastMu.Unlock()
}

func lastMessage() domain.MessageID {
	lastMu.Lock()
	defer lastMu.Unlock()
	return lastID
}

// reactor is the bridge transport's reaction surface; the socket
// transport does not carry reactions.
type reactor interface {
	AddReaction(domain.MessageID, string) error
	RemoveReaction(domain.MessageID, string) error
}

func readInput(ctx context.Context, cancel context.CancelFunc, tr client.Transport, asm *client.Assembly, displayName string) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			cancel()
			return
		case strings.HasPrefix(line, "/join "):
			tr.SwitchRoom(domain.RoomID(strings.TrimSpace(strings.TrimPrefix(line, "/join "))))
		case strings.HasPrefix(line, "/react "):
			react(tr, asm, displayName, strings.TrimSpace(strings.TrimPrefix(line, "/react ")), true)
		case strings.HasPrefix(line, "/unreact "):
			react(tr, asm, displayName, strings.TrimSpace(strings.TrimPrefix(line, "/unreact ")), false)
		default:
			tr.SendTyping()
			tr.SendMessage(line, "")
		}
	}
	cancel()
}

// react runs the two-phase flow on the latest message: the assembly
// applies the vote locally and reverts it if persistence fails.
func react(tr client.Transport, asm *client.Assembly, displayName, emoji string, add bool) {
	r, ok := tr.(reactor)
	if !ok {
		fmt.Println("reactions need the realtime transport")
		return
	}
	target := lastMessage()
	if emoji == "" || target == "" {
		return
	}
	var err error
	if add {
		err = asm.AddReaction(target, emoji, displayName, func() error { return r.AddReaction(target, emoji) })
	} else {
		err = asm.RemoveReaction(target, emoji, displayName, func() error { return r.RemoveReaction(target, emoji) })
	}
	if err != nil {
		fmt.Println("reaction not saved")
	}
}

func printMessage(m domain.Message) {
	content := m.Content
	if m.IsDeleted {
		content = domain.DeletedPlaceholder
	}
	marker := ""
	if m.IsEdited {
		marker = " (edited)"
	}
	if m.IsPinned {
		marker += " *"
	}
	fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Format("15:04"), m.SenderName, content, marker)
}

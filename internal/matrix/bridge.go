// ABOUTME: Matrix transport for the responder: routes room messages and stickers to the core
// ABOUTME: Handles commands, reply-to-bot detection, replay and duplicate suppression

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-responder/internal/autoreply"
	"github.com/2389/coven-responder/internal/command"
	"github.com/2389/coven-responder/internal/dedupe"
	"github.com/2389/coven-responder/internal/store"
)

const (
	// networkTimeout bounds each Matrix API call made while handling an event.
	networkTimeout = 30 * time.Second

	// pendingCommandTTL is how long a command stays answerable by reply.
	pendingCommandTTL = 24 * time.Hour

	cacheSize = 10000

	defaultStickerBody = "sticker"
)

// Config holds the Matrix connection settings.
type Config struct {
	Homeserver   string
	Username     string
	Password     string
	RecoveryKey  string
	AllowedRooms []string
	DedupeTTL    time.Duration
	DataDir      string
}

// Responder is the part of the core the bridge drives.
type Responder interface {
	Dispatch(ctx context.Context, chatID, text string, forceFire bool) (autoreply.Outcome, error)
	Echo(ctx context.Context, chatID, categoryKey string, item store.ItemRecord) (store.ItemRecord, bool, error)
}

// messenger is the subset of *mautrix.Client used while handling events.
type messenger interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	GetEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) (*event.Event, error)
}

// pendingCommand is a command message a later reply may complete.
type pendingCommand struct {
	cmd    command.Command
	sender string
}

// Bridge connects Matrix rooms to the responder.
type Bridge struct {
	config    Config
	client    *mautrix.Client
	api       messenger
	userID    id.UserID
	responder Responder
	commands  *command.Handler
	logger    *slog.Logger

	started time.Time
	seen    *dedupe.Seen                  // handled event IDs
	sent    *dedupe.Seen                  // event IDs the bot sent
	pending *dedupe.Cache[pendingCommand] // command event ID -> command

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge creates a bridge. Call Login before Run.
func NewBridge(cfg Config, responder Responder, commands *command.Handler, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, "", "")
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}

	b := newBridge(cfg, client, responder, commands, logger)
	b.client = client
	return b, nil
}

func newBridge(cfg Config, api messenger, responder Responder, commands *command.Handler, logger *slog.Logger) *Bridge {
	if cfg.DedupeTTL <= 0 {
		cfg.DedupeTTL = 5 * time.Minute
	}
	return &Bridge{
		config:    cfg,
		api:       api,
		responder: responder,
		commands:  commands,
		logger:    logger.With("component", "matrix"),
		started:   time.Now(),
		seen:      dedupe.NewSeen(cfg.DedupeTTL, cacheSize),
		sent:      dedupe.NewSeen(pendingCommandTTL, cacheSize),
		pending:   dedupe.New[pendingCommand](pendingCommandTTL, cacheSize),
	}
}

// Login authenticates with the configured username and password.
func (b *Bridge) Login(ctx context.Context) error {
	resp, err := b.client.Login(ctx, &mautrix.ReqLogin{
		Type: mautrix.AuthTypePassword,
		Identifier: mautrix.UserIdentifier{
			Type: mautrix.IdentifierTypeUser,
			User: b.config.Username,
		},
		Password:                 b.config.Password,
		InitialDeviceDisplayName: "coven-responder",
		StoreCredentials:         true,
	})
	if err != nil {
		return fmt.Errorf("password login: %w", err)
	}

	b.userID = resp.UserID
	b.logger.Info("logged in", "user_id", resp.UserID.String(), "device_id", resp.DeviceID.String())
	return nil
}

// Client returns the underlying Matrix client.
func (b *Bridge) Client() *mautrix.Client {
	return b.client
}

// Run syncs until ctx is cancelled, then waits for in-flight events.
func (b *Bridge) Run(ctx context.Context) error {
	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.shutdown()

	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleEvent)
	syncer.OnEventType(event.EventSticker, b.handleEvent)

	b.logger.Info("starting matrix sync", "homeserver", b.config.Homeserver, "user_id", b.userID.String())

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.client.SyncWithContext(b.ctx)
	}()

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

func (b *Bridge) shutdown() {
	b.cancel()
	b.wg.Wait()
	b.seen.Close()
	b.sent.Close()
	b.pending.Close()
}

// handleEvent filters an event and hands it to a goroutine so sync is not blocked.
func (b *Bridge) handleEvent(_ context.Context, evt *event.Event) {
	content, ok := b.accept(evt)
	if !ok {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.process(b.ctx, evt, content)
	}()
}

// accept reports whether evt should be handled and returns its parsed content.
func (b *Bridge) accept(evt *event.Event) (*event.MessageEventContent, bool) {
	if evt.Sender == b.userID {
		return nil, false
	}
	if time.UnixMilli(evt.Timestamp).Before(b.started) {
		return nil, false
	}
	if !b.isRoomAllowed(evt.RoomID.String()) {
		b.logger.Debug("ignoring event from non-allowed room", "room", evt.RoomID.String())
		return nil, false
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok {
		return nil, false
	}
	if b.seen.CheckAndMark(evt.ID.String()) {
		return nil, false
	}
	return content, true
}

func (b *Bridge) process(ctx context.Context, evt *event.Event, content *event.MessageEventContent) {
	roomID := evt.RoomID
	chatID := roomID.String()
	sticker := evt.Type == event.EventSticker
	body := content.Body
	if !sticker {
		body = trimReplyFallback(body)
	}

	forceFire := false
	if replyTo := content.RelatesTo.GetReplyTo(); replyTo != "" {
		if pending, ok := b.pending.Get(replyTo.String()); ok {
			reply := command.Reply{SenderID: evt.Sender.String()}
			if sticker {
				_, ref, err := stickerItem(content)
				if err != nil {
					b.logger.Error("reading sticker failed", "room", chatID, "error", err)
					return
				}
				reply.ItemRef = ref
			} else {
				reply.Text = body
			}
			text, status := b.commands.HandleReply(ctx, chatID, pending.cmd, pending.sender, reply)
			if status == command.ReplyCompleted {
				b.pending.Delete(replyTo.String())
			}
			if status != command.ReplyIgnored {
				b.sendText(ctx, roomID, text)
				return
			}
		}
		if !sticker {
			forceFire = b.isOwnEvent(ctx, roomID, replyTo)
		}
	}

	if sticker {
		b.processSticker(ctx, roomID, content)
		return
	}
	if content.MsgType != event.MsgText || body == "" {
		return
	}

	if cmd, ok := command.Parse(body); ok {
		if cmd.Known() {
			b.pending.Put(evt.ID.String(), pendingCommand{cmd: cmd, sender: evt.Sender.String()})
		}
		b.sendText(ctx, roomID, b.commands.Handle(ctx, chatID, cmd))
		return
	}

	out, err := b.responder.Dispatch(ctx, chatID, body, forceFire)
	if err != nil {
		b.logger.Error("dispatch failed", "room", chatID, "error", err)
		return
	}
	if out.HasText() {
		b.sendText(ctx, roomID, out.Text)
	}
	if out.HasItem() {
		b.sendSticker(ctx, roomID, out.Item, defaultStickerBody)
	}
}

// processSticker records the sticker under its body (normally the emoji) and
// may echo back another sticker seen with the same body.
func (b *Bridge) processSticker(ctx context.Context, roomID id.RoomID, content *event.MessageEventContent) {
	uniqueID, ref, err := stickerItem(content)
	if err != nil {
		b.logger.Error("reading sticker failed", "room", roomID.String(), "error", err)
		return
	}
	category := strings.TrimSpace(content.Body)
	if uniqueID == "" || category == "" {
		return
	}

	item := store.ItemRecord{UniqueID: uniqueID, PayloadRef: ref}
	echo, ok, err := b.responder.Echo(ctx, roomID.String(), category, item)
	if err != nil {
		b.logger.Error("recording sticker failed", "room", roomID.String(), "category", category, "error", err)
		return
	}
	if ok {
		b.sendSticker(ctx, roomID, echo.PayloadRef, category)
	}
}

// isOwnEvent reports whether eventID was sent by the bot.
func (b *Bridge) isOwnEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) bool {
	if _, ok := b.sent.Get(eventID.String()); ok {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()
	evt, err := b.api.GetEvent(ctx, roomID, eventID)
	if err != nil {
		b.logger.Debug("could not fetch replied-to event", "room", roomID.String(), "event", eventID.String(), "error", err)
		return false
	}
	return evt.Sender == b.userID
}

func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.config.AllowedRooms) == 0 {
		return true
	}
	return slices.Contains(b.config.AllowedRooms, roomID)
}

func (b *Bridge) sendText(ctx context.Context, roomID id.RoomID, text string) {
	if text == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	resp, err := b.api.SendText(ctx, roomID, text)
	if err != nil {
		b.logger.Error("failed to send message", "room", roomID.String(), "error", err)
		return
	}
	b.sent.Put(resp.EventID.String(), struct{}{})
}

func (b *Bridge) sendSticker(ctx context.Context, roomID id.RoomID, payloadRef, body string) {
	content, err := stickerContent(payloadRef, body)
	if err != nil {
		b.logger.Error("cannot send stored sticker", "room", roomID.String(), "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, networkTimeout)
	defer cancel()

	resp, err := b.api.SendMessageEvent(ctx, roomID, event.EventSticker, content)
	if err != nil {
		b.logger.Error("failed to send sticker", "room", roomID.String(), "error", err)
		return
	}
	b.sent.Put(resp.EventID.String(), struct{}{})
}

// trimReplyFallback drops the "> <@user> quoted" lines clients prepend to replies.
func trimReplyFallback(body string) string {
	if !strings.HasPrefix(body, "> ") {
		return body
	}
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], ">") {
		i++
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n"))
}

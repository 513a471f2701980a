// ABOUTME: Chat command handler for registering autoreplies and tuning chat settings
// ABOUTME: Turns user mistakes into specific replies and everything else into a generic failure

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/2389/coven-responder/internal/autoreply"
)

// Command names, without the leading slash.
const (
	AddMessage         = "addmessage"
	SetAutoreplyChance = "setautoreplychance"
	SetStickerHistory  = "setstickerhistory"
	Help               = "help"
)

const (
	replyGenericFailure = "Something went wrong :("
	replyAwaitingReply  = "👀 Reply to the original command with the message or sticker to respond with."
	replyNotYourCommand = "😳"
)

var helpText = strings.Join([]string{
	"/addmessage <name> <regex> <text> - reply with text when a message matches regex",
	"/addmessage <name> <regex> - then reply to the command with the text or sticker to respond with",
	"/setautoreplychance <0..1> - probability that a matching autoreply fires",
	"/setstickerhistory <n> - how many stickers per emoji to remember",
	"/help - show this help",
}, "\n")

// UserError is an error caused by the user's input. Its message is safe to
// show in chat.
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

func userErrorf(format string, args ...any) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// Command is a parsed "/name args" message.
type Command struct {
	Name string
	Args string
}

// Parse recognizes a command at the start of text. A "@botname" suffix on the
// command name is dropped and the name is lowercased.
func Parse(text string) (Command, bool) {
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}

	name, args, _ := strings.Cut(text[1:], " ")
	name, _, _ = strings.Cut(name, "@")
	if name == "" {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}, true
}

// Known reports whether c names a command the handler executes.
func (c Command) Known() bool {
	switch c.Name {
	case AddMessage, SetAutoreplyChance, SetStickerHistory, Help:
		return true
	default:
		return false
	}
}

// Core is what commands act on. *responder.Responder implements it.
type Core interface {
	RegisterRule(ctx context.Context, chatID, name, pattern string, response autoreply.Response) error
	SetFireProbability(ctx context.Context, chatID string, value float64) error
	SetRecencyCapacity(ctx context.Context, chatID string, capacity int) error
}

// ReplyStatus says what HandleReply did with a reply.
type ReplyStatus int

const (
	// ReplyIgnored means the reply is an ordinary message.
	ReplyIgnored ReplyStatus = iota
	// ReplyAnswered means the reply got a response and the command stays open.
	ReplyAnswered
	// ReplyCompleted means the reply finished the command; later replies
	// to it must not complete it again.
	ReplyCompleted
)

// Reply is a message answering an earlier command message.
type Reply struct {
	SenderID string
	Text     string
	ItemRef  string // set when the reply is an item such as a sticker
}

// Handler executes commands against a Core.
type Handler struct {
	core   Core
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(core Core, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{core: core, logger: logger.With("component", "command")}
}

// Handle executes cmd in chatID and returns the text to send back, which may
// be empty. Unknown commands produce no reply.
func (h *Handler) Handle(ctx context.Context, chatID string, cmd Command) string {
	reply, err := h.execute(ctx, chatID, cmd)
	return h.render(chatID, cmd.Name, reply, err)
}

// HandleReply handles a message that replies to an earlier command message.
// Anyone replying to a command they did not send gets a puzzled reaction. A
// reply by the sender of a two-argument /addmessage completes it; every other
// reply is ReplyIgnored and should be treated as an ordinary message.
func (h *Handler) HandleReply(ctx context.Context, chatID string, original Command, originalSender string, reply Reply) (string, ReplyStatus) {
	if !original.Known() {
		return "", ReplyIgnored
	}
	if reply.SenderID != originalSender {
		return replyNotYourCommand, ReplyAnswered
	}
	if original.Name != AddMessage {
		return "", ReplyIgnored
	}

	text, err := h.completeAddMessage(ctx, chatID, original.Args, reply)
	if err != nil {
		return h.render(chatID, original.Name, text, err), ReplyAnswered
	}
	return text, ReplyCompleted
}

func (h *Handler) render(chatID, name, reply string, err error) string {
	if err == nil {
		return reply
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.Message
	}
	h.logger.Error("command failed", "chat", chatID, "command", name, "error", err)
	return replyGenericFailure
}

func (h *Handler) execute(ctx context.Context, chatID string, cmd Command) (string, error) {
	switch cmd.Name {
	case AddMessage:
		return h.addMessage(ctx, chatID, cmd.Args)
	case SetAutoreplyChance:
		return h.setAutoreplyChance(ctx, chatID, cmd.Args)
	case SetStickerHistory:
		return h.setStickerHistory(ctx, chatID, cmd.Args)
	case Help:
		return helpText, nil
	default:
		return "", nil
	}
}

func (h *Handler) addMessage(ctx context.Context, chatID, rawArgs string) (string, error) {
	args, err := ParseArgs(rawArgs)
	if err != nil {
		return "", userErrorf("Failed to parse arguments: %v", err)
	}

	switch len(args) {
	case 2:
		if err := autoreply.ValidatePattern(args[1]); err != nil {
			return "", patternError(err)
		}
		return replyAwaitingReply, nil
	case 3:
		return h.register(ctx, chatID, args[0], args[1], autoreply.Literal{Text: args[2]})
	default:
		return "", userErrorf("Wrong number of arguments. Usage: /addmessage <name> <regex> <text>")
	}
}

func (h *Handler) completeAddMessage(ctx context.Context, chatID, rawArgs string, reply Reply) (string, error) {
	args, err := ParseArgs(rawArgs)
	if err != nil {
		return "", userErrorf("Failed to parse the command's arguments: %v", err)
	}
	if len(args) != 2 {
		return "", userErrorf("Wrong number of arguments.")
	}

	var response autoreply.Response
	switch {
	case reply.ItemRef != "":
		response = autoreply.ItemRef{ID: reply.ItemRef}
	case reply.Text != "":
		response = autoreply.Literal{Text: reply.Text}
	default:
		return "", userErrorf("Reply with a text message or a sticker.")
	}

	return h.register(ctx, chatID, args[0], args[1], response)
}

func (h *Handler) register(ctx context.Context, chatID, name, pattern string, response autoreply.Response) (string, error) {
	err := h.core.RegisterRule(ctx, chatID, name, pattern, response)
	switch {
	case err == nil:
		return fmt.Sprintf("🎉 Added autoreply %s", name), nil
	case errors.Is(err, autoreply.ErrInvalidPattern):
		return "", patternError(err)
	case errors.Is(err, autoreply.ErrDuplicateName):
		return "", userErrorf("An autoreply named %s already exists", name)
	case errors.Is(err, autoreply.ErrEmptyResponse):
		return "", userErrorf("The autoreply needs a non-empty response")
	default:
		return "", fmt.Errorf("registering autoreply %s: %w", name, err)
	}
}

func patternError(err error) error {
	if errors.Is(err, autoreply.ErrInvalidPattern) {
		return userErrorf("Failed to parse regex: %v", err)
	}
	return userErrorf("Invalid autoreply: %v", err)
}

func (h *Handler) setAutoreplyChance(ctx context.Context, chatID, rawArgs string) (string, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(rawArgs), 64)
	if err != nil || math.IsNaN(value) || value < 0 || value > 1 {
		return "", userErrorf("Give a number between 0 and 1, e.g. /setautoreplychance 0.25")
	}

	if err := h.core.SetFireProbability(ctx, chatID, value); err != nil {
		return "", fmt.Errorf("setting autoreply chance: %w", err)
	}
	return fmt.Sprintf("🎉 Autoreply chance set to %v", value), nil
}

func (h *Handler) setStickerHistory(ctx context.Context, chatID, rawArgs string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(rawArgs))
	if err != nil || n < 0 {
		return "", userErrorf("Give a non-negative whole number, e.g. /setstickerhistory 20")
	}

	if err := h.core.SetRecencyCapacity(ctx, chatID, n); err != nil {
		return "", fmt.Errorf("setting sticker history: %w", err)
	}
	return fmt.Sprintf("🎉 Remembering %d stickers per emoji", n), nil
}

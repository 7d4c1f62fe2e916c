package command

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/volodymyrd/echarlar/internal/cli/output"
	"github.com/volodymyrd/echarlar/internal/core/domain"
	"github.com/volodymyrd/echarlar/internal/telemetry/logger"
)

// DefaultHistoryLimit is the page size of message history.
const DefaultHistoryLimit = 20

// MessageCommand returns the message subcommand group.
func MessageCommand() *cli.Command {
	return &cli.Command{
		Name:    "message",
		Aliases: []string{"msg"},
		Usage:   "Send and browse messages",
		Subcommands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "Post a message to a room",
				ArgsUsage: "ROOM_ID BODY...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "from",
						Aliases:  []string{"u"},
						Usage:    "Sender user ID (must be a room member)",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "kind",
						Aliases: []string{"k"},
						Usage:   "Message kind: text, file, audio, video",
						Value:   domain.KindText.String(),
					},
				},
				Action: messageSend,
			},
			{
				Name:      "history",
				Usage:     "List a room's messages, newest first",
				ArgsUsage: "ROOM_ID",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Page size",
						Value:   DefaultHistoryLimit,
					},
					&cli.StringFlag{
						Name:  "cursor",
						Usage: "Resume from a cursor printed by a previous page",
					},
					&cli.BoolFlag{
						Name:    "all",
						Aliases: []string{"a"},
						Usage:   "Follow cursors until the history is exhausted",
					},
				},
				Action: messageHistory,
			},
		},
	}
}

func messageSend(c *cli.Context) error {
	roomID, err := argID(c, 0, "ROOM_ID")
	if err != nil {
		return err
	}
	body := strings.Join(c.Args().Tail(), " ")
	if body == "" {
		return domain.ErrInvalidArgument.WithDetails("missing BODY argument")
	}
	senderID, err := parseID(c.String("from"), "sender id")
	if err != nil {
		return err
	}
	kind, err := domain.ParseMessageKind(c.String("kind"))
	if err != nil {
		return err
	}
	content, err := domain.NewContent(kind, body)
	if err != nil {
		return err
	}

	store, err := OpenStore(c)
	if err != nil {
		return err
	}

	ctx := commandContext(c)
	room, err := store.FindRoom(ctx, roomID)
	if err != nil {
		return err
	}
	sender, err := store.FindUser(ctx, senderID)
	if err != nil {
		return err
	}
	if !room.IsMember(sender.ID) {
		return domain.ErrInvalidArgument.WithDetailsf("user %s is not a member of room %s", sender.ID, room.ID)
	}

	msg := domain.NewMessage(content, sender)
	if err := store.SaveMessage(ctx, room, msg); err != nil {
		return err
	}
	logger.L(ctx).Debug("message sent",
		"room_id", room.ID.String(),
		"message_id", msg.ID.String(),
		"kind", kind.String())

	return renderWide(c, newMessageView(msg), true)
}

func messageHistory(c *cli.Context) error {
	roomID, err := argID(c, 0, "ROOM_ID")
	if err != nil {
		return err
	}
	limit := c.Int("limit")
	if limit <= 0 {
		return domain.ErrInvalidArgument.WithDetailsf("limit must be positive, got %d", limit)
	}
	var cursor *domain.Cursor
	if s := c.String("cursor"); s != "" {
		if cursor, err = ParseCursor(s); err != nil {
			return err
		}
	}

	store, err := OpenStore(c)
	if err != nil {
		return err
	}

	ctx := commandContext(c)
	if _, err := store.FindRoom(ctx, roomID); err != nil {
		return err
	}

	view := historyView{Messages: []messageView{}}
	pages := 0
	for {
		page, err := store.FindMessages(ctx, roomID, limit, cursor)
		if err != nil {
			return err
		}
		pages++
		for _, m := range page.Messages {
			view.Messages = append(view.Messages, newMessageView(m))
		}
		cursor = page.Next
		if !page.HasMore() || !c.Bool("all") {
			break
		}
	}
	view.Next = FormatCursor(cursor)
	logger.L(ctx).Debug("history read",
		"room_id", roomID.String(),
		"pages", pages,
		"messages", len(view.Messages))

	format, _ := output.ParseFormat(ParseGlobalFlags(c).Output)
	if format != output.FormatTable {
		return render(c, view)
	}
	if err := render(c, view.Messages); err != nil {
		return err
	}
	if view.Next != "" {
		fmt.Fprintf(writer(c), "\nnext: --cursor %s\n", view.Next)
	}
	return nil
}

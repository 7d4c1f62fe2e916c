package command

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/volodymyrd/echarlar/internal/core/domain"
	"github.com/volodymyrd/echarlar/internal/telemetry/logger"
)

// RoomCommand returns the room subcommand group.
func RoomCommand() *cli.Command {
	return &cli.Command{
		Name:  "room",
		Usage: "Manage rooms",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a room owned by an existing user",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "owner",
						Aliases:  []string{"u"},
						Usage:    "Owner user ID",
						Required: true,
					},
				},
				Action: roomCreate,
			},
			{
				Name:      "get",
				Usage:     "Show a room",
				ArgsUsage: "ROOM_ID",
				Action:    roomGet,
			},
			{
				Name:      "join",
				Usage:     "Add a user to a room's members",
				ArgsUsage: "ROOM_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user",
						Aliases:  []string{"u"},
						Usage:    "User ID to add",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "owner",
						Usage: "Also grant ownership",
					},
				},
				Action: roomJoin,
			},
		},
	}
}

func roomCreate(c *cli.Context) error {
	name := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if name == "" {
		return domain.ErrInvalidArgument.WithDetails("missing NAME argument")
	}
	ownerID, err := parseID(c.String("owner"), "owner id")
	if err != nil {
		return err
	}

	store, err := OpenStore(c)
	if err != nil {
		return err
	}

	ctx := commandContext(c)
	owner, err := store.FindUser(ctx, ownerID)
	if err != nil {
		return err
	}

	room := domain.NewRoom(name, owner)
	if err := store.SaveRoom(ctx, room); err != nil {
		return err
	}
	logger.L(ctx).Debug("room created", "room_id", room.ID.String(), "owner_id", owner.ID.String())

	return render(c, newRoomView(room))
}

func roomGet(c *cli.Context) error {
	id, err := argID(c, 0, "ROOM_ID")
	if err != nil {
		return err
	}

	store, err := OpenStore(c)
	if err != nil {
		return err
	}

	room, err := store.FindRoom(commandContext(c), id)
	if err != nil {
		return err
	}
	return render(c, newRoomView(room))
}

func roomJoin(c *cli.Context) error {
	roomID, err := argID(c, 0, "ROOM_ID")
	if err != nil {
		return err
	}
	userID, err := parseID(c.String("user"), "user id")
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
	user, err := store.FindUser(ctx, userID)
	if err != nil {
		return err
	}

	if c.Bool("owner") {
		room.AddOwner(user.ID)
	} else {
		room.AddMember(user.ID)
	}
	if err := store.SaveRoom(ctx, room); err != nil {
		return err
	}
	logger.L(ctx).Debug("room joined",
		"room_id", room.ID.String(),
		"user_id", user.ID.String(),
		"owner", c.Bool("owner"))

	return render(c, newRoomView(room))
}

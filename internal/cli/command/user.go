package command

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/volodymyrd/echarlar/internal/core/domain"
	"github.com/volodymyrd/echarlar/internal/telemetry/logger"
)

// UserCommand returns the user subcommand group.
func UserCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Manage users",
		Subcommands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create a user",
				ArgsUsage: "ADDRESS",
				Action:    userCreate,
			},
			{
				Name:      "get",
				Usage:     "Show a user",
				ArgsUsage: "USER_ID",
				Action:    userGet,
			},
		},
	}
}

func userCreate(c *cli.Context) error {
	address := strings.TrimSpace(c.Args().First())
	if address == "" {
		return domain.ErrInvalidArgument.WithDetails("missing ADDRESS argument")
	}

	store, err := OpenStore(c)
	if err != nil {
		return err
	}

	ctx := commandContext(c)
	user := domain.NewUser(address)
	if err := store.SaveUser(ctx, user); err != nil {
		return err
	}
	logger.L(ctx).Debug("user created", "user_id", user.ID.String(), "address", user.Address)

	return render(c, newUserView(user))
}

func userGet(c *cli.Context) error {
	id, err := argID(c, 0, "USER_ID")
	if err != nil {
		return err
	}

	store, err := OpenStore(c)
	if err != nil {
		return err
	}

	user, err := store.FindUser(commandContext(c), id)
	if err != nil {
		return err
	}
	return render(c, newUserView(user))
}

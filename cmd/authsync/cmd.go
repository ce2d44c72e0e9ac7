package main

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/foodly/authsync"
	"github.com/foodly/authsync/activitymap"
	"github.com/urfave/cli/v3"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func initCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "init",
		Usage:  "Write an example configuration file",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Init,
	}
}

func whoamiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "whoami",
		Usage:  "Ask the backend who is signed in",
		Flags:  []cli.Flag{configFlag()},
		Action: r.WhoAmI,
	}
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "Sign in as a user or partner",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "role", Usage: "user or partner", Value: "user"},
			&cli.StringFlag{Name: "email", Usage: "Account email", Required: true},
			&cli.StringFlag{Name: "password", Usage: "Account password", Sources: cli.EnvVars("AUTHSYNC_PASSWORD")},
		},
		Action: r.Login,
	}
}

func registerCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "Create an account",
		Commands: []*cli.Command{
			{
				Name:  "user",
				Usage: "Register a user account",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "full-name", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Sources: cli.EnvVars("AUTHSYNC_PASSWORD")},
				},
				Action: r.RegisterUser,
			},
			{
				Name:  "partner",
				Usage: "Register a food partner account",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "full-name", Usage: "Business name", Required: true},
					&cli.StringFlag{Name: "contact-name", Required: true},
					&cli.StringFlag{Name: "phone", Required: true},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Sources: cli.EnvVars("AUTHSYNC_PASSWORD")},
					&cli.StringFlag{Name: "address", Required: true},
					&cli.StringFlag{Name: "avatar", Usage: "Path to the profile image"},
				},
				Action: r.RegisterPartner,
			},
		},
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "Sign out",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "role", Usage: "user, partner or empty for the generic endpoint"},
		},
		Action: r.Logout,
	}
}

func navbarCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "navbar",
		Usage:  "Print the navigation bar for the current session",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Navbar,
	}
}

func routeCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "route",
		Usage: "Check whether a route can render for the current session",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "path", Value: "/dashboard"},
		},
		Action: r.Route,
	}
}

func watchCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Print authentication change events until interrupted",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "role", Usage: "Only events for this role"},
			&cli.DurationFlag{Name: "interval", Usage: "Re-check the session every interval", Value: 0},
		},
		Action: r.Watch,
	}
}

// Init writes the example configuration.
func (r *Runner) Init(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if err := authsync.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Infof("wrote %s", path)
	return nil
}

// WhoAmI mounts the provider and prints the session.
func (r *Runner) WhoAmI(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx, cmd); err != nil {
		return err
	}
	defer r.teardown(ctx)

	return r.report(r.provider.Start(ctx))
}

// Login signs in.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx, cmd); err != nil {
		return err
	}
	defer r.teardown(ctx)

	role, err := parseRole(cmd.String("role"))
	if err != nil {
		return err
	}

	r.provider.Start(ctx)
	out := r.provider.Login(ctx, authsync.Credentials{
		Email:    cmd.String("email"),
		Password: cmd.String("password"),
	}, role)
	return r.report(out)
}

// RegisterUser creates a user account.
func (r *Runner) RegisterUser(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx, cmd); err != nil {
		return err
	}
	defer r.teardown(ctx)

	r.provider.Start(ctx)
	out := r.provider.RegisterUser(ctx, authsync.UserRegistration{
		FullName: cmd.String("full-name"),
		Email:    cmd.String("email"),
		Password: cmd.String("password"),
	})
	return r.report(out)
}

// RegisterPartner creates a partner account with its avatar.
func (r *Runner) RegisterPartner(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx, cmd); err != nil {
		return err
	}
	defer r.teardown(ctx)

	payload := authsync.PartnerRegistration{
		FullName:    cmd.String("full-name"),
		ContactName: cmd.String("contact-name"),
		Phone:       cmd.String("phone"),
		Email:       cmd.String("email"),
		Password:    cmd.String("password"),
		Address:     cmd.String("address"),
	}

	if path := cmd.String("avatar"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open avatar: %w", err)
		}
		defer f.Close()
		payload.Avatar = &authsync.Avatar{
			Filename:    filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Content:     f,
		}
	}

	r.provider.Start(ctx)
	return r.report(r.provider.RegisterPartner(ctx, payload))
}

// Logout signs out through the navbar so the status message and the
// destination match the web client.
func (r *Runner) Logout(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx, cmd); err != nil {
		return err
	}
	defer r.teardown(ctx)

	role, err := parseRole(cmd.String("role"))
	if err != nil {
		return err
	}

	r.provider.Start(ctx)

	navbar := authsync.NewNavbar(ctx, r.provider, authsync.NavigatorFunc(func(path string) {
		r.logger.Infof("navigate %s", path)
	}), authsync.WithNavbarStatus(authsync.WithStatusTTL(r.config.UI.StatusTTL)))
	defer navbar.Close()

	var out authsync.Outcome
	switch role {
	case authsync.RolePartner:
		out = navbar.LogoutPartner()
	case authsync.RoleUser:
		out = navbar.LogoutUser()
	default:
		out = r.provider.Logout(ctx, "")
	}

	if status := navbar.Status(); status != "" {
		fmt.Fprintln(r.output, status)
	} else if out.Message != "" {
		fmt.Fprintln(r.output, out.Message)
	}
	r.printJSON(r.provider.State())
	return out.Err
}

// Navbar prints the navigation bar view.
func (r *Runner) Navbar(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx, cmd); err != nil {
		return err
	}
	defer r.teardown(ctx)

	r.provider.Start(ctx)
	navbar := authsync.NewNavbar(ctx, r.provider, nil)
	defer navbar.Close()

	r.printJSON(navbar.View())
	return nil
}

// Route prints the guard decision for a path.
func (r *Runner) Route(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx, cmd); err != nil {
		return err
	}
	defer r.teardown(ctx)

	r.provider.Start(ctx)
	guard := authsync.NewRouteGuard(r.provider)
	r.printJSON(map[string]any{
		"decision": guard.Check(ctx, cmd.String("path")),
		"feed":     guard.ShowFeed(),
	})
	return nil
}

// Watch prints change events as they are broadcast. With an interval the
// session is re-checked periodically so server side changes show up too.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	if err := r.setup(ctx, cmd); err != nil {
		return err
	}
	defer r.teardown(ctx)

	role, err := parseRole(cmd.String("role"))
	if err != nil {
		return err
	}

	events, unsubscribe := r.provider.Changes(role)
	defer unsubscribe()

	if err := r.report(r.provider.Start(ctx)); err != nil {
		if authsync.IsCancelled(err) {
			return nil
		}
		return err
	}

	var tick <-chan time.Time
	if interval := cmd.Duration("interval"); interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			if out := r.provider.Refresh(ctx); out.Err != nil && !authsync.IsCancelled(out.Err) {
				r.logger.Warnf("refresh failed: %v", out.Err)
			}
		case event, ok := <-events:
			if !ok {
				return nil
			}
			r.printJSON(activitymap.Normalize(event, activitymap.WithDefaultChannel("cli")))
		}
	}
}

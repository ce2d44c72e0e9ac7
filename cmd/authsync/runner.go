package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/foodly/authsync"
	"github.com/foodly/authsync/repository"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config   *authsync.Config
	logger   *log.Logger
	output   io.Writer
	gateway  authsync.Gateway
	hints    authsync.HintStore
	provider *authsync.Provider
	db       *bun.DB
	jar      *sessionJar
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config  *authsync.Config
	Logger  *log.Logger
	Output  io.Writer
	Gateway authsync.Gateway
	Hints   authsync.HintStore
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = authsync.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = NewLogger(nil, opts.Config.Log.Level)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:  opts.Config,
		logger:  opts.Logger,
		output:  opts.Output,
		gateway: opts.Gateway,
		hints:   opts.Hints,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		initCommand, whoamiCommand, loginCommand, registerCommand, logoutCommand, navbarCommand, routeCommand, watchCommand,
	} {
		commands = append(commands, fn(r))
	}
	return commands
}

// setup builds the hint store, gateway and provider lazily so that commands
// like init work without a reachable database.
func (r *Runner) setup(ctx context.Context, cmd *cli.Command) error {
	if r.provider != nil {
		return nil
	}

	if path := cmd.String("config"); path != "" {
		config, err := authsync.LoadConfig(path)
		if err != nil {
			return err
		}
		r.config = config
		r.logger.SetLevel(parseLevel(config.Log.Level))
	}

	base, err := url.Parse(r.config.API.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: invalid base url %q", authsync.ErrValidation, r.config.API.BaseURL)
	}

	if r.hints == nil {
		if r.config.Storage.HintsPath == "" {
			r.hints = authsync.NewMemoryHints()
		} else {
			db, err := repository.OpenSQLite(ctx, r.config.Storage.HintsPath)
			if err != nil {
				return err
			}
			r.db = db
			r.hints = repository.NewHintRepository(db)
		}
	}

	loggers := charmProvider{base: r.logger}

	if r.gateway == nil {
		jar, err := newSessionJar()
		if err != nil {
			return err
		}
		if err := restoreCookies(ctx, r.hints, jar, base); err != nil {
			r.logger.Warnf("unable to restore session cookies: %v", err)
		}

		gw, err := authsync.NewHTTPGateway(r.config.API.BaseURL,
			authsync.WithHTTPClient(&http.Client{Jar: jar}),
			authsync.WithTimeout(r.config.API.Timeout),
			authsync.WithHintStore(r.hints),
			authsync.WithGatewayLogger(loggers.GetLogger("gateway")),
		)
		if err != nil {
			return err
		}
		r.gateway = gw
		r.jar = jar
	}

	r.provider = authsync.NewProvider(r.gateway,
		authsync.WithProviderHints(r.hints),
		authsync.WithLoggerProvider(loggers),
	)
	return nil
}

// teardown persists the cookie jar and releases resources.
func (r *Runner) teardown(ctx context.Context) {
	if r.jar != nil {
		if err := persistCookies(ctx, r.hints, r.jar); err != nil {
			r.logger.Warnf("unable to persist session cookies: %v", err)
		}
	}
	if r.provider != nil {
		r.provider.Close()
	}
	if r.db != nil {
		r.db.Close()
	}
}

func (r *Runner) printJSON(v any) {
	fmt.Fprintln(r.output, print.MaybePrettyJSON(v))
}

func (r *Runner) report(out authsync.Outcome) error {
	if out.Message != "" {
		fmt.Fprintln(r.output, out.Message)
	}
	r.printJSON(r.provider.State())
	if out.Err != nil {
		return out.Err
	}
	return nil
}

func parseRole(s string) (authsync.Role, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	role, ok := authsync.ParseRole(s)
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", authsync.ErrValidation, s)
	}
	return role, nil
}

func parseLevel(s string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(s))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/saiset-co/sai-directory/config"
	"github.com/saiset-co/sai-directory/search"
	"github.com/saiset-co/sai-directory/service"
	"github.com/saiset-co/sai-directory/utils"
)

const (
	openCommand  = ":open"
	clearCommand = ":clear"
)

func main() {
	app := &cli.App{
		Name:  "directory",
		Usage: "Browse and search the user directory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"DIRECTORY_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "users",
				Usage: "Print one page of users",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "page", Value: 1, Usage: "page number"},
				},
				Action: withService(func(c *cli.Context, s *service.Service) error {
					page, err := s.Directory().FetchUsers(c.Context, c.Int("page"))
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, page)
				}),
			},
			{
				Name:  "user",
				Usage: "Print one user",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "id", Required: true, Usage: "user id"},
				},
				Action: withService(func(c *cli.Context, s *service.Service) error {
					user, err := s.Directory().FetchUserByID(c.Context, c.Int("id"))
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, user)
				}),
			},
			{
				Name:  "search",
				Usage: fmt.Sprintf("Search users by id from stdin (%s confirms, %s resets)", openCommand, clearCommand),
				Action: withService(func(c *cli.Context, s *service.Service) error {
					return runSearch(c.Context, s, c.App.Reader, c.App.Writer)
				}),
			},
			{
				Name:  "serve",
				Usage: "Serve the directory, health and metrics over HTTP until interrupted",
				Action: func(c *cli.Context) error {
					s, err := newService(c, true)
					if err != nil {
						return err
					}
					if s.Container().Server == nil {
						return cli.Exit("server.enabled is false in the configuration", 1)
					}
					if err := s.Start(); err != nil {
						return fmt.Errorf("error while starting service: %w", err)
					}

					<-c.Context.Done()
					return s.Stop()
				},
			},
			{
				Name:  "health",
				Usage: "Print the health report",
				Action: withService(func(c *cli.Context, s *service.Service) error {
					report := s.Health().Check(c.Context)
					if err := printJSON(c.App.Writer, report); err != nil {
						return err
					}
					if !report.Healthy() {
						return cli.Exit("", 1)
					}
					return nil
				}),
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func withService(action func(c *cli.Context, s *service.Service) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := newService(c, false)
		if err != nil {
			return err
		}

		if err := s.Start(); err != nil {
			return fmt.Errorf("error while starting service: %w", err)
		}
		defer func() { _ = s.Stop() }()

		return action(c, s)
	}
}

// newService builds the service from --config. One-shot commands never bind
// the HTTP listener.
func newService(c *cli.Context, serve bool) (*service.Service, error) {
	configManager, err := config.NewConfigurationManager(c.Context, c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("error while loading config: %w", err)
	}

	serviceConfig := configManager.GetConfig()
	if !serve && serviceConfig.Server != nil {
		serviceConfig.Server.Enabled = false
	}

	s, err := service.NewServiceFromConfig(c.Context, serviceConfig)
	if err != nil {
		return nil, fmt.Errorf("error while creating service: %w", err)
	}
	return s, nil
}

func runSearch(ctx context.Context, s *service.Service, in io.Reader, out io.Writer) error {
	controller := s.NewSearch()
	defer controller.Close()

	snapshots, cancelSnapshots := controller.Subscribe()
	defer cancelSnapshots()

	busy, cancelBusy := s.Tracker().Subscribe()
	defer cancelBusy()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if !pending(controller.Phase()) {
					select {
					case snapshot, ok := <-snapshots:
						if ok {
							printSnapshot(out, snapshot)
						}
					default:
					}
					return nil
				}
				lines = nil
				continue
			}
			switch strings.TrimSpace(line) {
			case openCommand:
				user, err := controller.ConfirmSelection()
				if err != nil {
					fmt.Fprintln(out, "nothing to open")
					continue
				}
				if err := printJSON(out, user); err != nil {
					return err
				}
			case clearCommand:
				controller.Clear()
			default:
				controller.OnInput(line)
			}
		case snapshot, ok := <-snapshots:
			if !ok {
				return nil
			}
			printSnapshot(out, snapshot)
			if lines == nil && !pending(snapshot.Phase) {
				return nil
			}
		case state, ok := <-busy:
			if !ok {
				busy = nil
				continue
			}
			if state.Busy {
				fmt.Fprintf(out, "loading (%d in flight)\n", state.Active)
			}
		}
	}
}

// pending reports whether a search is still waiting on the timer or a lookup.
func pending(phase search.Phase) bool {
	return phase == search.PhaseDebouncing || phase == search.PhaseSearching
}

func printSnapshot(out io.Writer, snapshot search.Snapshot) {
	switch snapshot.Phase {
	case search.PhaseFound:
		fmt.Fprintf(out, "found: #%d %s <%s>\n", snapshot.Result.ID, snapshot.Result.FullName(), snapshot.Result.Email)
	case search.PhaseError:
		fmt.Fprintf(out, "error: %s\n", snapshot.ErrorMessage)
	default:
		fmt.Fprintln(out, snapshot.Phase)
	}
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := utils.MarshalIndent(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

package main

import (
	"context"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/flowsync-io/flowsync/pkg/cmd"
	"github.com/flowsync-io/flowsync/pkg/engine/sim"
	"github.com/flowsync-io/flowsync/pkg/interpreter"
	"github.com/flowsync-io/flowsync/pkg/log"
	"github.com/flowsync-io/flowsync/pkg/otelhelper"
	"github.com/flowsync-io/flowsync/pkg/session"
	"github.com/flowsync-io/flowsync/pkg/streamer"
	"github.com/flowsync-io/flowsync/pkg/syncer"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "flowsync-api",
		Usage:                 "Synchronize workflow editing with conversational execution",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "journal-url",
				Usage:   "Journal URL (redis://..., file://path); empty disables journaling",
				Sources: cli.EnvVars("JOURNAL_URL"),
			},
			&cli.DurationFlag{
				Name:    "conflict-window",
				Usage:   "Window within which opposing changes are checked for conflicts",
				Value:   syncer.DefaultConflictWindow,
				Sources: cli.EnvVars("CONFLICT_WINDOW"),
			},
			&cli.IntFlag{
				Name:    "max-messages",
				Usage:   "Conversational message buffer size per execution",
				Value:   streamer.DefaultMaxMessages,
				Sources: cli.EnvVars("MAX_MESSAGES"),
			},
			&cli.DurationFlag{
				Name:    "step-delay",
				Usage:   "Simulated duration of each execution step",
				Value:   500 * time.Millisecond,
				Sources: cli.EnvVars("STEP_DELAY"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing FlowSync API")

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			jrnl := cmd.NewJournal(command.String("journal-url"))
			if jrnl != nil {
				defer func() {
					if err := jrnl.Close(ctx); err != nil {
						logger.ErrorContext(ctx, "Failed to close journal", "error", err)
					}
				}()
			}

			deps := session.Dependencies{
				Logger: logger,
				Engine: sim.NewEngine(sim.Config{
					StepDelay: command.Duration("step-delay"),
				}, logger),
				Interpreter: interpreter.NewRuleBased(),
				Journal:     jrnl,
				Publisher:   eventBus,
				SyncConfig: syncer.Config{
					ConflictWindow: command.Duration("conflict-window"),
				},
				StreamConfig: streamer.Config{
					MaxMessages: command.Int("max-messages"),
				},
			}

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "flowsync-api")
				if err != nil {
					logger.WarnContext(ctx, "Failed to initialize tracer, continuing without", "error", err)
				} else {
					deps.Tracer = tracer
				}
			}

			registry := session.NewRegistry(deps)
			defer registry.CloseAll(ctx)

			janitor := session.NewJanitor(registry, session.DefaultIdleTTL, session.DefaultStaleWindow, logger)
			if err := janitor.Start(ctx, session.DefaultSweepSchedule); err != nil {
				return err
			}
			defer janitor.Stop()

			api := NewAPI(logger, registry, jrnl)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

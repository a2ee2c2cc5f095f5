package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/addspin/tlsca/ca"
	"github.com/addspin/tlsca/check"
	"github.com/addspin/tlsca/ocsp"
	"github.com/addspin/tlsca/routes"
	"github.com/addspin/tlsca/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/template/html/v2"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/urfave/cli/v3"
)

// crlCheckInterval - как часто serve проверяет, не пора ли перевыпустить CRL
const crlCheckInterval = time.Hour

func main() {
	cmd := &cli.Command{
		Name:  "tlsca",
		Usage: "Certificate authority with OCSP responder",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.yaml",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			caCommand(),
			ocspCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// environment - открытые ресурсы, общие для всех команд
type environment struct {
	cfg       utils.Config
	db        *sqlx.DB
	authority *ca.Authority
	logFile   *os.File
}

func (e *environment) Close() {
	e.db.Close()
	if e.logFile != nil {
		e.logFile.Close()
	}
}

func openEnvironment(command *cli.Command) (*environment, error) {
	cfg, err := utils.LoadConfig(command.String("config"))
	if err != nil {
		return nil, err
	}
	logFile, err := utils.SetupSlogLogger()
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite3", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных %s: %w", cfg.DatabasePath, err)
	}
	// sqlite не допускает параллельной записи
	db.SetMaxOpenConns(1)
	slog.Info("Подключение к базе данных", "path", cfg.DatabasePath)

	authority, err := ca.Open(db, cfg.CA)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &environment{cfg: cfg, db: db, authority: authority, logFile: logFile}, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP server: OCSP responder, CRL, certificate requests",
		Action: func(ctx context.Context, command *cli.Command) error {
			env, err := openEnvironment(command)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			go check.RefreshCRL(ctx, env.authority, crlCheckInterval)

			app := fiber.New(fiber.Config{
				Views: html.New("./template", ".html"),
			})
			responder := ocsp.NewResponder(env.authority, env.cfg.OCSPTTL)
			routes.Setup(app, env.authority, responder, env.cfg.APIKey, env.cfg.Digest)

			go func() {
				<-ctx.Done()
				if err := app.Shutdown(); err != nil {
					slog.Error("Ошибка остановки сервера", "error", err)
				}
			}()

			slog.Info("Запуск сервера", "port", env.cfg.Port)
			return app.Listen(":" + env.cfg.Port)
		},
	}
}

func ocspCommand() *cli.Command {
	return &cli.Command{
		Name:  "ocsp",
		Usage: "OCSP client commands",
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Check the revocation status of certificates",
				ArgsUsage: "<cert.pem>...",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "ca-cert",
						Usage:    "PEM file with the CA certificate",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "url",
						Usage: "responder URL, defaults to ocsp.url",
					},
					&cli.StringFlag{
						Name:  "requester-cert",
						Usage: "PEM certificate used to sign requests",
					},
					&cli.StringFlag{
						Name:  "requester-key",
						Usage: "PEM private key used to sign requests",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					cfg, err := utils.LoadConfig(command.String("config"))
					if err != nil {
						return err
					}
					url := command.String("url")
					if url == "" {
						url = cfg.OCSPURL
					}
					if command.NArg() == 0 {
						return errors.New("at least one certificate file is required")
					}
					return checkCertificates(ctx, ocspCheck{
						url:           url,
						cacheTTL:      cfg.OCSPCacheTTL,
						caCertFile:    command.String("ca-cert"),
						requesterCert: command.String("requester-cert"),
						requesterKey:  command.String("requester-key"),
						files:         command.Args().Slice(),
					}, os.Stdout)
				},
			},
		},
	}
}

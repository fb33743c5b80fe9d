package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/modfin/kuvert/internal/admission"
	"github.com/modfin/kuvert/internal/api"
	"github.com/modfin/kuvert/internal/auth"
	"github.com/modfin/kuvert/internal/config"
	"github.com/modfin/kuvert/internal/dao"
	"github.com/modfin/kuvert/internal/metrics"
	"github.com/modfin/kuvert/internal/queue"
	"github.com/modfin/kuvert/internal/template"
	"github.com/modfin/kuvert/internal/transport"
	"github.com/modfin/kuvert/internal/worker"
	"github.com/modfin/kuvert/tools"
)

type Stoppable interface {
	Stop(ctx context.Context) error
}

func main() {
	app := &cli.App{
		Name:  "kuvertd",
		Usage: "a service admitting transactional emails and delivering them asynchronously",
		Action: func(c *cli.Context) error {
			return run(true, true)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run api and delivery worker in one process",
				Action: func(c *cli.Context) error {
					return run(true, true)
				},
			},
			{
				Name:  "api",
				Usage: "run the admission api only",
				Action: func(c *cli.Context) error {
					return run(true, false)
				},
			},
			{
				Name:  "worker",
				Usage: "run the delivery worker only",
				Action: func(c *cli.Context) error {
					return run(false, true)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(withAPI, withWorker bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	base := log.New()
	lc := tools.LoggerCloner(base)
	l := lc.New("kuvertd")

	l.Info("starting kuvertd")

	metrics.Init()

	db, err := dao.NewSQLite(cfg.DbURI)
	if err != nil {
		return err
	}

	var q queue.Queue
	if cfg.NSQdAddr != "" {
		q, err = queue.NewNSQ(queue.NSQConfig{
			NsqdTCPAddr:       cfg.NSQdAddr,
			LookupHTTPAddr:    cfg.NSQLookupdAddr,
			Topic:             cfg.QueueTopic,
			Channel:           cfg.QueueChannel,
			VisibilityTimeout: cfg.VisibilityTimeout,
			MaxInFlight:       cfg.MaxInFlight,
		}, lc.New("queue"))
		if err != nil {
			return err
		}
	} else {
		l.Warn("no nsqd configured, using the in-process queue (single node only)")
		q = queue.NewMemory(cfg.VisibilityTimeout)
	}

	templates := template.New(db)

	// Stopped in order, api drains before the worker and queue do.
	var services []Stoppable

	if withAPI {
		var authn auth.Authenticator
		switch cfg.AuthMode {
		case "static":
			authn = &auth.Static{Token: cfg.AuthStaticToken, Subject: "local"}
		default:
			authn = auth.NewJWT(cfg.AuthJWTSecret, cfg.AuthJWTIssuer)
		}

		adm := admission.New(db, templates, q, lc.New("admission"))
		srv := api.New(api.Config{
			Port:         cfg.APIPort,
			Hostname:     cfg.Hostname,
			AutoTLS:      cfg.APIAutoTLS,
			AutoTLSEmail: cfg.APIAutoTLSEmail,
		}, db, adm, templates, authn, lc.New("api"))
		srv.Start()
		services = append(services, srv)
	}

	if withWorker {
		sender := transport.NewSMTP(transport.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			User:        cfg.SMTPUser,
			Password:    cfg.SMTPPassword,
			From:        cfg.SMTPFrom,
			RetryWindow: cfg.SendTimeout / 2,
			Rate:        cfg.SendRate,
		})
		w := worker.New(worker.Config{
			Concurrency: cfg.Workers,
			MaxAttempts: cfg.MaxAttempts,
			Backoff:     cfg.BackoffSchedule,
			SendTimeout: cfg.SendTimeout,
		}, db, templates, q, sender, lc.New("worker"))
		if err := w.Start(); err != nil {
			return err
		}
		services = append(services, w)
	} else {
		services = append(services, q)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	sig := <-sigc
	l.Infof("got signal %s, shutting down", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	go func() {
		<-shutdownCtx.Done()
		l.Warn("shutdown was forced, terminating now")
		os.Exit(1)
	}()

	for _, service := range services {
		if err := service.Stop(shutdownCtx); err != nil {
			l.WithError(err).Error("failed to stop service")
		}
	}

	l.Info("shutdown complete")
	return nil
}

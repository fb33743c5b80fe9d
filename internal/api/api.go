package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/acme/autocert"

	"github.com/modfin/kuvert/internal/admission"
	"github.com/modfin/kuvert/internal/auth"
	"github.com/modfin/kuvert/internal/dao"
	"github.com/modfin/kuvert/internal/template"
)

type Config struct {
	Port         int
	Hostname     string
	AutoTLS      bool
	AutoTLSEmail string
}

type Server struct {
	cfg Config
	log *logrus.Logger

	e *echo.Echo

	db        dao.DAO
	admission *admission.Service
	templates *template.Resolver
	authn     auth.Authenticator

	ostop sync.Once
	done  chan struct{}
}

func New(cfg Config, db dao.DAO, adm *admission.Service, templates *template.Resolver, authn auth.Authenticator, log *logrus.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		db:        db,
		admission: adm,
		templates: templates,
		authn:     authn,
		done:      make(chan struct{}),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover(), middleware.Logger())
	prom := prometheus.NewPrometheus("kuvert", nil)
	prom.Use(e)

	e.GET("/health", s.health)
	e.POST("/projects", s.createProject)
	e.POST("/templates", s.createTemplate)
	e.POST("/send", s.send)
	e.GET("/sends", s.listSends)
	e.GET("/sends/:id", s.getSend)

	s.e = e
	return s
}

// Handler exposes the routed http.Handler, used when the server is driven by
// an external listener.
func (s *Server) Handler() http.Handler {
	return s.e
}

func (s *Server) Start() {
	go func() {
		defer close(s.done)

		var err error
		if s.cfg.AutoTLS {
			s.e.AutoTLSManager.HostPolicy = autocert.HostWhitelist(s.cfg.Hostname)
			s.e.AutoTLSManager.Email = s.cfg.AutoTLSEmail
			s.e.AutoTLSManager.Cache = autocert.DirCache(".cache")
			s.log.Infof("starting api with auto tls on :%d for %s", s.cfg.Port, s.cfg.Hostname)
			err = s.e.StartAutoTLS(fmt.Sprintf(":%d", s.cfg.Port))
		} else {
			s.log.Infof("starting api on :%d", s.cfg.Port)
			err = s.e.Start(fmt.Sprintf(":%d", s.cfg.Port))
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("api server stopped")
		}
	}()
}

func (s *Server) Stop(ctx context.Context) (err error) {
	s.ostop.Do(func() {
		err = s.e.Shutdown(ctx)
		<-s.done
	})
	return err
}

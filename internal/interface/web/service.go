// Package web exposes the verifier over HTTP: spell verification and
// inspection endpoints plus a readiness probe.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/CharmsDev/charms-go/pkg/charms/provenance"
)

type Service struct {
	addr  string
	echo  *echo.Echo
	store provenance.Store
}

func NewService(addr string, store provenance.Store) *Service {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	// The verifier is stateless from the caller's perspective, browsers
	// from anywhere may call it.
	e.Use(middleware.CORS())

	svc := &Service{addr: addr, echo: e, store: store}

	e.POST("/spells/verify", svc.verifySpell)
	e.POST("/spells/show", svc.showSpell)
	e.GET("/ready", svc.ready)

	return svc
}

// Handler exposes the HTTP handler, used to serve on a custom listener
// and by tests.
func (s *Service) Handler() http.Handler {
	return s.echo
}

func (s *Service) Start() {
	go func() {
		if err := s.echo.Start(s.addr); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("failed to start web service")
		}
	}()
	log.Infof("web service listening on %s", s.addr)
}

func (s *Service) Stop(ctx context.Context) {
	if err := s.echo.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("failed to shutdown web service")
	}
}

func (s *Service) ready(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("%s", err))
}

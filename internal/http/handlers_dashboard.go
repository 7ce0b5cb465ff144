package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"fincontrol/internal/core"
	"fincontrol/internal/log"
	"fincontrol/internal/report"
)

type pageMeta struct {
	Title string
	Nav   string
}

type dashboardView struct {
	pageMeta
	Month     report.Month
	Prev      MonthParams
	Next      MonthParams
	IsCurrent bool
}

type dashboardJSON struct {
	Year           int                   `json:"year"`
	Month          int                   `json:"month"`
	MonthName      string                `json:"month_name"`
	Summary        report.Summary        `json:"summary"`
	CategoryTotals report.CategoryTotals `json:"category_totals"`
	DailyBalance   []report.BalancePoint `json:"daily_balance"`
}

func dashboardKey(ownerID int64, year, month int) string {
	return fmt.Sprintf("dash:%d:%04d-%02d", ownerID, year, month)
}

// loadMonth returns the month's dashboard views, from cache when possible.
// Concurrent misses for the same owner and month share one load. A load that
// started before a write is never cached: the owner's generation moves on
// every invalidation and is part of the singleflight key.
func (s *Server) loadMonth(ctx context.Context, ownerID int64, year, month int) (report.Month, error) {
	key := dashboardKey(ownerID, year, month)
	if s.dashboards != nil {
		if m, ok := s.dashboards.Get(key); ok {
			s.metrics.CacheHit()
			return m, nil
		}
		s.metrics.CacheMiss()
	}

	gen := s.generation(ownerID)
	v, err, _ := s.loads.Do(fmt.Sprintf("%s@%d", key, gen), func() (interface{}, error) {
		// shared by every waiter, so not bound to the first caller's request
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requestTimeout)
		defer cancel()
		m, err := s.engine.Month(loadCtx, ownerID, year, month)
		if err != nil {
			return nil, err
		}
		s.storeMonth(ownerID, gen, key, m)
		return m, nil
	})
	if err != nil {
		return report.Month{}, err
	}
	return v.(report.Month), nil
}

func (s *Server) generation(ownerID int64) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[ownerID]
}

// storeMonth caches m unless ownerID was invalidated after gen was read.
func (s *Server) storeMonth(ownerID int64, gen uint64, key string, m report.Month) bool {
	if s.dashboards == nil {
		return false
	}
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[ownerID] != gen {
		return false
	}
	s.dashboards.Set(key, m)
	return true
}

// invalidateOwner drops every cached month of ownerID and fences off loads
// already in flight.
func (s *Server) invalidateOwner(ownerID int64) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[ownerID]++
	if s.dashboards == nil {
		return
	}
	if n := s.dashboards.DeletePrefix(fmt.Sprintf("dash:%d:", ownerID)); n > 0 {
		s.logger.WithComponent(log.ComponentCache).Debug("Dashboard cache invalidated", log.FieldOwner, ownerID, "entries", n)
	}
}

func (s *Server) dashboardData(w http.ResponseWriter, r *http.Request) (dashboardView, bool) {
	today := s.transactions.Today()
	params, err := ParseMonthParams(r.URL.Query(), today)
	if err != nil {
		ErrorFor(r, http.StatusBadRequest, "Mês inválido").Write(w)
		return dashboardView{}, false
	}

	m, err := s.loadMonth(r.Context(), ownerFrom(r.Context()), params.Year, params.Month)
	switch {
	case errors.Is(err, report.ErrInvalidMonth), errors.Is(err, core.ErrInvalidDate):
		ErrorFor(r, http.StatusBadRequest, "Mês inválido").Write(w)
		return dashboardView{}, false
	case err != nil:
		s.serverError(w, r, "Failed to load dashboard", err)
		return dashboardView{}, false
	}

	return dashboardView{
		pageMeta:  pageMeta{Title: fmt.Sprintf("%s de %d", m.Name, m.Year), Nav: "dashboard"},
		Month:     m,
		Prev:      params.Prev(),
		Next:      params.Next(),
		IsCurrent: params.Year == today.Year() && params.Month == int(today.Month()),
	}, true
}

// handleDashboard renders the month dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	view, ok := s.dashboardData(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "dashboard_page", view)
}

// handleDashboardPartial re-renders the dashboard body after an HTMX trigger.
func (s *Server) handleDashboardPartial(w http.ResponseWriter, r *http.Request) {
	view, ok := s.dashboardData(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "dashboard_content", view)
}

// handleDashboardAPI serves the month summary, category totals and daily
// balance series as JSON for the charts.
func (s *Server) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	r.Header.Set("Accept", "application/json")
	view, ok := s.dashboardData(w, r)
	if !ok {
		return
	}
	m := view.Month
	balance := m.Balance
	if balance == nil {
		balance = []report.BalancePoint{}
	}
	writeJSON(w, http.StatusOK, dashboardJSON{
		Year:           m.Year,
		Month:          m.Month,
		MonthName:      m.Name,
		Summary:        m.Summary,
		CategoryTotals: m.Categories,
		DailyBalance:   balance,
	})
}

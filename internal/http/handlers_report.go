package http

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"fincontrol/internal/core"
	"fincontrol/internal/log"
	"fincontrol/internal/report"
)

type reportView struct {
	pageMeta
	Report     report.Report
	Categories []core.Category
	StartDate  string
	EndDate    string
	CategoryID int64
	Type       string
	Search     string
	ExportURL  string
	Error      string
}

type reportRowJSON struct {
	TransactionID int64             `json:"transaction_id"`
	Date          string            `json:"date"`
	Description   string            `json:"description"`
	Category      string            `json:"category"`
	Kind          core.CategoryKind `json:"kind"`
	Amount        string            `json:"amount"`
}

type reportJSON struct {
	Title          string                `json:"title"`
	Period         string                `json:"period"`
	Summary        report.Summary        `json:"summary"`
	CategoryTotals report.CategoryTotals `json:"category_totals"`
	Rows           []reportRowJSON       `json:"rows"`
}

func exportURL(f report.Filter) string {
	q := url.Values{}
	q.Set("format", "csv")
	q.Set("start_date", f.From.String())
	q.Set("end_date", f.To.String())
	if f.CategoryID > 0 {
		q.Set("category", strconv.FormatInt(f.CategoryID, 10))
	}
	if f.Kind != "" {
		q.Set("type", string(f.Kind))
	}
	if f.Search != "" {
		q.Set("q", f.Search)
	}
	return "/reports/export?" + q.Encode()
}

// handleReport shows the filtered period report.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := ownerFrom(ctx)
	filter := ParseReportFilter(r.URL.Query(), s.transactions.Today())

	cats, err := s.categories.List(ctx, ownerID, "")
	if err != nil {
		s.serverError(w, r, "Failed to load categories", err)
		return
	}
	view := reportView{
		pageMeta:   pageMeta{Title: "Relatórios", Nav: "reports"},
		Categories: cats,
		StartDate:  filter.From.String(),
		EndDate:    filter.To.String(),
		CategoryID: filter.CategoryID,
		Type:       string(filter.Kind),
		Search:     filter.Search,
		ExportURL:  exportURL(filter),
	}

	rep, err := s.reports.Build(ctx, ownerID, filter)
	switch {
	case errors.Is(err, report.ErrInvalidRange):
		if wantsJSON(r) {
			JSONError(http.StatusUnprocessableEntity, "A data inicial deve ser anterior à data final").Write(w)
			return
		}
		view.Error = "A data inicial deve ser anterior à data final."
		view.ExportURL = ""
		s.render(w, r, http.StatusUnprocessableEntity, "reports_page", view)
		return
	case err != nil:
		s.serverError(w, r, "Failed to build report", err)
		return
	}

	log.FromContext(ctx).WithComponent(log.ComponentReport).DebugContext(ctx, "Report built",
		log.FieldOperation, log.OpRead, "rows", len(rep.Rows))

	if wantsJSON(r) {
		rows := make([]reportRowJSON, 0, len(rep.Rows))
		for _, row := range rep.Rows {
			rows = append(rows, reportRowJSON{
				TransactionID: row.TransactionID,
				Date:          row.Date.String(),
				Description:   row.Description,
				Category:      row.Category,
				Kind:          row.Kind,
				Amount:        row.Amount.StringFixed(2),
			})
		}
		writeJSON(w, http.StatusOK, reportJSON{
			Title:          rep.Title,
			Period:         rep.Period,
			Summary:        rep.Summary,
			CategoryTotals: rep.Categories,
			Rows:           rows,
		})
		return
	}

	view.Report = rep
	s.render(w, r, http.StatusOK, "reports_page", view)
}

// handleReportExport downloads the report as CSV.
func (s *Server) handleReportExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	if format := query.Get("format"); format != "" && format != "csv" {
		ErrorFor(r, http.StatusBadRequest, "Formato de exportação não suportado").Write(w)
		return
	}

	rep, err := s.reports.Build(ctx, ownerFrom(ctx), ParseReportFilter(query, s.transactions.Today()))
	switch {
	case errors.Is(err, report.ErrInvalidRange):
		ErrorFor(r, http.StatusUnprocessableEntity, "A data inicial deve ser anterior à data final").Write(w)
		return
	case err != nil:
		s.serverError(w, r, "Failed to build report", err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, rep); err != nil {
		s.serverError(w, r, "Failed to write CSV", err)
		return
	}

	log.FromContext(ctx).WithComponent(log.ComponentReport).InfoContext(ctx, "Report exported",
		log.FieldOperation, log.OpExport, "rows", len(rep.Rows), "bytes", buf.Len())

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+rep.Filename()+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

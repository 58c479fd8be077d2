package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sipsa-io/sipsa/internal/api/middleware"
	"github.com/sipsa-io/sipsa/internal/storage"
)

const dateParamLayout = "2006-01-02"

// pageParams is the decoded pagination request.
type pageParams struct {
	page int
	size int
}

func (p pageParams) offset() int { return (p.page - 1) * p.size }

// parsePageParams decodes 1-based page/pageSize with defaults and caps.
func (s *Server) parsePageParams(r *http.Request) (pageParams, error) {
	params := pageParams{page: 1, size: s.config.DefaultPageSize}

	if raw := r.URL.Query().Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return params, fmt.Errorf("page must be a positive integer, got %q", raw)
		}

		params.page = page
	}

	if raw := r.URL.Query().Get("pageSize"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			return params, fmt.Errorf("pageSize must be a positive integer, got %q", raw)
		}

		if size > s.config.MaxPageSize {
			size = s.config.MaxPageSize
		}

		params.size = size
	}

	return params, nil
}

// parseDateWindow decodes the exact-date or [startDate, endDate] filters as
// full local-zone calendar days converted to UTC instants. The end date is
// inclusive via a half-open < end+1day comparison. An exact date takes
// precedence over the range.
func (s *Server) parseDateWindow(r *http.Request, exactParam string) (storage.DateWindow, error) {
	var window storage.DateWindow

	parseDay := func(raw string) (time.Time, error) {
		day, err := time.ParseInLocation(dateParamLayout, raw, s.loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", raw)
		}

		return day, nil
	}

	if raw := r.URL.Query().Get(exactParam); raw != "" {
		day, err := parseDay(raw)
		if err != nil {
			return window, err
		}

		from := day.UTC()
		to := day.AddDate(0, 0, 1).UTC()
		window.From = &from
		window.To = &to

		return window, nil
	}

	if raw := r.URL.Query().Get("startDate"); raw != "" {
		day, err := parseDay(raw)
		if err != nil {
			return window, err
		}

		from := day.UTC()
		window.From = &from
	}

	if raw := r.URL.Query().Get("endDate"); raw != "" {
		day, err := parseDay(raw)
		if err != nil {
			return window, err
		}

		to := day.AddDate(0, 0, 1).UTC()
		window.To = &to
	}

	return window, nil
}

// parseInt64Param decodes an optional integer query parameter.
func parseInt64Param(r *http.Request, name string) (*int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}

	return &value, nil
}

// envelope wraps a result page with counts and next/prev URLs.
func envelope(r *http.Request, params pageParams, total int64, results any) Envelope {
	pages := 0
	if total > 0 {
		pages = int((total + int64(params.size) - 1) / int64(params.size))
	}

	response := Envelope{
		Count:   total,
		Pages:   pages,
		Results: results,
	}

	if params.page < pages {
		next := pageURL(r.URL, params.page+1)
		response.Next = &next
	}

	if params.page > 1 {
		prev := pageURL(r.URL, params.page-1)
		response.Prev = &prev
	}

	return response
}

// pageURL rewrites the page query parameter on the request URL.
func pageURL(u *url.URL, page int) string {
	rewritten := *u
	query := rewritten.Query()
	query.Set("page", strconv.Itoa(page))
	rewritten.RawQuery = query.Encode()

	return rewritten.String()
}

func (s *Server) handleListCiudad(w http.ResponseWriter, r *http.Request) {
	params, err := s.parsePageParams(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	window, err := s.parseDateWindow(r, "fecha")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	regID, err := parseInt64Param(r, "regId")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	codProducto, err := parseInt64Param(r, "codProducto")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	items, total, err := s.deps.Ciudad.List(r.Context(), storage.CiudadFilter{
		FechaCaptura: window,
		RegID:        regID,
		CodProducto:  codProducto,
	}, params.size, params.offset())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to query city prices"))

		return
	}

	loc := middleware.GetTimezone(r.Context())

	dtos := make([]CiudadDTO, len(items))
	for i, item := range items {
		dtos[i] = toCiudadDTO(item, loc)
	}

	writeJSON(w, http.StatusOK, envelope(r, params, total, dtos))
}

func (s *Server) handleListParcial(w http.ResponseWriter, r *http.Request) {
	params, err := s.parsePageParams(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	window, err := s.parseDateWindow(r, "fechaEncuesta")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	fuenID, err := parseInt64Param(r, "fuenId")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	artiID, err := parseInt64Param(r, "artiId")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	filter := storage.ParcialFilter{
		EnmaFecha:    window,
		FuenID:       fuenID,
		IDArtiSemana: artiID,
	}

	if muniID := r.URL.Query().Get("muniId"); muniID != "" {
		filter.MuniID = &muniID
	}

	items, total, err := s.deps.Parcial.List(r.Context(), filter, params.size, params.offset())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to query municipal records"))

		return
	}

	loc := middleware.GetTimezone(r.Context())

	dtos := make([]ParcialDTO, len(items))
	for i, item := range items {
		dtos[i] = toParcialDTO(item, loc)
	}

	writeJSON(w, http.StatusOK, envelope(r, params, total, dtos))
}

func (s *Server) handleListSemana(w http.ResponseWriter, r *http.Request) {
	params, err := s.parsePageParams(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	window, err := s.parseDateWindow(r, "fechaIni")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	artiID, err := parseInt64Param(r, "artiId")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	fuenID, err := parseInt64Param(r, "fuenId")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	items, total, err := s.deps.Semana.List(r.Context(), storage.SemanaFilter{
		FechaIni: window,
		ArtiID:   artiID,
		FuenID:   fuenID,
	}, params.size, params.offset())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to query weekly wholesale records"))

		return
	}

	loc := middleware.GetTimezone(r.Context())

	dtos := make([]SemanaDTO, len(items))
	for i, item := range items {
		dtos[i] = toSemanaDTO(item, loc)
	}

	writeJSON(w, http.StatusOK, envelope(r, params, total, dtos))
}

func (s *Server) handleListMes(w http.ResponseWriter, r *http.Request) {
	params, err := s.parsePageParams(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	window, err := s.parseDateWindow(r, "fechaMes")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	artiID, err := parseInt64Param(r, "artiId")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	fuenID, err := parseInt64Param(r, "fuenId")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	items, total, err := s.deps.Mes.List(r.Context(), storage.MesFilter{
		FechaMesIni: window,
		ArtiID:      artiID,
		FuenID:      fuenID,
	}, params.size, params.offset())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to query monthly wholesale records"))

		return
	}

	loc := middleware.GetTimezone(r.Context())

	dtos := make([]MesDTO, len(items))
	for i, item := range items {
		dtos[i] = toMesDTO(item, loc)
	}

	writeJSON(w, http.StatusOK, envelope(r, params, total, dtos))
}

func (s *Server) handleListAbas(w http.ResponseWriter, r *http.Request) {
	params, err := s.parsePageParams(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	window, err := s.parseDateWindow(r, "fechaMes")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	artiID, err := parseInt64Param(r, "artiId")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	fuenID, err := parseInt64Param(r, "fuenId")
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	items, total, err := s.deps.Abas.List(r.Context(), storage.AbasFilter{
		FechaMesIni: window,
		ArtiID:      artiID,
		FuenID:      fuenID,
	}, params.size, params.offset())
	if err != nil {
		WriteErrorResponse(w, r, s.logger, InternalServerError("failed to query monthly supply records"))

		return
	}

	loc := middleware.GetTimezone(r.Context())

	dtos := make([]AbasDTO, len(items))
	for i, item := range items {
		dtos[i] = toAbasDTO(item, loc)
	}

	writeJSON(w, http.StatusOK, envelope(r, params, total, dtos))
}

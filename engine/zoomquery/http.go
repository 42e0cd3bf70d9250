package zoomquery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/flightdv/corepipeline/engine/domain"
	"github.com/flightdv/corepipeline/pkg/config"
	"github.com/flightdv/corepipeline/pkg/mid"
)

// Handler builds the Zoom Query Surface's HTTP mux: GET
// /viz/{vizID}/series/{seriesIndex}/tiles and .../raw, behind the teacher's
// standard middleware chain plus bearer-token auth (spec §4.9/§6).
func Handler(svc *Service, cfg *config.Config, log *slog.Logger) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/viz/{vizID}/series/{seriesIndex}/tiles", svc.handleTiles).Methods(http.MethodGet)
	r.HandleFunc("/viz/{vizID}/series/{seriesIndex}/raw", svc.handleRaw).Methods(http.MethodGet)

	return mid.Chain(r,
		mid.Logger(log),
		mid.Recover(log),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("zoomquery"),
		mid.Auth(cfg.JWTSecret, cfg.JWTAlgorithm),
	)
}

func (s *Service) handleTiles(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	seriesIndex, err := strconv.Atoi(vars["seriesIndex"])
	if err != nil {
		writeError(w, domain.NewJobError(domain.ErrNotFound, "invalid series index"))
		return
	}
	req := TilesRequest{
		VizID:       vars["vizID"],
		SeriesIndex: seriesIndex,
		Level:       parseIntParam(r, "level"),
		XMin:        parseFloatParam(r, "x_min"),
		XMax:        parseFloatParam(r, "x_max"),
	}
	res, err := s.Tiles(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func (s *Service) handleRaw(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	seriesIndex, err := strconv.Atoi(vars["seriesIndex"])
	if err != nil {
		writeError(w, domain.NewJobError(domain.ErrNotFound, "invalid series index"))
		return
	}
	req := RawRequest{
		VizID:       vars["vizID"],
		SeriesIndex: seriesIndex,
		XMin:        parseFloatParam(r, "x_min"),
		XMax:        parseFloatParam(r, "x_max"),
	}
	if v := parseIntParam(r, "max_points"); v != nil {
		req.MaxPoints = *v
	}
	if v := parseIntParam(r, "cap"); v != nil {
		req.Cap = *v
	}
	res, err := s.Raw(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

func parseFloatParam(r *http.Request, name string) *float64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseIntParam(r *http.Request, name string) *int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRawNotAvailable), errors.Is(err, domain.ErrUnsupportedFormat):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrStorageUnavailable):
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}

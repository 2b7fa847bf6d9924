package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Ethernal-Tech/chronicle/api/poi"
	"github.com/Ethernal-Tech/chronicle/ledger"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var errBadRequest = errors.New("bad request")

type healthResponse struct {
	Status          string  `json:"status"`
	LatestMilestone *uint32 `json:"latestMilestone,omitempty"`
}

type merkleRootResponse struct {
	Index      uint32      `json:"index"`
	MerkleRoot ledger.Hash `json:"merkleRoot"`
	Blocks     int         `json:"blocks"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type router struct {
	db     ledger.Database
	logger hclog.Logger
}

// NewRouter returns the handler of every query route. gatherer backs /metrics and may be nil.
func NewRouter(
	db ledger.Database, gatherer prometheus.Gatherer, metrics *Metrics, logger hclog.Logger,
) http.Handler {
	rt := &router{
		db:     db,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", rt.health)
	mux.HandleFunc("GET /api/blocks/{id}", rt.block)
	mux.HandleFunc("GET /api/milestones/latest", rt.latestMilestone)
	mux.HandleFunc("GET /api/milestones/{index}", rt.milestone)
	mux.HandleFunc("GET /api/milestones/{index}/merkle-root", rt.merkleRoot)
	mux.HandleFunc("GET /api/analytics/blocks", rt.blockAnalytics)

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return metrics.instrument(mux)
}

func (rt *router) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	latest, err := rt.db.GetLatestMilestone(r.Context())
	switch {
	case err == nil:
		resp.LatestMilestone = &latest.Index
	case !errors.Is(err, ledger.ErrNotFound):
		rt.fail(w, err)

		return
	}

	rt.write(w, http.StatusOK, resp)
}

func (rt *router) block(w http.ResponseWriter, r *http.Request) {
	id, err := ledger.NewHashFromHexString(r.PathValue("id"))
	if err != nil {
		rt.fail(w, fmt.Errorf("%w: %w", errBadRequest, err))

		return
	}

	block, err := rt.db.GetBlock(r.Context(), id)
	if err != nil {
		rt.fail(w, err)

		return
	}

	rt.write(w, http.StatusOK, block)
}

func (rt *router) latestMilestone(w http.ResponseWriter, r *http.Request) {
	milestone, err := rt.db.GetLatestMilestone(r.Context())
	if err != nil {
		rt.fail(w, err)

		return
	}

	rt.write(w, http.StatusOK, milestone)
}

func (rt *router) milestone(w http.ResponseWriter, r *http.Request) {
	milestone, err := rt.milestoneByPath(r)
	if err != nil {
		rt.fail(w, err)

		return
	}

	rt.write(w, http.StatusOK, milestone)
}

func (rt *router) merkleRoot(w http.ResponseWriter, r *http.Request) {
	milestone, err := rt.milestoneByPath(r)
	if err != nil {
		rt.fail(w, err)

		return
	}

	rt.write(w, http.StatusOK, merkleRootResponse{
		Index:      milestone.Index,
		MerkleRoot: poi.HashBlockIDs(milestone.BlockIDs),
		Blocks:     len(milestone.BlockIDs),
	})
}

func (rt *router) blockAnalytics(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	start, err := parseIndex("start", query.Get("start"))
	if err != nil {
		rt.fail(w, err)

		return
	}

	end, err := parseIndex("end", query.Get("end"))
	if err != nil {
		rt.fail(w, err)

		return
	}

	analytics, err := rt.db.BlockAnalytics(r.Context(), start, end)
	if err != nil {
		rt.fail(w, err)

		return
	}

	rt.write(w, http.StatusOK, analytics)
}

func (rt *router) milestoneByPath(r *http.Request) (*ledger.MilestoneRecord, error) {
	index, err := parseIndex("index", r.PathValue("index"))
	if err != nil {
		return nil, err
	}

	return rt.db.GetMilestone(r.Context(), index)
}

func parseIndex(name, value string) (uint32, error) {
	if value == "" {
		return 0, fmt.Errorf("%w: %s is required", errBadRequest, name)
	}

	index, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, value)
	}

	return uint32(index), nil
}

func (rt *router) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, ledger.ErrInvalidRange):
		status = http.StatusBadRequest
	case errors.Is(err, ledger.ErrNotFound):
		status = http.StatusNotFound
	case ledger.IsTransientError(err):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		rt.logger.Warn("Query failed", "err", err)
	}

	rt.write(w, status, errorResponse{Error: err.Error()})
}

func (rt *router) write(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		rt.logger.Debug("Failed to write response", "err", err)
	}
}

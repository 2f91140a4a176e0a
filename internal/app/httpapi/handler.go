// Package httpapi exposes the relay, operator, and read surfaces over
// HTTP. The transport identity of a caller is taken from the request
// context the host supplies, never from the payload.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"

	app "github.com/relaybridge/feed_registry/internal/app"
	"github.com/relaybridge/feed_registry/internal/app/domain/feed"
)

// TransportHeader carries the caller's transport identity, set by the
// fronting infrastructure.
const TransportHeader = "X-Relay-Identity"

// OperatorHeader authenticates the administrative surface.
const OperatorHeader = "X-Operator-Key"

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app         *app.Application
	operatorKey string
}

// NewHandler returns a mux exposing the REST API.
func NewHandler(application *app.Application, operatorKey string) http.Handler {
	h := &handler{app: application, operatorKey: operatorKey}
	mux := http.NewServeMux()
	mux.HandleFunc("/updates", h.updates)
	mux.HandleFunc("/feeds", h.feeds)
	mux.HandleFunc("/feeds/batch", h.feedsBatch)
	mux.HandleFunc("/feeds/", h.feedResources)
	mux.HandleFunc("/prices", h.prices)
	mux.HandleFunc("/stats", h.globalStats)
	mux.HandleFunc("/admin/origin", h.adminOrigin)
	mux.HandleFunc("/admin/expected-feed", h.adminExpectedFeed)
	mux.HandleFunc("/admin/treasury", h.adminTreasury)
	mux.HandleFunc("/admin/treasury/withdraw", h.adminTreasuryWithdraw)
	mux.HandleFunc("/healthz", h.health)
	return mux
}

// --- relay surface ----------------------------------------------------------

type updatePayload struct {
	Origin          string `json:"origin"`
	FeedID          string `json:"feed_id"`
	Decimals        uint8  `json:"decimals"`
	MessageVersion  uint8  `json:"message_version"`
	RoundID         string `json:"round_id"`
	Answer          string `json:"answer"`
	StartedAt       uint64 `json:"started_at"`
	UpdatedAt       uint64 `json:"updated_at"`
	AnsweredInRound string `json:"answered_in_round"`
}

func (h *handler) updates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	transport := feed.Identity(strings.TrimSpace(r.Header.Get(TransportHeader)))

	var payload updatePayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	roundID, err := parseBig("round_id", payload.RoundID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	answer, err := parseBig("answer", payload.Answer)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	answeredIn := roundID
	if strings.TrimSpace(payload.AnsweredInRound) != "" {
		if answeredIn, err = parseBig("answered_in_round", payload.AnsweredInRound); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	update := feed.Update{
		Origin:          feed.Identity(payload.Origin),
		FeedID:          payload.FeedID,
		Decimals:        payload.Decimals,
		MessageVersion:  payload.MessageVersion,
		RoundID:         roundID,
		Answer:          answer,
		StartedAt:       payload.StartedAt,
		UpdatedAt:       payload.UpdatedAt,
		AnsweredInRound: answeredIn,
	}

	if err := h.app.Validator.SubmitUpdate(r.Context(), transport, update); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "committed"})
}

// --- operator surface -------------------------------------------------------

func (h *handler) feeds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !h.operator(w, r) {
			return
		}
		var payload struct {
			ID          string `json:"id"`
			Decimals    uint8  `json:"decimals"`
			Description string `json:"description"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.app.Registry.Register(r.Context(), payload.ID, payload.Decimals, payload.Description)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		feeds, err := h.app.Registry.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, feeds)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) feedsBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.operator(w, r) {
		return
	}

	var payload struct {
		IDs          []string `json:"ids"`
		Decimals     []uint8  `json:"decimals"`
		Descriptions []string `json:"descriptions"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := h.app.Registry.RegisterBatch(r.Context(), payload.IDs, payload.Decimals, payload.Descriptions); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"registered": len(payload.IDs)})
}

func (h *handler) feedResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/feeds"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	feedID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		record, err := h.app.Registry.Get(r.Context(), feedID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, record)
		return
	}

	switch parts[1] {
	case "enable", "disable":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !h.operator(w, r) {
			return
		}
		var record feed.Feed
		var err error
		if parts[1] == "enable" {
			record, err = h.app.Registry.Enable(r.Context(), feedID)
		} else {
			record, err = h.app.Registry.Disable(r.Context(), feedID)
		}
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, record)

	case "latest":
		round, err := h.app.Queries.LatestRound(r.Context(), feedID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, roundResponse(round))

	case "rounds":
		if len(parts) != 3 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		roundID, err := parseBig("round", parts[2])
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		round, err := h.app.Queries.RoundAt(r.Context(), feedID, roundID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, roundResponse(round))

	case "stats":
		stats, err := h.app.Queries.Stats(r.Context(), feedID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, stats)

	case "stale":
		isStale, err := h.app.Queries.IsStale(r.Context(), feedID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"stale": isStale})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// --- read surface -----------------------------------------------------------

func (h *handler) prices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	rows, err := h.app.Queries.AllPrices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		entry := map[string]any{
			"feed_id":    row.FeedID,
			"updated_at": row.UpdatedAt,
			"stale":      row.Stale,
		}
		if row.Answer != nil {
			entry["answer"] = row.Answer.String()
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) globalStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	total, err := h.app.Queries.TotalGlobalUpdates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	count, err := h.app.Registry.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{
		"feeds":                count,
		"total_global_updates": total,
	})
}

// --- admin surface ----------------------------------------------------------

func (h *handler) adminOrigin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.operator(w, r) {
		return
	}
	var payload struct {
		Identity string `json:"identity"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(payload.Identity) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("identity is required"))
		return
	}
	h.app.Validator.SetAuthorizedOrigin(feed.Identity(payload.Identity))
	writeJSON(w, http.StatusOK, map[string]string{"authorized_origin": payload.Identity})
}

func (h *handler) adminExpectedFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.operator(w, r) {
		return
	}
	var payload struct {
		FeedID string `json:"feed_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h.app.Validator.SetExpectedOriginFeed(payload.FeedID)
	writeJSON(w, http.StatusOK, map[string]string{"expected_origin_feed": payload.FeedID})
}

func (h *handler) adminTreasury(w http.ResponseWriter, r *http.Request) {
	if !h.operator(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		balance, err := h.app.Treasury.Balance(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})

	case http.MethodPost:
		var payload struct {
			Amount uint64 `json:"amount"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		balance, err := h.app.Treasury.Deposit(r.Context(), payload.Amount)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]uint64{"balance": balance})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) adminTreasuryWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !h.operator(w, r) {
		return
	}
	var payload struct {
		Amount    uint64 `json:"amount"`
		Recipient string `json:"recipient"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	withdrawn, err := h.app.Treasury.Withdraw(r.Context(), payload.Amount, payload.Recipient)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"withdrawn": withdrawn})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- helpers ----------------------------------------------------------------

func (h *handler) operator(w http.ResponseWriter, r *http.Request) bool {
	if h.operatorKey == "" || r.Header.Get(OperatorHeader) != h.operatorKey {
		writeError(w, http.StatusForbidden, fmt.Errorf("operator authentication failed"))
		return false
	}
	return true
}

func roundResponse(round feed.Round) map[string]any {
	return map[string]any{
		"round_id":          round.RoundID.String(),
		"answer":            round.Answer.String(),
		"started_at":        round.StartedAt,
		"updated_at":        round.UpdatedAt,
		"answered_in_round": round.AnsweredInRound.String(),
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, feed.ErrUntrustedTransport),
		errors.Is(err, feed.ErrUntrustedOrigin),
		errors.Is(err, feed.ErrVersionMismatch):
		return http.StatusForbidden
	case errors.Is(err, feed.ErrAlreadyRegistered),
		errors.Is(err, feed.ErrNoFunds):
		return http.StatusConflict
	case errors.Is(err, feed.ErrLengthMismatch):
		return http.StatusBadRequest
	case errors.Is(err, feed.ErrFeedNotFound),
		errors.Is(err, feed.ErrNoData),
		errors.Is(err, feed.ErrRoundNotFound):
		return http.StatusNotFound
	case errors.Is(err, feed.ErrFeedDisabled),
		errors.Is(err, feed.ErrInvalidFeedSource),
		errors.Is(err, feed.ErrDecimalsMismatch),
		errors.Is(err, feed.ErrInvalidPrice),
		errors.Is(err, feed.ErrStaleRound),
		errors.Is(err, feed.ErrStaleTimestamp):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func parseBig(name, raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%s is required", name)
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("%s is not a valid integer", name)
	}
	return v, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// Package admin exposes a read-only ops HTTP surface for the admin tooling:
// health, server statistics and the current inventory snapshot.
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Lucius-40/lanshop/internal/model"
	"github.com/Lucius-40/lanshop/internal/server"
)

// ShopServer is the subset of the server core the admin surface reads from.
type ShopServer interface {
	Stats() server.Stats
	Inventory() []model.Product
}

// NewRouter builds the admin router over the given server.
func NewRouter(s ShopServer, log *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "OK")
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.Stats(), log)
	}).Methods(http.MethodGet)

	r.HandleFunc("/api/inventory", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, s.Inventory(), log)
	}).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, v any, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("write admin response", zap.Error(err))
	}
}

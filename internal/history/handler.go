package history

import (
	"encoding/json"
	"net/http"
	"strconv"

	ferrors "git.home.luguber.info/inful/devbundle/internal/foundation/errors"
)

// Handler serves recent records as JSON. The "limit" query parameter caps the result.
func Handler(store Store) http.Handler {
	adapter := ferrors.NewHTTPErrorAdapter(nil)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				adapter.WriteErrorResponse(w, r, ferrors.ValidationError("limit must be a positive integer").
					WithContext("limit", raw).Build())
				return
			}
			limit = n
		}
		records, err := store.Recent(r.Context(), limit)
		if err != nil {
			adapter.WriteErrorResponse(w, r, err)
			return
		}
		if records == nil {
			records = []Record{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	})
}

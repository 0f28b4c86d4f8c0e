package api

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

type healthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Pages    int    `json:"pages"`
}

func healthHandler(stats StatsProvider) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		st, err := stats.Stats(r.Context())
		if err != nil {
			logrus.WithError(err).WithField("component", "api").Warn("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(healthResponse{Status: "unavailable"})
			return
		}

		json.NewEncoder(w).Encode(healthResponse{
			Status:   "ok",
			Sessions: st.Sessions,
			Pages:    st.Pages,
		})
	})
}

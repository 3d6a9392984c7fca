package handler

import "net/http"

// HandleHealth answers GET / so load balancers and humans can tell the API is up.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

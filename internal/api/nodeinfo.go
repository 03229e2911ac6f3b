package api

import "net/http"

// handleNodeVersion implements "node-info: version".
func (s *Server) handleNodeVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.Info.Version})
}

// handleNodeConfig implements "node-info: config".
func (s *Server) handleNodeConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Info)
}
